package anthropic

import (
	"encoding/json"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// streamer adapts an Anthropic Messages SSE stream to provider.Streamer. It
// polls the SDK stream synchronously from Recv; no goroutine or channel sits
// between the SDK stream and the caller.
type streamer struct {
	stream      *ssestream.Stream[sdk.MessageStreamEventUnion]
	pendingTool *message.ToolUseBlock
	toolInput   []byte
}

func newStreamer(stream *ssestream.Stream[sdk.MessageStreamEventUnion]) *streamer {
	return &streamer{stream: stream}
}

func (s *streamer) Recv() (provider.Chunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				s.pendingTool = &message.ToolUseBlock{ID: event.ContentBlock.ID, Name: event.ContentBlock.Name}
				s.toolInput = s.toolInput[:0]
			}
		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					return provider.Chunk{Type: provider.ChunkTypeText, Text: event.Delta.Text}, nil
				}
			case "input_json_delta":
				s.toolInput = append(s.toolInput, event.Delta.PartialJSON...)
			}
		case "content_block_stop":
			if s.pendingTool != nil {
				tool := *s.pendingTool
				s.pendingTool = nil
				if len(s.toolInput) > 0 {
					var params map[string]any
					if err := json.Unmarshal(s.toolInput, &params); err != nil {
						return provider.Chunk{}, err
					}
					tool.Parameters = message.ParamMapFromUnordered(params)
				}
				return provider.Chunk{Type: provider.ChunkTypeToolUse, ToolUse: &tool}, nil
			}
		case "message_delta":
			usage := &provider.TokenUsage{OutputTokens: int(event.Usage.OutputTokens)}
			return provider.Chunk{Type: provider.ChunkTypeStop, Usage: usage, FinishReason: string(event.Delta.StopReason)}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return provider.Chunk{}, err
	}
	return provider.Chunk{Type: provider.ChunkTypeStop}, io.EOF
}

func (s *streamer) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}
