package openai

import (
	"encoding/json"
	"io"

	sdk "github.com/openai/openai-go"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// streamer adapts an OpenAI chat completion SSE stream to provider.Streamer.
// It accumulates tool-call argument fragments per index (OpenAI keys tool
// call deltas by array position within a choice, where Anthropic keys them
// by content block) and emits one ChunkTypeToolUse per call once a choice's
// finish_reason arrives.
type streamer struct {
	stream *sdk.ChatCompletionStream

	toolName   map[int64]string
	toolID     map[int64]string
	toolArgs   map[int64]string
	toolOrder  []int64
	pending    []provider.Chunk
	usage      *provider.TokenUsage
}

func newStreamer(stream *sdk.ChatCompletionStream) *streamer {
	return &streamer{
		stream:   stream,
		toolName: map[int64]string{},
		toolID:   map[int64]string{},
		toolArgs: map[int64]string{},
	}
}

func (s *streamer) Recv() (provider.Chunk, error) {
	for len(s.pending) == 0 {
		if !s.stream.Next() {
			break
		}
		chunk := s.stream.Current()
		if chunk.Usage.TotalTokens != 0 {
			s.usage = &provider.TokenUsage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:  int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			s.pending = append(s.pending, provider.Chunk{Type: provider.ChunkTypeText, Text: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			if _, seen := s.toolID[idx]; !seen {
				s.toolID[idx] = tc.ID
				s.toolName[idx] = tc.Function.Name
				s.toolOrder = append(s.toolOrder, idx)
			}
			s.toolArgs[idx] += tc.Function.Arguments
		}
		if choice.FinishReason != "" {
			for _, idx := range s.toolOrder {
				var params map[string]any
				if raw := s.toolArgs[idx]; raw != "" {
					if err := json.Unmarshal([]byte(raw), &params); err != nil {
						return provider.Chunk{}, err
					}
				}
				tool := message.ToolUseBlock{
					ID:         s.toolID[idx],
					Name:       s.toolName[idx],
					Parameters: message.ParamMapFromUnordered(params),
				}
				s.pending = append(s.pending, provider.Chunk{Type: provider.ChunkTypeToolUse, ToolUse: &tool})
			}
			if s.usage != nil {
				s.pending = append(s.pending, provider.Chunk{Type: provider.ChunkTypeUsage, Usage: s.usage})
			}
			s.pending = append(s.pending, provider.Chunk{Type: provider.ChunkTypeStop, FinishReason: string(choice.FinishReason)})
		}
	}
	if len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		return c, nil
	}
	if err := s.stream.Err(); err != nil {
		return provider.Chunk{}, err
	}
	return provider.Chunk{}, io.EOF
}

func (s *streamer) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}
