package bedrock

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// streamer adapts a Bedrock ConverseStream event stream to provider.Streamer.
// Bedrock identifies blocks by a numeric content index rather than an
// opaque ID, so tool-use arguments are buffered per index until the matching
// content_block_stop event.
type streamer struct {
	stream *bedrockruntime.ConverseStreamEventStream

	provToCanon map[string]string
	toolID      map[int32]string
	toolName    map[int32]string
	toolArgs    map[int32][]byte
}

func newStreamer(stream *bedrockruntime.ConverseStreamEventStream, provToCanon map[string]string) *streamer {
	return &streamer{
		stream:      stream,
		provToCanon: provToCanon,
		toolID:      map[int32]string{},
		toolName:    map[int32]string{},
		toolArgs:    map[int32][]byte{},
	}
}

func (s *streamer) Recv() (provider.Chunk, error) {
	event, ok := <-s.stream.Events()
	if !ok {
		if err := s.stream.Err(); err != nil {
			return provider.Chunk{}, err
		}
		return provider.Chunk{}, io.EOF
	}
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := ev.Value.ContentBlockIndex
		if idx == nil {
			return s.Recv()
		}
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			s.toolID[*idx] = derefString(start.Value.ToolUseId)
			s.toolName[*idx] = derefString(start.Value.Name)
		}
		return s.Recv()
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := ev.Value.ContentBlockIndex
		if idx == nil {
			return s.Recv()
		}
		switch d := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if d.Value != "" {
				return provider.Chunk{Type: provider.ChunkTypeText, Text: d.Value}, nil
			}
			return s.Recv()
		case *brtypes.ContentBlockDeltaMemberToolUse:
			if d.Value.Input != nil {
				s.toolArgs[*idx] = append(s.toolArgs[*idx], []byte(*d.Value.Input)...)
			}
			return s.Recv()
		default:
			return s.Recv()
		}
	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := ev.Value.ContentBlockIndex
		if idx == nil {
			return s.Recv()
		}
		name, ok := s.toolName[*idx]
		if !ok {
			return s.Recv()
		}
		if canonical, ok := s.provToCanon[name]; ok {
			name = canonical
		}
		var params map[string]any
		if raw := s.toolArgs[*idx]; len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return provider.Chunk{}, fmt.Errorf("bedrock stream: decode tool_use input: %w", err)
			}
		}
		tool := message.ToolUseBlock{ID: s.toolID[*idx], Name: name, Parameters: message.ParamMapFromUnordered(params)}
		return provider.Chunk{Type: provider.ChunkTypeToolUse, ToolUse: &tool}, nil
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		return provider.Chunk{Type: provider.ChunkTypeStop, FinishReason: string(ev.Value.StopReason)}, nil
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage != nil {
			u := ev.Value.Usage
			usage := &provider.TokenUsage{
				InputTokens:  int(derefInt32(u.InputTokens)),
				OutputTokens: int(derefInt32(u.OutputTokens)),
				TotalTokens:  int(derefInt32(u.TotalTokens)),
			}
			return provider.Chunk{Type: provider.ChunkTypeUsage, Usage: usage}, nil
		}
		return s.Recv()
	default:
		return s.Recv()
	}
}

func (s *streamer) Close() error {
	return s.stream.Close()
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefInt32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
