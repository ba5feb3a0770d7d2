// Package stub provides a deterministic, in-process provider.Client for
// driver tests that must not make real network calls.
package stub

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// Client is a scripted provider.Client: each call to Complete or Stream
// consumes the next entry from Responses, in order. It is safe for
// concurrent use.
type Client struct {
	mu sync.Mutex

	// Responses is consumed one entry per Complete/Stream call. When
	// exhausted, calls return ErrExhausted.
	Responses []Response

	// Requests records every Request passed to Complete or Stream, in call
	// order, for assertions in tests.
	Requests []provider.Request

	next int
}

// Response scripts a single provider.Client call: either a Response to
// return from Complete (or replay chunk-by-chunk from Stream), or an Err to
// return instead.
type Response struct {
	Message      message.Message
	Usage        *provider.TokenUsage
	FinishReason string
	Err          error
}

// ErrExhausted is returned once Responses has been fully consumed.
var ErrExhausted = errors.New("stub: no scripted response remaining")

func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.next >= len(c.Responses) {
		return provider.Response{}, ErrExhausted
	}
	r := c.Responses[c.next]
	c.next++
	if r.Err != nil {
		return provider.Response{}, r.Err
	}
	return provider.Response{Message: r.Message, Usage: r.Usage, FinishReason: r.FinishReason}, nil
}

func (c *Client) Stream(ctx context.Context, req provider.Request) (provider.Streamer, error) {
	resp, err := c.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return newReplayStreamer(resp), nil
}

// replayStreamer turns a single Response into a Chunk sequence: one text
// chunk per TextBlock, one tool_use chunk per ToolUseBlock (in content
// order), then a usage chunk (if Usage is set) and a terminal stop chunk.
type replayStreamer struct {
	chunks []provider.Chunk
	pos    int
}

func newReplayStreamer(resp provider.Response) *replayStreamer {
	var chunks []provider.Chunk
	if resp.Message != nil {
		for _, b := range resp.Message.Blocks() {
			switch v := b.(type) {
			case message.TextBlock:
				chunks = append(chunks, provider.Chunk{Type: provider.ChunkTypeText, Text: v.Text})
			case message.ToolUseBlock:
				block := v
				chunks = append(chunks, provider.Chunk{Type: provider.ChunkTypeToolUse, ToolUse: &block})
			}
		}
	}
	if resp.Usage != nil {
		chunks = append(chunks, provider.Chunk{Type: provider.ChunkTypeUsage, Usage: resp.Usage})
	}
	chunks = append(chunks, provider.Chunk{Type: provider.ChunkTypeStop, FinishReason: resp.FinishReason})
	return &replayStreamer{chunks: chunks}
}

func (s *replayStreamer) Recv() (provider.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return provider.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *replayStreamer) Close() error { return nil }

// NewTextResponse is a convenience constructor for a single-text-block
// assistant Response with no tool calls.
func NewTextResponse(text string) Response {
	return Response{Message: message.AssistantMessage{Content: []message.ContentBlock{message.TextBlock{Text: text}}}}
}

// NewToolUseResponse is a convenience constructor for an assistant Response
// consisting of a single tool call.
func NewToolUseResponse(id, name string, params message.ParamMap) Response {
	return Response{Message: message.AssistantMessage{Content: []message.ContentBlock{
		message.ToolUseBlock{ID: id, Name: name, Parameters: params},
	}}}
}
