// Package provider defines the Generation Driver's provider-agnostic model
// contract: the Request/Response/Chunk shapes the driver builds and
// consumes, and the Client/Streamer interfaces vendor adapters implement.
//
// The contract is intentionally narrower than a general-purpose multimodal
// chat API: the forest's canonical Message only ever carries Text and
// ToolUse blocks (see package message), so Request/Response are built
// directly on message.Message rather than a separate provider-side part
// union.
package provider

import (
	"context"

	"github.com/arcreflex/loomforest/message"
)

type (
	// ToolDefinition describes a tool exposed to the model for a single
	// request. Name and Description are presented to the model; InputSchema
	// is a JSON Schema object (typically the same map[string]any a
	// toolregistry.Tool carries).
	ToolDefinition struct {
		Name        string
		Description string
		InputSchema map[string]any
	}

	// ToolChoiceMode selects how a Request constrains tool use.
	ToolChoiceMode string

	// ToolChoice configures optional tool-use behavior for a Request. A nil
	// *ToolChoice leaves the provider's default (typically auto) in effect.
	ToolChoice struct {
		Mode ToolChoiceMode
		// Name identifies the tool to force when Mode is ToolChoiceModeTool.
		Name string
	}

	// TokenUsage reports token consumption for a single provider call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures the inputs to a single provider invocation. Messages
	// is the coalesced context the Generation Driver builds per §4.4;
	// SystemMessage is the root's system prompt, if any.
	Request struct {
		SystemMessage string
		Messages      []message.Message
		Model         string
		Temperature   float32
		MaxTokens     int
		Tools         []ToolDefinition
		ToolChoice    *ToolChoice
	}

	// Response is the result of a non-streaming invocation. Message is the
	// single assistant message produced (Text and/or ToolUse blocks,
	// interleaved in provider order).
	Response struct {
		Message      message.Message
		Usage        *TokenUsage
		FinishReason string
	}

	// ChunkType classifies a streaming Chunk.
	ChunkType string

	// Chunk is a single streaming event from a provider. Not all fields are
	// populated for every Type; see the ChunkType* constants.
	Chunk struct {
		Type ChunkType

		// Text carries an incremental text fragment when Type is
		// ChunkTypeText.
		Text string

		// ToolUse carries a complete tool invocation when Type is
		// ChunkTypeToolUse (providers surface tool calls atomically once
		// the model finishes constructing the arguments, not incrementally).
		ToolUse *message.ToolUseBlock

		// Usage carries token usage when Type is ChunkTypeUsage. Providers
		// that only report usage once, at stream end, emit it alongside
		// ChunkTypeStop instead; either is acceptable.
		Usage *TokenUsage

		// FinishReason is set when Type is ChunkTypeStop.
		FinishReason string
	}

	// Client is the provider-agnostic model client a vendor adapter
	// implements.
	Client interface {
		Complete(ctx context.Context, req Request) (Response, error)
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Callers must drain Recv
	// until it returns io.EOF (or another terminal error), then call Close.
	Streamer interface {
		Recv() (Chunk, error)
		Close() error
	}
)

const (
	ChunkTypeText    ChunkType = "text"
	ChunkTypeToolUse ChunkType = "tool_use"
	ChunkTypeUsage   ChunkType = "usage"
	ChunkTypeStop    ChunkType = "stop"
)

const (
	ToolChoiceModeAuto ToolChoiceMode = "auto"
	ToolChoiceModeAny  ToolChoiceMode = "any"
	ToolChoiceModeNone ToolChoiceMode = "none"
	ToolChoiceModeTool ToolChoiceMode = "tool"
)
