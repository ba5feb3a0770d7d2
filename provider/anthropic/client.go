// Package anthropic adapts provider.Client to the Anthropic Claude Messages
// API using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements provider.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
}

// New builds an adapter from an existing Anthropic Messages client.
func New(msg MessagesClient, defaultModel string) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	return &Client{msg: msg, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs an adapter using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, defaultModel)
}

func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return provider.Response{}, translateError(err)
	}
	return translateResponse(msg)
}

func (c *Client) Stream(ctx context.Context, req provider.Request) (provider.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return newStreamer(stream), nil
}

func (c *Client) prepareRequest(req provider.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if modelID == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	msgs, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	if req.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if req.SystemMessage != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemMessage}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := encodeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice, req.Tools)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = tc
	}
	return &params, nil
}

func encodeMessages(msgs []message.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Blocks()))
		for _, b := range m.Blocks() {
			switch v := b.(type) {
			case message.TextBlock:
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			case message.ToolUseBlock:
				blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Parameters.AsMap(), v.Name))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role() {
		case message.RoleUser:
			out = append(out, sdk.NewUserMessage(blocks...))
		case message.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case message.RoleTool:
			tm := m.(message.ToolMessage)
			content := ""
			for _, t := range tm.Content {
				content += t.Text
			}
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(tm.ToolCallID, content, false)))
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role())
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	return out, nil
}

func encodeTools(defs []provider.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		raw, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: fields}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func encodeToolChoice(choice *provider.ToolChoice, defs []provider.ToolDefinition) (sdk.ToolChoiceUnionParam, error) {
	switch choice.Mode {
	case "", provider.ToolChoiceModeAuto:
		return sdk.ToolChoiceUnionParam{}, nil
	case provider.ToolChoiceModeNone:
		none := sdk.NewToolChoiceNoneParam()
		return sdk.ToolChoiceUnionParam{OfNone: &none}, nil
	case provider.ToolChoiceModeAny:
		return sdk.ToolChoiceUnionParam{OfAny: &sdk.ToolChoiceAnyParam{}}, nil
	case provider.ToolChoiceModeTool:
		if choice.Name == "" {
			return sdk.ToolChoiceUnionParam{}, errors.New("anthropic: tool choice mode 'tool' requires a name")
		}
		found := false
		for _, d := range defs {
			if d.Name == choice.Name {
				found = true
				break
			}
		}
		if !found {
			return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: tool choice name %q does not match any tool", choice.Name)
		}
		return sdk.ToolChoiceParamOfTool(choice.Name), nil
	default:
		return sdk.ToolChoiceUnionParam{}, fmt.Errorf("anthropic: unsupported tool choice mode %q", choice.Mode)
	}
}

func translateResponse(msg *sdk.Message) (provider.Response, error) {
	if msg == nil {
		return provider.Response{}, errors.New("anthropic: response message is nil")
	}
	var blocks []message.ContentBlock
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				blocks = append(blocks, message.TextBlock{Text: block.Text})
			}
		case "tool_use":
			var params map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &params); err != nil {
					return provider.Response{}, fmt.Errorf("anthropic: decode tool_use input: %w", err)
				}
			}
			blocks = append(blocks, message.ToolUseBlock{
				ID:         block.ID,
				Name:       block.Name,
				Parameters: message.ParamMapFromUnordered(params),
			})
		}
	}
	if len(blocks) == 0 {
		return provider.Response{}, errors.New("anthropic: response has no content")
	}
	resp := provider.Response{
		Message:      message.AssistantMessage{Content: blocks},
		FinishReason: string(msg.StopReason),
	}
	u := msg.Usage
	if u.InputTokens != 0 || u.OutputTokens != 0 || u.CacheReadInputTokens != 0 || u.CacheCreationInputTokens != 0 {
		resp.Usage = &provider.TokenUsage{
			InputTokens:      int(u.InputTokens),
			OutputTokens:     int(u.OutputTokens),
			TotalTokens:      int(u.InputTokens + u.OutputTokens),
			CacheReadTokens:  int(u.CacheReadInputTokens),
			CacheWriteTokens: int(u.CacheCreationInputTokens),
		}
	}
	return resp, nil
}

func translateError(err error) error {
	kind := provider.ErrorKindUnknown
	retryable := false
	var apiErr *sdk.Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
		switch {
		case status == 401 || status == 403:
			kind = provider.ErrorKindAuth
		case status == 429:
			kind = provider.ErrorKindRateLimited
			retryable = true
		case status == 400 || status == 422:
			kind = provider.ErrorKindInvalidRequest
		case status >= 500:
			kind = provider.ErrorKindUnavailable
			retryable = true
		}
	}
	return &provider.Error{
		Provider:  "anthropic",
		Operation: "messages",
		Kind:      kind,
		Retryable: retryable,
		Cause:     err,
	}
}
