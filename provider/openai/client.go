// Package openai adapts provider.Client to the OpenAI Chat Completions API
// using github.com/openai/openai-go (the official SDK, not a community
// client).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// ChatClient captures the subset of the OpenAI SDK used by the adapter.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *sdk.ChatCompletionStream
}

// Client implements provider.Client on top of OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// New builds an adapter from an existing chat completions client.
func New(chat ChatClient, defaultModel string) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: defaultModel}, nil
}

// NewFromAPIKey constructs an adapter using the SDK's default HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, defaultModel)
}

func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	resp, err := c.chat.New(ctx, *params)
	if err != nil {
		return provider.Response{}, translateError(err)
	}
	return translateResponse(resp)
}

func (c *Client) Stream(ctx context.Context, req provider.Request) (provider.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = sdk.ChatCompletionStreamOptionsParam{IncludeUsage: sdk.Bool(true)}
	stream := c.chat.NewStreaming(ctx, *params)
	return newStreamer(stream), nil
}

func (c *Client) prepareRequest(req provider.Request) (*sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	msgs, err := encodeMessages(req)
	if err != nil {
		return nil, err
	}
	params := &sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelID),
		Messages: msgs,
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeTools(req.Tools)
	}
	if req.ToolChoice != nil {
		tc, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		params.ToolChoice = tc
	}
	return params, nil
}

func encodeMessages(req provider.Request) ([]sdk.ChatCompletionMessageParamUnion, error) {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemMessage != "" {
		out = append(out, sdk.SystemMessage(req.SystemMessage))
	}
	for _, m := range req.Messages {
		switch m.Role() {
		case message.RoleUser:
			var text string
			for _, b := range m.Blocks() {
				if t, ok := b.(message.TextBlock); ok {
					text += t.Text
				}
			}
			out = append(out, sdk.UserMessage(text))
		case message.RoleAssistant:
			var text string
			var calls []sdk.ChatCompletionMessageToolCallParam
			for _, b := range m.Blocks() {
				switch v := b.(type) {
				case message.TextBlock:
					text += v.Text
				case message.ToolUseBlock:
					args, err := json.Marshal(v.Parameters)
					if err != nil {
						return nil, fmt.Errorf("openai: marshal tool_use arguments: %w", err)
					}
					calls = append(calls, sdk.ChatCompletionMessageToolCallParam{
						ID: v.ID,
						Function: sdk.ChatCompletionMessageToolCallFunctionParam{
							Name:      v.Name,
							Arguments: string(args),
						},
					})
				}
			}
			am := sdk.ChatCompletionAssistantMessageParam{}
			if text != "" {
				am.Content.OfString = sdk.String(text)
			}
			am.ToolCalls = calls
			out = append(out, sdk.ChatCompletionMessageParamUnion{OfAssistant: &am})
		case message.RoleTool:
			tm := m.(message.ToolMessage)
			var text string
			for _, t := range tm.Content {
				text += t.Text
			}
			out = append(out, sdk.ToolMessage(text, tm.ToolCallID))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role())
		}
	}
	return out, nil
}

func encodeTools(defs []provider.ToolDefinition) []sdk.ChatCompletionToolParam {
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        def.Name,
				Description: sdk.String(def.Description),
				Parameters:  sdk.FunctionParameters(def.InputSchema),
			},
		})
	}
	return out
}

func encodeToolChoice(choice *provider.ToolChoice) (sdk.ChatCompletionToolChoiceOptionUnionParam, error) {
	switch choice.Mode {
	case "", provider.ToolChoiceModeAuto:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("auto")}, nil
	case provider.ToolChoiceModeNone:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("none")}, nil
	case provider.ToolChoiceModeAny:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{OfAuto: sdk.String("required")}, nil
	case provider.ToolChoiceModeTool:
		if choice.Name == "" {
			return sdk.ChatCompletionToolChoiceOptionUnionParam{}, errors.New("openai: tool choice mode 'tool' requires a name")
		}
		return sdk.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &sdk.ChatCompletionNamedToolChoiceParam{
				Function: sdk.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
			},
		}, nil
	default:
		return sdk.ChatCompletionToolChoiceOptionUnionParam{}, fmt.Errorf("openai: unsupported tool choice mode %q", choice.Mode)
	}
}

func translateResponse(resp *sdk.ChatCompletion) (provider.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return provider.Response{}, errors.New("openai: response has no choices")
	}
	choice := resp.Choices[0]
	var blocks []message.ContentBlock
	if choice.Message.Content != "" {
		blocks = append(blocks, message.TextBlock{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		var params map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
				return provider.Response{}, fmt.Errorf("openai: decode tool call arguments: %w", err)
			}
		}
		blocks = append(blocks, message.ToolUseBlock{
			ID:         call.ID,
			Name:       call.Function.Name,
			Parameters: message.ParamMapFromUnordered(params),
		})
	}
	if len(blocks) == 0 {
		return provider.Response{}, errors.New("openai: response message has no content")
	}
	return provider.Response{
		Message:      message.AssistantMessage{Content: blocks},
		FinishReason: string(choice.FinishReason),
		Usage: &provider.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func translateError(err error) error {
	kind := provider.ErrorKindUnknown
	retryable := false
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			kind = provider.ErrorKindAuth
		case apiErr.StatusCode == 429:
			kind = provider.ErrorKindRateLimited
			retryable = true
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 422:
			kind = provider.ErrorKindInvalidRequest
		case apiErr.StatusCode >= 500:
			kind = provider.ErrorKindUnavailable
			retryable = true
		}
	}
	return &provider.Error{Provider: "openai", Operation: "chat.completions", Kind: kind, Retryable: retryable, Cause: err}
}
