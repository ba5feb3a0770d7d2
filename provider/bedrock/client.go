// Package bedrock adapts provider.Client to the AWS Bedrock Converse API
// using github.com/aws/aws-sdk-go-v2/service/bedrockruntime.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
)

// RuntimeClient is the subset of *bedrockruntime.Client the adapter uses.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client implements provider.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
}

// New builds an adapter from an existing Bedrock runtime client.
func New(runtime RuntimeClient, defaultModel string) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("bedrock: default model identifier is required")
	}
	return &Client{runtime: runtime, defaultModel: defaultModel}, nil
}

func (c *Client) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	parts, err := c.prepareRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return provider.Response{}, translateError(err)
	}
	return translateResponse(out, parts.provToCanon)
}

func (c *Client) Stream(ctx context.Context, req provider.Request) (provider.Streamer, error) {
	parts, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(parts.modelID),
		Messages: parts.messages,
	}
	if len(parts.system) > 0 {
		input.System = parts.system
	}
	if parts.toolConfig != nil {
		input.ToolConfig = parts.toolConfig
	}
	if cfg := inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	out, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	stream := out.GetStream()
	if stream == nil {
		return nil, errors.New("bedrock: stream output missing event stream")
	}
	return newStreamer(stream, parts.provToCanon), nil
}

type requestParts struct {
	modelID     string
	messages    []brtypes.Message
	system      []brtypes.SystemContentBlock
	toolConfig  *brtypes.ToolConfiguration
	provToCanon map[string]string
}

func (c *Client) prepareRequest(req provider.Request) (*requestParts, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	toolConfig, canonToSan, sanToCanon, err := encodeTools(req.Tools, req.ToolChoice)
	if err != nil {
		return nil, err
	}
	messages, system, err := encodeMessages(req, canonToSan)
	if err != nil {
		return nil, err
	}
	return &requestParts{
		modelID:     modelID,
		messages:    messages,
		system:      system,
		toolConfig:  toolConfig,
		provToCanon: sanToCanon,
	}, nil
}

func inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
	}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func encodeMessages(req provider.Request, canonToSan map[string]string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	if req.SystemMessage != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: req.SystemMessage})
	}
	out := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		var blocks []brtypes.ContentBlock
		for _, b := range m.Blocks() {
			switch v := b.(type) {
			case message.TextBlock:
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
			case message.ToolUseBlock:
				name := v.Name
				if sanitized, ok := canonToSan[v.Name]; ok {
					name = sanitized
				}
				input, err := marshalDocument(v.Parameters.AsMap())
				if err != nil {
					return nil, nil, fmt.Errorf("bedrock: tool_use %q input: %w", v.Name, err)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{ToolUseId: aws.String(v.ID), Name: aws.String(name), Input: input},
				})
			}
		}
		var role brtypes.ConversationRole
		switch m.Role() {
		case message.RoleUser:
			role = brtypes.ConversationRoleUser
		case message.RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		case message.RoleTool:
			tm := m.(message.ToolMessage)
			var text string
			for _, t := range tm.Content {
				text += t.Text
			}
			blocks = []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(tm.ToolCallID),
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: text}},
				},
			}}
			role = brtypes.ConversationRoleUser
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role())
		}
		if len(blocks) == 0 {
			continue
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	if len(out) == 0 {
		return nil, nil, errors.New("bedrock: at least one message is required")
	}
	return out, system, nil
}

func encodeTools(defs []provider.ToolDefinition, choice *provider.ToolChoice) (*brtypes.ToolConfiguration, map[string]string, map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil, nil, nil
	}
	canonToSan := make(map[string]string, len(defs))
	sanToCanon := make(map[string]string, len(defs))
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		sanitized := sanitizeToolName(def.Name)
		canonToSan[def.Name] = sanitized
		sanToCanon[sanitized] = def.Name
		schemaDoc, err := marshalDocument(def.InputSchema)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bedrock: tool %q schema: %w", def.Name, err)
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(sanitized),
				Description: aws.String(def.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: schemaDoc},
			},
		})
	}
	cfg := &brtypes.ToolConfiguration{Tools: tools}
	if choice != nil {
		switch choice.Mode {
		case provider.ToolChoiceModeAny:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{Value: brtypes.AnyToolChoice{}}
		case provider.ToolChoiceModeTool:
			if sanitized, ok := canonToSan[choice.Name]; ok {
				cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: aws.String(sanitized)}}
			}
		}
	}
	return cfg, canonToSan, sanToCanon, nil
}

func sanitizeToolName(in string) string {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func marshalDocument(v any) (document.Interface, error) {
	if v == nil {
		v = map[string]any{}
	}
	return document.NewLazyDocument(v), nil
}

func translateResponse(out *bedrockruntime.ConverseOutput, provToCanon map[string]string) (provider.Response, error) {
	if out == nil || out.Output == nil {
		return provider.Response{}, errors.New("bedrock: converse output is empty")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return provider.Response{}, errors.New("bedrock: unexpected converse output type")
	}
	var blocks []message.ContentBlock
	for _, block := range msgOut.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value != "" {
				blocks = append(blocks, message.TextBlock{Text: v.Value})
			}
		case *brtypes.ContentBlockMemberToolUse:
			name := aws.ToString(v.Value.Name)
			if canonical, ok := provToCanon[name]; ok {
				name = canonical
			}
			var params map[string]any
			if v.Value.Input != nil {
				raw, err := v.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return provider.Response{}, fmt.Errorf("bedrock: decode tool_use input: %w", err)
				}
				if err := json.Unmarshal(raw, &params); err != nil {
					return provider.Response{}, fmt.Errorf("bedrock: decode tool_use input: %w", err)
				}
			}
			blocks = append(blocks, message.ToolUseBlock{
				ID:         aws.ToString(v.Value.ToolUseId),
				Name:       name,
				Parameters: message.ParamMapFromUnordered(params),
			})
		}
	}
	if len(blocks) == 0 {
		return provider.Response{}, errors.New("bedrock: response has no content")
	}
	resp := provider.Response{Message: message.AssistantMessage{Content: blocks}}
	resp.FinishReason = string(out.StopReason)
	if out.Usage != nil {
		resp.Usage = &provider.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

func translateError(err error) error {
	kind := provider.ErrorKindUnknown
	retryable := false
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			kind = provider.ErrorKindRateLimited
			retryable = true
		case "ValidationException":
			kind = provider.ErrorKindInvalidRequest
		case "AccessDeniedException", "UnauthorizedException":
			kind = provider.ErrorKindAuth
		case "ServiceUnavailableException", "InternalServerException":
			kind = provider.ErrorKindUnavailable
			retryable = true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		kind = provider.ErrorKindRateLimited
		retryable = true
	}
	return &provider.Error{Provider: "bedrock", Operation: "converse", Kind: kind, Retryable: retryable, Cause: err}
}
