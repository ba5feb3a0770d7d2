package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LegacyToolCall is the legacy assistant shape's per-call declaration: a tool
// name, an id, and a JSON-encoded arguments string (as providers such as
// OpenAI's chat-completions API emit them).
type LegacyToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// LegacyMessage is a pre-V2 message shape: a single string content plus,
// for assistants, an optional list of tool calls. Normalize forward-migrates
// this into the canonical Message sum type.
type LegacyMessage struct {
	Role      Role
	Content   string
	ToolCalls []LegacyToolCall

	// ToolCallID is only meaningful when Role == RoleTool.
	ToolCallID string
}

// Normalize converts msg into a canonical Message.
//
// msg may be:
//   - an already-canonical Message (returned unchanged after validation),
//   - a LegacyMessage (forward-migrated per the rules below),
//   - any other value, which is rejected with *InvalidMessageError.
func Normalize(msg any) (Message, error) {
	switch v := msg.(type) {
	case Message:
		if err := IsCanonical(v); err != nil {
			return nil, err
		}
		return v, nil
	case LegacyMessage:
		return normalizeLegacy(v)
	case *LegacyMessage:
		if v == nil {
			return nil, &InvalidMessageError{Reason: "nil legacy message"}
		}
		return normalizeLegacy(*v)
	default:
		return nil, &InvalidMessageError{Reason: fmt.Sprintf("unsupported message shape %T", msg)}
	}
}

func normalizeLegacy(lm LegacyMessage) (Message, error) {
	switch lm.Role {
	case RoleUser:
		return normalizeLegacyUser(lm)
	case RoleAssistant:
		return normalizeLegacyAssistant(lm)
	case RoleTool:
		return normalizeLegacyTool(lm)
	default:
		return nil, &InvalidMessageError{Reason: fmt.Sprintf("unknown legacy role %q", lm.Role)}
	}
}

func normalizeLegacyUser(lm LegacyMessage) (Message, error) {
	if !trimmedNonEmpty(lm.Content) {
		return nil, &EmptyContentError{Role: RoleUser}
	}
	return UserMessage{Content: []TextBlock{{Text: lm.Content}}}, nil
}

func normalizeLegacyTool(lm LegacyMessage) (Message, error) {
	if !trimmedNonEmpty(lm.ToolCallID) {
		return nil, &InvalidToolCallError{Reason: "tool message missing tool_call_id"}
	}
	if !trimmedNonEmpty(lm.Content) {
		return nil, &EmptyContentError{Role: RoleTool}
	}
	return ToolMessage{
		ToolCallID: strings.TrimSpace(lm.ToolCallID),
		Content:    []TextBlock{{Text: lm.Content}},
	}, nil
}

func normalizeLegacyAssistant(lm LegacyMessage) (Message, error) {
	var blocks []ContentBlock
	if trimmedNonEmpty(lm.Content) {
		blocks = append(blocks, TextBlock{Text: lm.Content})
	}
	for _, tc := range lm.ToolCalls {
		if !trimmedNonEmpty(tc.ID) {
			return nil, &InvalidToolCallError{Reason: fmt.Sprintf("tool call %q missing id", tc.Name)}
		}
		if !trimmedNonEmpty(tc.Name) {
			return nil, &InvalidToolCallError{Reason: fmt.Sprintf("tool call %q missing name", tc.ID)}
		}
		params, err := parseLegacyArguments(tc)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, ToolUseBlock{
			ID:         strings.TrimSpace(tc.ID),
			Name:       strings.TrimSpace(tc.Name),
			Parameters: params,
		})
	}
	if len(blocks) == 0 {
		return nil, &EmptyContentError{Role: RoleAssistant}
	}
	return AssistantMessage{Content: blocks}, nil
}

func parseLegacyArguments(tc LegacyToolCall) (ParamMap, error) {
	if !trimmedNonEmpty(tc.Arguments) {
		return ParamMap{}, nil
	}
	var pm ParamMap
	if err := json.Unmarshal([]byte(tc.Arguments), &pm); err != nil {
		return ParamMap{}, &ToolArgumentParseError{
			ToolCallID:   tc.ID,
			ToolName:     tc.Name,
			RawArguments: tc.Arguments,
			Cause:        err,
		}
	}
	return pm, nil
}

// IsCanonical validates that m satisfies every invariant a persisted
// message must hold.
func IsCanonical(m Message) error {
	switch v := m.(type) {
	case UserMessage:
		if len(v.Content) == 0 {
			return &EmptyContentError{Role: RoleUser}
		}
		for _, b := range v.Content {
			if !trimmedNonEmpty(b.Text) {
				return &InvalidMessageError{Reason: "user message has a blank text block"}
			}
		}
		return nil
	case AssistantMessage:
		if len(v.Content) == 0 {
			return &EmptyContentError{Role: RoleAssistant}
		}
		for _, b := range v.Content {
			switch blk := b.(type) {
			case TextBlock:
				if !trimmedNonEmpty(blk.Text) {
					return &InvalidMessageError{Reason: "assistant message has a blank text block"}
				}
			case ToolUseBlock:
				if !trimmedNonEmpty(blk.ID) {
					return &InvalidToolCallError{Reason: "tool use block missing id"}
				}
				if !trimmedNonEmpty(blk.Name) {
					return &InvalidToolCallError{Reason: "tool use block missing name"}
				}
			default:
				return &InvalidMessageError{Reason: fmt.Sprintf("assistant message has unknown block type %T", b)}
			}
		}
		return nil
	case ToolMessage:
		if !trimmedNonEmpty(v.ToolCallID) {
			return &InvalidToolCallError{Reason: "tool message missing tool_call_id"}
		}
		if len(v.Content) == 0 {
			return &EmptyContentError{Role: RoleTool}
		}
		for _, b := range v.Content {
			if !trimmedNonEmpty(b.Text) {
				return &InvalidMessageError{Reason: "tool message has a blank text block"}
			}
		}
		return nil
	default:
		return &InvalidMessageError{Reason: fmt.Sprintf("unknown message type %T", m)}
	}
}
