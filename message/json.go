package message

import (
	"encoding/json"
	"fmt"
)

// wireMessage is the on-disk/wire envelope for a canonical Message. Role
// discriminates which of UserMessage/AssistantMessage/ToolMessage Content
// decodes into; each content entry carries its own "type" discriminator
// ("text" or "tool-use") per the node file schema in the specification.
type wireMessage struct {
	Role       Role              `json:"role"`
	Content    []json.RawMessage `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type wireBlockHeader struct {
	Type string `json:"type"`
}

type wireTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireToolUseBlock struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Parameters ParamMap `json:"parameters"`
}

// MarshalMessage encodes a canonical Message in the wire/persisted form
// described by the node file schema.
func MarshalMessage(m Message) ([]byte, error) {
	w := wireMessage{Role: m.Role()}
	if tm, ok := m.(ToolMessage); ok {
		w.ToolCallID = tm.ToolCallID
	}
	for _, b := range m.Blocks() {
		raw, err := encodeBlock(b)
		if err != nil {
			return nil, err
		}
		w.Content = append(w.Content, raw)
	}
	return json.Marshal(w)
}

func encodeBlock(b ContentBlock) (json.RawMessage, error) {
	switch v := b.(type) {
	case TextBlock:
		return json.Marshal(wireTextBlock{Type: "text", Text: v.Text})
	case ToolUseBlock:
		return json.Marshal(wireToolUseBlock{Type: "tool-use", ID: v.ID, Name: v.Name, Parameters: v.Parameters})
	default:
		return nil, fmt.Errorf("message: cannot encode content block of type %T", b)
	}
}

// UnmarshalMessage decodes the wire/persisted form into a LegacyMessage-free
// canonical Message, then validates it with IsCanonical. Callers on a read
// path (Store.LoadNode) that must forward-migrate legacy shapes should
// attempt UnmarshalMessage first and fall back to decoding into a
// LegacyMessage + Normalize when this fails with an unrecognized shape.
func UnmarshalMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("message: decode envelope: %w", err)
	}
	blocks := make([]ContentBlock, 0, len(w.Content))
	for i, raw := range w.Content {
		b, err := decodeBlock(raw)
		if err != nil {
			return nil, fmt.Errorf("message: decode content[%d]: %w", i, err)
		}
		blocks = append(blocks, b)
	}

	var msg Message
	switch w.Role {
	case RoleUser:
		texts := make([]TextBlock, 0, len(blocks))
		for _, b := range blocks {
			t, ok := b.(TextBlock)
			if !ok {
				return nil, &InvalidMessageError{Reason: "user message content contains a non-text block"}
			}
			texts = append(texts, t)
		}
		msg = UserMessage{Content: texts}
	case RoleAssistant:
		msg = AssistantMessage{Content: blocks}
	case RoleTool:
		texts := make([]TextBlock, 0, len(blocks))
		for _, b := range blocks {
			t, ok := b.(TextBlock)
			if !ok {
				return nil, &InvalidMessageError{Reason: "tool message content contains a non-text block"}
			}
			texts = append(texts, t)
		}
		msg = ToolMessage{ToolCallID: w.ToolCallID, Content: texts}
	default:
		return nil, &InvalidMessageError{Reason: fmt.Sprintf("unknown role %q", w.Role)}
	}

	if err := IsCanonical(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeBlock(raw json.RawMessage) (ContentBlock, error) {
	var hdr wireBlockHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, err
	}
	switch hdr.Type {
	case "text":
		var t wireTextBlock
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return TextBlock{Text: t.Text}, nil
	case "tool-use":
		var t wireToolUseBlock
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return ToolUseBlock{ID: t.ID, Name: t.Name, Parameters: t.Parameters}, nil
	default:
		return nil, fmt.Errorf("unknown content block type %q", hdr.Type)
	}
}
