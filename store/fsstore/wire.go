package fsstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// wireRoot and wireNode are the on-disk JSON shapes for roots.json entries
// and node-<seq>.json files respectively, matching the node file schema in
// the specification.
type wireRoot struct {
	ID        ids.RootId `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	ChildIDs  []string   `json:"child_ids"`
	Config    wireConfig `json:"config"`
	Deleted   bool       `json:"deleted,omitempty"`
}

type wireConfig struct {
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

type wireNode struct {
	ID       string          `json:"id"`
	RootID   ids.RootId      `json:"root_id"`
	ParentID string          `json:"parent_id"`
	ChildIDs []string        `json:"child_ids"`
	Message  json.RawMessage `json:"message"`
	Metadata wireMetadata    `json:"metadata"`
}

type wireMetadata struct {
	Timestamp      time.Time        `json:"timestamp"`
	OriginalRootID ids.RootId       `json:"original_root_id"`
	Source         wireSource       `json:"source_info"`
	Tags           []string         `json:"tags,omitempty"`
	CustomData     map[string]any   `json:"custom_data,omitempty"`
	SplitSource    *string          `json:"split_source,omitempty"`
}

type wireSource struct {
	Type         store.SourceKind `json:"type"`
	Provider     string           `json:"provider,omitempty"`
	ModelName    string           `json:"model_name,omitempty"`
	Parameters   map[string]any   `json:"parameters,omitempty"`
	Tools        []string         `json:"tools,omitempty"`
	ToolChoice   string           `json:"tool_choice,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty"`
	Usage        *wireUsage       `json:"usage,omitempty"`
	ToolName     string           `json:"tool_name,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func encodeRoot(r store.RootData) wireRoot {
	children := make([]string, len(r.ChildIDs))
	for i, c := range r.ChildIDs {
		children[i] = string(c)
	}
	return wireRoot{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		ChildIDs:  children,
		Config:    wireConfig{SystemPrompt: r.Config.SystemPrompt},
		Deleted:   r.Deleted,
	}
}

func decodeRoot(w wireRoot) store.RootData {
	children := make([]ids.NodeId, len(w.ChildIDs))
	for i, c := range w.ChildIDs {
		children[i] = ids.NodeId(c)
	}
	return store.RootData{
		ID:        w.ID,
		CreatedAt: w.CreatedAt,
		ChildIDs:  children,
		Config:    store.RootConfig{SystemPrompt: w.Config.SystemPrompt},
		Deleted:   w.Deleted,
	}
}

func encodeNode(n store.NodeData) (wireNode, error) {
	raw, err := message.MarshalMessage(n.Message)
	if err != nil {
		return wireNode{}, fmt.Errorf("fsstore: encode message for %s: %w", n.ID, err)
	}
	children := make([]string, len(n.ChildIDs))
	for i, c := range n.ChildIDs {
		children[i] = string(c)
	}

	src := wireSource{Type: n.Metadata.Source.Kind}
	if m := n.Metadata.Source.Model; m != nil {
		src.Provider = m.Provider
		src.ModelName = m.ModelName
		src.Parameters = m.Parameters
		src.Tools = m.Tools
		src.ToolChoice = m.ToolChoice
		src.FinishReason = m.FinishReason
		if m.Usage != nil {
			src.Usage = &wireUsage{InputTokens: m.Usage.InputTokens, OutputTokens: m.Usage.OutputTokens}
		}
	}
	if tr := n.Metadata.Source.ToolResult; tr != nil {
		src.ToolName = tr.ToolName
	}

	var splitSource *string
	if n.Metadata.SplitSource != nil {
		s := string(*n.Metadata.SplitSource)
		splitSource = &s
	}

	return wireNode{
		ID:       string(n.ID),
		RootID:   n.RootID,
		ParentID: n.ParentID,
		ChildIDs: children,
		Message:  raw,
		Metadata: wireMetadata{
			Timestamp:      n.Metadata.Timestamp,
			OriginalRootID: n.Metadata.OriginalRootID,
			Source:         src,
			Tags:           n.Metadata.Tags,
			CustomData:     n.Metadata.CustomData,
			SplitSource:    splitSource,
		},
	}, nil
}

func decodeNode(w wireNode) (store.NodeData, error) {
	msg, err := message.UnmarshalMessage(w.Message)
	if err != nil {
		return store.NodeData{}, fmt.Errorf("fsstore: decode message for %s: %w", w.ID, err)
	}
	children := make([]ids.NodeId, len(w.ChildIDs))
	for i, c := range w.ChildIDs {
		children[i] = ids.NodeId(c)
	}

	src := store.Source{Kind: w.Metadata.Source.Type}
	switch src.Kind {
	case store.SourceModel:
		var usage *store.TokenUsage
		if w.Metadata.Source.Usage != nil {
			usage = &store.TokenUsage{
				InputTokens:  w.Metadata.Source.Usage.InputTokens,
				OutputTokens: w.Metadata.Source.Usage.OutputTokens,
			}
		}
		src.Model = &store.ModelSource{
			Provider:     w.Metadata.Source.Provider,
			ModelName:    w.Metadata.Source.ModelName,
			Parameters:   w.Metadata.Source.Parameters,
			Tools:        w.Metadata.Source.Tools,
			ToolChoice:   w.Metadata.Source.ToolChoice,
			FinishReason: w.Metadata.Source.FinishReason,
			Usage:        usage,
		}
	case store.SourceToolResult:
		src.ToolResult = &store.ToolResultSource{ToolName: w.Metadata.Source.ToolName}
	}

	var splitSource *ids.NodeId
	if w.Metadata.SplitSource != nil {
		n := ids.NodeId(*w.Metadata.SplitSource)
		splitSource = &n
	}

	return store.NodeData{
		ID:       ids.NodeId(w.ID),
		RootID:   w.RootID,
		ParentID: w.ParentID,
		ChildIDs: children,
		Message:  msg,
		Metadata: store.NodeMetadata{
			Timestamp:      w.Metadata.Timestamp,
			OriginalRootID: w.Metadata.OriginalRootID,
			Source:         src,
			Tags:           w.Metadata.Tags,
			CustomData:     w.Metadata.CustomData,
			SplitSource:    splitSource,
		},
	}, nil
}
