// Package store defines the Store contract: durable persistence of roots and
// nodes, monotonic id allocation, and a content-free structural index used
// for graph rendering. Package fsstore provides the reference
// content-addressed filesystem implementation.
package store

import (
	"context"
	"time"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
)

type (
	// RootConfig is the per-root configuration. Two roots are "the same" iff
	// their RootConfig values are structurally equal.
	RootConfig struct {
		SystemPrompt string
	}

	// RootData is the persisted record for a root.
	RootData struct {
		ID        ids.RootId
		CreatedAt time.Time
		ChildIDs  []ids.NodeId
		Config    RootConfig
		Deleted   bool
	}

	// SourceKind discriminates NodeMetadata.Source's sum type.
	SourceKind string

	// ModelSource is the NodeMetadata.Source payload for a model-produced
	// node.
	ModelSource struct {
		Provider     string
		ModelName    string
		Parameters   map[string]any
		Tools        []string
		ToolChoice   string
		FinishReason string
		Usage        *TokenUsage
	}

	// TokenUsage mirrors a provider's reported token accounting for a single
	// generation.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
	}

	// ToolResultSource is the NodeMetadata.Source payload for a node holding
	// a tool's result.
	ToolResultSource struct {
		ToolName string
	}

	// Source is NodeMetadata's SourceInfo sum type: exactly one of the typed
	// fields is meaningful, selected by Kind.
	Source struct {
		Kind       SourceKind
		Model      *ModelSource
		ToolResult *ToolResultSource
	}

	// NodeMetadata carries the non-content bookkeeping attached to a node.
	NodeMetadata struct {
		Timestamp      time.Time
		OriginalRootID ids.RootId
		Source         Source
		Tags           []string
		CustomData     map[string]any
		SplitSource    *ids.NodeId
	}

	// NodeData is the persisted record for a non-root node.
	NodeData struct {
		ID       ids.NodeId
		RootID   ids.RootId
		ParentID string // either an ids.RootId or ids.NodeId string form
		ChildIDs []ids.NodeId
		Message  message.Message
		Metadata NodeMetadata
	}

	// NodeStructure is the content-free view returned by
	// ListAllNodeStructures, sufficient to render the tree's shape without
	// loading message bodies.
	NodeStructure struct {
		ID        string
		ParentID  string // empty for roots
		ChildIDs  []string
		RootID    ids.RootId
		Timestamp time.Time
		Role      string // "user" | "assistant" | "tool" | "system" (system == root)
	}

	// NodeQuery selects nodes by owning root and, optionally, direct parent.
	NodeQuery struct {
		RootID   ids.RootId
		ParentID *string
	}
)

const (
	SourceUser       SourceKind = "user"
	SourceModel      SourceKind = "model"
	SourceToolResult SourceKind = "tool_result"
	SourceSplit      SourceKind = "split"
)

// Store is the durability contract the Forest writes through. Implementations
// must normalize persisted messages on read (forward migration) and must
// write only canonical messages; a corrupt record or failed normalization
// must fail loudly rather than silently dropping or repairing data.
type Store interface {
	GenerateRootID(ctx context.Context) (ids.RootId, error)
	GenerateNodeID(ctx context.Context, root ids.RootId) (ids.NodeId, error)

	SaveRoot(ctx context.Context, r RootData) error
	LoadRoot(ctx context.Context, id ids.RootId) (*RootData, error)
	ListRoots(ctx context.Context) ([]RootData, error)

	SaveNode(ctx context.Context, n NodeData) error
	// LoadNode accepts either a RootId or a NodeId (the tree's parent_id
	// links can point at either) and returns whichever matches; at most one
	// of the two return values is non-nil, and both are nil (with a nil
	// error) when no root or node matches id.
	LoadNode(ctx context.Context, id string) (*RootData, *NodeData, error)
	DeleteNode(ctx context.Context, id ids.NodeId) error

	FindNodes(ctx context.Context, q NodeQuery) ([]NodeData, error)
	ListAllNodeStructures(ctx context.Context) ([]NodeStructure, error)
}
