// Package engine is the composition root: it wires a Forest, a Store, a
// Tool Registry, a bookmark collaborator, and a Generation Driver behind
// the single programmatic surface spec §6 names (generate, generateStream,
// getMessages, editNode, bookmark lifecycle, and the Forest passthroughs).
package engine

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/config"
	"github.com/arcreflex/loomforest/forest"
	"github.com/arcreflex/loomforest/generate"
	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/telemetry"
	"github.com/arcreflex/loomforest/toolregistry"
)

// Engine is the top-level façade a CLI, web UI, or MCP host embeds. It owns
// no state of its own beyond its collaborators: every method delegates to
// the Forest, Driver, or bookmark store it was built with.
type Engine struct {
	forest    *forest.Forest
	st        store.Store
	bookmarks config.BookmarkStore
	tools     *toolregistry.Registry
	driver    *generate.Driver
	logger    telemetry.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger to the Engine itself. It is not
// passed on to the Forest or the Driver: those take their own WithLogger
// options.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an Engine over an already-constructed Forest, Store, bookmark
// collaborator, tool registry, and provider registry. The Forest and the
// bookmark store must be the same pairing (bookmarks's lifecycle is coupled
// to the Forest's edit/delete operations internally; Engine only needs its
// own reference for Add/List/Remove, which the Forest does not expose).
func New(f *forest.Forest, st store.Store, bm config.BookmarkStore, tools *toolregistry.Registry, clients *provider.Registry, opts ...Option) *Engine {
	e := &Engine{
		forest:    f,
		st:        st,
		bookmarks: bm,
		tools:     tools,
		driver:    generate.NewDriver(f, clients, tools),
		logger:    telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// GetOrCreateRoot is the Forest passthrough of the same name.
func (e *Engine) GetOrCreateRoot(ctx context.Context, cfg store.RootConfig) (*store.RootData, error) {
	return e.forest.GetOrCreateRoot(ctx, cfg)
}

// Append is the Forest passthrough of the same name.
func (e *Engine) Append(ctx context.Context, parentID string, msgs []message.Message, meta store.NodeMetadata) (forest.Node, error) {
	return e.forest.Append(ctx, parentID, msgs, meta)
}

// SplitNode is the Forest passthrough of the same name.
func (e *Engine) SplitNode(ctx context.Context, nodeID ids.NodeId, position int) (store.NodeData, error) {
	return e.forest.SplitNode(ctx, nodeID, position)
}

// DeleteNode is the Forest passthrough of the same name.
func (e *Engine) DeleteNode(ctx context.Context, nodeID ids.NodeId, reparent bool) (*forest.Node, error) {
	return e.forest.DeleteNode(ctx, nodeID, reparent)
}

// GetSubtree is the Forest passthrough of the same name.
func (e *Engine) GetSubtree(ctx context.Context, id string, depth *int) (*forest.SubtreeNode, error) {
	return e.forest.GetSubtree(ctx, id, depth)
}

// ListRecentLeaves is the Forest passthrough of the same name.
func (e *Engine) ListRecentLeaves(ctx context.Context, k int) ([]store.NodeData, error) {
	return e.forest.ListRecentLeaves(ctx, k)
}

// GetMessagesResult is getMessages's return shape: the owning root's config
// plus the ordered canonical messages from that root down to nodeId.
type GetMessagesResult struct {
	Root     store.RootConfig
	Messages []message.Message
}

// GetMessages implements spec §6's engine.getMessages(nodeId) ->
// {root, messages}.
func (e *Engine) GetMessages(ctx context.Context, nodeID ids.NodeId) (GetMessagesResult, error) {
	root, msgs, err := e.forest.GetMessages(ctx, nodeID)
	if err != nil {
		return GetMessagesResult{}, err
	}
	return GetMessagesResult{Root: root.Config, Messages: msgs}, nil
}

// EditNode implements spec §6's engine.editNode(nodeId, text) -> NodeData,
// with bookmark-move semantics handled internally by the Forest.
func (e *Engine) EditNode(ctx context.Context, nodeID ids.NodeId, text string) (store.NodeData, error) {
	result, err := e.forest.EditNodeContent(ctx, nodeID, text)
	if err != nil {
		return store.NodeData{}, err
	}
	if result.Node == nil {
		return store.NodeData{}, fmt.Errorf("engine: edit node %s: expected non-root result", nodeID)
	}
	return *result.Node, nil
}

// AddBookmark implements spec §6's engine.addBookmark(nodeId, title).
func (e *Engine) AddBookmark(ctx context.Context, nodeID ids.NodeId, title string) (config.Bookmark, error) {
	root, ok := ids.RootOf(nodeID)
	if !ok {
		return config.Bookmark{}, fmt.Errorf("engine: add bookmark: malformed node id %s", nodeID)
	}
	return e.bookmarks.Add(ctx, title, root, nodeID)
}

// ListBookmarks implements spec §6's engine.listBookmarks().
func (e *Engine) ListBookmarks(ctx context.Context) ([]config.Bookmark, error) {
	return e.bookmarks.List(ctx)
}

// RemoveBookmark implements spec §6's engine.removeBookmark(nodeId).
func (e *Engine) RemoveBookmark(ctx context.Context, nodeID ids.NodeId) error {
	return e.bookmarks.Remove(ctx, nodeID)
}

// Generate implements spec §4.4/§6's non-streaming generate(rootId,
// providerName, modelName, contextMessages, options, activeTools?).
func (e *Engine) Generate(ctx context.Context, rootID ids.RootId, providerName, modelName string, contextMessages []message.Message, opts generate.Options, activeTools []string) (generate.Result, error) {
	return e.driver.Generate(ctx, rootID, providerName, modelName, contextMessages, opts, activeTools)
}

// GenerateStream implements spec §4.4/§6's streaming generateStream(...) ->
// GenerateSession. The caller must drive the returned session (Run) and
// drain its Events().
func (e *Engine) GenerateStream(rootID ids.RootId, providerName, modelName string, contextMessages []message.Message, opts generate.Options, activeTools []string) *generate.GenerateSession {
	return e.driver.GenerateStream(rootID, providerName, modelName, contextMessages, opts, activeTools)
}

// Tools exposes the Tool Registry for callers that need to register
// additional tools (e.g. an MCP discovery populator) before issuing a
// generate call.
func (e *Engine) Tools() *toolregistry.Registry { return e.tools }

// Store exposes the underlying Store for diagnostics and migration tooling
// that needs access below the Forest's tree algebra.
func (e *Engine) Store() store.Store { return e.st }
