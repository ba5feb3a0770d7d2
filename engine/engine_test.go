package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/config"
	"github.com/arcreflex/loomforest/forest"
	"github.com/arcreflex/loomforest/generate"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/provider"
	"github.com/arcreflex/loomforest/provider/stub"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/store/fsstore"
	"github.com/arcreflex/loomforest/toolregistry"
)

func newTestEngine(t *testing.T, client provider.Client) *Engine {
	t.Helper()
	st, err := fsstore.Open(t.TempDir())
	require.NoError(t, err)
	bm := config.NewMemoryBookmarkStore()
	f := forest.New(st, bm)

	clients := provider.NewRegistry()
	clients.Register("stub", client)

	return New(f, st, bm, toolregistry.New(), clients)
}

func textUser(s string) message.Message {
	return message.UserMessage{Content: []message.TextBlock{{Text: s}}}
}

func TestEngine_GenerateThenGetMessages(t *testing.T) {
	ctx := context.Background()
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("hello there")}}
	e := newTestEngine(t, client)

	root, err := e.GetOrCreateRoot(ctx, store.RootConfig{SystemPrompt: "be brief"})
	require.NoError(t, err)

	result, err := e.Generate(ctx, root.ID, "stub", "test-model", []message.Message{textUser("hi")}, generate.Options{N: 1}, nil)
	require.NoError(t, err)
	require.Len(t, result.ChildNodes, 1)

	got, err := e.GetMessages(ctx, result.ChildNodes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "be brief", got.Root.SystemPrompt)
	require.Len(t, got.Messages, 2)
}

func TestEngine_EditChildlessNodeKeepsBookmark(t *testing.T) {
	ctx := context.Background()
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("ack")}}
	e := newTestEngine(t, client)

	root, err := e.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n, err := e.Append(ctx, string(root.ID), []message.Message{textUser("hi")}, store.NodeMetadata{Source: store.Source{Kind: store.SourceUser}})
	require.NoError(t, err)
	nodeID := n.Node.ID

	bm, err := e.AddBookmark(ctx, nodeID, "checkpoint")
	require.NoError(t, err)
	assert.Equal(t, nodeID, bm.NodeID)

	updated, err := e.EditNode(ctx, nodeID, "hi there")
	require.NoError(t, err)
	assert.Equal(t, nodeID, updated.ID, "childless node edits in place")

	list, err := e.ListBookmarks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, nodeID, list[0].NodeID)
}

func TestEngine_RemoveBookmark(t *testing.T) {
	ctx := context.Background()
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("ack")}}
	e := newTestEngine(t, client)

	root, err := e.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)
	n, err := e.Append(ctx, string(root.ID), []message.Message{textUser("hi")}, store.NodeMetadata{Source: store.Source{Kind: store.SourceUser}})
	require.NoError(t, err)

	_, err = e.AddBookmark(ctx, n.Node.ID, "checkpoint")
	require.NoError(t, err)
	require.NoError(t, e.RemoveBookmark(ctx, n.Node.ID))

	list, err := e.ListBookmarks(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_GetSubtreeAndListRecentLeaves(t *testing.T) {
	ctx := context.Background()
	client := &stub.Client{Responses: []stub.Response{stub.NewTextResponse("ack")}}
	e := newTestEngine(t, client)

	root, err := e.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)
	n, err := e.Append(ctx, string(root.ID), []message.Message{textUser("hi")}, store.NodeMetadata{Source: store.Source{Kind: store.SourceUser}})
	require.NoError(t, err)

	subtree, err := e.GetSubtree(ctx, string(root.ID), nil)
	require.NoError(t, err)
	require.Len(t, subtree.Children, 1)

	leaves, err := e.ListRecentLeaves(ctx, 10)
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.Equal(t, n.Node.ID, leaves[0].ID)
}
