package forest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcreflex/loomforest/config"
	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/store/fsstore"
)

func newTestForest(t *testing.T) *Forest {
	t.Helper()
	st, err := fsstore.Open(t.TempDir())
	require.NoError(t, err)
	return New(st, config.NewMemoryBookmarkStore())
}

func textUser(s string) message.Message {
	return message.UserMessage{Content: []message.TextBlock{{Text: s}}}
}

func textAssistant(s string) message.Message {
	return message.AssistantMessage{Content: []message.ContentBlock{message.TextBlock{Text: s}}}
}

// S1 (simple append): two new nodes (user, assistant); getMessages yields
// exactly those two canonical messages.
func TestAppend_SimpleExtendsTree(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)

	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{SystemPrompt: "be brief"})
	require.NoError(t, err)

	n, err := f.Append(ctx, string(root.ID), []message.Message{textUser("hi")}, store.NodeMetadata{Source: store.Source{Kind: store.SourceUser}})
	require.NoError(t, err)
	require.False(t, n.IsRoot())

	n2, err := f.Append(ctx, n.ID(), []message.Message{textAssistant("hello")}, store.NodeMetadata{Source: store.Source{Kind: store.SourceModel}})
	require.NoError(t, err)

	_, msgs, err := f.GetMessages(ctx, ids.NodeId(n2.ID()))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, message.RoleUser, msgs[0].Role())
	require.Equal(t, message.RoleAssistant, msgs[1].Role())
}

// append(p, []) returns p unchanged.
func TestAppend_EmptyReturnsParent(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n, err := f.Append(ctx, string(root.ID), nil, store.NodeMetadata{})
	require.NoError(t, err)
	require.True(t, n.IsRoot())
	require.Equal(t, string(root.ID), n.ID())
}

// S2 (prefix match reuse): appending an identical walk collapses onto the
// existing node; no new node is created.
func TestAppend_PrefixMatchReusesExistingChild(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	u := textUser("hi")
	a := textAssistant("world")
	first, err := f.Append(ctx, string(root.ID), []message.Message{u, a}, store.NodeMetadata{})
	require.NoError(t, err)

	before, err := f.st.ListAllNodeStructures(ctx)
	require.NoError(t, err)

	second, err := f.Append(ctx, string(root.ID), []message.Message{u, a}, store.NodeMetadata{})
	require.NoError(t, err)

	after, err := f.st.ListAllNodeStructures(ctx)
	require.NoError(t, err)

	require.Equal(t, first.ID(), second.ID())
	require.Len(t, after, len(before))
}

// S3 (parameter key order irrelevance): ToolUse parameter key order must not
// prevent prefix-match reuse.
func TestAppend_ToolUseParameterKeyOrderIrrelevant(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	pm1 := message.NewParamMap(message.Pair{Key: "a", Value: int64(1)}, message.Pair{Key: "b", Value: int64(2)})
	pm2 := message.NewParamMap(message.Pair{Key: "b", Value: int64(2)}, message.Pair{Key: "a", Value: int64(1)})

	msg1 := message.AssistantMessage{Content: []message.ContentBlock{
		message.ToolUseBlock{ID: "c1", Name: "sum", Parameters: pm1},
	}}
	msg2 := message.AssistantMessage{Content: []message.ContentBlock{
		message.ToolUseBlock{ID: "c1", Name: "sum", Parameters: pm2},
	}}

	first, err := f.Append(ctx, string(root.ID), []message.Message{msg1}, store.NodeMetadata{})
	require.NoError(t, err)
	second, err := f.Append(ctx, string(root.ID), []message.Message{msg2}, store.NodeMetadata{})
	require.NoError(t, err)

	require.Equal(t, first.ID(), second.ID())
}

// S4 (split preserves content).
func TestSplitNode_PreservesConcatenatedContent(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n, err := f.Append(ctx, string(root.ID), []message.Message{textUser("This is a long message")}, store.NodeMetadata{})
	require.NoError(t, err)

	left, err := f.SplitNode(ctx, ids.NodeId(n.ID()), 15)
	require.NoError(t, err)

	leftText, _ := soleText(left.Message)
	require.Equal(t, "This is a long ", leftText)
	require.Equal(t, string(root.ID), left.ParentID)

	right, err := f.GetNode(ctx, ids.NodeId(n.ID()))
	require.NoError(t, err)
	rightText, _ := soleText(right.Message)
	require.Equal(t, "message", rightText)
	require.Equal(t, string(left.ID), right.ParentID)
	require.Equal(t, "This is a long message", leftText+rightText)
	require.NotNil(t, left.Metadata.SplitSource)
	require.Equal(t, n.ID(), string(*left.Metadata.SplitSource))
}

// Edit-no-child law: editing a childless node mutates it in place.
func TestEditNodeContent_ChildlessMutatesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n, err := f.Append(ctx, string(root.ID), []message.Message{textUser("hello")}, store.NodeMetadata{})
	require.NoError(t, err)

	result, err := f.EditNodeContent(ctx, ids.NodeId(n.ID()), "goodbye")
	require.NoError(t, err)
	require.Equal(t, n.ID(), result.ID())

	text, _ := soleText(result.Node.Message)
	require.Equal(t, "goodbye", text)
}

// Editing a node with children never mutates it; it produces a new branch.
func TestEditNodeContent_WithChildrenProducesBranch(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n, err := f.Append(ctx, string(root.ID), []message.Message{textUser("hello")}, store.NodeMetadata{})
	require.NoError(t, err)
	_, err = f.Append(ctx, n.ID(), []message.Message{textAssistant("hi there")}, store.NodeMetadata{})
	require.NoError(t, err)

	result, err := f.EditNodeContent(ctx, ids.NodeId(n.ID()), "hellox")
	require.NoError(t, err)
	require.NotEqual(t, n.ID(), result.ID())

	unchanged, err := f.GetNode(ctx, ids.NodeId(n.ID()))
	require.NoError(t, err)
	text, _ := soleText(unchanged.Message)
	require.Equal(t, "hello", text)
}

// Bookmark coupling: editing a node with children moves a bookmark that
// pointed at the old id to the new one, preserving createdAt.
func TestEditNodeContent_MovesBookmark(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n, err := f.Append(ctx, string(root.ID), []message.Message{textUser("hello")}, store.NodeMetadata{})
	require.NoError(t, err)
	_, err = f.Append(ctx, n.ID(), []message.Message{textAssistant("hi there")}, store.NodeMetadata{})
	require.NoError(t, err)

	bm, err := f.bookmarks.Add(ctx, "checkpoint", root.ID, ids.NodeId(n.ID()))
	require.NoError(t, err)

	result, err := f.EditNodeContent(ctx, ids.NodeId(n.ID()), "hellox")
	require.NoError(t, err)

	bookmarks, err := f.bookmarks.List(ctx)
	require.NoError(t, err)
	require.Len(t, bookmarks, 1)
	require.Equal(t, result.ID(), string(bookmarks[0].NodeID))
	require.Equal(t, bm.CreatedAt, bookmarks[0].CreatedAt)
}

func TestDeleteNode_NonReparentRemovesDescendants(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n1, err := f.Append(ctx, string(root.ID), []message.Message{textUser("hello")}, store.NodeMetadata{})
	require.NoError(t, err)
	n2, err := f.Append(ctx, n1.ID(), []message.Message{textAssistant("hi there")}, store.NodeMetadata{})
	require.NoError(t, err)

	parent, err := f.DeleteNode(ctx, ids.NodeId(n1.ID()), false)
	require.NoError(t, err)
	require.NotNil(t, parent)
	require.True(t, parent.IsRoot())

	_, err = f.GetNode(ctx, ids.NodeId(n1.ID()))
	require.Error(t, err)
	_, err = f.GetNode(ctx, ids.NodeId(n2.ID()))
	require.Error(t, err)
}

func TestDeleteNode_ReparentKeepsChildren(t *testing.T) {
	ctx := context.Background()
	f := newTestForest(t)
	root, err := f.GetOrCreateRoot(ctx, store.RootConfig{})
	require.NoError(t, err)

	n1, err := f.Append(ctx, string(root.ID), []message.Message{textUser("hello")}, store.NodeMetadata{})
	require.NoError(t, err)
	n2, err := f.Append(ctx, n1.ID(), []message.Message{textAssistant("hi there")}, store.NodeMetadata{})
	require.NoError(t, err)

	_, err = f.DeleteNode(ctx, ids.NodeId(n1.ID()), true)
	require.NoError(t, err)

	child, err := f.GetNode(ctx, ids.NodeId(n2.ID()))
	require.NoError(t, err)
	require.Equal(t, string(root.ID), child.ParentID)
}
