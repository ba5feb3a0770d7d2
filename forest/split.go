package forest

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// SplitNode splits a node's single-text-block message at a character offset,
// inserting a new "left" node between the node's current parent and the
// node itself. Returns the new left node.
func (f *Forest) SplitNode(ctx context.Context, nodeID ids.NodeId, position int) (store.NodeData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.splitNodeLocked(ctx, nodeID, position)
}

func (f *Forest) splitNodeLocked(ctx context.Context, nodeID ids.NodeId, position int) (store.NodeData, error) {
	node, err := f.GetNode(ctx, nodeID)
	if err != nil {
		return store.NodeData{}, err
	}

	text, ok := soleText(node.Message)
	if !ok {
		return store.NodeData{}, &CannotSplitError{ID: string(nodeID), Reason: "not a single-text-block message"}
	}
	if position < 1 || position > len(text)-1 {
		return store.NodeData{}, &InvalidSplitPositionError{ID: string(nodeID), Position: position, Length: len(text)}
	}

	leftText, rightText := text[:position], text[position:]

	leftMsg, err := withText(node.Message, leftText)
	if err != nil {
		return store.NodeData{}, err
	}
	rightMsg, err := withText(node.Message, rightText)
	if err != nil {
		return store.NodeData{}, err
	}

	leftID, err := f.st.GenerateNodeID(ctx, node.RootID)
	if err != nil {
		return store.NodeData{}, fmt.Errorf("forest: generate node id: %w", err)
	}
	splitSource := node.ID
	left := store.NodeData{
		ID:       leftID,
		RootID:   node.RootID,
		ParentID: node.ParentID,
		ChildIDs: []ids.NodeId{node.ID},
		Message:  leftMsg,
		Metadata: store.NodeMetadata{
			Timestamp:      timeNow(),
			OriginalRootID: node.Metadata.OriginalRootID,
			Source:         node.Metadata.Source,
			Tags:           append([]string{}, node.Metadata.Tags...),
			CustomData:     node.Metadata.CustomData,
			SplitSource:    &splitSource,
		},
	}

	updated := *node
	updated.ParentID = string(leftID)
	updated.Message = rightMsg

	if err := f.st.SaveNode(ctx, left); err != nil {
		return store.NodeData{}, fmt.Errorf("forest: save node %s: %w", leftID, err)
	}
	if err := f.st.SaveNode(ctx, updated); err != nil {
		return store.NodeData{}, fmt.Errorf("forest: save node %s: %w", updated.ID, err)
	}

	if err := f.replaceChildLocked(ctx, node.ParentID, node.ID, leftID); err != nil {
		return store.NodeData{}, err
	}

	return left, nil
}

// replaceChildLocked swaps oldChild for newChild in parentID's child_ids,
// preserving position, and persists the owner (root or node).
func (f *Forest) replaceChildLocked(ctx context.Context, parentID string, oldChild, newChild ids.NodeId) error {
	root, node, err := f.loadEither(ctx, parentID)
	if err != nil {
		return err
	}
	if node != nil {
		n := *node
		n.ChildIDs = replaceID(n.ChildIDs, oldChild, newChild)
		if err := f.st.SaveNode(ctx, n); err != nil {
			return fmt.Errorf("forest: save node %s: %w", n.ID, err)
		}
		return nil
	}
	r := *root
	r.ChildIDs = replaceID(r.ChildIDs, oldChild, newChild)
	if err := f.st.SaveRoot(ctx, r); err != nil {
		return fmt.Errorf("forest: save root %s: %w", r.ID, err)
	}
	return nil
}

func replaceID(childIDs []ids.NodeId, old, replacement ids.NodeId) []ids.NodeId {
	out := make([]ids.NodeId, len(childIDs))
	copy(out, childIDs)
	for i, id := range out {
		if id == old {
			out[i] = replacement
			return out
		}
	}
	return out
}

// soleText returns the text of a message whose content is exactly one
// TextBlock, and false for tool messages, multi-block messages, or
// tool-use-only assistant messages.
func soleText(m message.Message) (string, bool) {
	if m.Role() == message.RoleTool {
		return "", false
	}
	blocks := m.Blocks()
	if len(blocks) != 1 {
		return "", false
	}
	tb, ok := blocks[0].(message.TextBlock)
	if !ok || tb.Text == "" {
		return "", false
	}
	return tb.Text, true
}

// withText rebuilds m with the same role but a single text block replaced
// by text.
func withText(m message.Message, text string) (message.Message, error) {
	switch m.(type) {
	case message.UserMessage:
		return message.UserMessage{Content: []message.TextBlock{{Text: text}}}, nil
	case message.AssistantMessage:
		return message.AssistantMessage{Content: []message.ContentBlock{message.TextBlock{Text: text}}}, nil
	default:
		return nil, fmt.Errorf("forest: unsupported message type for split/edit: %T", m)
	}
}
