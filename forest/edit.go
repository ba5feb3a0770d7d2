package forest

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// EditNodeContent implements the edit-branch algorithm: a childless node is
// mutated in place; a node with children is never mutated, instead
// producing (or reusing) a branch via splitNode and append. Any bookmark
// pointing at the edited node's old id is moved to the result when the
// result's id differs.
func (f *Forest) EditNodeContent(ctx context.Context, nodeID ids.NodeId, newText string) (Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editNodeContentLocked(ctx, nodeID, newText)
}

func (f *Forest) editNodeContentLocked(ctx context.Context, nodeID ids.NodeId, newText string) (Node, error) {
	root, node, err := f.loadEither(ctx, string(nodeID))
	if err != nil {
		if _, ok := err.(*NodeNotFoundError); ok {
			return Node{}, &NodeNotFoundOrRootError{ID: string(nodeID)}
		}
		return Node{}, err
	}
	if node == nil {
		_ = root
		return Node{}, &NodeNotFoundOrRootError{ID: string(nodeID)}
	}

	if am, ok := node.Message.(message.AssistantMessage); ok {
		for _, b := range am.Content {
			if message.IsToolUse(b) {
				return Node{}, &CannotEditToolUseMessageError{ID: string(nodeID)}
			}
		}
	}

	oldText, _ := soleText(node.Message)
	lcp := longestCommonPrefix(oldText, newText)

	var result Node

	if len(node.ChildIDs) == 0 {
		msg, err := withText(node.Message, newText)
		if err != nil {
			return Node{}, err
		}
		updated := *node
		updated.Message = msg
		updated.Metadata.Source = store.Source{Kind: store.SourceUser}
		if err := f.st.SaveNode(ctx, updated); err != nil {
			return Node{}, fmt.Errorf("forest: save node %s: %w", updated.ID, err)
		}
		result = Node{Node: &updated}
	} else {
		var baseID string
		switch {
		case lcp == 0:
			baseID = node.ParentID
		case lcp < len(oldText):
			left, err := f.splitNodeLocked(ctx, nodeID, lcp)
			if err != nil {
				return Node{}, err
			}
			baseID = string(left.ID)
		default:
			baseID = string(nodeID)
		}

		suffix := newText[lcp:]
		if suffix != "" {
			msg, err := withText(node.Message, suffix)
			if err != nil {
				return Node{}, err
			}
			meta := store.NodeMetadata{Source: store.Source{Kind: store.SourceUser}}
			result, err = f.appendLocked(ctx, baseID, []message.Message{msg}, meta)
			if err != nil {
				return Node{}, err
			}
		} else {
			br, bn, err := f.loadEither(ctx, baseID)
			if err != nil {
				return Node{}, err
			}
			result = Node{Root: br, Node: bn}
		}
	}

	if result.ID() != string(nodeID) {
		if _, err := f.bookmarks.MoveNode(ctx, nodeID, ids.NodeId(result.ID())); err != nil {
			return Node{}, fmt.Errorf("forest: move bookmark %s -> %s: %w", nodeID, result.ID(), err)
		}
	}

	return result, nil
}

func longestCommonPrefix(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
