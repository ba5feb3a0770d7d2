package forest

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/store"
)

// DeleteNode removes nodeID. With reparent=true, its children are rewired to
// nodeID's parent (their grandparent); otherwise the node and all its
// descendants are removed. Returns nodeID's parent (root or node), reloaded
// after the change, or nil if nodeID did not exist.
func (f *Forest) DeleteNode(ctx context.Context, nodeID ids.NodeId, reparent bool) (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteNodeLocked(ctx, nodeID, reparent)
}

func (f *Forest) deleteNodeLocked(ctx context.Context, nodeID ids.NodeId, reparent bool) (*Node, error) {
	root, node, err := f.st.LoadNode(ctx, string(nodeID))
	if err != nil {
		return nil, fmt.Errorf("forest: load %s: %w", nodeID, err)
	}
	if root != nil && node == nil {
		return nil, &RootDeletionError{ID: string(nodeID)}
	}
	if node == nil {
		return nil, nil
	}

	gpRoot, gpNode, err := f.loadEither(ctx, node.ParentID)
	if err != nil {
		return nil, err
	}

	if reparent {
		for _, childID := range node.ChildIDs {
			child, err := f.GetNode(ctx, childID)
			if err != nil {
				return nil, err
			}
			updated := *child
			updated.ParentID = node.ParentID
			if err := f.st.SaveNode(ctx, updated); err != nil {
				return nil, fmt.Errorf("forest: save node %s: %w", updated.ID, err)
			}
		}
		if err := f.spliceChildrenLocked(ctx, gpRoot, gpNode, nodeID, node.ChildIDs); err != nil {
			return nil, err
		}
		if err := f.st.DeleteNode(ctx, nodeID); err != nil {
			return nil, fmt.Errorf("forest: delete node %s: %w", nodeID, err)
		}
		if err := f.bookmarks.Remove(ctx, nodeID); err != nil {
			return nil, fmt.Errorf("forest: remove bookmark %s: %w", nodeID, err)
		}
	} else {
		descendants, err := f.collectDescendantsLocked(ctx, nodeID)
		if err != nil {
			return nil, err
		}
		toDelete := append([]ids.NodeId{nodeID}, descendants...)
		for _, id := range toDelete {
			if err := f.st.DeleteNode(ctx, id); err != nil {
				return nil, fmt.Errorf("forest: delete node %s: %w", id, err)
			}
		}
		if err := f.spliceChildrenLocked(ctx, gpRoot, gpNode, nodeID, nil); err != nil {
			return nil, err
		}
		if err := f.bookmarks.RemoveAll(ctx, toDelete); err != nil {
			return nil, fmt.Errorf("forest: remove bookmarks: %w", err)
		}
	}

	if gpNode != nil {
		refreshed, err := f.GetNode(ctx, gpNode.ID)
		if err != nil {
			return nil, err
		}
		return &Node{Node: refreshed}, nil
	}
	refreshed, err := f.GetRoot(ctx, gpRoot.ID)
	if err != nil {
		return nil, err
	}
	return &Node{Root: refreshed}, nil
}

// DeleteNodes deletes each id serially, without reparenting, applying the
// same bookmark rules as DeleteNode.
func (f *Forest) DeleteNodes(ctx context.Context, nodeIDs []ids.NodeId) ([]*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		n, err := f.deleteNodeLocked(ctx, id, false)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// spliceChildrenLocked replaces removed in the grandparent's child_ids with
// replacement (in place of removed's position), persisting the owner.
func (f *Forest) spliceChildrenLocked(ctx context.Context, gpRoot *store.RootData, gpNode *store.NodeData, removed ids.NodeId, replacement []ids.NodeId) error {
	if gpNode != nil {
		n := *gpNode
		n.ChildIDs = spliceID(n.ChildIDs, removed, replacement)
		if err := f.st.SaveNode(ctx, n); err != nil {
			return fmt.Errorf("forest: save node %s: %w", n.ID, err)
		}
		*gpNode = n
		return nil
	}
	r := *gpRoot
	r.ChildIDs = spliceID(r.ChildIDs, removed, replacement)
	if err := f.st.SaveRoot(ctx, r); err != nil {
		return fmt.Errorf("forest: save root %s: %w", r.ID, err)
	}
	*gpRoot = r
	return nil
}

func spliceID(childIDs []ids.NodeId, removed ids.NodeId, replacement []ids.NodeId) []ids.NodeId {
	out := make([]ids.NodeId, 0, len(childIDs)+len(replacement))
	for _, id := range childIDs {
		if id == removed {
			out = append(out, replacement...)
			continue
		}
		out = append(out, id)
	}
	return out
}

// collectDescendantsLocked returns every descendant of nodeID (not including
// nodeID itself) via a breadth-first walk of child_ids.
func (f *Forest) collectDescendantsLocked(ctx context.Context, nodeID ids.NodeId) ([]ids.NodeId, error) {
	var out []ids.NodeId
	queue := []ids.NodeId{nodeID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, err := f.GetNode(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, c := range node.ChildIDs {
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}

// UpdateNodeMetadata replaces the metadata of an existing non-root node.
func (f *Forest) UpdateNodeMetadata(ctx context.Context, nodeID ids.NodeId, meta store.NodeMetadata) (store.NodeData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	node, err := f.GetNode(ctx, nodeID)
	if err != nil {
		return store.NodeData{}, err
	}
	updated := *node
	updated.Metadata = meta
	if err := f.st.SaveNode(ctx, updated); err != nil {
		return store.NodeData{}, fmt.Errorf("forest: save node %s: %w", nodeID, err)
	}
	return updated, nil
}
