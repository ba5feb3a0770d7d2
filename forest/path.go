package forest

import (
	"context"
	"fmt"
	"sort"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// loadEither loads id as either a root or a node, returning NodeNotFoundError
// if neither matches.
func (f *Forest) loadEither(ctx context.Context, id string) (*store.RootData, *store.NodeData, error) {
	root, node, err := f.st.LoadNode(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("forest: load %s: %w", id, err)
	}
	if root == nil && node == nil {
		return nil, nil, &NodeNotFoundError{ID: id}
	}
	return root, node, nil
}

// rootIDOf returns the owning root id for a loaded root-or-node pair.
func rootIDOf(root *store.RootData, node *store.NodeData) ids.RootId {
	if node != nil {
		return node.RootID
	}
	return root.ID
}

// GetNode loads a single non-root node.
func (f *Forest) GetNode(ctx context.Context, id ids.NodeId) (*store.NodeData, error) {
	_, node, err := f.loadEither(ctx, string(id))
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, &NodeNotFoundError{ID: string(id)}
	}
	return node, nil
}

// GetRoot loads a root.
func (f *Forest) GetRoot(ctx context.Context, id ids.RootId) (*store.RootData, error) {
	root, err := f.st.LoadRoot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("forest: load root %s: %w", id, err)
	}
	if root == nil {
		return nil, &NodeNotFoundError{ID: string(id)}
	}
	return root, nil
}

// GetOrCreateRoot scans non-deleted roots for one whose config matches cfg
// structurally; otherwise it allocates and persists a new one.
func (f *Forest) GetOrCreateRoot(ctx context.Context, cfg store.RootConfig) (*store.RootData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateRootLocked(ctx, cfg)
}

func (f *Forest) getOrCreateRootLocked(ctx context.Context, cfg store.RootConfig) (*store.RootData, error) {
	roots, err := f.st.ListRoots(ctx)
	if err != nil {
		return nil, fmt.Errorf("forest: list roots: %w", err)
	}
	for i := range roots {
		r := roots[i]
		if r.Deleted {
			continue
		}
		if r.Config == cfg {
			return &r, nil
		}
	}
	id, err := f.st.GenerateRootID(ctx)
	if err != nil {
		return nil, fmt.Errorf("forest: generate root id: %w", err)
	}
	r := store.RootData{
		ID:        id,
		CreatedAt: timeNow(),
		ChildIDs:  nil,
		Config:    cfg,
	}
	if err := f.st.SaveRoot(ctx, r); err != nil {
		return nil, fmt.Errorf("forest: save root %s: %w", id, err)
	}
	return &r, nil
}

// GetPath walks from `to` upward via parent_id, unshifting nodes, until
// either `from` (inclusive) or the owning root is reached. Returns the root
// and the ordered path (root excluded).
func (f *Forest) GetPath(ctx context.Context, from *string, to string) (*store.RootData, []store.NodeData, error) {
	var path []store.NodeData
	visited := make(map[string]bool)

	cur := to
	for {
		if visited[cur] {
			return nil, nil, &CircularReferenceError{ID: cur}
		}
		visited[cur] = true

		root, node, err := f.loadEither(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		if node == nil {
			// Reached the root.
			return root, path, nil
		}
		path = append([]store.NodeData{*node}, path...)
		if from != nil && cur == *from {
			r, err := f.GetRoot(ctx, node.RootID)
			if err != nil {
				return nil, nil, err
			}
			return r, path, nil
		}
		cur = node.ParentID
	}
}

// GetMessages is a convenience over GetPath({from:nil, to:nodeId}) returning
// the owning root and the ordered canonical messages along the path.
func (f *Forest) GetMessages(ctx context.Context, nodeID ids.NodeId) (*store.RootData, []message.Message, error) {
	root, path, err := f.GetPath(ctx, nil, string(nodeID))
	if err != nil {
		return nil, nil, err
	}
	msgs := make([]message.Message, len(path))
	for i, n := range path {
		msgs[i] = n.Message
	}
	return root, msgs, nil
}

// GetChildren queries the store for the direct children of id (a root or a
// node id).
func (f *Forest) GetChildren(ctx context.Context, id string) ([]store.NodeData, error) {
	root, node, err := f.loadEither(ctx, id)
	if err != nil {
		return nil, err
	}
	rid := rootIDOf(root, node)
	pid := id
	children, err := f.st.FindNodes(ctx, store.NodeQuery{RootID: rid, ParentID: &pid})
	if err != nil {
		return nil, fmt.Errorf("forest: find children of %s: %w", id, err)
	}
	return children, nil
}

// GetSiblings returns the children of id's parent, excluding id itself.
func (f *Forest) GetSiblings(ctx context.Context, id ids.NodeId) ([]store.NodeData, error) {
	node, err := f.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	siblings, err := f.GetChildren(ctx, node.ParentID)
	if err != nil {
		return nil, err
	}
	out := siblings[:0:0]
	for _, s := range siblings {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out, nil
}

// SubtreeNode is GetSubtree's nested rendering of a node and its
// descendants.
type SubtreeNode struct {
	ID       string
	Role     string
	Message  message.Message // nil for the root
	Children []SubtreeNode
}

// GetSubtree renders id and its descendants (bounded by depth, if given) as
// a nested view, for UI tree rendering and diagnostics.
func (f *Forest) GetSubtree(ctx context.Context, id string, depth *int) (*SubtreeNode, error) {
	_, node, err := f.loadEither(ctx, id)
	if err != nil {
		return nil, err
	}
	role := "system"
	var msg message.Message
	if node != nil {
		role = string(node.Message.Role())
		msg = node.Message
	}
	n := &SubtreeNode{ID: id, Role: role, Message: msg}
	if depth != nil && *depth <= 0 {
		return n, nil
	}
	children, err := f.GetChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	var nextDepth *int
	if depth != nil {
		d := *depth - 1
		nextDepth = &d
	}
	for _, c := range children {
		child, err := f.GetSubtree(ctx, string(c.ID), nextDepth)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, *child)
	}
	return n, nil
}

// ListRecentLeaves returns up to k leaf nodes (nodes with no children) across
// all roots, most-recently-timestamped first. Used by UI surfaces that want
// "jump to where you left off" without walking the whole forest.
func (f *Forest) ListRecentLeaves(ctx context.Context, k int) ([]store.NodeData, error) {
	structures, err := f.st.ListAllNodeStructures(ctx)
	if err != nil {
		return nil, fmt.Errorf("forest: list node structures: %w", err)
	}
	hasChildren := make(map[string]bool, len(structures))
	for _, s := range structures {
		if s.ParentID != "" {
			hasChildren[s.ParentID] = true
		}
	}
	var leaves []store.NodeStructure
	for _, s := range structures {
		if s.ParentID == "" {
			continue // root entries carry no message
		}
		if !hasChildren[s.ID] {
			leaves = append(leaves, s)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Timestamp.After(leaves[j].Timestamp) })
	if k >= 0 && k < len(leaves) {
		leaves = leaves[:k]
	}
	out := make([]store.NodeData, 0, len(leaves))
	for _, l := range leaves {
		_, node, err := f.loadEither(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		if node != nil {
			out = append(out, *node)
		}
	}
	return out, nil
}
