package forest

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// Append is the deduplicating tail-extension of the tree: it walks as far as
// it can through existing children under comparison-normal-form equality,
// then creates new nodes for whatever remains.
func (f *Forest) Append(ctx context.Context, parentID string, msgs []message.Message, meta store.NodeMetadata) (Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appendLocked(ctx, parentID, msgs, meta)
}

func (f *Forest) appendLocked(ctx context.Context, parentID string, msgs []message.Message, meta store.NodeMetadata) (Node, error) {
	filtered := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if message.CompareNormal(m).Absent() {
			continue
		}
		filtered = append(filtered, m)
	}

	root, node, err := f.loadEither(ctx, parentID)
	if err != nil {
		return Node{}, err
	}
	rootID := rootIDOf(root, node)

	curIsRoot := node == nil
	curRootData := root
	curNodeData := node
	curID := parentID

	i := 0
	for i < len(filtered) {
		children, err := f.st.FindNodes(ctx, store.NodeQuery{RootID: rootID, ParentID: &curID})
		if err != nil {
			return Node{}, fmt.Errorf("forest: find children of %s: %w", curID, err)
		}
		target := message.CompareNormal(filtered[i])
		matched := false
		for j := range children {
			if message.Equal(target, message.CompareNormal(children[j].Message)) {
				curNodeData = &children[j]
				curRootData = nil
				curIsRoot = false
				curID = string(children[j].ID)
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		i++
	}

	if i == len(filtered) {
		if curIsRoot {
			return Node{Root: curRootData}, nil
		}
		return Node{Node: curNodeData}, nil
	}

	for ; i < len(filtered); i++ {
		newID, err := f.st.GenerateNodeID(ctx, rootID)
		if err != nil {
			return Node{}, fmt.Errorf("forest: generate node id: %w", err)
		}
		nm := meta
		nm.Timestamp = timeNow()
		nm.OriginalRootID = rootID
		n := store.NodeData{
			ID:       newID,
			RootID:   rootID,
			ParentID: curID,
			Message:  filtered[i],
			Metadata: nm,
		}
		if err := f.st.SaveNode(ctx, n); err != nil {
			return Node{}, fmt.Errorf("forest: save node %s: %w", newID, err)
		}
		if err := f.appendChildLocked(ctx, curIsRoot, curRootData, curNodeData, curID, newID); err != nil {
			return Node{}, err
		}
		curIsRoot = false
		curNodeData = &n
		curRootData = nil
		curID = string(newID)
	}

	return Node{Node: curNodeData}, nil
}

// appendChildLocked records newID as a child of the node or root currently
// identified by curID, persisting whichever of curRoot/curNode it updates.
func (f *Forest) appendChildLocked(ctx context.Context, curIsRoot bool, curRoot *store.RootData, curNode *store.NodeData, curID string, newID ids.NodeId) error {
	if curIsRoot {
		r := *curRoot
		r.ChildIDs = append(append([]ids.NodeId{}, r.ChildIDs...), newID)
		if err := f.st.SaveRoot(ctx, r); err != nil {
			return fmt.Errorf("forest: save root %s: %w", curID, err)
		}
		*curRoot = r
		return nil
	}
	n := *curNode
	n.ChildIDs = append(append([]ids.NodeId{}, n.ChildIDs...), newID)
	if err := f.st.SaveNode(ctx, n); err != nil {
		return fmt.Errorf("forest: save node %s: %w", curID, err)
	}
	*curNode = n
	return nil
}
