package forest

import (
	"context"
	"fmt"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/message"
	"github.com/arcreflex/loomforest/store"
)

// SerializedNode is the read-only diagnostic rendering produced by
// Serialize: {id, role, message, children}, recursively.
type SerializedNode struct {
	ID       string
	Role     string
	Message  message.Message // nil for a root
	Children []SerializedNode
}

// Serialize dumps every root's tree as a recursively rendered
// {id, role, message, children} structure, keyed by root id. It is
// read-only: no Store calls other than reads are made.
func (f *Forest) Serialize(ctx context.Context) (map[ids.RootId]SerializedNode, error) {
	roots, err := f.st.ListRoots(ctx)
	if err != nil {
		return nil, fmt.Errorf("forest: list roots: %w", err)
	}
	out := make(map[ids.RootId]SerializedNode, len(roots))
	for _, r := range roots {
		node, err := f.serializeNode(ctx, r.ID, string(r.ID), "system", nil)
		if err != nil {
			return nil, err
		}
		out[r.ID] = *node
	}
	return out, nil
}

func (f *Forest) serializeNode(ctx context.Context, rootID ids.RootId, id string, role string, msg message.Message) (*SerializedNode, error) {
	sn := &SerializedNode{ID: id, Role: role, Message: msg}
	children, err := f.st.FindNodes(ctx, store.NodeQuery{RootID: rootID, ParentID: &id})
	if err != nil {
		return nil, fmt.Errorf("forest: find children of %s: %w", id, err)
	}
	for _, c := range children {
		child, err := f.serializeNode(ctx, rootID, string(c.ID), string(c.Message.Role()), c.Message)
		if err != nil {
			return nil, err
		}
		sn.Children = append(sn.Children, *child)
	}
	return sn, nil
}
