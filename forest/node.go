package forest

import "github.com/arcreflex/loomforest/store"

// Node is the Forest's "RootData | NodeData" sum: exactly one field is
// non-nil. Operations that can terminate at either a root or a node (append
// with an empty tail, editNodeContent's no-suffix case, deleteNode's
// parent result) return this.
type Node struct {
	Root *store.RootData
	Node *store.NodeData
}

// ID returns the node or root's string identifier.
func (n Node) ID() string {
	if n.Node != nil {
		return string(n.Node.ID)
	}
	if n.Root != nil {
		return string(n.Root.ID)
	}
	return ""
}

// IsRoot reports whether n wraps a root rather than a node.
func (n Node) IsRoot() bool { return n.Node == nil }
