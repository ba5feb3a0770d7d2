package forest

import "fmt"

// NodeNotFoundError indicates id names neither a root nor a node.
type NodeNotFoundError struct {
	ID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("forest: node not found: %s", e.ID)
}

// CircularReferenceError indicates a parent_id walk revisited an id,
// meaning the persisted tree is corrupt.
type CircularReferenceError struct {
	ID string
}

func (e *CircularReferenceError) Error() string {
	return fmt.Sprintf("forest: circular reference detected at %s", e.ID)
}

// NodeNotFoundOrRootError is raised by editNodeContent when nodeId names a
// root or does not exist.
type NodeNotFoundOrRootError struct {
	ID string
}

func (e *NodeNotFoundOrRootError) Error() string {
	return fmt.Sprintf("forest: node not found or is a root: %s", e.ID)
}

// CannotEditToolUseMessageError is raised when editNodeContent targets an
// assistant message carrying ToolUse blocks.
type CannotEditToolUseMessageError struct {
	ID string
}

func (e *CannotEditToolUseMessageError) Error() string {
	return fmt.Sprintf("forest: cannot edit tool-use message: %s", e.ID)
}

// CannotSplitError is raised by splitNode when the target message is not a
// single-text-block message (a tool message, or null/empty content).
type CannotSplitError struct {
	ID     string
	Reason string
}

func (e *CannotSplitError) Error() string {
	return fmt.Sprintf("forest: cannot split %s: %s", e.ID, e.Reason)
}

// InvalidSplitPositionError is raised when splitNode's position falls
// outside 1 <= position <= len-1.
type InvalidSplitPositionError struct {
	ID       string
	Position int
	Length   int
}

func (e *InvalidSplitPositionError) Error() string {
	return fmt.Sprintf("forest: invalid split position %d for %s (length %d)", e.Position, e.ID, e.Length)
}

// RootDeletionError is raised by deleteNode when nodeId names a root.
type RootDeletionError struct {
	ID string
}

func (e *RootDeletionError) Error() string {
	return fmt.Sprintf("forest: cannot delete root: %s", e.ID)
}
