// Package config holds the collaborators that live outside the Forest's
// tree algebra but are coupled to it under defined rules: bookmarks (which
// the Forest mutates on edit/delete per spec) and the on-disk config.toml
// file that stores them.
package config

import (
	"context"
	"sync"
	"time"

	"github.com/arcreflex/loomforest/ids"
)

// Bookmark names a position in a tree.
type Bookmark struct {
	Title     string
	RootID    ids.RootId
	NodeID    ids.NodeId
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookmarkStore is the collaborator the Forest calls into, inside its
// serialized section, to keep bookmarks consistent across edits and
// deletes. Any implementation passed to a Forest must itself be safe for
// concurrent access, since external callers may also read it outside the
// Forest's operation queue.
type BookmarkStore interface {
	Add(ctx context.Context, title string, root ids.RootId, node ids.NodeId) (Bookmark, error)
	List(ctx context.Context) ([]Bookmark, error)
	Remove(ctx context.Context, node ids.NodeId) error

	// MoveNode relocates every bookmark pointing at from to to, preserving
	// Title and CreatedAt and bumping UpdatedAt. Returns the bookmarks that
	// were moved (possibly empty). Called by the Forest after editNodeContent
	// produces a node with a different id than the one edited.
	MoveNode(ctx context.Context, from, to ids.NodeId) ([]Bookmark, error)

	// RemoveAll removes bookmarks for every id in nodes. Called by the Forest
	// after a non-reparenting delete removes a node and its descendants.
	RemoveAll(ctx context.Context, nodes []ids.NodeId) error
}

// MemoryBookmarkStore is an in-process BookmarkStore, suitable for tests and
// for a File-backed store's decorating base.
type MemoryBookmarkStore struct {
	mu   sync.Mutex
	byID map[ids.NodeId]Bookmark
}

// NewMemoryBookmarkStore returns an empty in-process bookmark store.
func NewMemoryBookmarkStore() *MemoryBookmarkStore {
	return &MemoryBookmarkStore{byID: make(map[ids.NodeId]Bookmark)}
}

func (s *MemoryBookmarkStore) Add(ctx context.Context, title string, root ids.RootId, node ids.NodeId) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timeNow()
	b := Bookmark{Title: title, RootID: root, NodeID: node, CreatedAt: now, UpdatedAt: now}
	s.byID[node] = b
	return b, nil
}

func (s *MemoryBookmarkStore) List(ctx context.Context) ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Bookmark, 0, len(s.byID))
	for _, b := range s.byID {
		out = append(out, b)
	}
	return out, nil
}

func (s *MemoryBookmarkStore) Remove(ctx context.Context, node ids.NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, node)
	return nil
}

func (s *MemoryBookmarkStore) MoveNode(ctx context.Context, from, to ids.NodeId) ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byID[from]
	if !ok {
		return nil, nil
	}
	delete(s.byID, from)
	b.NodeID = to
	b.UpdatedAt = timeNow()
	s.byID[to] = b
	return []Bookmark{b}, nil
}

func (s *MemoryBookmarkStore) RemoveAll(ctx context.Context, nodes []ids.NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		delete(s.byID, n)
	}
	return nil
}

// timeNow is a package-level seam so tests can control bookmark timestamps
// deterministically without depending on wall-clock time.
var timeNow = func() time.Time { return time.Now().UTC() }
