package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/arcreflex/loomforest/ids"
)

// FileBookmarkStore persists bookmarks to a config.toml file alongside the
// Store's data directory, per the "<base>/config.toml and siblings" layout
// named in the specification's persisted-state-layout section. It wraps a
// MemoryBookmarkStore for in-process access and flushes to disk after every
// mutation.
type FileBookmarkStore struct {
	path string
	mu   sync.Mutex
	mem  *MemoryBookmarkStore
}

type tomlDocument struct {
	Bookmark []tomlBookmark `toml:"bookmark"`
}

type tomlBookmark struct {
	Title     string    `toml:"title"`
	RootID    string    `toml:"root_id"`
	NodeID    string    `toml:"node_id"`
	CreatedAt time.Time `toml:"created_at"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// OpenFileBookmarkStore loads path (if it exists) and returns a
// FileBookmarkStore that persists further mutations back to it.
func OpenFileBookmarkStore(path string) (*FileBookmarkStore, error) {
	s := &FileBookmarkStore{path: path, mem: NewMemoryBookmarkStore()}
	doc, err := readTOMLDocument(path)
	if err != nil {
		return nil, err
	}
	for _, b := range doc.Bookmark {
		s.mem.byID[ids.NodeId(b.NodeID)] = Bookmark{
			Title:     b.Title,
			RootID:    ids.RootId(b.RootID),
			NodeID:    ids.NodeId(b.NodeID),
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.UpdatedAt,
		}
	}
	return s, nil
}

func readTOMLDocument(path string) (tomlDocument, error) {
	var doc tomlDocument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("config: read %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return doc, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return doc, nil
}

func (s *FileBookmarkStore) flushLocked() error {
	bookmarks, _ := s.mem.List(context.Background())
	doc := tomlDocument{Bookmark: make([]tomlBookmark, 0, len(bookmarks))}
	for _, b := range bookmarks {
		doc.Bookmark = append(doc.Bookmark, tomlBookmark{
			Title:     b.Title,
			RootID:    string(b.RootID),
			NodeID:    string(b.NodeID),
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.UpdatedAt,
		})
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", s.path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		return fmt.Errorf("config: encode %s: %w", s.path, err)
	}
	return nil
}

func (s *FileBookmarkStore) Add(ctx context.Context, title string, root ids.RootId, node ids.NodeId) (Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.mem.Add(ctx, title, root, node)
	if err != nil {
		return Bookmark{}, err
	}
	if err := s.flushLocked(); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}

func (s *FileBookmarkStore) List(ctx context.Context) ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.List(ctx)
}

func (s *FileBookmarkStore) Remove(ctx context.Context, node ids.NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Remove(ctx, node); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *FileBookmarkStore) MoveNode(ctx context.Context, from, to ids.NodeId) ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved, err := s.mem.MoveNode(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(moved) > 0 {
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
	}
	return moved, nil
}

func (s *FileBookmarkStore) RemoveAll(ctx context.Context, nodes []ids.NodeId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.RemoveAll(ctx, nodes); err != nil {
		return err
	}
	return s.flushLocked()
}

var _ BookmarkStore = (*FileBookmarkStore)(nil)
