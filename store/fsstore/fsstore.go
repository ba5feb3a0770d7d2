// Package fsstore is the reference content-addressed filesystem persistence
// layer: one JSON file per node, one aggregated roots.json, matching the
// node file schema and persisted state layout in the specification.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arcreflex/loomforest/ids"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/telemetry"
)

// Store is a filesystem-backed implementation of store.Store. It is safe
// for concurrent use: a single mutex guards the roots index and id
// allocation, matching the single-writer assumption in the specification
// (the Forest is the sole mutator, but fsstore does not itself assume the
// Forest's queue discipline is the only thing ever calling it).
type Store struct {
	baseDir string
	logger  telemetry.Logger

	mu       sync.Mutex
	rootSeq  uint64
	nodeSeqs map[ids.RootId]uint64

	cache *topologyCache
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a structured logger. When omitted, a no-op logger is
// used.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if absent) a filesystem store rooted at baseDir.
func Open(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create base dir: %w", err)
	}
	s := &Store{
		baseDir:  baseDir,
		logger:   telemetry.NewNoopLogger(),
		nodeSeqs: make(map[ids.RootId]uint64),
		cache:    newTopologyCache(),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if err := s.loadSeqState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rootsPath() string {
	return filepath.Join(s.baseDir, "roots.json")
}

func (s *Store) nodesDir(root ids.RootId) string {
	return filepath.Join(s.baseDir, string(root), "nodes")
}

func (s *Store) nodePath(id ids.NodeId) (string, error) {
	root, ok := ids.RootOf(id)
	if !ok {
		return "", fmt.Errorf("fsstore: malformed node id %q", id)
	}
	return filepath.Join(s.nodesDir(root), nodeFileName(id)), nil
}

func nodeFileName(id ids.NodeId) string {
	seq, _ := ids.Seq(id)
	return fmt.Sprintf("node-%d.json", seq)
}

// loadSeqState scans existing roots to seed the monotonic id counters so a
// reopened store does not hand out an id whose root entry or node file is
// still on disk. Node counters are rebuilt from the node files present, so
// after a reopen the id of a deleted node whose sequence number was the
// highest can be handed out again.
func (s *Store) loadSeqState() error {
	roots, err := s.readRootsLocked()
	if err != nil {
		return err
	}
	for _, r := range roots {
		if seq, ok := ids.ValidateRootSeq(r.ID); ok && seq >= s.rootSeq {
			s.rootSeq = seq + 1
		}
		entries, err := os.ReadDir(s.nodesDir(r.ID))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("fsstore: scan nodes dir for %s: %w", r.ID, err)
		}
		var maxSeq uint64
		var any bool
		for _, e := range entries {
			seq, ok := parseNodeFileSeq(e.Name())
			if !ok {
				continue
			}
			any = true
			if seq >= maxSeq {
				maxSeq = seq
			}
		}
		if any {
			s.nodeSeqs[r.ID] = maxSeq + 1
		} else {
			s.nodeSeqs[r.ID] = 0
		}
	}
	return nil
}

func parseNodeFileSeq(name string) (uint64, bool) {
	const prefix, suffix = "node-", ".json"
	if len(name) <= len(prefix)+len(suffix) {
		return 0, false
	}
	if name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	var seq uint64
	_, err := fmt.Sscanf(name[len(prefix):len(name)-len(suffix)], "%d", &seq)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// GenerateRootID allocates the next root id, refusing to hand out a
// candidate whose target directory already exists.
func (s *Store) GenerateRootID(ctx context.Context) (ids.RootId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		candidate := ids.NewRootId(s.rootSeq)
		s.rootSeq++
		if _, err := os.Stat(filepath.Join(s.baseDir, string(candidate))); err == nil {
			continue // collides with an existing on-disk artifact
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("fsstore: stat candidate root dir: %w", err)
		}
		return candidate, nil
	}
}

// GenerateNodeID allocates the next node id within root.
func (s *Store) GenerateNodeID(ctx context.Context, root ids.RootId) (ids.NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		seq := s.nodeSeqs[root]
		s.nodeSeqs[root] = seq + 1
		candidate := ids.NewNodeId(root, seq)
		path, err := s.nodePath(candidate)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("fsstore: stat candidate node file: %w", err)
		}
		return candidate, nil
	}
}

func (s *Store) readRootsLocked() ([]store.RootData, error) {
	data, err := os.ReadFile(s.rootsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: read roots.json: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var wires []wireRoot
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, &store.CorruptRecordError{ID: "roots.json", Cause: err}
	}
	out := make([]store.RootData, len(wires))
	for i, w := range wires {
		out[i] = decodeRoot(w)
	}
	return out, nil
}

func (s *Store) writeRootsLocked(roots []store.RootData) error {
	wires := make([]wireRoot, len(roots))
	for i, r := range roots {
		wires[i] = encodeRoot(r)
	}
	data, err := json.MarshalIndent(wires, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal roots.json: %w", err)
	}
	return atomicWriteFile(s.rootsPath(), data)
}

// SaveRoot upserts r into roots.json.
func (s *Store) SaveRoot(ctx context.Context, r store.RootData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roots, err := s.readRootsLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range roots {
		if roots[i].ID == r.ID {
			roots[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		roots = append(roots, r)
	}
	if err := s.writeRootsLocked(roots); err != nil {
		return err
	}
	if err := os.MkdirAll(s.nodesDir(r.ID), 0o755); err != nil {
		return fmt.Errorf("fsstore: create nodes dir for %s: %w", r.ID, err)
	}
	s.cache.invalidate()
	return nil
}

// LoadRoot returns the root with id, or nil if absent.
func (s *Store) LoadRoot(ctx context.Context, id ids.RootId) (*store.RootData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roots, err := s.readRootsLocked()
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		if r.ID == id {
			rc := r
			return &rc, nil
		}
	}
	return nil, nil
}

// ListRoots returns every persisted root, deleted or not.
func (s *Store) ListRoots(ctx context.Context) ([]store.RootData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRootsLocked()
}

// SaveNode persists n's canonical message and metadata to its own file.
// Legacy shapes must never reach this method; the Forest normalizes before
// calling SaveNode.
func (s *Store) SaveNode(ctx context.Context, n store.NodeData) error {
	path, err := s.nodePath(n.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsstore: create nodes dir: %w", err)
	}
	w, err := encodeNode(n)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal node %s: %w", n.ID, err)
	}
	if err := atomicWriteFile(path, data); err != nil {
		return err
	}
	s.cache.invalidate()
	return nil
}

// LoadNode loads whichever of a root or a node matches id. The message is
// normalized (forward-migrated) on read; a corrupt record or a failed
// normalization returns a *store.CorruptRecordError wrapping the cause.
func (s *Store) LoadNode(ctx context.Context, id string) (*store.RootData, *store.NodeData, error) {
	if root, err := s.LoadRoot(ctx, ids.RootId(id)); err != nil {
		return nil, nil, err
	} else if root != nil {
		return root, nil, nil
	}

	nodeID := ids.NodeId(id)
	path, err := s.nodePath(nodeID)
	if err != nil {
		return nil, nil, nil // neither a root nor a well-formed node id: absent
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("fsstore: read node %s: %w", id, err)
	}
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, nil, &store.CorruptRecordError{ID: id, Cause: err}
	}
	n, err := decodeNode(w)
	if err != nil {
		return nil, nil, &store.CorruptRecordError{ID: id, Cause: err}
	}
	return nil, &n, nil
}

// DeleteNode removes the node's file. Deleting a nonexistent node is a no-op.
func (s *Store) DeleteNode(ctx context.Context, id ids.NodeId) error {
	path, err := s.nodePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: delete node %s: %w", id, err)
	}
	s.cache.invalidate()
	return nil
}

// FindNodes scans the root's node directory for matches. This reference
// implementation is O(n) in the root's node count; a production deployment
// would keep a parent->children index, which is exactly what the topology
// cache (and its optional Redis mirror) provides for read-heavy callers.
func (s *Store) FindNodes(ctx context.Context, q store.NodeQuery) ([]store.NodeData, error) {
	entries, err := os.ReadDir(s.nodesDir(q.RootID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: scan nodes dir for %s: %w", q.RootID, err)
	}
	var out []store.NodeData
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.nodesDir(q.RootID), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("fsstore: read %s: %w", e.Name(), err)
		}
		var w wireNode
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, &store.CorruptRecordError{ID: e.Name(), Cause: err}
		}
		if q.ParentID != nil && w.ParentID != *q.ParentID {
			continue
		}
		n, err := decodeNode(w)
		if err != nil {
			return nil, &store.CorruptRecordError{ID: w.ID, Cause: err}
		}
		out = append(out, n)
	}
	return out, nil
}

// ListAllNodeStructures returns the cached, content-free topology view,
// rebuilding it from disk if invalidated since the last call.
func (s *Store) ListAllNodeStructures(ctx context.Context) ([]store.NodeStructure, error) {
	if cached, ok := s.cache.get(); ok {
		return cached, nil
	}
	built, err := s.buildStructures(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.set(built)
	return built, nil
}

func (s *Store) buildStructures(ctx context.Context) ([]store.NodeStructure, error) {
	roots, err := s.ListRoots(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.NodeStructure
	for _, r := range roots {
		out = append(out, store.NodeStructure{
			ID:        string(r.ID),
			ParentID:  "",
			ChildIDs:  idsToStrings(r.ChildIDs),
			RootID:    r.ID,
			Timestamp: r.CreatedAt,
			Role:      "system",
		})
		nodes, err := s.FindNodes(ctx, store.NodeQuery{RootID: r.ID})
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			out = append(out, store.NodeStructure{
				ID:        string(n.ID),
				ParentID:  n.ParentID,
				ChildIDs:  idsToStrings(n.ChildIDs),
				RootID:    n.RootID,
				Timestamp: n.Metadata.Timestamp,
				Role:      string(n.Message.Role()),
			})
		}
	}
	return out, nil
}

func idsToStrings(in []ids.NodeId) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

// atomicWriteFile writes data to path via a temp file + rename, so a crash
// mid-write never leaves a half-written record for a subsequent LoadNode to
// choke on.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fsstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fsstore: rename temp file into place: %w", err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
