// Package forest implements the tree algebra over an append-mostly tree of
// messages: path traversal, prefix-matching append, split, edit-branch,
// deletion with orphan/reparent policies, bookmark-lifecycle coupling, and
// operation serialization.
package forest

import (
	"sync"
	"time"

	"github.com/arcreflex/loomforest/config"
	"github.com/arcreflex/loomforest/store"
	"github.com/arcreflex/loomforest/telemetry"
)

// timeNow is a package-level seam so tests can control node/root timestamps
// deterministically without depending on wall-clock time.
var timeNow = func() time.Time { return time.Now().UTC() }

// Forest is the sole writer to the Store for tree operations. All mutating
// operations are serialized by a single logical mutex so that, from any
// caller's viewpoint, a mutation executes atomically; reads do not acquire
// the lock and may proceed concurrently with writes; each read observes a
// consistent per-node snapshot because Store.LoadNode/FindNodes return a
// fresh copy from storage.
//
// editNodeContent internally calls splitNode and append; it does so via the
// unexported *Locked helpers below while already holding the mutex, rather
// than recursing through the public API, to avoid self-deadlock.
type Forest struct {
	st        store.Store
	bookmarks config.BookmarkStore
	logger    telemetry.Logger
	tracer    telemetry.Tracer

	mu sync.Mutex
}

// Option configures a Forest.
type Option func(*Forest)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option {
	return func(f *Forest) { f.logger = l }
}

// WithTracer attaches a tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(f *Forest) { f.tracer = t }
}

// New builds a Forest over st, coupling bookmark lifecycle to bm.
func New(st store.Store, bm config.BookmarkStore, opts ...Option) *Forest {
	f := &Forest{
		st:        st,
		bookmarks: bm,
		logger:    telemetry.NewNoopLogger(),
		tracer:    telemetry.NewNoopTracer(),
	}
	for _, o := range opts {
		if o != nil {
			o(f)
		}
	}
	return f
}
