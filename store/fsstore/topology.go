package fsstore

import (
	"sync"

	"github.com/arcreflex/loomforest/store"
)

// topologyCache caches the content-free NodeStructure index built by
// ListAllNodeStructures. It is invalidated on every SaveRoot, SaveNode, or
// DeleteNode call, per the durability model in the specification.
type topologyCache struct {
	mu    sync.RWMutex
	valid bool
	data  []store.NodeStructure
}

func newTopologyCache() *topologyCache {
	return &topologyCache{}
}

func (c *topologyCache) get() ([]store.NodeStructure, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return nil, false
	}
	out := make([]store.NodeStructure, len(c.data))
	copy(out, c.data)
	return out, true
}

func (c *topologyCache) set(data []store.NodeStructure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.valid = true
}

func (c *topologyCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.data = nil
}
