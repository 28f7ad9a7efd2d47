package storage

import (
	"sync"

	"github.com/decred/dcrd/lru"

	"github.com/opnet-labs/opnetd/contract"
)

// hotCache is a bounded read cache for recently touched storage
// pointers. Recency is tracked by decred's LRU set, which evicts the
// least-recently-used key once the limit is reached; get gates on
// recent.Contains first, so an evicted key is never served stale even
// though its value lingers in the map until the next put overwrites
// or invalidate removes it.
type hotCache struct {
	mu     sync.Mutex
	recent *lru.Cache
	values map[string]contract.Value
}

func newHotCache(limit uint) *hotCache {
	return &hotCache{
		recent: lru.NewCache(limit),
		values: make(map[string]contract.Value),
	}
}

func (h *hotCache) get(key string) (contract.Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.recent.Contains(key) {
		return contract.Value{}, false
	}
	v, ok := h.values[key]
	return v, ok
}

func (h *hotCache) put(key string, value contract.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent.Add(key)
	h.values[key] = value
}

func (h *hotCache) invalidate(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent.Delete(key)
	delete(h.values, key)
}
