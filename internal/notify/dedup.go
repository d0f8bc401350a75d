package notify

import "sync"

// dedupCache is a bounded FIFO set of recently published dedup keys.
type dedupCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func newDedupCache(capacity int) *dedupCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &dedupCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// markSeen records the key and reports whether it was already present.
func (c *dedupCache) markSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	c.order = append(c.order, key)
	if len(c.order) > c.capacity {
		evicted := c.order[0]
		c.order = c.order[1:]
		delete(c.seen, evicted)
	}
	return false
}
