package network

import "sync"

// cache memoises outputs by board fingerprint. When full, the oldest insertion
// is evicted.
type cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]float64
	order    []string
	next     int
}

func newCache(capacity int) *cache {
	return &cache{
		capacity: capacity,
		entries:  make(map[string][]float64),
	}
}

func (c *cache) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *cache) put(key string, value []float64) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return
	}
	if len(c.order) < c.capacity {
		c.order = append(c.order, key)
	} else {
		delete(c.entries, c.order[c.next])
		c.order[c.next] = key
		c.next = (c.next + 1) % c.capacity
	}
	c.entries[key] = value
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]float64)
	c.order = c.order[:0]
	c.next = 0
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
