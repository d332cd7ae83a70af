// Package cache keeps recently served replay metadata in memory to avoid
// repeated storage reads on the hot viewer path.
package cache

import (
	"sync"

	"github.com/rlviewer/telemetry/internal/model"
)

// DefaultCapacity bounds the number of cached replays.
const DefaultCapacity = 128

// ReplayCache is a bounded FIFO cache of replay metadata documents.
// Latency on the metadata endpoint matters to the viewer; a hit skips the
// database and the JSON decode entirely.
type ReplayCache struct {
	m        sync.Mutex
	replays  map[string]*model.Replay
	order    []string
	capacity int

	hits   SafeCounter
	misses SafeCounter
}

// NewReplayCache creates a cache holding up to capacity replays. A
// non-positive capacity falls back to DefaultCapacity.
func NewReplayCache(capacity int) *ReplayCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ReplayCache{
		replays:  make(map[string]*model.Replay),
		capacity: capacity,
	}
}

// Get returns the cached replay for id, if present.
func (c *ReplayCache) Get(id string) (*model.Replay, bool) {
	c.m.Lock()
	r, ok := c.replays[id]
	c.m.Unlock()

	if ok {
		c.hits.Inc()
	} else {
		c.misses.Inc()
	}
	return r, ok
}

// Stats returns the cumulative hit and miss counts.
func (c *ReplayCache) Stats() (hits, misses int) {
	return c.hits.Value(), c.misses.Value()
}

// Add stores a replay, evicting the oldest entry when full. Re-adding an
// existing id replaces its value without growing the cache.
func (c *ReplayCache) Add(replay *model.Replay) {
	if replay == nil || replay.ID == "" {
		return
	}
	c.m.Lock()
	defer c.m.Unlock()

	if _, exists := c.replays[replay.ID]; !exists {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.replays, oldest)
		}
		c.order = append(c.order, replay.ID)
	}
	c.replays[replay.ID] = replay
}

// Invalidate drops one replay from the cache.
func (c *ReplayCache) Invalidate(id string) {
	c.m.Lock()
	defer c.m.Unlock()

	if _, ok := c.replays[id]; !ok {
		return
	}
	delete(c.replays, id)
	for i, key := range c.order {
		if key == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Reset empties the cache.
func (c *ReplayCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.replays = make(map[string]*model.Replay)
	c.order = nil
}

// Len returns the number of cached replays.
func (c *ReplayCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.replays)
}

// SafeCounter is a thread-safe counter.
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
