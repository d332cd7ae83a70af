package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlviewer/telemetry/internal/model"
)

func replay(id string) *model.Replay {
	return &model.Replay{ID: id, Duration: 300}
}

func TestReplayCache_AddAndGet(t *testing.T) {
	c := NewReplayCache(4)

	c.Add(replay("r1"))

	got, ok := c.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "r1", got.ID)

	_, ok = c.Get("r2")
	assert.False(t, ok)
}

func TestReplayCache_EvictsOldestAtCapacity(t *testing.T) {
	c := NewReplayCache(2)

	c.Add(replay("r1"))
	c.Add(replay("r2"))
	c.Add(replay("r3"))

	_, ok := c.Get("r1")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("r2")
	assert.True(t, ok)
	_, ok = c.Get("r3")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestReplayCache_ReAddReplacesWithoutGrowth(t *testing.T) {
	c := NewReplayCache(2)

	c.Add(replay("r1"))
	updated := replay("r1")
	updated.Duration = 400
	c.Add(updated)

	assert.Equal(t, 1, c.Len())
	got, ok := c.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 400.0, got.Duration)
}

func TestReplayCache_Invalidate(t *testing.T) {
	c := NewReplayCache(4)
	c.Add(replay("r1"))
	c.Add(replay("r2"))

	c.Invalidate("r1")

	_, ok := c.Get("r1")
	assert.False(t, ok)
	_, ok = c.Get("r2")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())

	// invalidating an unknown id is a no-op
	c.Invalidate("nope")
	assert.Equal(t, 1, c.Len())
}

func TestReplayCache_Reset(t *testing.T) {
	c := NewReplayCache(4)
	c.Add(replay("r1"))
	c.Add(replay("r2"))

	c.Reset()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("r1")
	assert.False(t, ok)
}

func TestReplayCache_Stats(t *testing.T) {
	c := NewReplayCache(4)
	c.Add(replay("r1"))

	c.Get("r1")
	c.Get("r1")
	c.Get("missing")

	hits, misses := c.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)
}

func TestReplayCache_IgnoresNilAndEmpty(t *testing.T) {
	c := NewReplayCache(4)

	c.Add(nil)
	c.Add(&model.Replay{})

	assert.Equal(t, 0, c.Len())
}

func TestReplayCache_Concurrent(t *testing.T) {
	c := NewReplayCache(16)
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", n%8)
			c.Add(replay(id))
			c.Get(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, c.Value())

	c.Set(5)
	assert.Equal(t, 5, c.Value())
}
