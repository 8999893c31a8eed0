package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newWithClock(ttl time.Duration) (*TTLCache[int], *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := New[int](ttl)
	c.now = clock.Now
	return c, clock
}

func TestTTLCache_SetGetExpire(t *testing.T) {
	c, clock := newWithClock(time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestTTLCache_Purge(t *testing.T) {
	c, clock := newWithClock(time.Minute)
	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)
	c.SetWithTTL("forever", 3, 0)

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("long")
	assert.True(t, ok)
	clock.Advance(24 * time.Hour)
	assert.Equal(t, 1, c.Purge())
	v, ok := c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestTTLCache_DeleteClearAndEmptyKey(t *testing.T) {
	c := New[string](0)
	c.Set("", "ignored")
	assert.Equal(t, 0, c.Len())

	c.Set("a", "x")
	c.Set("b", "y")
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_Concurrent(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("k", i)
				c.Get("k")
				c.Purge()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
