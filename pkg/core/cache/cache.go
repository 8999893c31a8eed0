// Package cache 带过期时间的内存缓存
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	expireAt time.Time
}

// TTLCache 内存 TTL 缓存（对外导出）
// 过期条目在 Get 时惰性删除，或由调用方定期 Purge
type TTLCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry[V]
	now     func() time.Time

	hits   int64
	misses int64
}

// New 创建缓存，ttl<=0 时条目永不过期
func New[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:     ttl,
		entries: make(map[string]entry[V]),
		now:     time.Now,
	}
}

// Set 写入，使用默认 TTL
func (c *TTLCache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL 写入并指定 TTL
func (c *TTLCache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if key == "" {
		return
	}
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expireAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Get 读取，未命中或已过期返回 false
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Delete 删除
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear 清空
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry[V])
	c.mu.Unlock()
}

// Purge 删除全部过期条目，返回删除数量
func (c *TTLCache[V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len 当前条目数（含尚未清理的过期条目）
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats 命中统计
func (c *TTLCache[V]) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *TTLCache[V]) expired(e entry[V], now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}
