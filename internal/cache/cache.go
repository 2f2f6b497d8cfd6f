package cache

import (
	"sync"
	"time"
)

// =============================================================================
// ⏱️ 进程内 TTL 缓存
// =============================================================================

// DefaultTTL 缓存条目的默认存活时间
const DefaultTTL = 5 * time.Minute

type ttlEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTLCache 进程内泛型 TTL 缓存。
//
// 过期条目在 Get 访问时惰性删除，不运行后台清理协程。
// 适用于存放无法 JSON 序列化的编译产物（如携带闭包的工具集）。
type TTLCache[T any] struct {
	mu      sync.Mutex
	entries map[string]ttlEntry[T]
	ttl     time.Duration
}

// NewTTLCache 创建 TTL 缓存，ttl <= 0 时使用 DefaultTTL
func NewTTLCache[T any](ttl time.Duration) *TTLCache[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLCache[T]{
		entries: make(map[string]ttlEntry[T]),
		ttl:     ttl,
	}
}

// Get 获取缓存值。过期条目当场删除并返回未命中。
func (c *TTLCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}

	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}

	return entry.value, true
}

// Set 写入缓存值，覆盖同键旧值并重置存活时间
func (c *TTLCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = ttlEntry[T]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate 删除指定键
func (c *TTLCache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear 清空全部条目
func (c *TTLCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]ttlEntry[T])
}

// Len 返回当前条目数（含尚未被访问到的过期条目）
func (c *TTLCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// TTL 返回缓存的存活时间配置
func (c *TTLCache[T]) TTL() time.Duration {
	return c.ttl
}
