package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 TTLCache 测试
// =============================================================================

func TestTTLCache_SetAndGet(t *testing.T) {
	c := NewTTLCache[string](time.Minute)

	c.Set("k1", "v1")

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestTTLCache_Miss(t *testing.T) {
	c := NewTTLCache[int](time.Minute)

	got, ok := c.Get("absent")
	assert.False(t, ok)
	assert.Zero(t, got)
}

func TestTTLCache_LazyExpiry(t *testing.T) {
	c := NewTTLCache[string](50 * time.Millisecond)

	c.Set("k1", "v1")

	// 过期前命中
	_, ok := c.Get("k1")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	// 没有后台清理，条目仍在 map 中
	assert.Equal(t, 1, c.Len())

	// 访问触发惰性删除
	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_OverwriteResetsTTL(t *testing.T) {
	c := NewTTLCache[string](80 * time.Millisecond)

	c.Set("k1", "v1")
	time.Sleep(50 * time.Millisecond)

	// 覆盖写入重置存活时间
	c.Set("k1", "v2")
	time.Sleep(50 * time.Millisecond)

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestTTLCache_Invalidate(t *testing.T) {
	c := NewTTLCache[string](time.Minute)

	c.Set("k1", "v1")
	c.Set("k2", "v2")

	c.Invalidate("k1")

	_, ok := c.Get("k1")
	assert.False(t, ok)

	_, ok = c.Get("k2")
	assert.True(t, ok)
}

func TestTTLCache_Clear(t *testing.T) {
	c := NewTTLCache[string](time.Minute)

	c.Set("k1", "v1")
	c.Set("k2", "v2")
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestTTLCache_DefaultTTL(t *testing.T) {
	c := NewTTLCache[string](0)
	assert.Equal(t, DefaultTTL, c.TTL())

	c = NewTTLCache[string](-time.Second)
	assert.Equal(t, DefaultTTL, c.TTL())
}

func TestTTLCache_StructValues(t *testing.T) {
	type toolset struct {
		Names []string
	}

	c := NewTTLCache[*toolset](time.Minute)
	c.Set("tools", &toolset{Names: []string{"a", "b"}})

	got, ok := c.Get("tools")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got.Names)
}

func TestTTLCache_ConcurrentOperations(t *testing.T) {
	c := NewTTLCache[string](time.Minute)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := fmt.Sprintf("concurrent-%d", id)
			c.Set(key, "value")
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	for i := 0; i < 10; i++ {
		go func(id int) {
			key := fmt.Sprintf("concurrent-%d", id)
			value, ok := c.Get(key)
			assert.True(t, ok)
			assert.Equal(t, "value", value)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
