// MockStore 的文档缓存测试模拟实现。
//
// 支持内存存取、操作记录与错误注入场景。
package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// --- MockStore 结构 ---

// MockStore 是 JSON 字节缓存的模拟实现
type MockStore struct {
	mu sync.Mutex

	// 存储内容
	entries map[string]json.RawMessage

	// 错误注入
	getErr  error
	setErr  error
	pingErr error

	// 调用记录
	gets    []string
	sets    []string
	deletes []string
	hitsN   int
	missesN int
	closed  bool
}

// --- 构造函数和 Builder 方法 ---

// NewMockStore 创建新的 MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		entries: make(map[string]json.RawMessage),
	}
}

// WithEntry 预置缓存条目
func (m *MockStore) WithEntry(key string, value any) *MockStore {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return m
}

// WithGetError 设置 Get 返回的错误
func (m *MockStore) WithGetError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// WithSetError 设置 Set 返回的错误
func (m *MockStore) WithSetError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
	return m
}

// WithPingError 设置 Ping 返回的错误
func (m *MockStore) WithPingError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// --- Store 接口实现 ---

// Get 按键读取，未命中返回 (nil, false, nil)
func (m *MockStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, key)

	if m.getErr != nil {
		return nil, false, m.getErr
	}

	data, ok := m.entries[key]
	if !ok {
		m.missesN++
		return nil, false, nil
	}
	m.hitsN++
	return data, true, nil
}

// Set 序列化并写入缓存值
func (m *MockStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append(m.sets, key)

	if m.setErr != nil {
		return m.setErr
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	m.entries[key] = data
	return nil
}

// Delete 删除指定键
func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	delete(m.entries, key)
	return nil
}

// Clear 清空全部条目
func (m *MockStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]json.RawMessage)
	return nil
}

// Ping 返回注入的错误或 nil
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// Close 标记存储已关闭
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// --- 调用记录查询 ---

// Gets 返回 Get 的键记录
func (m *MockStore) Gets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.gets))
	copy(out, m.gets)
	return out
}

// Sets 返回 Set 的键记录
func (m *MockStore) Sets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sets))
	copy(out, m.sets)
	return out
}

// Hits 返回命中次数
func (m *MockStore) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hitsN
}

// Misses 返回未命中次数
func (m *MockStore) Misses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missesN
}

// Closed 返回存储是否已关闭
func (m *MockStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
