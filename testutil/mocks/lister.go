// MockLister 的包发现测试模拟实现。
//
// 支持固定包列表与错误注入场景。
package mocks

import (
	"context"
	"sync"
)

// --- MockLister 结构 ---

// MockLister 是包发现的模拟实现
type MockLister struct {
	mu sync.Mutex

	packages []string
	err      error
	calls    int
}

// --- 构造函数和 Builder 方法 ---

// NewMockLister 创建新的 MockLister
func NewMockLister(packages ...string) *MockLister {
	return &MockLister{packages: packages}
}

// WithPackages 设置返回的包列表
func (m *MockLister) WithPackages(packages ...string) *MockLister {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages = packages
	return m
}

// WithError 设置返回的错误
func (m *MockLister) WithError(err error) *MockLister {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// --- PackageLister 接口实现 ---

// Packages 返回配置的包列表
func (m *MockLister) Packages(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, len(m.packages))
	copy(out, m.packages)
	return out, nil
}

// --- 调用记录查询 ---

// Calls 返回 Packages 的调用次数
func (m *MockLister) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
