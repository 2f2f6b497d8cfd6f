// MockTokenSource 的令牌来源测试模拟实现。
//
// 支持固定令牌、刷新令牌与错误注入场景。
package mocks

import (
	"context"
	"sync"
)

// --- MockTokenSource 结构 ---

// MockTokenSource 是令牌来源的模拟实现
type MockTokenSource struct {
	mu sync.Mutex

	// 令牌配置
	token          string
	refreshedToken string
	tokenErr       error
	refreshErr     error

	// 自定义行为
	refreshFunc func(ctx context.Context) (string, error)

	// 调用记录
	tokenCalls   int
	refreshCalls int
}

// --- 构造函数和 Builder 方法 ---

// NewMockTokenSource 创建新的 MockTokenSource
func NewMockTokenSource() *MockTokenSource {
	return &MockTokenSource{
		token:          "mock-token",
		refreshedToken: "mock-token-refreshed",
	}
}

// WithToken 设置 Token 返回的令牌
func (m *MockTokenSource) WithToken(token string) *MockTokenSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return m
}

// WithRefreshedToken 设置 Refresh 返回的新令牌
func (m *MockTokenSource) WithRefreshedToken(token string) *MockTokenSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshedToken = token
	return m
}

// WithTokenError 设置 Token 返回的错误
func (m *MockTokenSource) WithTokenError(err error) *MockTokenSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenErr = err
	return m
}

// WithRefreshError 设置 Refresh 返回的错误
func (m *MockTokenSource) WithRefreshError(err error) *MockTokenSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshErr = err
	return m
}

// WithRefreshFunc 设置自定义 Refresh 函数
func (m *MockTokenSource) WithRefreshFunc(fn func(ctx context.Context) (string, error)) *MockTokenSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshFunc = fn
	return m
}

// --- TokenSource 接口实现 ---

// Token 返回配置的令牌
func (m *MockTokenSource) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCalls++

	if m.tokenErr != nil {
		return "", m.tokenErr
	}
	return m.token, nil
}

// Refresh 返回刷新后的令牌，并让后续 Token 调用返回新令牌
func (m *MockTokenSource) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.refreshCalls++
	fn := m.refreshFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refreshErr != nil {
		return "", m.refreshErr
	}
	m.token = m.refreshedToken
	return m.refreshedToken, nil
}

// --- 调用记录查询 ---

// TokenCalls 返回 Token 的调用次数
func (m *MockTokenSource) TokenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenCalls
}

// RefreshCalls 返回 Refresh 的调用次数
func (m *MockTokenSource) RefreshCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}
