package auth

import (
	"context"
)

// TokenSource 访问令牌来源。
//
// 空令牌表示匿名访问，传输层不附加 Authorization 头。
type TokenSource interface {
	// Token 返回当前可用的访问令牌，必要时触发获取
	Token(ctx context.Context) (string, error)

	// Refresh 强制获取新令牌并返回。
	// 无法刷新的来源（静态令牌、匿名）返回原值，由传输层
	// 在后续请求仍被拒绝时映射为认证过期。
	Refresh(ctx context.Context) (string, error)
}

// StaticSource 固定令牌来源
type StaticSource struct {
	token string
}

// NewStaticSource 创建固定令牌来源
func NewStaticSource(token string) *StaticSource {
	return &StaticSource{token: token}
}

// Token 实现 TokenSource.Token
func (s *StaticSource) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

// Refresh 实现 TokenSource.Refresh，静态令牌无法更新
func (s *StaticSource) Refresh(ctx context.Context) (string, error) {
	return s.token, nil
}

// AnonymousSource 匿名访问来源
type AnonymousSource struct{}

// NewAnonymousSource 创建匿名访问来源
func NewAnonymousSource() *AnonymousSource {
	return &AnonymousSource{}
}

// Token 实现 TokenSource.Token
func (s *AnonymousSource) Token(ctx context.Context) (string, error) {
	return "", nil
}

// Refresh 实现 TokenSource.Refresh
func (s *AnonymousSource) Refresh(ctx context.Context) (string, error) {
	return "", nil
}
