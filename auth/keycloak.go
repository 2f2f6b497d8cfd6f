package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/engine/retry"
	"github.com/BaSui01/nplflow/types"
)

// maxTokenResponseSize 令牌响应体大小上限
const maxTokenResponseSize = 1 << 20

// errTransient 标记可重试的令牌端点故障（网络错误与 5xx）
var errTransient = errors.New("keycloak temporarily unavailable")

// Config Keycloak 令牌来源配置
type Config struct {
	// OpenID Connect 令牌端点
	TokenURL string

	// OAuth2 客户端 ID
	ClientID string

	// 用户名（password grant）
	Username string

	// 密码（password grant）
	Password string

	// 请求的 scope
	Scope string

	// 令牌过期前的提前刷新余量
	RefreshMargin time.Duration

	// 令牌端点请求超时
	Timeout time.Duration

	// 令牌端点重试策略，nil 时使用默认策略
	Retry *retry.RetryPolicy
}

// DefaultConfig 返回默认 Keycloak 配置
func DefaultConfig() Config {
	return Config{
		ClientID:      "npl-client",
		Scope:         "openid profile email",
		RefreshMargin: 30 * time.Second,
		Timeout:       10 * time.Second,
	}
}

// tokenResponse Keycloak 令牌端点响应
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// KeycloakSource 基于 Keycloak OpenID Connect 的令牌来源。
//
// 并发安全：所有令牌状态由互斥锁保护。
type KeycloakSource struct {
	config     Config
	httpClient *http.Client
	retryer    retry.Retryer
	logger     *zap.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewKeycloakSource 创建 Keycloak 令牌来源
func NewKeycloakSource(config Config, logger *zap.Logger) *KeycloakSource {
	def := DefaultConfig()
	if config.ClientID == "" {
		config.ClientID = def.ClientID
	}
	if config.Scope == "" {
		config.Scope = def.Scope
	}
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = def.RefreshMargin
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	policy := config.Retry
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	// 凭据错误不重试，仅网络错误与 5xx
	policy.RetryableErrors = []error{errTransient}

	return &KeycloakSource{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retryer:    retry.NewBackoffRetryer(policy, logger),
		logger:     logger.With(zap.String("component", "auth")),
	}
}

// Token 实现 TokenSource.Token。
// 缓存的令牌在过期余量内视为失效并触发刷新。
func (s *KeycloakSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && !s.expiredLocked() {
		return s.accessToken, nil
	}

	return s.obtainLocked(ctx)
}

// Refresh 实现 TokenSource.Refresh，无条件获取新令牌
func (s *KeycloakSource) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.obtainLocked(ctx)
}

// expiredLocked 判断缓存令牌是否进入过期余量。
// 过期时间未知（expiresAt 为零值）时依赖 401 触发刷新。
func (s *KeycloakSource) expiredLocked() bool {
	if s.expiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(s.expiresAt.Add(-s.config.RefreshMargin))
}

// obtainLocked 获取新令牌：优先 refresh grant，失败时回退到
// password grant 并丢弃陈旧的 refresh token。
func (s *KeycloakSource) obtainLocked(ctx context.Context) (string, error) {
	if s.refreshToken != "" {
		tok, err := s.grant(ctx, s.refreshFormLocked())
		if err == nil {
			s.storeLocked(tok)
			return s.accessToken, nil
		}
		s.logger.Warn("refresh token rejected, falling back to full authentication",
			zap.Error(err))
		s.refreshToken = ""
	}

	tok, err := s.grant(ctx, s.passwordForm())
	if err != nil {
		return "", err
	}
	s.storeLocked(tok)

	s.logger.Debug("authenticated with keycloak",
		zap.String("token_url", s.config.TokenURL),
		zap.Time("expires_at", s.expiresAt),
	)
	return s.accessToken, nil
}

// grant 执行令牌端点调用，瞬态故障按策略重试
func (s *KeycloakSource) grant(ctx context.Context, form url.Values) (*tokenResponse, error) {
	tok, err := retry.DoWithResultTyped[*tokenResponse](s.retryer, ctx, func() (*tokenResponse, error) {
		return s.requestToken(ctx, form)
	})
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.NewError(types.ErrAuthentication, "keycloak token request failed").
			WithCause(err).
			WithURL(s.config.TokenURL)
	}
	return tok, nil
}

// requestToken 单次令牌端点请求
func (s *KeycloakSource) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewError(types.ErrAuthentication, "invalid token endpoint").
			WithCause(err).
			WithURL(s.config.TokenURL)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if host := hostOverride(s.config.TokenURL); host != "" {
		req.Host = host
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", errTransient, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: token endpoint returned %d", errTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, types.NewError(types.ErrAuthentication, "keycloak rejected credentials").
			WithHTTPStatus(resp.StatusCode).
			WithResponseBody(string(body)).
			WithURL(s.config.TokenURL)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, types.NewError(types.ErrAuthentication, "malformed token response").
			WithCause(err).
			WithURL(s.config.TokenURL)
	}
	if tok.AccessToken == "" {
		return nil, types.NewError(types.ErrAuthentication, "token response missing access_token").
			WithURL(s.config.TokenURL)
	}

	return &tok, nil
}

// storeLocked 更新令牌状态
func (s *KeycloakSource) storeLocked(tok *tokenResponse) {
	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	s.expiresAt = tokenExpiry(tok, time.Now())
}

// passwordForm password grant 表单
func (s *KeycloakSource) passwordForm() url.Values {
	return url.Values{
		"grant_type": {"password"},
		"client_id":  {s.config.ClientID},
		"username":   {s.config.Username},
		"password":   {s.config.Password},
		"scope":      {s.config.Scope},
	}
}

// refreshFormLocked refresh grant 表单
func (s *KeycloakSource) refreshFormLocked() url.Values {
	return url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {s.config.ClientID},
		"refresh_token": {s.refreshToken},
	}
}

// tokenExpiry 解析令牌过期时间。
// 优先使用 expires_in，缺失时回退到 JWT exp 声明（不校验签名），
// 两者都不可用时返回零值。
func tokenExpiry(tok *tokenResponse, now time.Time) time.Time {
	if tok.ExpiresIn > 0 {
		return now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// hostOverride 本地 Keycloak 的 Host 头改写。
// 容器内的 Keycloak 以 keycloak:11000 作为 issuer 签发令牌，
// 宿主机经 localhost:11000 访问时需改写 Host 头令牌才能通过校验。
func hostOverride(tokenURL string) string {
	if strings.Contains(tokenURL, "localhost:11000") {
		return "keycloak:11000"
	}
	return ""
}
