// =============================================================================
// 🚀 NPLFlow 弹性引擎客户端
// =============================================================================
// NPL Engine 所有 HTTP 调用的唯一入口：
// - 每次尝试自动注入 Bearer 令牌（匿名模式下省略 Authorization 头）
// - 401 触发令牌刷新并立即重试，刷新在并发调用间合并
// - 429/5xx/网络故障按指数退避 + 随机抖动重试
// - 终态失败映射为结构化错误分类并记录指标
// =============================================================================

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/auth"
	"github.com/BaSui01/nplflow/engine/retry"
	"github.com/BaSui01/nplflow/internal/metrics"
	"github.com/BaSui01/nplflow/types"
)

// maxResponseBody 响应体大小上限
const maxResponseBody = 16 << 20

// Config 引擎客户端配置
type Config struct {
	// NPL Engine 基础地址
	BaseURL string

	// 单次 HTTP 请求超时
	Timeout time.Duration

	// 重试策略，nil 时使用默认策略
	Retry *retry.RetryPolicy
}

// DefaultConfig 返回默认客户端配置
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:12000",
		Timeout: 30 * time.Second,
	}
}

// Request 描述一次引擎调用
type Request struct {
	Method string
	Path   string // 相对 BaseURL 的路径
	Query  url.Values
	Header http.Header
	Body   any // 非 nil 时序列化为 JSON
}

// Response 引擎响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client NPL Engine 弹性 HTTP 客户端。
// 并发安全，可被多个调用方共享同一实例。
type Client struct {
	config     Config
	policy     *retry.RetryPolicy
	httpClient *http.Client
	collector  *metrics.Collector
	logger     *zap.Logger

	// 令牌刷新合并：refreshGen 在每次实际刷新后递增，
	// 在持锁前观察到代际变化的调用直接复用新令牌。
	// source 可被 SetAuthToken 替换，读写均在锁内
	refreshMu  sync.Mutex
	refreshGen uint64
	source     auth.TokenSource
}

// NewClient 创建引擎客户端。
// source 为 nil 时使用匿名令牌来源，collector 为 nil 时不上报指标。
func NewClient(config Config, source auth.TokenSource, collector *metrics.Collector, logger *zap.Logger) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	policy := config.Retry
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	if source == nil {
		source = auth.NewAnonymousSource()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:     config,
		policy:     policy,
		httpClient: &http.Client{Timeout: config.Timeout},
		source:     source,
		collector:  collector,
		logger:     logger.With(zap.String("component", "engine")),
	}
}

// BaseURL 返回引擎基础地址
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// SetAuthToken 用预置令牌替换当前令牌来源，等价于切换到静态令牌。
// 代际随之递增，正在等待刷新的并发调用会直接复用新令牌。
func (c *Client) SetAuthToken(token string) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	c.source = auth.NewStaticSource(token)
	c.refreshGen++
}

// attemptOutcome 单次 HTTP 尝试的结果
type attemptOutcome struct {
	status int
	header http.Header
	body   []byte
	err    error
}

// Do 执行一次引擎调用，按策略重试后返回成功响应或终态错误。
//
// 单次逻辑调用的状态机：
//
//	ATTEMPT(n) → SUCCESS
//	           → 401 → 刷新令牌（并发合并）→ ATTEMPT(n+1)，不退避
//	           → 429/5xx/网络故障 → 退避 → ATTEMPT(n+1)
//	           → 其他非 2xx → FAIL（不消耗剩余重试）
//
// 尝试总数固定为 MaxRetries+1，令牌刷新与普通重试共享同一预算。
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.buildURL(req.Path, req.Query)

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "cannot marshal request body").
				WithCause(err).
				WithURL(fullURL)
		}
	}

	requestID := uuid.NewString()
	logger := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("url", fullURL),
	)

	maxAttempts := c.policy.MaxRetries + 1
	var last attemptOutcome
	attempts := 0

loop:
	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts = attempt + 1

		source, gen := c.snapshot()
		token, err := source.Token(ctx)
		if err != nil {
			logger.Error("获取访问令牌失败", zap.Error(err))
			c.recordFailure(types.GetErrorCode(err), err.Error(), fullURL, 0, attempts)
			return nil, err
		}

		last = c.attempt(ctx, req.Method, fullURL, payload, req.Header, token, requestID)

		if last.err == nil && last.status >= 200 && last.status < 300 {
			if attempt > 0 {
				logger.Info("重试后请求成功", zap.Int("attempts", attempts))
			}
			return &Response{StatusCode: last.status, Header: last.header, Body: last.body}, nil
		}

		retriesLeft := attempt < maxAttempts-1

		switch {
		case last.err != nil:
			if !retriesLeft {
				break loop
			}
			if err := c.sleepBackoff(ctx, attempt, "network", logger, last); err != nil {
				return nil, c.canceledError(err, fullURL, attempts)
			}

		case last.status == http.StatusUnauthorized:
			if !retriesLeft {
				break loop
			}
			if _, err := c.refreshToken(ctx, gen); err != nil {
				logger.Error("令牌刷新失败", zap.Error(err))
				c.recordFailure(types.GetErrorCode(err), err.Error(), fullURL, last.status, attempts)
				return nil, err
			}
			if c.collector != nil {
				c.collector.RecordRetry("auth_refresh")
			}
			logger.Debug("令牌已刷新，立即重试")

		case last.status == http.StatusTooManyRequests || last.status >= 500:
			if !retriesLeft {
				break loop
			}
			reason := "server_error"
			if last.status == http.StatusTooManyRequests {
				reason = "rate_limited"
			}
			if err := c.sleepBackoff(ctx, attempt, reason, logger, last); err != nil {
				return nil, c.canceledError(err, fullURL, attempts)
			}

		default:
			// 4xx 等不可重试状态立即终止
			break loop
		}
	}

	return nil, c.terminalError(logger, fullURL, last, attempts)
}

// attempt 执行单次 HTTP 请求并上报该次尝试的指标
func (c *Client) attempt(ctx context.Context, method, fullURL string, payload []byte, extra http.Header, token, requestID string) attemptOutcome {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return attemptOutcome{err: err}
	}

	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range extra {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		if c.collector != nil {
			c.collector.RecordEngineRequest(method, 0, duration)
		}
		return attemptOutcome{err: err}
	}
	defer resp.Body.Close()

	if c.collector != nil {
		c.collector.RecordEngineRequest(method, resp.StatusCode, duration)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return attemptOutcome{status: resp.StatusCode, err: err}
	}

	return attemptOutcome{status: resp.StatusCode, header: resp.Header, body: body}
}

// sleepBackoff 按策略退避，等待期间响应 context 取消
func (c *Client) sleepBackoff(ctx context.Context, attempt int, reason string, logger *zap.Logger, out attemptOutcome) error {
	delay := c.policy.Delay(attempt)

	if c.collector != nil {
		c.collector.RecordRetry(reason)
	}
	logger.Warn("请求失败，准备重试",
		zap.Int("attempt", attempt+1),
		zap.String("reason", reason),
		zap.Int("status", out.status),
		zap.Duration("delay", delay),
		zap.Error(out.err),
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// snapshot 返回当前令牌来源与刷新代际
func (c *Client) snapshot() (auth.TokenSource, uint64) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.source, c.refreshGen
}

// refreshToken 刷新令牌。observedGen 是调用方发起请求前观察到的
// 代际，若持锁时代际已变化，说明其他调用已完成刷新，直接复用。
func (c *Client) refreshToken(ctx context.Context, observedGen uint64) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if c.refreshGen != observedGen {
		if c.collector != nil {
			c.collector.RecordTokenRefresh("coalesced")
		}
		c.logger.Debug("复用并发调用刷新的令牌")
		return c.source.Token(ctx)
	}

	token, err := c.source.Refresh(ctx)
	if err != nil {
		if c.collector != nil {
			c.collector.RecordTokenRefresh("failure")
		}
		return "", err
	}

	c.refreshGen++
	if c.collector != nil {
		c.collector.RecordTokenRefresh("success")
	}
	return token, nil
}

// canceledError 退避等待期间被取消
func (c *Client) canceledError(cause error, fullURL string, attempts int) error {
	return types.NewError(types.ErrTransport, "request canceled during retry backoff").
		WithCause(cause).
		WithURL(fullURL).
		WithAttempt(attempts)
}

// terminalError 将最后一次尝试的结果映射为结构化终态错误
func (c *Client) terminalError(logger *zap.Logger, fullURL string, out attemptOutcome, attempts int) error {
	var e *types.Error
	switch {
	case out.err != nil:
		e = types.NewError(types.ErrTransport,
			fmt.Sprintf("engine request failed after %d attempts", attempts)).
			WithCause(out.err).
			WithRetryable(true)
	case out.status == http.StatusUnauthorized:
		e = types.NewError(types.ErrAuthExpired, "authentication failed: token may be expired").
			WithHTTPStatus(out.status).
			WithResponseBody(string(out.body))
	case out.status == http.StatusServiceUnavailable:
		e = types.NewError(types.ErrServiceUnavailable, "engine service unavailable").
			WithHTTPStatus(out.status).
			WithResponseBody(string(out.body)).
			WithRetryable(true)
	default:
		e = types.NewError(types.ErrClient,
			fmt.Sprintf("engine returned status %d", out.status)).
			WithHTTPStatus(out.status).
			WithResponseBody(string(out.body)).
			WithRetryable(out.status == http.StatusTooManyRequests || out.status >= 500)
	}
	e.WithURL(fullURL).WithAttempt(attempts)

	logger.Error("引擎请求最终失败",
		zap.String("code", string(e.Code)),
		zap.Int("status", out.status),
		zap.Int("attempts", attempts),
		zap.Error(out.err),
	)
	c.recordFailure(e.Code, e.Message, fullURL, out.status, attempts)
	return e
}

// recordFailure 追加终态失败的错误记录
func (c *Client) recordFailure(code types.ErrorCode, message, fullURL string, status, attempts int) {
	if c.collector == nil {
		return
	}
	if code == "" {
		code = types.ErrInternalError
	}

	errCtx := map[string]string{
		"url":     fullURL,
		"attempt": strconv.Itoa(attempts),
	}
	if status > 0 {
		errCtx["status"] = strconv.Itoa(status)
	}
	c.collector.RecordError(string(code), message, errCtx)
}

// buildURL 拼接完整请求地址
func (c *Client) buildURL(path string, query url.Values) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	full := base + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}
