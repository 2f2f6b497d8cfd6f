// =============================================================================
// 🏭 NPL 引擎测试桩
// =============================================================================
// 基于 httptest 的可配置引擎桩，支持 OpenAPI 文档、健康检查、
// swagger 索引页、鉴权校验与故障注入。
//
// 使用方法:
//
//	stub := testutil.NewEngineStub(t).
//		WithDocument("iou", fixtures.IouDocument()).
//		WithToken("secret")
//	client := engine.NewClient(engine.Config{BaseURL: stub.URL()}, ...)
// =============================================================================
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// StubRequest 记录引擎桩收到的单次请求
type StubRequest struct {
	Method        string
	Path          string
	Authorization string
}

// EngineStub 是 NPL 引擎的 HTTP 测试桩
type EngineStub struct {
	t      *testing.T
	server *httptest.Server

	mu sync.Mutex

	// 按包名注册的 OpenAPI 文档
	documents map[string]string

	// 健康检查响应
	healthStatus int
	healthBody   string

	// 非空时要求请求携带匹配的 Bearer 令牌
	token string

	// 前 N 个请求返回 503，用于重试测试
	failures int

	// 每个请求注入的延迟
	latency time.Duration

	// 按精确路径覆盖的自定义 handler
	handlers map[string]http.HandlerFunc

	// 请求记录
	requests []StubRequest
	hits     map[string]int
}

// NewEngineStub 创建并启动引擎桩，测试结束时自动关闭
func NewEngineStub(t *testing.T) *EngineStub {
	t.Helper()

	s := &EngineStub{
		t:            t,
		documents:    make(map[string]string),
		healthStatus: http.StatusOK,
		healthBody:   `{"status":"UP"}`,
		handlers:     make(map[string]http.HandlerFunc),
		hits:         make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.dispatch))
	t.Cleanup(s.server.Close)
	return s
}

// =============================================================================
// 🔧 Builder 方法
// =============================================================================

// WithDocument 注册包的 OpenAPI 文档
func (s *EngineStub) WithDocument(pkg, document string) *EngineStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[pkg] = document
	return s
}

// WithHealth 设置健康检查响应状态码
func (s *EngineStub) WithHealth(status int) *EngineStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = status
	if status != http.StatusOK {
		s.healthBody = `{"status":"DOWN"}`
	}
	return s
}

// WithToken 要求请求携带指定的 Bearer 令牌，否则返回 401
func (s *EngineStub) WithToken(token string) *EngineStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return s
}

// WithFailures 让接下来的 n 个请求返回 503
func (s *EngineStub) WithFailures(n int) *EngineStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	return s
}

// WithLatency 为每个请求注入固定延迟
func (s *EngineStub) WithLatency(d time.Duration) *EngineStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
	return s
}

// WithHandler 按精确路径注册自定义 handler，优先于内置路由
func (s *EngineStub) WithHandler(path string, h http.HandlerFunc) *EngineStub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[path] = h
	return s
}

// =============================================================================
// 🔍 查询方法
// =============================================================================

// URL 返回桩服务器的基础地址
func (s *EngineStub) URL() string {
	return s.server.URL
}

// Requests 返回已记录请求的副本
func (s *EngineStub) Requests() []StubRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Hits 返回指定路径的请求次数
func (s *EngineStub) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Close 立即关闭桩服务器，用于模拟引擎下线
func (s *EngineStub) Close() {
	s.server.Close()
}

// =============================================================================
// 🌐 请求分发
// =============================================================================

func (s *EngineStub) dispatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, StubRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
	})
	s.hits[r.URL.Path]++

	handler, hasHandler := s.handlers[r.URL.Path]
	latency := s.latency
	failing := s.failures > 0
	if failing {
		s.failures--
	}
	token := s.token
	healthStatus := s.healthStatus
	healthBody := s.healthBody
	s.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	if hasHandler {
		handler(w, r)
		return
	}

	if failing {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"service unavailable"}`)
		return
	}

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_token"}`)
		return
	}

	switch {
	case r.URL.Path == "/actuator/health":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(healthStatus)
		fmt.Fprint(w, healthBody)

	case r.URL.Path == "/swagger-ui/" || r.URL.Path == "/swagger-ui/index.html":
		s.serveSwaggerIndex(w)

	case strings.HasPrefix(r.URL.Path, "/npl/") && strings.HasSuffix(r.URL.Path, "/-/openapi.json"):
		pkg := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/npl/"), "/-/openapi.json")
		s.serveDocument(w, pkg)

	default:
		http.NotFound(w, r)
	}
}

// serveSwaggerIndex 输出列出全部已注册包的 swagger 索引页
func (s *EngineStub) serveSwaggerIndex(w http.ResponseWriter) {
	s.mu.Lock()
	packages := make([]string, 0, len(s.documents))
	for pkg := range s.documents {
		packages = append(packages, pkg)
	}
	s.mu.Unlock()

	var b strings.Builder
	b.WriteString("<html><body><script>\nconst urls = [\n")
	for _, pkg := range packages {
		fmt.Fprintf(&b, "  {url: \"/npl/%s/-/openapi.json\", name: \"%s\"},\n", pkg, pkg)
	}
	b.WriteString("];\n</script></body></html>")

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, b.String())
}

// serveDocument 输出指定包的 OpenAPI 文档
func (s *EngineStub) serveDocument(w http.ResponseWriter, pkg string) {
	s.mu.Lock()
	document, ok := s.documents[pkg]
	s.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":"unknown package %s"}`, pkg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, document)
}
