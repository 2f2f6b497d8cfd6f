package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/internal/metrics"
	"github.com/BaSui01/nplflow/tools"
	"github.com/BaSui01/nplflow/types"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 编码失败时响应头已写出，只能放弃
		return
	}
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Bool("retryable", err.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	err := types.NewError(code, message).WithHTTPStatus(status)
	WriteError(w, err, logger)
}

// mapErrorCodeToHTTPStatus 错误码到 HTTP 状态码映射。
// 引擎侧故障统一映射为网关语义的 502。
func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrAuthentication, types.ErrAuthExpired:
		return http.StatusUnauthorized
	case types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrTransport, types.ErrClient,
		types.ErrToolDiscovery, types.ErrPackageDiscovery, types.ErrSchemaCollision:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	collector *metrics.Collector
	logger    *zap.Logger
	checks    []HealthCheck
	mu        sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Snapshot  *metrics.Snapshot      `json:"snapshot,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(collector *metrics.Collector, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		collector: collector,
		logger:    logger,
		checks:    make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth 处理 /health 请求：进程活性加运行状态快照
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	}
	if h.collector != nil {
		snap := h.collector.Snapshot()
		status.Snapshot = &snap
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleReady 处理 /ready 请求：对注册的依赖逐个探测
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{
			Status:  "pass",
			Latency: latency.String(),
		}

		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false

			h.logger.Warn("readiness check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// PingCheck 基于探测函数的就绪检查
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建就绪检查。ping 在每次 /ready 请求时被调用。
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{
		name: name,
		ping: ping,
	}
}

func (c *PingCheck) Name() string {
	return c.name
}

func (c *PingCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

// =============================================================================
// 🔧 工具检查 Handler
// =============================================================================

// ToolsHandler 工具检查处理器，暴露当前编译出的工具集。
// 请求命中工具集缓存时不触发引擎访问；带 refresh=true 强制重编译。
type ToolsHandler struct {
	compiler *tools.Compiler
	packages []string
	logger   *zap.Logger
}

// NewToolsHandler 创建工具检查处理器。
// packages 为显式配置的包列表，为空时每次编译走包发现。
func NewToolsHandler(compiler *tools.Compiler, packages []string, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{
		compiler: compiler,
		packages: packages,
		logger:   logger,
	}
}

// compile 编译当前工具集
func (h *ToolsHandler) compile(r *http.Request) ([]*types.Tool, error) {
	refresh := r.URL.Query().Get("refresh") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	return h.compiler.CompileTools(ctx, h.packages, refresh)
}

// HandleList 处理 GET /tools 请求：返回全部工具声明
func (h *ToolsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	compiled, err := h.compile(r)
	if err != nil {
		h.writeCompileError(w, err)
		return
	}

	declarations := make([]*types.ToolSchema, 0, len(compiled))
	for _, tool := range compiled {
		decl, declErr := tool.Declaration()
		if declErr != nil {
			h.logger.Warn("skipping tool with invalid declaration",
				zap.String("tool", tool.Name), zap.Error(declErr))
			continue
		}
		declarations = append(declarations, decl)
	}

	WriteSuccess(w, map[string]any{
		"count": len(declarations),
		"tools": declarations,
	})
}

// HandleGet 处理 GET /tools/{name} 请求：返回单个工具的完整定义，
// 含分类、来源包、协议与参数描述符
func (h *ToolsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/tools/")
	if name == "" || strings.Contains(name, "/") {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "tool not found", h.logger)
		return
	}

	compiled, err := h.compile(r)
	if err != nil {
		h.writeCompileError(w, err)
		return
	}

	for _, tool := range compiled {
		if tool.Name == name {
			WriteSuccess(w, tool)
			return
		}
	}

	WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest,
		fmt.Sprintf("tool %q not found", name), h.logger)
}

// writeCompileError 按错误码回写编译失败响应
func (h *ToolsHandler) writeCompileError(w http.ResponseWriter, err error) {
	if typed, ok := types.AsError(err); ok {
		WriteError(w, typed, h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrInternalError, "tool compilation failed").WithCause(err), h.logger)
}
