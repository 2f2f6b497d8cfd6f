package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/nplflow"
	"github.com/BaSui01/nplflow/config"
	"github.com/BaSui01/nplflow/internal/metrics"
	"github.com/BaSui01/nplflow/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 NPLFlow 的桥接服务器：对外暴露检查 API 与 Prometheus
// 指标，对内装配 令牌来源 → 引擎客户端 → 文档缓存 → 包发现 → 工具编译器
// 的完整链路。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 指标命名空间。Prometheus 注册是进程级的，测试里通过覆盖
	// 命名空间避免重复注册
	namespace string

	// 服务器管理器
	apiManager     *server.Manager
	metricsManager *server.Manager

	// 编译与调用链路
	bridge *nplflow.Bridge

	// Handlers
	healthHandler *HealthHandler
	toolsHandler  *ToolsHandler

	// 指标收集器
	collector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		namespace: "nplflow",
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.collector = metrics.NewCollector(s.namespace, s.logger)

	// 2. 装配编译链路
	b, err := nplflow.New(s.cfg, s.logger, nplflow.WithCollector(s.collector))
	if err != nil {
		return fmt.Errorf("failed to init bridge: %w", err)
	}
	s.bridge = b

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 API 服务器
	if err := s.startAPIServer(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("api_addr", s.apiManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.String("engine_url", s.cfg.Engine.BaseURL),
		zap.String("auth_method", s.cfg.Auth.Method),
		zap.String("cache_backend", s.cfg.Cache.Backend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = NewHealthHandler(s.collector, s.logger)

	// 就绪检查依赖引擎连通性与缓存后端
	s.healthHandler.RegisterCheck(NewPingCheck("engine", s.bridge.Health))
	s.healthHandler.RegisterCheck(NewPingCheck("cache", s.bridge.Store().Ping))

	s.toolsHandler = NewToolsHandler(s.bridge.Compiler(), s.cfg.Discovery.Packages, s.logger)
}

// =============================================================================
// 🌐 API 服务器
// =============================================================================

// startAPIServer 启动检查 API 服务器
func (s *Server) startAPIServer() error {
	mux := http.NewServeMux()

	// 健康检查与版本端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 工具检查端点
	mux.HandleFunc("/tools", s.toolsHandler.HandleList)
	mux.HandleFunc("/tools/", s.toolsHandler.HandleGet)

	// 构建中间件链
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.apiManager = server.NewManager("api", handler, serverConfig, s.logger)
	return s.apiManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager("metrics", mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭。
// 返回导致退出的服务器错误，正常信号退出时返回 nil。
func (s *Server) WaitForShutdown() error {
	var err error
	if s.apiManager != nil {
		err = s.apiManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
	return err
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 2. 关闭 API 服务器
	if s.apiManager != nil {
		if err := s.apiManager.Shutdown(ctx); err != nil {
			s.logger.Error("API server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 释放缓存后端连接
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			s.logger.Error("Cache store close error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

