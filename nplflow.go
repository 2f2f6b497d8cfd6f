// Package nplflow provides a top-level convenience entry point for turning
// NPL Engine protocols into invocable tools with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/nplflow"
//
//	b, err := nplflow.New(nil, nil)    // config from environment
//	b, err := nplflow.New(cfg, logger) // explicit config
//
//	ts, err := b.CompileTools(ctx, false)
//	res, err := b.Invoke(ctx, "npl_iou_Iou_create", args)
//
// New wires the full chain once: token source → engine client → document
// cache → package discovery → tool compiler. Subpackages stay usable on
// their own when finer control is needed.
package nplflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/auth"
	"github.com/BaSui01/nplflow/config"
	"github.com/BaSui01/nplflow/discovery"
	"github.com/BaSui01/nplflow/engine"
	"github.com/BaSui01/nplflow/engine/retry"
	"github.com/BaSui01/nplflow/internal/cache"
	"github.com/BaSui01/nplflow/internal/metrics"
	"github.com/BaSui01/nplflow/tools"
	"github.com/BaSui01/nplflow/types"
)

// Aliases for the types callers touch most, so simple integrations never
// need to import subpackages.
type (
	// Config is the full bridge configuration.
	Config = config.Config
	// Tool is a synthesized, invocable wrapper around one remote operation.
	Tool = types.Tool
	// ToolResult is the outcome envelope of a tool invocation.
	ToolResult = types.ToolResult
	// ToolSchema is a tool's JSON-schema declaration.
	ToolSchema = types.ToolSchema
	// Error is the typed error carried by every failure in this module.
	Error = types.Error
	// ErrorCode classifies failures.
	ErrorCode = types.ErrorCode
	// TokenSource supplies and refreshes engine credentials.
	TokenSource = auth.TokenSource
)

// Re-export the error helpers so callers never need to import types/.

// AsError unwraps an error into *Error when possible.
var AsError = types.AsError

// IsErrorCode reports whether an error carries the given code.
var IsErrorCode = types.IsErrorCode

// GetErrorCode extracts the code from an error, or ErrInternalError.
var GetErrorCode = types.GetErrorCode

// DefaultConfig returns the bridge configuration defaults.
var DefaultConfig = config.DefaultConfig

// Option configures the bridge created by [New].
type Option func(*options)

type options struct {
	source    auth.TokenSource
	store     cache.Store
	lister    tools.PackageLister
	collector *metrics.Collector
}

// WithTokenSource overrides the token source derived from the auth config.
func WithTokenSource(source auth.TokenSource) Option {
	return func(o *options) { o.source = source }
}

// WithStore overrides the document cache derived from the cache config.
func WithStore(store cache.Store) Option {
	return func(o *options) { o.store = store }
}

// WithPackageLister overrides package discovery.
func WithPackageLister(lister tools.PackageLister) Option {
	return func(o *options) { o.lister = lister }
}

// WithCollector attaches a metrics collector to the whole chain.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *options) { o.collector = collector }
}

// Bridge holds the assembled chain from authentication to tool compilation.
type Bridge struct {
	cfg      *config.Config
	logger   *zap.Logger
	source   auth.TokenSource
	store    cache.Store
	client   *engine.Client
	compiler *tools.Compiler
}

// New assembles a bridge from the given configuration. A nil cfg loads
// configuration from the environment; a nil logger discards logs. Empty
// fields are normalized the way the loader normalizes them (auth method
// inference, Keycloak URL derivation) before validation.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Bridge, error) {
	if cfg == nil {
		loaded, err := config.NewLoader().Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	source := o.source
	if source == nil {
		source = newTokenSource(cfg, logger)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = newCacheStore(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init cache store: %w", err)
		}
	}

	client := newEngineClient(cfg, source, o.collector, logger)

	lister := o.lister
	if lister == nil {
		lister = newPackageLister(cfg, o.collector, logger)
	}

	compiler := tools.NewCompiler(
		tools.CompilerConfig{CacheTTL: cfg.Cache.TTL},
		client, lister, store, o.collector, logger,
	)

	return &Bridge{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		store:    store,
		client:   client,
		compiler: compiler,
	}, nil
}

// CompileTools compiles the configured packages into invocable tools.
// With no packages configured, discovery supplies the package list.
// forceRefresh bypasses both cache levels.
func (b *Bridge) CompileTools(ctx context.Context, forceRefresh bool) ([]*types.Tool, error) {
	return b.compiler.CompileTools(ctx, b.cfg.Discovery.Packages, forceRefresh)
}

// Invoke compiles if needed, then runs the named tool. The returned error
// covers compilation failures and unknown names; invocation failures come
// back inside the result envelope.
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]any) (*types.ToolResult, error) {
	compiled, err := b.CompileTools(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, tool := range compiled {
		if tool.Name == name {
			return tool.Invoke(ctx, args), nil
		}
	}
	return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown tool %q", name))
}

// Health probes the engine's health endpoint.
func (b *Bridge) Health(ctx context.Context) error {
	return b.client.Health(ctx)
}

// Close releases backend resources held by the chain.
func (b *Bridge) Close() error {
	return b.store.Close()
}

// Client exposes the underlying engine client.
func (b *Bridge) Client() *engine.Client {
	return b.client
}

// Compiler exposes the underlying tool compiler.
func (b *Bridge) Compiler() *tools.Compiler {
	return b.compiler
}

// Source exposes the underlying token source.
func (b *Bridge) Source() auth.TokenSource {
	return b.source
}

// Store exposes the underlying document cache.
func (b *Bridge) Store() cache.Store {
	return b.store
}

// Config returns the resolved configuration.
func (b *Bridge) Config() *config.Config {
	return b.cfg
}

// newTokenSource 根据认证配置选择令牌来源
func newTokenSource(cfg *config.Config, logger *zap.Logger) auth.TokenSource {
	switch cfg.Auth.Method {
	case config.AuthToken:
		return auth.NewStaticSource(cfg.Auth.Token)
	case config.AuthKeycloak:
		return auth.NewKeycloakSource(auth.Config{
			TokenURL:      cfg.Auth.TokenURL(),
			ClientID:      cfg.Auth.ClientID,
			Username:      cfg.Auth.Username,
			Password:      cfg.Auth.Password,
			RefreshMargin: cfg.Auth.RefreshMargin,
		}, logger)
	default:
		return auth.NewAnonymousSource()
	}
}

// newCacheStore 根据缓存配置选择 OpenAPI 文档缓存后端
func newCacheStore(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		return cache.NewRedisStore(cache.Config{
			Addr:         cfg.Cache.Redis.Addr,
			Password:     cfg.Cache.Redis.Password,
			DB:           cfg.Cache.Redis.DB,
			PoolSize:     cfg.Cache.Redis.PoolSize,
			MinIdleConns: cfg.Cache.Redis.MinIdleConns,
			DefaultTTL:   cfg.Cache.TTL,
		}, logger)
	}
	return cache.NewMemoryStore(cfg.Cache.TTL), nil
}

// newEngineClient 构建带重试策略的引擎客户端
func newEngineClient(cfg *config.Config, source auth.TokenSource, collector *metrics.Collector, logger *zap.Logger) *engine.Client {
	return engine.NewClient(engine.Config{
		BaseURL: cfg.Engine.BaseURL,
		Timeout: cfg.Engine.Timeout,
		Retry: &retry.RetryPolicy{
			MaxRetries:   cfg.Engine.MaxRetries,
			InitialDelay: cfg.Engine.InitialDelay,
			MaxDelay:     cfg.Engine.MaxDelay,
			Multiplier:   cfg.Engine.Multiplier,
			Jitter:       true,
		},
	}, source, collector, logger)
}

// staticPackages 固定包列表
type staticPackages []string

// Packages 实现 tools.PackageLister
func (s staticPackages) Packages(ctx context.Context) ([]string, error) {
	return s, nil
}

// newPackageLister 选择包来源：显式配置的包列表优先，
// 否则走三段式包发现
func newPackageLister(cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) tools.PackageLister {
	if len(cfg.Discovery.Packages) > 0 {
		return staticPackages(cfg.Discovery.Packages)
	}

	discoveryCfg := discovery.Config{
		EngineURL: cfg.Engine.BaseURL,
		Timeout:   cfg.Discovery.Timeout,
	}
	// 配置了非默认清单文件时只查找该路径，否则沿用内置候选路径
	if cfg.Discovery.FilePath != "" && cfg.Discovery.FilePath != config.DefaultDiscoveryConfig().FilePath {
		discoveryCfg.ConfigPaths = []string{cfg.Discovery.FilePath}
	}
	return discovery.New(discoveryCfg, collector, logger)
}
