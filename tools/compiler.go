package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/nplflow/engine"
	"github.com/BaSui01/nplflow/internal/cache"
	"github.com/BaSui01/nplflow/internal/metrics"
	"github.com/BaSui01/nplflow/types"
)

// 路径分类的固定前缀，引擎的协议端点都挂在这个根下
const pathRoot = "/npl"

// 缓存键与指标里的缓存类别
const (
	specCacheKeyPrefix = "openapi_spec_"
	toolsCacheKey      = "npl_tools"

	cacheTypeTools   = "tools"
	cacheTypeOpenAPI = "openapi"
)

// PackageLister 提供可发现的逻辑包名列表。
// 调用方未显式指定包时编译器用它自动发现。
type PackageLister interface {
	Packages(ctx context.Context) ([]string, error)
}

// CompilerConfig 工具编译器配置
type CompilerConfig struct {
	// CacheTTL 工具集与 OpenAPI 文档两级缓存的有效期
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	// Parallelism 并行编译的包数上限
	Parallelism int `yaml:"parallelism" json:"parallelism"`
}

// DefaultCompilerConfig 返回默认编译器配置
func DefaultCompilerConfig() CompilerConfig {
	return CompilerConfig{
		CacheTTL:    cache.DefaultTTL,
		Parallelism: 4,
	}
}

// Compiler 把引擎的 OpenAPI 文档编译为可调用的工具集。
//
// 每个包一份文档，文档中的每个 POST 路径按形态分类为创建或
// 动作操作，经展开与合成产出一个工具。单个包失败记录后跳过，
// 全部包都失败才向调用方报错。
type Compiler struct {
	config    CompilerConfig
	client    *engine.Client
	lister    PackageLister
	toolCache *cache.TTLCache[[]*types.Tool]
	specs     cache.Store
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewCompiler 创建工具编译器。specs 为 nil 时使用进程内存缓存，
// collector 为 nil 时不记录指标。
func NewCompiler(config CompilerConfig, client *engine.Client, lister PackageLister, specs cache.Store, collector *metrics.Collector, logger *zap.Logger) *Compiler {
	if config.CacheTTL <= 0 {
		config.CacheTTL = cache.DefaultTTL
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 4
	}
	if specs == nil {
		specs = cache.NewMemoryStore(config.CacheTTL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{
		config:    config,
		client:    client,
		lister:    lister,
		toolCache: cache.NewTTLCache[[]*types.Tool](config.CacheTTL),
		specs:     specs,
		collector: collector,
		logger:    logger.With(zap.String("component", "tool_compiler")),
	}
}

// CompileTools 编译给定包（为空则自动发现）的全部工具。
//
// forceRefresh 同时绕过工具集缓存和 OpenAPI 文档缓存的读取，
// 编译结果仍会写回两级缓存。
func (c *Compiler) CompileTools(ctx context.Context, packages []string, forceRefresh bool) ([]*types.Tool, error) {
	key := toolsCacheKey
	if len(packages) > 0 {
		key = toolsCacheKey + ":" + strings.Join(packages, ",")
	}

	if !forceRefresh {
		if tools, ok := c.toolCache.Get(key); ok {
			if c.collector != nil {
				c.collector.RecordCacheHit(cacheTypeTools)
			}
			c.logger.Info("使用缓存的工具集", zap.Int("count", len(tools)))
			return tools, nil
		}
		if c.collector != nil {
			c.collector.RecordCacheMiss(cacheTypeTools)
		}
	}

	pkgs := uniqueStrings(packages)
	if len(pkgs) == 0 {
		if c.lister == nil {
			return nil, types.NewError(types.ErrPackageDiscovery,
				"no packages specified and package discovery is not configured")
		}
		discovered, err := c.lister.Packages(ctx)
		if err != nil {
			return nil, err
		}
		pkgs = uniqueStrings(discovered)
	}

	c.logger.Info("开始编译工具",
		zap.Strings("packages", pkgs),
		zap.Bool("force_refresh", forceRefresh))

	var (
		mu       sync.Mutex
		byPkg    = make(map[string][]*types.Tool, len(pkgs))
		failures = make(map[string]error, len(pkgs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Parallelism)
	for _, pkg := range pkgs {
		g.Go(func() error {
			tools, err := c.compilePackage(gctx, pkg, forceRefresh)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// 单个包失败不拖垮整体发现
				c.logger.Error("包工具编译失败，跳过",
					zap.String("package", pkg),
					zap.Error(err))
				failures[pkg] = err
				return nil
			}
			byPkg[pkg] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 按请求顺序装配，保证多次编译产出顺序一致
	var all []*types.Tool
	for _, pkg := range pkgs {
		tools, ok := byPkg[pkg]
		if !ok {
			continue
		}
		all = append(all, tools...)
		if c.collector != nil {
			c.collector.SetToolsCompiled(pkg, len(tools))
		}
		c.logger.Info("包工具编译完成",
			zap.String("package", pkg),
			zap.Int("count", len(tools)))
	}

	if len(all) == 0 {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrTransport, "tool compilation canceled").
				WithCause(ctx.Err())
		}
		return nil, types.NewError(types.ErrToolDiscovery, "no tools generated from any package")
	}

	c.toolCache.Set(key, all)
	c.logger.Info("工具编译完成",
		zap.Int("total", len(all)),
		zap.Int("packages_ok", len(byPkg)),
		zap.Int("packages_failed", len(failures)))
	return all, nil
}

// Invalidate 清空工具集缓存与 OpenAPI 文档缓存
func (c *Compiler) Invalidate(ctx context.Context) error {
	c.toolCache.Clear()
	if err := c.specs.Clear(ctx); err != nil {
		return fmt.Errorf("clear openapi cache: %w", err)
	}
	return nil
}

// compilePackage 编译单个包：取文档、逐路径分类、合成工具。
// 单个操作合成失败（如 schema 冲突）丢弃该操作，不影响同包其他操作。
func (c *Compiler) compilePackage(ctx context.Context, pkg string, forceRefresh bool) ([]*types.Tool, error) {
	doc, err := c.fetchDocument(ctx, pkg, forceRefresh)
	if err != nil {
		return nil, err
	}

	if len(doc.Paths) == 0 {
		c.logger.Warn("包的 OpenAPI 文档没有任何路径", zap.String("package", pkg))
		return nil, nil
	}

	resolver := NewResolver(doc, c.logger)
	synth := NewSynthesizer(NewFlattener(resolver, c.logger), c.logger)

	var tools []*types.Tool
	for _, path := range sortedPathKeys(doc.Paths) {
		item := doc.Paths[path]
		if item == nil || item.Post == nil {
			continue
		}

		protocol, action, ok := classifyPath(path, pkg)
		if !ok {
			continue
		}

		schema := requestBodySchema(resolver, item.Post)

		var (
			tool     *types.Tool
			buildErr error
		)
		if action == "" {
			tool, buildErr = synth.SynthesizeCreate(pkg, protocol, item.Post.Summary, schema,
				c.createImpl(pkg, protocol))
		} else {
			tool, buildErr = synth.SynthesizeAction(pkg, protocol, action, item.Post.Summary, schema,
				c.actionImpl(pkg, protocol, action))
		}
		if buildErr != nil {
			c.logger.Warn("操作工具合成失败，跳过",
				zap.String("package", pkg),
				zap.String("path", path),
				zap.Error(buildErr))
			continue
		}
		tools = append(tools, c.instrument(tool))
	}
	return tools, nil
}

// fetchDocument 经文档缓存获取包的 OpenAPI 文档。
// 缓存层故障降级为直接拉取，只告警不失败。
func (c *Compiler) fetchDocument(ctx context.Context, pkg string, forceRefresh bool) (*openapi3.T, error) {
	key := specCacheKeyPrefix + pkg

	if !forceRefresh {
		doc, found, err := cache.GetTyped[*openapi3.T](c.specs, ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("读取 OpenAPI 缓存失败",
				zap.String("package", pkg),
				zap.Error(err))
		case found:
			if c.collector != nil {
				c.collector.RecordCacheHit(cacheTypeOpenAPI)
			}
			return doc, nil
		default:
			if c.collector != nil {
				c.collector.RecordCacheMiss(cacheTypeOpenAPI)
			}
		}
	}

	doc, err := c.client.FetchOpenAPI(ctx, pkg)
	if err != nil {
		return nil, err
	}

	if err := cache.SetTyped(c.specs, ctx, key, doc, c.config.CacheTTL); err != nil {
		c.logger.Warn("写入 OpenAPI 缓存失败",
			zap.String("package", pkg),
			zap.Error(err))
	}
	return doc, nil
}

func (c *Compiler) createImpl(pkg, protocol string) CreateImpl {
	return func(ctx context.Context, parties, data map[string]any) (map[string]any, error) {
		return c.client.CreateInstance(ctx, pkg, protocol, parties, data)
	}
}

func (c *Compiler) actionImpl(pkg, protocol, action string) ActionImpl {
	return func(ctx context.Context, instanceID, party string, params map[string]any) (any, error) {
		return c.client.InvokeAction(ctx, pkg, protocol, instanceID, action, party, params)
	}
}

// instrument 包装工具入口，记录每次调用的结果与耗时
func (c *Compiler) instrument(tool *types.Tool) *types.Tool {
	if c.collector == nil {
		return tool
	}
	inner := tool.Handler
	name := tool.Name
	tool.Handler = func(ctx context.Context, args map[string]any) (map[string]any, error) {
		start := time.Now()
		result, err := inner(ctx, args)
		status := "success"
		if err != nil {
			status = "error"
		}
		c.collector.RecordToolInvocation(name, status, time.Since(start))
		return result, err
	}
	return tool
}

// requestBodySchema 提取 POST 操作的 application/json 请求体 schema。
// schema 级 $ref 经解析器解开，没有请求体的操作返回 nil。
func requestBodySchema(resolver *Resolver, op *openapi3.Operation) *openapi3.Schema {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	media := op.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil {
		return nil
	}
	return resolver.Deref(media.Schema)
}

// classifyPath 按路径形态区分操作类型：
//
//	/npl/{pkg}/{Protocol}/              → 创建（action 为空）
//	/npl/{pkg}/{Protocol}/{id}/{action} → 动作
//
// 空段和 "-"（openapi.json 等元端点所在段）忽略；
// 其他形态不是可编译的操作。
func classifyPath(path, pkg string) (protocol, action string, ok bool) {
	rest, found := strings.CutPrefix(path, pathRoot+"/"+pkg+"/")
	if !found {
		return "", "", false
	}

	var parts []string
	for _, part := range strings.Split(rest, "/") {
		if part == "" || part == "-" {
			continue
		}
		parts = append(parts, part)
	}

	switch {
	case len(parts) == 1:
		return parts[0], "", true
	case len(parts) >= 3:
		return parts[0], parts[len(parts)-1], true
	default:
		return "", "", false
	}
}

func sortedPathKeys(paths map[string]*openapi3.PathItem) []string {
	keys := make([]string, 0, len(paths))
	for key := range paths {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// uniqueStrings 去重并保持原有顺序
func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
