// =============================================================================
// NPLFlow 主入口
// =============================================================================
// NPL Engine 桥接服务入口点，包含检查 HTTP 服务、引擎健康探测、
// Prometheus 指标与工具声明导出
//
// 使用方法:
//
//	nplflow serve                       # 启动桥接服务
//	nplflow serve --config config.yaml  # 指定配置文件
//	nplflow tools                       # 编译并打印工具声明（JSON）
//	nplflow health                      # 探测 NPL Engine 健康状态
//	nplflow version                     # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/nplflow"
	"github.com/BaSui01/nplflow/config"
	"github.com/BaSui01/nplflow/engine"
	"github.com/BaSui01/nplflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "tools":
		runTools(os.Args[2:])
	case "health":
		runHealthCheck(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	// 解析命令行参数
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting NPLFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("engine_url", cfg.Engine.BaseURL),
	)

	// 初始化 OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 创建服务器
	server := NewServer(cfg, logger)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	err = server.WaitForShutdown()

	if otelProviders != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := otelProviders.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("telemetry shutdown error", zap.Error(shutdownErr))
		}
		cancel()
	}

	if err != nil {
		logger.Error("NPLFlow stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("NPLFlow stopped")
}

// =============================================================================
// 🔧 tools 命令
// =============================================================================

// runTools 编译全部工具并把声明以 JSON 形式打印到标准输出
func runTools(args []string) {
	fs := flag.NewFlagSet("tools", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	packages := fs.String("packages", "", "Comma-separated NPL packages (overrides discovery)")
	refresh := fs.Bool("refresh", false, "Bypass caches and recompile")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 标准输出只承载工具声明，日志全部走标准错误
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if *packages != "" {
		cfg.Discovery.Packages = splitList(*packages)
	}

	b, err := nplflow.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init compiler: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	compiled, err := b.CompileTools(ctx, *refresh)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tool compilation failed: %v\n", err)
		os.Exit(1)
	}

	declarations := make([]any, 0, len(compiled))
	for _, tool := range compiled {
		decl, declErr := tool.Declaration()
		if declErr != nil {
			logger.Warn("skipping tool with invalid declaration",
				zap.String("tool", tool.Name), zap.Error(declErr))
			continue
		}
		declarations = append(declarations, decl)
	}

	out, err := json.MarshalIndent(declarations, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode declarations: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

// runHealthCheck 探测 NPL Engine 的 /actuator/health 端点
func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	engineURL := fs.String("engine", "", "NPL Engine base URL (overrides config)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *engineURL != "" {
		cfg.Engine.BaseURL = *engineURL
	}

	// 健康探测不需要凭据与重试，直接构建最小客户端
	client := engine.NewClient(engine.Config{
		BaseURL: cfg.Engine.BaseURL,
		Timeout: cfg.Engine.Timeout,
	}, nil, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Engine health check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("NPLFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`NPLFlow - NPL Engine Bridge

Usage:
  nplflow <command> [options]

Commands:
  serve     Start the bridge server
  tools     Compile NPL packages and print tool declarations as JSON
  health    Probe the NPL Engine health endpoint
  version   Show version information
  help      Show this help message

Options for 'serve':
  --config <path>     Path to configuration file (YAML)

Options for 'tools':
  --config <path>     Path to configuration file (YAML)
  --packages <list>   Comma-separated NPL packages (overrides discovery)
  --refresh           Bypass caches and recompile

Options for 'health':
  --config <path>     Path to configuration file (YAML)
  --engine <url>      NPL Engine base URL (overrides config)

Examples:
  nplflow serve
  nplflow serve --config /etc/nplflow/config.yaml
  nplflow tools --packages objects/iou
  nplflow health --engine http://localhost:12000
  nplflow version`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

// loadConfig 加载并校验配置
func loadConfig(configPath string) (*config.Config, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	// 构建 logger
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

// splitList 切分逗号分隔的列表，忽略空白项
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
