// =============================================================================
// 📦 NPLFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("NPLFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → NPLFLOW_* 环境变量 → NPL_* 兼容变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// 认证方式。空字符串表示根据已提供的凭据自动推断。
const (
	AuthNone     = "none"
	AuthToken    = "token"
	AuthKeycloak = "keycloak"
)

// 缓存后端。
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config 是 NPLFlow 的完整配置结构
type Config struct {
	// Engine NPL Engine 连接配置
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Auth 认证配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Cache 规范缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Discovery 包发现配置
	Discovery DiscoveryConfig `yaml:"discovery" env:"DISCOVERY"`

	// Server 桥接服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig NPL Engine 连接配置
type EngineConfig struct {
	// Engine 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数（首次请求之外的追加次数）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 首次退避延迟
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	// 退避延迟上限
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// 指数退避倍率
	Multiplier float64 `yaml:"multiplier" env:"MULTIPLIER"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	// 认证方式: none, token, keycloak（留空时自动推断）
	Method string `yaml:"method" env:"METHOD"`
	// Keycloak 基础 URL（留空时从 Engine URL 推导）
	KeycloakURL string `yaml:"keycloak_url" env:"KEYCLOAK_URL"`
	// Keycloak Realm
	Realm string `yaml:"realm" env:"REALM"`
	// OAuth2 客户端 ID
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	// 用户名（password grant）
	Username string `yaml:"username" env:"USERNAME"`
	// 密码（password grant）
	Password string `yaml:"password" env:"PASSWORD"`
	// 静态访问令牌
	Token string `yaml:"token" env:"TOKEN"`
	// 令牌过期前的提前刷新余量
	RefreshMargin time.Duration `yaml:"refresh_margin" env:"REFRESH_MARGIN"`
}

// CacheConfig 规范缓存配置
type CacheConfig struct {
	// 条目存活时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 后端类型: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// Redis 后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DiscoveryConfig 包发现配置
type DiscoveryConfig struct {
	// 显式配置的包列表（非空时跳过发现流程）
	Packages []string `yaml:"packages" env:"PACKAGES"`
	// 包清单文件名
	FilePath string `yaml:"file_path" env:"FILE_PATH"`
	// Swagger UI 抓取超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ServerConfig 桥接服务器配置
type ServerConfig struct {
	// HTTP 端口，0 表示随机空闲端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Prometheus 指标端口，0 表示随机空闲端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲连接超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 限流速率（每秒请求数）
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "NPLFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → NPLFLOW_* 环境变量 → NPL_* 兼容变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. NPL_* 兼容变量（历史接口，优先级最高）
	if err := applyCompatEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply NPL_* env overrides: %w", err)
	}

	// 5. 推断认证方式并补全派生字段
	cfg.Normalize()

	// 6. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔄 NPL_* 兼容环境变量
// =============================================================================

// applyCompatEnv 应用 NPL CLI 沿用的 NPL_* 环境变量。
//
// 这些变量名早于 NPLFLOW_* 前缀约定，保持兼容以便与现有部署共用环境。
func applyCompatEnv(cfg *Config) error {
	if v := os.Getenv("NPL_ENGINE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	if v := os.Getenv("NPL_KEYCLOAK_URL"); v != "" {
		cfg.Auth.KeycloakURL = v
	}
	if v := os.Getenv("NPL_KEYCLOAK_REALM"); v != "" {
		cfg.Auth.Realm = v
	}
	if v := os.Getenv("NPL_KEYCLOAK_CLIENT_ID"); v != "" {
		cfg.Auth.ClientID = v
	}
	if v := os.Getenv("NPL_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("NPL_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}
	if v := os.Getenv("NPL_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("NPL_PACKAGES"); v != "" {
		cfg.Discovery.Packages = splitPackages(v)
	}
	if v := os.Getenv("NPL_CACHE_TTL"); v != "" {
		// 历史接口以秒为单位的整数
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NPL_CACHE_TTL must be an integer number of seconds: %w", err)
		}
		cfg.Cache.TTL = time.Duration(secs) * time.Second
	}
	return nil
}

// splitPackages 切分逗号分隔的包列表，忽略空白项
func splitPackages(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Normalize 推断认证方式并补全派生字段。
//
// 认证方式推断规则（按优先级）:
//  1. 显式配置的 method 保持不变
//  2. 配置了 token → token
//  3. 配置了 username + password → keycloak
//  4. 否则 → none
//
// Keycloak URL 留空时从 Engine URL 推导: 本地 Engine (localhost:12000)
// 对应本地 Keycloak (localhost:11000)。
func (c *Config) Normalize() {
	if c.Auth.Method == "" {
		switch {
		case c.Auth.Token != "":
			c.Auth.Method = AuthToken
		case c.Auth.Username != "" && c.Auth.Password != "":
			c.Auth.Method = AuthKeycloak
		default:
			c.Auth.Method = AuthNone
		}
	}

	if c.Auth.Method == AuthKeycloak && c.Auth.KeycloakURL == "" {
		if strings.Contains(c.Engine.BaseURL, "localhost:12000") {
			c.Auth.KeycloakURL = strings.Replace(c.Engine.BaseURL, ":12000", ":11000", 1)
		} else {
			c.Auth.KeycloakURL = "http://localhost:11000"
		}
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证 Engine 配置
	if c.Engine.BaseURL == "" {
		errs = append(errs, "engine base_url is required")
	}
	if c.Engine.Timeout <= 0 {
		errs = append(errs, "engine timeout must be positive")
	}
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, "engine max_retries cannot be negative")
	}
	if c.Engine.InitialDelay <= 0 {
		errs = append(errs, "engine initial_delay must be positive")
	}
	if c.Engine.MaxDelay < c.Engine.InitialDelay {
		errs = append(errs, "engine max_delay must be >= initial_delay")
	}
	if c.Engine.Multiplier < 1 {
		errs = append(errs, "engine multiplier must be >= 1")
	}

	// 验证认证配置
	switch c.Auth.Method {
	case AuthNone:
	case AuthToken:
		if c.Auth.Token == "" {
			errs = append(errs, "auth method token requires a token")
		}
	case AuthKeycloak:
		if c.Auth.Username == "" || c.Auth.Password == "" {
			errs = append(errs, "auth method keycloak requires username and password")
		}
		if c.Auth.Realm == "" {
			errs = append(errs, "auth method keycloak requires a realm")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown auth method %q", c.Auth.Method))
	}

	// 验证缓存配置
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache ttl must be positive")
	}
	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, "cache backend redis requires an address")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}

	// 验证服务器配置（0 表示绑定随机空闲端口）
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	// 验证遥测配置
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TokenURL 返回 Keycloak OpenID Connect 令牌端点
func (a *AuthConfig) TokenURL() string {
	return strings.TrimRight(a.KeycloakURL, "/") +
		"/realms/" + a.Realm + "/protocol/openid-connect/token"
}
