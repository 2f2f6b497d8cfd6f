// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证 Engine 默认值
	assert.Equal(t, "http://localhost:12000", cfg.Engine.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.Engine.InitialDelay)
	assert.Equal(t, 60*time.Second, cfg.Engine.MaxDelay)
	assert.Equal(t, 2.0, cfg.Engine.Multiplier)

	// 验证认证默认值（method 留空待推断）
	assert.Empty(t, cfg.Auth.Method)
	assert.Equal(t, "poc", cfg.Auth.Realm)
	assert.Equal(t, "npl-client", cfg.Auth.ClientID)
	assert.Equal(t, 30*time.Second, cfg.Auth.RefreshMargin)

	// 验证缓存默认值
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, "localhost:6379", cfg.Cache.Redis.Addr)

	// 验证发现默认值
	assert.Empty(t, cfg.Discovery.Packages)
	assert.Equal(t, "npl-packages.json", cfg.Discovery.FilePath)
	assert.Equal(t, 10*time.Second, cfg.Discovery.Timeout)

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	// 验证日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "http://localhost:12000", cfg.Engine.BaseURL)
	// 没有任何凭据时推断为 none
	assert.Equal(t, AuthNone, cfg.Auth.Method)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
engine:
  base_url: "https://engine.example.com"
  timeout: 60s
  max_retries: 5

auth:
  username: "alice"
  password: "wonderland"
  realm: "prod"
  client_id: "custom-client"

cache:
  ttl: 10m
  backend: "redis"
  redis:
    addr: "redis.example.com:6379"
    password: "secret"
    db: 1

discovery:
  packages:
    - iou
    - trading

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, "https://engine.example.com", cfg.Engine.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)

	// 凭据齐全时推断为 keycloak
	assert.Equal(t, AuthKeycloak, cfg.Auth.Method)
	assert.Equal(t, "alice", cfg.Auth.Username)
	assert.Equal(t, "prod", cfg.Auth.Realm)
	assert.Equal(t, "custom-client", cfg.Auth.ClientID)

	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis.example.com:6379", cfg.Cache.Redis.Addr)
	assert.Equal(t, "secret", cfg.Cache.Redis.Password)
	assert.Equal(t, 1, cfg.Cache.Redis.DB)

	assert.Equal(t, []string{"iou", "trading"}, cfg.Discovery.Packages)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	// 设置环境变量
	envVars := map[string]string{
		"NPLFLOW_ENGINE_BASE_URL":    "http://engine.internal:12000",
		"NPLFLOW_ENGINE_MAX_RETRIES": "7",
		"NPLFLOW_ENGINE_TIMEOUT":     "45s",
		"NPLFLOW_AUTH_TOKEN":         "static-token",
		"NPLFLOW_CACHE_TTL":          "2m",
		"NPLFLOW_DISCOVERY_PACKAGES": "iou,trading,insurance",
		"NPLFLOW_LOG_LEVEL":          "warn",
	}

	// 设置环境变量
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	// 清理环境变量
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	// 加载配置
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	// 验证环境变量覆盖了默认值
	assert.Equal(t, "http://engine.internal:12000", cfg.Engine.BaseURL)
	assert.Equal(t, 7, cfg.Engine.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "static-token", cfg.Auth.Token)
	assert.Equal(t, AuthToken, cfg.Auth.Method)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"iou", "trading", "insurance"}, cfg.Discovery.Packages)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_CompatEnv(t *testing.T) {
	// NPL CLI 沿用的 NPL_* 变量
	envVars := map[string]string{
		"NPL_ENGINE_URL":     "http://localhost:12000",
		"NPL_USERNAME":       "alice",
		"NPL_PASSWORD":       "wonderland",
		"NPL_KEYCLOAK_REALM": "npl-dev",
		"NPL_PACKAGES":       " iou , trading ,,",
		"NPL_CACHE_TTL":      "120",
	}
	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:12000", cfg.Engine.BaseURL)
	assert.Equal(t, "alice", cfg.Auth.Username)
	assert.Equal(t, "npl-dev", cfg.Auth.Realm)

	// 用户名+密码 → keycloak，URL 从 Engine URL 推导
	assert.Equal(t, AuthKeycloak, cfg.Auth.Method)
	assert.Equal(t, "http://localhost:11000", cfg.Auth.KeycloakURL)

	// NPL_CACHE_TTL 以秒为单位
	assert.Equal(t, 120*time.Second, cfg.Cache.TTL)

	// 包列表去除空白项
	assert.Equal(t, []string{"iou", "trading"}, cfg.Discovery.Packages)
}

func TestLoader_CompatEnvOverridesPrefixed(t *testing.T) {
	// NPL_* 兼容变量优先于 NPLFLOW_* 前缀变量
	os.Setenv("NPLFLOW_ENGINE_BASE_URL", "http://prefixed:12000")
	os.Setenv("NPL_ENGINE_URL", "http://compat:12000")
	defer func() {
		os.Unsetenv("NPLFLOW_ENGINE_BASE_URL")
		os.Unsetenv("NPL_ENGINE_URL")
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "http://compat:12000", cfg.Engine.BaseURL)
}

func TestLoader_CompatEnvInvalidTTL(t *testing.T) {
	os.Setenv("NPL_CACHE_TTL", "five minutes")
	defer os.Unsetenv("NPL_CACHE_TTL")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
engine:
  base_url: "http://yaml-engine:12000"
  max_retries: 5
log:
  level: "debug"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 设置环境变量（应该覆盖 YAML）
	os.Setenv("NPLFLOW_ENGINE_BASE_URL", "http://env-engine:12000")
	defer os.Unsetenv("NPLFLOW_ENGINE_BASE_URL")

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 环境变量应该覆盖 YAML
	assert.Equal(t, "http://env-engine:12000", cfg.Engine.BaseURL)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	// 设置自定义前缀的环境变量
	os.Setenv("MYAPP_ENGINE_BASE_URL", "http://custom:12000")
	os.Setenv("MYAPP_LOG_LEVEL", "error")
	defer func() {
		os.Unsetenv("MYAPP_ENGINE_BASE_URL")
		os.Unsetenv("MYAPP_LOG_LEVEL")
	}()

	// 使用自定义前缀加载
	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, "http://custom:12000", cfg.Engine.BaseURL)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_WithValidator(t *testing.T) {
	// 添加验证器
	validator := func(cfg *Config) error {
		if cfg.Engine.MaxRetries > 5 {
			return assert.AnError
		}
		return nil
	}

	// 设置无效重试次数
	os.Setenv("NPLFLOW_ENGINE_MAX_RETRIES", "10")
	defer os.Unsetenv("NPLFLOW_ENGINE_MAX_RETRIES")

	// 加载应该失败
	_, err := NewLoader().
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 指定不存在的文件，应该使用默认值（不报错）
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// 应该返回默认值
	assert.Equal(t, "http://localhost:12000", cfg.Engine.BaseURL)
}

func TestLoader_InvalidYAML(t *testing.T) {
	// 创建无效的 YAML 文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
engine:
  base_url: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	// 加载应该失败
	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- 认证方式推断测试 ---

func TestConfig_Normalize_AuthInference(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{
			name:   "no credentials",
			modify: func(c *Config) {},
			want:   AuthNone,
		},
		{
			name: "token wins",
			modify: func(c *Config) {
				c.Auth.Token = "tok"
				c.Auth.Username = "alice"
				c.Auth.Password = "pw"
			},
			want: AuthToken,
		},
		{
			name: "username and password",
			modify: func(c *Config) {
				c.Auth.Username = "alice"
				c.Auth.Password = "pw"
			},
			want: AuthKeycloak,
		},
		{
			name: "username without password",
			modify: func(c *Config) {
				c.Auth.Username = "alice"
			},
			want: AuthNone,
		},
		{
			name: "explicit method preserved",
			modify: func(c *Config) {
				c.Auth.Method = AuthNone
				c.Auth.Token = "tok"
			},
			want: AuthNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.Auth.Method)
		})
	}
}

func TestConfig_Normalize_KeycloakURLDerivation(t *testing.T) {
	// 本地 Engine → 本地 Keycloak
	cfg := DefaultConfig()
	cfg.Auth.Username = "alice"
	cfg.Auth.Password = "pw"
	cfg.Normalize()
	assert.Equal(t, "http://localhost:11000", cfg.Auth.KeycloakURL)

	// 非本地 Engine → 默认本地 Keycloak
	cfg = DefaultConfig()
	cfg.Engine.BaseURL = "https://engine.example.com"
	cfg.Auth.Username = "alice"
	cfg.Auth.Password = "pw"
	cfg.Normalize()
	assert.Equal(t, "http://localhost:11000", cfg.Auth.KeycloakURL)

	// 显式配置的 URL 保持不变
	cfg = DefaultConfig()
	cfg.Auth.KeycloakURL = "https://auth.example.com"
	cfg.Auth.Username = "alice"
	cfg.Auth.Password = "pw"
	cfg.Normalize()
	assert.Equal(t, "https://auth.example.com", cfg.Auth.KeycloakURL)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid normalized config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing engine base URL",
			modify: func(c *Config) {
				c.Engine.BaseURL = ""
			},
			wantErr: true,
		},
		{
			name: "negative max retries",
			modify: func(c *Config) {
				c.Engine.MaxRetries = -1
			},
			wantErr: true,
		},
		{
			name: "max delay below initial delay",
			modify: func(c *Config) {
				c.Engine.MaxDelay = 500 * time.Millisecond
			},
			wantErr: true,
		},
		{
			name: "multiplier below one",
			modify: func(c *Config) {
				c.Engine.Multiplier = 0.5
			},
			wantErr: true,
		},
		{
			name: "unknown auth method",
			modify: func(c *Config) {
				c.Auth.Method = "ldap"
			},
			wantErr: true,
		},
		{
			name: "token method without token",
			modify: func(c *Config) {
				c.Auth.Method = AuthToken
			},
			wantErr: true,
		},
		{
			name: "keycloak method without credentials",
			modify: func(c *Config) {
				c.Auth.Method = AuthKeycloak
			},
			wantErr: true,
		},
		{
			name: "unknown cache backend",
			modify: func(c *Config) {
				c.Cache.Backend = "memcached"
			},
			wantErr: true,
		},
		{
			name: "redis backend without addr",
			modify: func(c *Config) {
				c.Cache.Backend = CacheBackendRedis
				c.Cache.Redis.Addr = ""
			},
			wantErr: true,
		},
		{
			name: "invalid HTTP port (negative)",
			modify: func(c *Config) {
				c.Server.HTTPPort = -1
			},
			wantErr: true,
		},
		{
			name: "invalid HTTP port (too large)",
			modify: func(c *Config) {
				c.Server.HTTPPort = 70000
			},
			wantErr: true,
		},
		{
			name: "invalid sample rate",
			modify: func(c *Config) {
				c.Telemetry.SampleRate = 1.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Normalize()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthConfig_TokenURL(t *testing.T) {
	auth := AuthConfig{
		KeycloakURL: "http://localhost:11000",
		Realm:       "poc",
	}
	assert.Equal(t,
		"http://localhost:11000/realms/poc/protocol/openid-connect/token",
		auth.TokenURL())

	// 尾部斜杠不应产生双斜杠
	auth.KeycloakURL = "http://localhost:11000/"
	assert.Equal(t,
		"http://localhost:11000/realms/poc/protocol/openid-connect/token",
		auth.TokenURL())
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	// 创建有效配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
engine:
  base_url: "http://localhost:12000"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 不应该 panic
	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, "http://localhost:12000", cfg.Engine.BaseURL)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	// 创建无效配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	// 应该 panic
	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("NPLFLOW_AUTH_TOKEN", "env-only-token")
	defer os.Unsetenv("NPLFLOW_AUTH_TOKEN")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-token", cfg.Auth.Token)
	assert.Equal(t, AuthToken, cfg.Auth.Method)
}
