// =============================================================================
// 🔍 NPL 包发现
// =============================================================================
// 三级回退的包发现：swagger 索引抓取 → npl-packages.json →
// NPL_PACKAGES 环境变量。每级失败记录指标与告警后降级到下一级。
// =============================================================================

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/nplflow/internal/metrics"
	"github.com/BaSui01/nplflow/types"
)

const (
	// packagesFile 包列表配置文件名
	packagesFile = "npl-packages.json"

	// envPackages 包列表环境变量名
	envPackages = "NPL_PACKAGES"

	// maxIndexBody swagger 索引页大小上限
	maxIndexBody = 4 << 20
)

// 指标中的策略名与结果
const (
	strategySwaggerUI  = "swagger_ui"
	strategyConfigFile = "config_file"
	strategyEnv        = "env"

	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// packagePattern 从 swagger 索引页提取包引用。
// 包名可以带路径段，如 objects/iou。
var packagePattern = regexp.MustCompile(`/npl/([^"'/]+(?:/[^"'/]+)*)/-/openapi\.json`)

// Config 包发现配置
type Config struct {
	// EngineURL NPL Engine 基础地址
	EngineURL string `yaml:"engine_url" json:"engine_url"`

	// Timeout 抓取 swagger 索引的超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// ConfigPaths npl-packages.json 候选路径，为空时使用默认搜索路径
	ConfigPaths []string `yaml:"config_paths" json:"config_paths"`
}

// DefaultConfig 返回默认发现配置
func DefaultConfig() Config {
	return Config{
		EngineURL: "http://localhost:12000",
		Timeout:   10 * time.Second,
	}
}

// Discovery 三级回退的包发现器。
// 实现工具编译器的 PackageLister 依赖。
type Discovery struct {
	config     Config
	httpClient *http.Client
	collector  *metrics.Collector
	logger     *zap.Logger
}

// New 创建包发现器。collector 为 nil 时不记录指标。
func New(config Config, collector *metrics.Collector, logger *zap.Logger) *Discovery {
	def := DefaultConfig()
	if config.EngineURL == "" {
		config.EngineURL = def.EngineURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if len(config.ConfigPaths) == 0 {
		config.ConfigPaths = defaultConfigPaths()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Discovery{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		collector:  collector,
		logger:     logger.With(zap.String("component", "package_discovery")),
	}
}

// Packages 依次尝试三种策略，返回第一个产出非空列表的结果。
func (d *Discovery) Packages(ctx context.Context) ([]string, error) {
	strategies := []struct {
		name string
		run  func(context.Context) ([]string, error)
	}{
		{strategySwaggerUI, d.fromSwaggerIndex},
		{strategyConfigFile, d.fromConfigFile},
		{strategyEnv, d.fromEnv},
	}

	for _, strategy := range strategies {
		packages, err := strategy.run(ctx)
		if err != nil {
			d.record(strategy.name, outcomeFailure)
			d.logger.Warn("包发现策略失败",
				zap.String("strategy", strategy.name),
				zap.Error(err))
			continue
		}

		d.record(strategy.name, outcomeSuccess)
		d.logger.Info("包发现成功",
			zap.String("strategy", strategy.name),
			zap.Strings("packages", packages))
		return packages, nil
	}

	return nil, types.NewError(types.ErrPackageDiscovery, fmt.Sprintf(
		"could not discover NPL packages: check that the engine at %s serves a swagger index at /swagger-ui/, "+
			"or list packages in %s or the %s environment variable",
		d.config.EngineURL, packagesFile, envPackages))
}

// fromSwaggerIndex 抓取 swagger 索引页并提取包引用。
// 结果去重后按字典序返回，保证多次发现产出一致。
func (d *Discovery) fromSwaggerIndex(ctx context.Context) ([]string, error) {
	indexURL := strings.TrimRight(d.config.EngineURL, "/") + "/swagger-ui/"
	d.logger.Debug("抓取 swagger 索引", zap.String("url", indexURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build swagger index request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch swagger index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swagger index returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIndexBody))
	if err != nil {
		return nil, fmt.Errorf("read swagger index: %w", err)
	}

	seen := make(map[string]struct{})
	var packages []string
	for _, match := range packagePattern.FindAllStringSubmatch(string(body), -1) {
		name := match[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		packages = append(packages, name)
	}
	if len(packages) == 0 {
		return nil, errors.New("no package references found in swagger index")
	}

	sort.Strings(packages)
	return packages, nil
}

// fromConfigFile 依次尝试候选路径读取 npl-packages.json。
// 格式无效或包列表为空的文件跳过，继续尝试下一个路径。
func (d *Discovery) fromConfigFile(_ context.Context) ([]string, error) {
	for _, path := range d.config.ConfigPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var doc struct {
			Packages []string `json:"packages"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			d.logger.Warn("包配置文件格式无效",
				zap.String("path", path),
				zap.Error(err))
			continue
		}
		if len(doc.Packages) == 0 {
			continue
		}

		d.logger.Info("从配置文件读取包列表", zap.String("path", path))
		return doc.Packages, nil
	}
	return nil, fmt.Errorf("%s not found", packagesFile)
}

// fromEnv 读取 NPL_PACKAGES 环境变量，逗号分隔，忽略空白项。
func (d *Discovery) fromEnv(_ context.Context) ([]string, error) {
	raw := os.Getenv(envPackages)
	if raw == "" {
		return nil, fmt.Errorf("%s environment variable not set", envPackages)
	}

	var packages []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			packages = append(packages, part)
		}
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("%s is empty", envPackages)
	}
	return packages, nil
}

func (d *Discovery) record(strategy, outcome string) {
	if d.collector != nil {
		d.collector.RecordDiscovery(strategy, outcome)
	}
}

// defaultConfigPaths 返回 npl-packages.json 的默认搜索路径：
// 当前目录、public/ 子目录、可执行文件所在目录。
func defaultConfigPaths() []string {
	paths := []string{
		packagesFile,
		filepath.Join("public", packagesFile),
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), packagesFile))
	}
	return paths
}
