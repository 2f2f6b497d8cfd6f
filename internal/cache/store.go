package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 JSON 字节缓存
// =============================================================================

// Store JSON 字节缓存接口。
//
// 未命中通过 (nil, false, nil) 表达；error 仅用于后端故障。
type Store interface {
	// Get 获取缓存值
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set 序列化并写入缓存值，ttl <= 0 时使用后端默认值
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete 删除指定键
	Delete(ctx context.Context, key string) error

	// Clear 清空本存储管理的全部键
	Clear(ctx context.Context) error

	// Ping 检查后端连通性
	Ping(ctx context.Context) error

	// Close 释放后端资源
	Close() error
}

// Config Redis 后端配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 键前缀，用于与其他使用方隔离
	Prefix string `yaml:"prefix" json:"prefix"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DefaultConfig 返回默认 Redis 后端配置
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		Prefix:       "nplflow:",
		DefaultTTL:   DefaultTTL,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// =============================================================================
// 🧠 内存后端
// =============================================================================

type memoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
}

type memoryEntry struct {
	data      json.RawMessage
	expiresAt time.Time
}

// NewMemoryStore 创建内存后端，ttl <= 0 时使用 DefaultTTL。
//
// 过期条目在访问时惰性删除，不运行后台清理协程。
func NewMemoryStore(defaultTTL time.Duration) Store {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &memoryStore{
		entries:    make(map[string]memoryEntry),
		defaultTTL: defaultTTL,
	}
}

// Get 实现 Store.Get
func (s *memoryStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	// 惰性过期
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	return entry.data, true, nil
}

// Set 实现 Store.Set
func (s *memoryStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	s.entries[key] = memoryEntry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
	s.mu.Unlock()

	return nil
}

// Delete 实现 Store.Delete
func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Clear 实现 Store.Clear
func (s *memoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Ping 实现 Store.Ping
func (s *memoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close 实现 Store.Close
func (s *memoryStore) Close() error {
	return nil
}

// =============================================================================
// 🔴 Redis 后端
// =============================================================================

type redisStore struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStore 创建 Redis 后端并验证连接
func NewRedisStore(config Config, logger *zap.Logger) (Store, error) {
	if config.Prefix == "" {
		config.Prefix = "nplflow:"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis cache store initialized",
		zap.String("addr", config.Addr),
		zap.String("prefix", config.Prefix),
		zap.Int("pool_size", config.PoolSize),
	)

	return &redisStore{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
	}, nil
}

// Get 实现 Store.Get
func (s *redisStore) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, fmt.Errorf("cache store is closed")
	}

	data, err := s.redis.Get(ctx, s.config.Prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false, fmt.Errorf("cache get failed: %w", err)
	}

	return data, true, nil
}

// Set 实现 Store.Set
func (s *redisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	if err := s.redis.Set(ctx, s.config.Prefix+key, data, ttl).Err(); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	return nil
}

// Delete 实现 Store.Delete
func (s *redisStore) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	if err := s.redis.Del(ctx, s.config.Prefix+key).Err(); err != nil {
		s.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}

// Clear 实现 Store.Clear，仅删除带本前缀的键
func (s *redisStore) Clear(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	iter := s.redis.Scan(ctx, 0, s.config.Prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}

	if len(keys) > 0 {
		if err := s.redis.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache clear failed: %w", err)
		}
	}

	s.logger.Debug("cache cleared", zap.Int("keys", len(keys)))
	return nil
}

// Ping 实现 Store.Ping
func (s *redisStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("cache store is closed")
	}

	return s.redis.Ping(ctx).Err()
}

// Close 实现 Store.Close
func (s *redisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.logger.Info("closing cache store")

	return s.redis.Close()
}
