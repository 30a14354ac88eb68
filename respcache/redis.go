package respcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the shared Redis backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	PoolSize int           `yaml:"pool_size" json:"pool_size"`
}

// RedisCache stores answers in Redis so multiple replicas share one cache.
// TTL handling and memory bounds are delegated to Redis itself.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis answer cache connected", zap.String("addr", cfg.Addr))

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "respcache")),
	}, nil
}

// Get implements Cache. Backend errors are logged and reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	answer, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return "", false
	}
	return answer, true
}

// Set implements Cache. Write failures are logged and ignored.
func (c *RedisCache) Set(ctx context.Context, key, answer string) {
	if err := c.client.Set(ctx, key, answer, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
