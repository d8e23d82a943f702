package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig holds configuration for the embedding cache connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient creates a redis client and validates the connection.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// CachedEmbedder memoises another embedder in redis. Cache failures only
// cost a recomputation; they are logged and never returned.
type CachedEmbedder struct {
	next Embedder
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.SugaredLogger
}

func NewCachedEmbedder(next Embedder, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *CachedEmbedder {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CachedEmbedder{next: next, rdb: rdb, ttl: ttl, log: log}
}

func (c *CachedEmbedder) Name() string {
	return c.next.Name()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vec, decErr := Decode(raw); decErr == nil {
			return vec, nil
		}
	case err != redis.Nil:
		c.log.Warnw("embedding cache read failed", "error", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, Encode(vec), c.ttl).Err(); err != nil {
		c.log.Warnw("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.next.Name() + ":" + hex.EncodeToString(sum[:])
}
