package quote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"daily-stock-analysis/internal/models"
)

// RedisConfig configures the shared quote cache.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type redisEntry struct {
	Quote    models.Quote `json:"quote"`
	StoredAt time.Time    `json:"stored_at"`
	TTL      int64        `json:"ttl_ms"`
}

// RedisCache shares cached quotes between processes. Redis expiry removes
// stale keys; freshness is still decided from stored_at so the boundary
// matches the in-process cache.
type RedisCache struct {
	cli    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisCache connects to Redis with the given configuration.
func NewRedisCache(cfg RedisConfig) *RedisCache {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return NewRedisCacheWithClient(rdb, cfg.KeyPrefix, nil)
}

// NewRedisCacheWithClient wraps an existing client. A nil clock uses time.Now.
func NewRedisCacheWithClient(cli redis.UniversalClient, prefix string, now func() time.Time) *RedisCache {
	if now == nil {
		now = time.Now
	}
	return &RedisCache{cli: cli, prefix: prefix, now: now}
}

func (r *RedisCache) key(symbol string) string {
	return r.prefix + symbol
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// Get returns the cached quote if it is still fresh.
func (r *RedisCache) Get(ctx context.Context, symbol string) (*models.Quote, bool, error) {
	b, err := r.cli.Get(ctx, r.key(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var e redisEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, err
	}
	if !r.now().Before(e.StoredAt.Add(time.Duration(e.TTL) * time.Millisecond)) {
		return nil, false, nil
	}
	q := e.Quote
	return &q, true, nil
}

// Set stores q with the given TTL.
func (r *RedisCache) Set(ctx context.Context, q *models.Quote, ttl time.Duration) error {
	b, err := json.Marshal(redisEntry{Quote: *q, StoredAt: r.now(), TTL: ttl.Milliseconds()})
	if err != nil {
		return err
	}
	return r.cli.Set(ctx, r.key(q.Symbol), b, ttl).Err()
}

// Delete removes the cached quote for symbol.
func (r *RedisCache) Delete(ctx context.Context, symbol string) error {
	return r.cli.Del(ctx, r.key(symbol)).Err()
}

// Close closes the underlying client.
func (r *RedisCache) Close() error {
	return r.cli.Close()
}
