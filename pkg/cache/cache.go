// Package cache implements the two-tier completion cache (C6): an optional
// fast tier (Redis) over a durable tier (Postgres), with single-flight
// coalescing of concurrent identical-fingerprint misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/chranama/llm-server-sub001/internal/telemetry"
)

// Fingerprint deterministically identifies the inputs that influence a
// model's output (spec.md §3 CacheKey). Equal fingerprints imply equivalent
// output.
func Fingerprint(modelID, prompt string, maxNewTokens int, temperature float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%g", modelID, prompt, maxNewTokens, temperature)
	return hex.EncodeToString(h.Sum(nil))
}

// Cache reads fast (Redis, optional) -> durable (Postgres) -> lets the
// caller compute on a miss, writing durable then fast per spec.md §4.5.
type Cache struct {
	redis *redis.Client // nil disables the fast tier
	pool  *pgxpool.Pool
	ttl   time.Duration

	sf singleflight.Group
}

// NewCache constructs a Cache. redis may be nil (fast tier disabled).
func NewCache(redisClient *redis.Client, pool *pgxpool.Pool, fastTierTTL time.Duration) *Cache {
	if fastTierTTL <= 0 {
		fastTierTTL = 10 * time.Minute
	}
	return &Cache{redis: redisClient, pool: pool, ttl: fastTierTTL}
}

// Get reads fast then durable, without consulting the backend. Returns
// ("", false, nil) on a clean miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (string, bool, error) {
	if c.redis != nil {
		v, err := c.redis.Get(ctx, fastKey(fingerprint)).Result()
		if err == nil {
			telemetry.CacheResultsTotal.WithLabelValues("fast", "hit").Inc()
			return v, true, nil
		}
		if !errors.Is(err, redis.Nil) {
			telemetry.CacheResultsTotal.WithLabelValues("fast", "error").Inc()
		} else {
			telemetry.CacheResultsTotal.WithLabelValues("fast", "miss").Inc()
		}
	}

	var value string
	err := c.pool.QueryRow(ctx, `SELECT value FROM completion_cache WHERE fingerprint = $1`, fingerprint).Scan(&value)
	if err == nil {
		telemetry.CacheResultsTotal.WithLabelValues("durable", "hit").Inc()
		c.warmFast(ctx, fingerprint, value)
		return value, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		telemetry.CacheResultsTotal.WithLabelValues("durable", "error").Inc()
		return "", false, fmt.Errorf("reading durable cache: %w", err)
	}
	telemetry.CacheResultsTotal.WithLabelValues("durable", "miss").Inc()
	return "", false, nil
}

// GetOrCompute is the single-flight entry point: on a miss, compute runs at
// most once per fingerprint among concurrent callers, and its result is
// written durable-then-fast before being handed to every waiter.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint, modelID string, compute func(context.Context) (string, error)) (value string, cached bool, err error) {
	if v, hit, err := c.Get(ctx, fingerprint); err != nil {
		return "", false, err
	} else if hit {
		return v, true, nil
	}

	v, err, _ := c.sf.Do(fingerprint, func() (any, error) {
		// Re-check: another goroutine may have populated the cache between
		// our miss above and acquiring the single-flight leader slot.
		if v, hit, err := c.Get(ctx, fingerprint); err == nil && hit {
			return v, nil
		}

		result, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, fingerprint, modelID, result); err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

// Put writes durable then fast, per spec.md §4.5 ("on a model call that
// produced a cache-eligible result, write durable then fast").
func (c *Cache) Put(ctx context.Context, fingerprint, modelID, value string) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO completion_cache (fingerprint, model_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE SET value = EXCLUDED.value`,
		fingerprint, modelID, value)
	if err != nil {
		return fmt.Errorf("writing durable cache: %w", err)
	}

	c.warmFast(ctx, fingerprint, value)
	return nil
}

func (c *Cache) warmFast(ctx context.Context, fingerprint, value string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Set(ctx, fastKey(fingerprint), value, c.ttl).Err()
}

func fastKey(fingerprint string) string {
	return "nightowl:completion:" + fingerprint
}
