// Package querycache is a redis read-through cache addressed by querykey keys.
//
// A Cache is constructed explicitly and handed to the services that use it;
// there is no package-level instance.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/querykey"
	pkgredis "github.com/lexiflow/core/internal/pkg/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultPrefix = "lexiflow:qc"

// RetryPolicy bounds how a failing loader is retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type Options struct {
	Prefix   string
	TTL      time.Duration
	Retry    RetryPolicy
	Disabled bool
	Logger   *zap.Logger
}

// Cache stores JSON-encoded query results in redis.
type Cache struct {
	rc       *pkgredis.Client
	prefix   string
	ttl      time.Duration
	retry    RetryPolicy
	disabled bool
	log      *zap.Logger
	group    singleflight.Group
}

// New builds a cache. A nil redis client disables caching; loaders still run
// under the retry policy.
func New(rc *pkgredis.Client, opts Options) *Cache {
	c := &Cache{
		rc:       rc,
		prefix:   opts.Prefix,
		ttl:      opts.TTL,
		retry:    opts.Retry,
		disabled: opts.Disabled || rc == nil,
		log:      opts.Logger,
	}
	if c.prefix == "" {
		c.prefix = defaultPrefix
	}
	if c.ttl <= 0 {
		c.ttl = time.Minute
	}
	if c.retry.MaxAttempts <= 0 {
		c.retry.MaxAttempts = 1
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

func (c *Cache) storageKey(k querykey.Key) string {
	return c.prefix + ":" + k.String()
}

// Fetch returns the cached value for key or runs load, stores its result and
// returns it. Concurrent misses for the same key share one load.
func Fetch[T any](ctx context.Context, c *Cache, key querykey.Key, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}
	if c.disabled {
		return withRetry(ctx, c.retry, load)
	}

	sk := c.storageKey(key)
	if v, ok := lookup[T](ctx, c, sk); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(sk, func() (any, error) {
		v, err := withRetry(ctx, c.retry, load)
		if err != nil {
			return v, err
		}
		c.store(ctx, sk, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func lookup[T any](ctx context.Context, c *Cache, sk string) (T, bool) {
	var out T
	raw, ok, err := c.rc.Get(ctx, sk)
	if err != nil {
		c.log.Warn("query cache read failed", zap.String("key", sk), zap.Error(err))
		return out, false
	}
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warn("query cache entry corrupt", zap.String("key", sk), zap.Error(err))
		_ = c.rc.Del(ctx, sk)
		return out, false
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, sk string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("query cache encode failed", zap.String("key", sk), zap.Error(err))
		return
	}
	if err := c.rc.Set(ctx, sk, raw, c.ttl); err != nil {
		c.log.Warn("query cache write failed", zap.String("key", sk), zap.Error(err))
	}
}

// Invalidate removes the entry stored under pattern and every entry whose
// key has pattern as a prefix.
func (c *Cache) Invalidate(ctx context.Context, pattern querykey.Key) error {
	if c == nil || c.disabled {
		return nil
	}
	sk := c.storageKey(pattern)
	if err := c.rc.Del(ctx, sk); err != nil {
		return fmt.Errorf("invalidate %s: %w", sk, err)
	}
	if _, err := c.rc.DelMatch(ctx, sk+":*"); err != nil {
		return fmt.Errorf("invalidate %s: %w", sk, err)
	}
	return nil
}

// InvalidateQuiet is Invalidate for write paths that must not fail on cache errors.
func (c *Cache) InvalidateQuiet(ctx context.Context, patterns ...querykey.Key) {
	if c == nil {
		return
	}
	for _, p := range patterns {
		if err := c.Invalidate(ctx, p); err != nil {
			c.log.Warn("query cache invalidation failed", zap.Error(err))
		}
	}
}

// withRetry runs op with exponential backoff. Client errors (4xx kinds) are
// returned immediately.
func withRetry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.ClientError() {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(p.MaxAttempts)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}
