// Package cache memoizes inference results in Redis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nerdemo/internal/detect"
	"nerdemo/internal/metrics"
)

const keyPrefix = "nerdemo:pred:"

type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// Namespace separates entries of different models sharing one Redis.
	Namespace string
}

// Inferencer wraps another Inferencer and caches its predictions by input
// text. Redis failures are logged and fall through to the wrapped backend.
type Inferencer struct {
	next      detect.Inferencer
	client    redis.UniversalClient
	ttl       time.Duration
	namespace string
	logger    *zap.Logger
}

func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

func Wrap(next detect.Inferencer, client redis.UniversalClient, opts Options, logger *zap.Logger) *Inferencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Inferencer{next: next, client: client, ttl: ttl, namespace: opts.Namespace, logger: logger}
}

// Ping verifies the Redis connection.
func (c *Inferencer) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Inferencer) Key(text string) string {
	sum := sha256.Sum256([]byte(c.namespace + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *Inferencer) Predict(ctx context.Context, text string) ([]detect.Prediction, error) {
	key := c.Key(text)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var preds []detect.Prediction
		if jerr := json.Unmarshal(raw, &preds); jerr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return preds, nil
		}
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache lookup failed", zap.Error(err))
	}

	preds, err := c.next.Predict(ctx, text)
	if err != nil {
		return nil, err
	}
	if payload, jerr := json.Marshal(preds); jerr == nil {
		if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.Warn("cache store failed", zap.Error(serr))
		}
	}
	return preds, nil
}

func (c *Inferencer) Close() error {
	return c.client.Close()
}
