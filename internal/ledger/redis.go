// Package ledger keeps the set of redeemed single-use token IDs in Redis.
// Each record expires together with its token, so the set never outgrows
// the number of tokens still inside their validity window.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/herald/herald-go/internal/repository"
)

const keyPrefix = "herald:consumed:"

// minTTL keeps a record alive briefly even for tokens at the edge of expiry.
const minTTL = time.Second

// RedisLedger records consumed token IDs with SETNX.
type RedisLedger struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLedger connects to the Redis server at url and checks it responds.
func NewRedisLedger(ctx context.Context, url string) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLedger{client: client, now: time.Now}, nil
}

// Consume marks jti as used until expiresAt. A second call for the same jti
// returns repository.ErrTokenConsumed.
func (l *RedisLedger) Consume(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl < minTTL {
		ttl = minTTL
	}

	set, err := l.client.SetNX(ctx, keyPrefix+jti, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	if !set {
		return repository.ErrTokenConsumed
	}
	return nil
}

// Close releases the underlying connection pool.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
