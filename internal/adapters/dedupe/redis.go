// Package dedupe holds deduper implementations backed by shared infrastructure.
package dedupe

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/tnvs/internal/domain/dedupe"
	"github.com/okian/tnvs/pkg/logger"
)

const (
	defaultTTL    = 72 * time.Hour
	defaultPrefix = "tnvs:booking:"
)

// RedisDeduper shares seen booking ids between replicas with SET NX.
// Redis errors fail open: the booking is treated as new and the ledger's
// unique booking index rejects a real replay.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	log    logger.Logger
	size   atomic.Int64
}

var _ dedupe.Deduper = (*RedisDeduper)(nil)

// Option configures a RedisDeduper.
type Option func(*RedisDeduper)

// WithTTL sets how long an id is remembered. Zero keeps ids forever.
func WithTTL(ttl time.Duration) Option {
	return func(d *RedisDeduper) {
		if ttl >= 0 {
			d.ttl = ttl
		}
	}
}

// WithPrefix namespaces the keys.
func WithPrefix(prefix string) Option {
	return func(d *RedisDeduper) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *RedisDeduper) {
		if l != nil {
			d.log = l.Named("dedupe")
		}
	}
}

// NewRedisDeduper wraps an existing client. The caller owns the client.
func NewRedisDeduper(client redis.UniversalClient, opts ...Option) *RedisDeduper {
	d := &RedisDeduper{client: client, ttl: defaultTTL, prefix: defaultPrefix, log: logger.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts ...Option) (*RedisDeduper, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisDeduper(client, opts...), nil
}

func (d *RedisDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	fresh, err := d.client.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		d.log.Warn(ctx, "dedupe lookup failed, treating booking as new",
			logger.String("bookingID", id), logger.Error(err))
		return false
	}
	if fresh {
		d.size.Add(1)
	}
	return !fresh
}

func (d *RedisDeduper) Unrecord(ctx context.Context, id string) {
	n, err := d.client.Del(ctx, d.prefix+id).Result()
	if err != nil {
		d.log.Warn(ctx, "dedupe unrecord failed", logger.String("bookingID", id), logger.Error(err))
		return
	}
	if n > 0 {
		d.size.Add(-n)
	}
}

// Size counts ids this process recorded. Other replicas' ids are not included.
func (d *RedisDeduper) Size() int64 { return d.size.Load() }

// Close closes the underlying client.
func (d *RedisDeduper) Close() error { return d.client.Close() }
