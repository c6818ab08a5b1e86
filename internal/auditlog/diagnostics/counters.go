package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sentrybot/internal/auditlog"
)

// DefaultRedisKey is the hash holding the persisted received counters.
const DefaultRedisKey = "sentrybot:received"

// DefaultFlushInterval is how often Run pushes pending increments to Redis.
const DefaultFlushInterval = 5 * time.Second

const flushTimeout = 2 * time.Second

// Counters counts every event received per intake kind, whether or not it was
// eventually recorded. Counts live in memory for the process lifetime. With Redis
// configured, increments also accumulate as pending deltas that Flush adds to a
// Redis hash so totals survive restarts. Inc never touches the network.
type Counters struct {
	mu      sync.Mutex
	counts  map[auditlog.Kind]int64
	pending map[auditlog.Kind]int64

	redis    redis.Cmdable
	key      string
	interval time.Duration
	logger   *slog.Logger
}

// Option configures Counters.
type Option func(*Counters)

// WithRedis persists increments into a Redis hash on Flush.
func WithRedis(client redis.Cmdable) Option {
	return func(c *Counters) {
		c.redis = client
	}
}

// WithRedisKey overrides the Redis hash key.
func WithRedisKey(key string) Option {
	return func(c *Counters) {
		if key != "" {
			c.key = key
		}
	}
}

// WithFlushInterval sets the Run period.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Counters) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger for flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Counters) {
		c.logger = logger
	}
}

// New creates an empty counter set.
func New(opts ...Option) *Counters {
	c := &Counters{
		counts:   make(map[auditlog.Kind]int64),
		pending:  make(map[auditlog.Kind]int64),
		key:      DefaultRedisKey,
		interval: DefaultFlushInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Inc implements auditlog.Counters.
func (c *Counters) Inc(_ context.Context, kind auditlog.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind]++
	if c.redis != nil {
		c.pending[kind]++
	}
}

// Flush adds the pending deltas to the Redis hash in one pipeline. On failure the
// deltas are kept for the next flush.
func (c *Counters) Flush(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[auditlog.Kind]int64)
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	_, err := c.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		for kind, n := range batch {
			p.HIncrBy(ctx, c.key, string(kind), n)
		}
		return nil
	})
	if err != nil {
		c.mu.Lock()
		for kind, n := range batch {
			c.pending[kind] += n
		}
		c.mu.Unlock()
		return fmt.Errorf("flush received counters: %w", err)
	}
	return nil
}

// Run flushes every interval until ctx is done. The caller does the last flush once
// intake has stopped.
func (c *Counters) Run(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fctx, cancel := context.WithTimeout(ctx, flushTimeout)
			if err := c.Flush(fctx); err != nil {
				c.logger.WarnContext(ctx, "failed to flush received counters", "error", err)
			}
			cancel()
		}
	}
}

// Get returns the in-memory count for kind.
func (c *Counters) Get(kind auditlog.Kind) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

// Snapshot returns a copy of the in-memory counts keyed by kind name.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[string(k)] = v
	}
	return out
}

// Totals returns the counts persisted in Redis across restarts, flushing pending
// deltas first. Without Redis it returns the in-memory snapshot.
func (c *Counters) Totals(ctx context.Context) (map[string]int64, error) {
	if c.redis == nil {
		return c.Snapshot(), nil
	}
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	raw, err := c.redis.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read received counters: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse received counter %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
