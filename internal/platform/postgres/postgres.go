// Package postgres opens the lib/pq connection pool used by the audit record store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"

	"sentrybot/internal/platform/config"
)

const (
	defaultConnectAttempts = 10
	defaultConnectDelay    = 500 * time.Millisecond
	defaultConnectMaxDelay = 10 * time.Second
	pingTimeout            = 5 * time.Second
)

type connectOptions struct {
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*connectOptions)

// WithAttempts sets how many pings are tried before Open gives up.
func WithAttempts(n uint) Option {
	return func(o *connectOptions) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithDelay sets the initial backoff between ping attempts.
func WithDelay(d time.Duration) Option {
	return func(o *connectOptions) {
		o.delay = d
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *slog.Logger) Option {
	return func(o *connectOptions) {
		o.logger = logger
	}
}

// Open creates the pool and waits until the database answers a ping. The database
// container usually starts alongside the bot, so the first pings are expected to fail.
func Open(ctx context.Context, cfg config.DatabaseConfig, password string, opts ...Option) (*sql.DB, error) {
	o := connectOptions{
		attempts: defaultConnectAttempts,
		delay:    defaultConnectDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("postgres", cfg.DSN(password))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	err = retry.Do(
		func() error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			return db.PingContext(pingCtx)
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.delay),
		retry.MaxDelay(defaultConnectMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			o.logger.WarnContext(ctx, "database not reachable, retrying",
				"attempt", n+1,
				"host", cfg.Host,
				"error", err,
			)
		}),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	o.logger.InfoContext(ctx, "database connected", "host", cfg.Host, "database", cfg.Name)
	return db, nil
}
