package admin

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks HealthProbe,Pinger,ReceivedCounters,RecordCounter,Reloader,Notifier

import (
	"context"

	"sentrybot/internal/auditlog"
)

// HealthProbe calls the process's own /health endpoint and returns "<code> <body>".
type HealthProbe interface {
	Probe(ctx context.Context) (string, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReceivedCounters reports how many events each intake kind received.
type ReceivedCounters interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

// RecordCounter reports how many records of each type were stored.
type RecordCounter interface {
	CountByType(ctx context.Context) (map[auditlog.EventType]int64, error)
}

// Reloader re-reads the configuration.
type Reloader interface {
	Reload() error
}

// Notifier posts a notice into the log channel.
type Notifier interface {
	Notify(ctx context.Context, description string, color auditlog.Color) error
}

// RoleSource returns the role ids allowed to run operator commands.
type RoleSource interface {
	AdminRoleIDs() []string
}
