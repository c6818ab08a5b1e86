package auditlog

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,Mirror,Stream,AuditTrail,Directory,Counters

import "context"

// Store persists records. Append commits one record in its own transaction and returns
// the id the store assigned.
type Store interface {
	Append(ctx context.Context, record Record) (int64, error)
}

// Mirror renders a record into the log channel.
type Mirror interface {
	Send(ctx context.Context, record Record, color Color) error
}

// Stream exports committed records to downstream consumers.
type Stream interface {
	Publish(ctx context.Context, record Record) error
}

// TrailAction is the platform audit-trail action kind used to backfill actors.
type TrailAction string

const (
	TrailRoleCreate    TrailAction = "role_create"
	TrailRoleDelete    TrailAction = "role_delete"
	TrailChannelCreate TrailAction = "channel_create"
	TrailChannelDelete TrailAction = "channel_delete"
)

// TrailEntry is one entry of the platform's own moderation audit trail.
type TrailEntry struct {
	TargetID string
	Actor    *Actor
}

// AuditTrail reads the most recent platform audit-trail entries for an action kind,
// newest first.
type AuditTrail interface {
	RecentEntries(ctx context.Context, communityID string, action TrailAction, limit int) ([]TrailEntry, error)
}

// Directory answers which communities a user is a member of.
type Directory interface {
	CommunitiesOf(ctx context.Context, userID string) ([]string, error)
}

// Counters records every event received by an intake entry point.
type Counters interface {
	Inc(ctx context.Context, kind Kind)
}
