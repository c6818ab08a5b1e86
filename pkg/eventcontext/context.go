// Package eventcontext provides context accessors for values scoped to one platform event.
//
// The intake boundary stamps an event id and receive time on the context; services and
// sinks read them back for log correlation and record timestamps.
//
// Usage in tests (inject values):
//
//	ctx = eventcontext.WithTime(ctx, fixedTime)
//	ctx = eventcontext.WithEventID(ctx, "evt-1")
package eventcontext

import (
	"context"
	"time"
)

type (
	eventIDKey     struct{}
	receiveTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyEventID     = eventIDKey{}
	ContextKeyReceiveTime = receiveTimeKey{}
)

// EventID retrieves the correlation id of the event being handled.
func EventID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyEventID).(string); ok {
		return id
	}
	return ""
}

// WithEventID injects the event correlation id into the context.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, ContextKeyEventID, eventID)
}

// Now returns the receive time stored in the context, falling back to time.Now().
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyReceiveTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a receive time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyReceiveTime, t)
}

// HasTime reports whether a receive time was injected.
func HasTime(ctx context.Context) bool {
	_, ok := ctx.Value(ContextKeyReceiveTime).(time.Time)
	return ok
}
