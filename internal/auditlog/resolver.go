package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sentrybot/pkg/platform/circuit"
)

// DefaultTrailScanLimit bounds how many audit-trail entries a lookup inspects.
const DefaultTrailScanLimit = 8

// DefaultLookupTimeout caps the wall-clock time of one audit-trail lookup.
const DefaultLookupTimeout = 3 * time.Second

// Resolver backfills the actor of events whose payload does not carry one by scanning
// the platform's own audit trail. A miss is a normal outcome, never an error.
type Resolver struct {
	trail   AuditTrail
	limit   int
	timeout time.Duration
	logger  *slog.Logger
	metrics lookupMetrics

	breakerOpts []circuit.Option
	breakersMu  sync.Mutex
	breakers    map[string]*circuit.Breaker
}

type lookupMetrics interface {
	ObserveActorLookup(result string)
}

// ResolverOption configures the Resolver.
type ResolverOption func(*Resolver)

// WithScanLimit overrides how many entries are inspected per lookup.
func WithScanLimit(limit int) ResolverOption {
	return func(r *Resolver) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// WithLookupTimeout overrides the per-lookup wall-clock cap. Zero disables it.
func WithLookupTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = timeout
	}
}

// WithResolverLogger sets the logger used for lookup failures.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithResolverMetrics records lookup outcomes.
func WithResolverMetrics(m lookupMetrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithCircuitBreaker stops lookups in a community for cooldown after threshold
// consecutive trail failures, typically a missing audit log permission.
func WithCircuitBreaker(threshold int, cooldown time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.breakerOpts = []circuit.Option{
			circuit.WithFailureThreshold(threshold),
			circuit.WithCooldown(cooldown),
		}
	}
}

// NewResolver creates a resolver over trail. A nil trail resolves nothing.
func NewResolver(trail AuditTrail, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		trail:   trail,
		limit:   DefaultTrailScanLimit,
		timeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the actor of the most recent trail entry of the given action whose
// target is targetID, or of the most recent entry of that action when targetID is empty.
func (r *Resolver) Resolve(ctx context.Context, communityID string, action TrailAction, targetID string) (Actor, bool) {
	if r == nil || r.trail == nil || communityID == "" || communityID == UnknownCommunity {
		r.observe("skipped")
		return Actor{}, false
	}
	breaker := r.breaker(communityID)
	if breaker != nil && !breaker.Allow() {
		r.observe("short_circuit")
		return Actor{}, false
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	entries, err := r.trail.RecentEntries(ctx, communityID, action, r.limit)
	if err != nil {
		if r.logger != nil {
			r.logger.DebugContext(ctx, "audit trail lookup failed",
				"community_id", communityID,
				"action", string(action),
				"error", err,
			)
		}
		if breaker != nil && breaker.RecordFailure() && r.logger != nil {
			r.logger.WarnContext(ctx, "audit trail lookups paused for community",
				"community_id", communityID,
				"error", err,
			)
		}
		r.observe("error")
		return Actor{}, false
	}
	if breaker != nil {
		breaker.RecordSuccess()
	}

	if len(entries) > r.limit {
		entries = entries[:r.limit]
	}
	for _, entry := range entries {
		if entry.Actor == nil || entry.Actor.ID == "" {
			continue
		}
		if targetID == "" || entry.TargetID == targetID {
			r.observe("found")
			return *entry.Actor, true
		}
	}
	r.observe("miss")
	return Actor{}, false
}

func (r *Resolver) breaker(communityID string) *circuit.Breaker {
	if r.breakerOpts == nil {
		return nil
	}
	r.breakersMu.Lock()
	defer r.breakersMu.Unlock()
	if r.breakers == nil {
		r.breakers = make(map[string]*circuit.Breaker)
	}
	b, ok := r.breakers[communityID]
	if !ok {
		b = circuit.New("audit_trail:"+communityID, r.breakerOpts...)
		r.breakers[communityID] = b
	}
	return b
}

func (r *Resolver) observe(result string) {
	if r != nil && r.metrics != nil {
		r.metrics.ObserveActorLookup(result)
	}
}
