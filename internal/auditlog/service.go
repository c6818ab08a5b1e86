package auditlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sentrybot/internal/auditlog/metrics"
	"sentrybot/pkg/eventcontext"
)

const tracerName = "sentrybot/internal/auditlog"

// Service is the event intake. It exposes one entry point per supported platform event
// kind. Entry points never return errors or panic into the caller: every failure is
// handled by the boundary that wraps them.
type Service struct {
	policy    Policy
	publisher *Publisher
	resolver  *Resolver
	directory Directory
	counters  Counters
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithResolver sets the actor resolver for role and channel events.
func WithResolver(r *Resolver) Option {
	return func(s *Service) {
		s.resolver = r
	}
}

// WithDirectory sets the membership directory used to fan out profile updates.
func WithDirectory(d Directory) Option {
	return func(s *Service) {
		s.directory = d
	}
}

// WithCounters sets the received-event counters.
func WithCounters(c Counters) Option {
	return func(s *Service) {
		s.counters = c
	}
}

// WithServiceLogger sets the logger for dropped events.
func WithServiceLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceMetrics sets the metrics collector.
func WithServiceMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New creates the intake service.
func New(policy Policy, publisher *Publisher, opts ...Option) (*Service, error) {
	if policy == nil {
		return nil, fmt.Errorf("event policy is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	s := &Service{
		policy:    policy,
		publisher: publisher,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type buildFunc func(ctx context.Context, now time.Time) ([]Entry, error)

// handle is the single error boundary around every entry point. It counts the event,
// applies the policy, builds all entries before publishing any of them and recovers
// from panics so a failing handler never reaches the platform dispatcher.
func (s *Service) handle(ctx context.Context, kind Kind, build buildFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if eventcontext.EventID(ctx) == "" {
		ctx = eventcontext.WithEventID(ctx, uuid.NewString())
	}
	if !eventcontext.HasTime(ctx) {
		ctx = eventcontext.WithTime(ctx, time.Now())
	}

	defer func() {
		if r := recover(); r != nil {
			s.drop(ctx, kind, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if s.counters != nil {
		s.counters.Inc(ctx, kind)
	}
	if s.metrics != nil {
		s.metrics.IncReceived(string(kind))
	}

	if !enabled(s.policy, kind) {
		s.skip(kind, "disabled")
		return
	}

	ctx, span := s.tracer.Start(ctx, "auditlog."+string(kind),
		trace.WithAttributes(
			attribute.String("sentrybot.event_kind", string(kind)),
			attribute.String("sentrybot.event_id", eventcontext.EventID(ctx)),
		),
	)
	defer span.End()

	entries, err := build(ctx, eventcontext.Now(ctx))
	if errors.Is(err, errBotAuthored) {
		s.skip(kind, "bot")
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event dropped")
		s.drop(ctx, kind, err)
		return
	}

	span.SetAttributes(attribute.Int("sentrybot.records", len(entries)))
	for _, e := range entries {
		s.publisher.Publish(ctx, e.Record, e.Color)
	}
}

func (s *Service) skip(kind Kind, reason string) {
	if s.metrics != nil {
		s.metrics.IncSkipped(string(kind), reason)
	}
}

func (s *Service) drop(ctx context.Context, kind Kind, err error) {
	if s.metrics != nil {
		s.metrics.IncDropped(string(kind))
	}
	s.logger.WarnContext(ctx, "dropping event that could not be logged",
		"kind", string(kind),
		"event_id", eventcontext.EventID(ctx),
		"error", err,
	)
}

// resolveActor backfills the actor from the platform audit trail.
func (s *Service) resolveActor(ctx context.Context, communityID string, action TrailAction, targetID string) *Actor {
	if s.resolver == nil {
		return nil
	}
	actor, ok := s.resolver.Resolve(ctx, communityID, action, targetID)
	if !ok {
		return nil
	}
	return &actor
}

// OnMemberJoin logs a member joining the community.
func (s *Service) OnMemberJoin(ctx context.Context, ev MemberEvent) {
	s.handle(ctx, KindMemberJoin, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMemberJoin(now, ev)
	})
}

// OnMemberRemove logs a member leaving the community.
func (s *Service) OnMemberRemove(ctx context.Context, ev MemberEvent) {
	s.handle(ctx, KindMemberRemove, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMemberRemove(now, ev)
	})
}

// OnMemberBan logs a ban.
func (s *Service) OnMemberBan(ctx context.Context, ev BanEvent) {
	s.handle(ctx, KindMemberBan, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMemberBan(now, ev)
	})
}

// OnMemberUnban logs a lifted ban.
func (s *Service) OnMemberUnban(ctx context.Context, ev BanEvent) {
	s.handle(ctx, KindMemberUnban, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMemberUnban(now, ev)
	})
}

// OnMemberUpdate logs nickname and role changes. One event may produce several records.
func (s *Service) OnMemberUpdate(ctx context.Context, ev MemberUpdateEvent) {
	s.handle(ctx, KindMemberUpdate, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMemberUpdate(now, ev)
	})
}

// OnUserUpdate logs username and avatar changes once per shared community.
func (s *Service) OnUserUpdate(ctx context.Context, ev UserUpdateEvent) {
	s.handle(ctx, KindUserUpdate, func(ctx context.Context, now time.Time) ([]Entry, error) {
		if ev.Before.Bot {
			return nil, errBotAuthored
		}
		if ev.Before.Name == ev.After.Name && ev.Before.AvatarURL == ev.After.AvatarURL {
			return nil, nil
		}
		if s.directory == nil {
			return nil, nil
		}
		communities, err := s.directory.CommunitiesOf(ctx, ev.After.ID)
		if err != nil {
			return nil, fmt.Errorf("list communities of user: %w", err)
		}
		return buildUserUpdate(now, ev, communities)
	})
}

// OnMessageDelete logs a deleted message.
func (s *Service) OnMessageDelete(ctx context.Context, ev MessageDeleteEvent) {
	s.handle(ctx, KindMessageDelete, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMessageDelete(now, ev)
	})
}

// OnMessageEdit logs an edited message.
func (s *Service) OnMessageEdit(ctx context.Context, ev MessageEditEvent) {
	s.handle(ctx, KindMessageEdit, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildMessageEdit(now, ev)
	})
}

// OnBulkMessageDelete logs a purge. Bulk deletes are never filtered by author.
func (s *Service) OnBulkMessageDelete(ctx context.Context, ev BulkDeleteEvent) {
	s.handle(ctx, KindBulkMessageDelete, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildBulkDelete(now, ev)
	})
}

// OnRoleCreate logs a created role, crediting the actor found in the audit trail.
func (s *Service) OnRoleCreate(ctx context.Context, ev RoleEvent) {
	s.handle(ctx, KindRoleCreate, func(ctx context.Context, now time.Time) ([]Entry, error) {
		if ev.Role.ID == "" {
			return buildRoleCreate(now, ev, nil)
		}
		return buildRoleCreate(now, ev, s.resolveActor(ctx, ev.CommunityID, TrailRoleCreate, ev.Role.ID))
	})
}

// OnRoleDelete logs a deleted role.
func (s *Service) OnRoleDelete(ctx context.Context, ev RoleEvent) {
	s.handle(ctx, KindRoleDelete, func(ctx context.Context, now time.Time) ([]Entry, error) {
		if ev.Role.ID == "" {
			return buildRoleDelete(now, ev, nil)
		}
		return buildRoleDelete(now, ev, s.resolveActor(ctx, ev.CommunityID, TrailRoleDelete, ev.Role.ID))
	})
}

// OnChannelCreate logs a created channel.
func (s *Service) OnChannelCreate(ctx context.Context, ev ChannelEvent) {
	s.handle(ctx, KindChannelCreate, func(ctx context.Context, now time.Time) ([]Entry, error) {
		if ev.Channel.ID == "" {
			return buildChannelCreate(now, ev, nil)
		}
		return buildChannelCreate(now, ev, s.resolveActor(ctx, ev.CommunityID, TrailChannelCreate, ev.Channel.ID))
	})
}

// OnChannelDelete logs a deleted channel.
func (s *Service) OnChannelDelete(ctx context.Context, ev ChannelEvent) {
	s.handle(ctx, KindChannelDelete, func(ctx context.Context, now time.Time) ([]Entry, error) {
		if ev.Channel.ID == "" {
			return buildChannelDelete(now, ev, nil)
		}
		return buildChannelDelete(now, ev, s.resolveActor(ctx, ev.CommunityID, TrailChannelDelete, ev.Channel.ID))
	})
}

// OnVoiceStateUpdate logs voice channel joins, leaves and moves.
func (s *Service) OnVoiceStateUpdate(ctx context.Context, ev VoiceStateEvent) {
	s.handle(ctx, KindVoiceStateUpdate, func(_ context.Context, now time.Time) ([]Entry, error) {
		return buildVoiceState(now, ev)
	})
}
