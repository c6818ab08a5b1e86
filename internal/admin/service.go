// Package admin implements the operator commands independently of the chat platform.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"sentrybot/internal/auditlog"
	platformmetrics "sentrybot/internal/platform/metrics"
	"sentrybot/pkg/platform/sentinel"
)

// Command names, also used as metric labels.
const (
	CommandStatus   = "status"
	CommandCounters = "counters"
	CommandReload   = "reload"
	CommandReady    = "ready"
)

// ReadyNotice is posted into the log channel by the ready command.
const ReadyNotice = "Bot readiness notified by /ready command"

const defaultCheckTimeout = 5 * time.Second

var (
	// ErrNotMember is returned when a command is used outside a community.
	ErrNotMember = errors.New("command must be used in a guild by a member")
	// ErrNotAuthorized is returned when the member holds none of the admin roles.
	ErrNotAuthorized = errors.New("not authorized")
)

// Service runs operator commands.
type Service struct {
	roles    RoleSource
	probe    HealthProbe
	db       Pinger
	received ReceivedCounters
	stored   RecordCounter
	reloader Reloader
	notifier Notifier
	metrics  *platformmetrics.Metrics
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures the Service.
type Option func(*Service)

func WithHealthProbe(p HealthProbe) Option {
	return func(s *Service) { s.probe = p }
}

func WithDatabase(db Pinger) Option {
	return func(s *Service) { s.db = db }
}

func WithCounters(received ReceivedCounters, stored RecordCounter) Option {
	return func(s *Service) {
		s.received = received
		s.stored = stored
	}
}

func WithReloader(r Reloader) Option {
	return func(s *Service) { s.reloader = r }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates the operator command service.
func New(roles RoleSource, opts ...Option) *Service {
	s := &Service{
		roles:   roles,
		logger:  slog.Default(),
		timeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize checks that a community member holds at least one admin role.
func (s *Service) Authorize(memberRoleIDs []string, isMember bool) error {
	if !isMember {
		return ErrNotMember
	}
	if s.roles == nil {
		return ErrNotAuthorized
	}
	for _, allowed := range s.roles.AdminRoleIDs() {
		if slices.Contains(memberRoleIDs, allowed) {
			return nil
		}
	}
	return ErrNotAuthorized
}

// StatusReport is the outcome of the status command.
type StatusReport struct {
	HTTP     string
	Database string
}

// Embed renders the report for the chat platform.
func (r StatusReport) Embed() auditlog.Embed {
	return auditlog.Embed{
		Title: "Sentry Status",
		Color: auditlog.ColorBlue,
		Fields: []auditlog.EmbedField{
			{Name: "HTTP /health", Value: r.HTTP},
			{Name: "Database", Value: r.Database},
		},
	}
}

// Status probes the health endpoint and the database. Failures are reported in the
// returned report, never as an error.
func (s *Service) Status(ctx context.Context) StatusReport {
	report := StatusReport{HTTP: "unknown", Database: "unknown"}

	if s.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		got, err := s.probe.Probe(pctx)
		cancel()
		if err != nil {
			report.HTTP = "error: " + err.Error()
		} else {
			report.HTTP = got
		}
	}

	if s.db != nil {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.db.Ping(pctx)
		cancel()
		if err != nil {
			report.Database = "error: " + err.Error()
		} else {
			report.Database = "ok"
		}
	}

	s.observe(CommandStatus, "ok")
	return report
}

// CounterRow compares received events of one intake kind with stored records.
type CounterRow struct {
	Kind     auditlog.Kind
	Received int64
	Stored   int64
}

// Counters lists received and stored counts for every intake kind.
func (s *Service) Counters(ctx context.Context) ([]CounterRow, error) {
	if s.received == nil || s.stored == nil {
		s.observe(CommandCounters, "error")
		return nil, fmt.Errorf("counters: %w", sentinel.ErrUnavailable)
	}
	received, err := s.received.Totals(ctx)
	if err != nil {
		s.observe(CommandCounters, "error")
		return nil, fmt.Errorf("read received counters: %w", err)
	}
	stored, err := s.stored.CountByType(ctx)
	if err != nil {
		s.observe(CommandCounters, "error")
		return nil, fmt.Errorf("count stored records: %w", err)
	}

	rows := make([]CounterRow, 0, len(auditlog.Kinds()))
	for _, kind := range auditlog.Kinds() {
		row := CounterRow{Kind: kind, Received: received[string(kind)]}
		for _, et := range kind.EventTypes() {
			row.Stored += stored[et]
		}
		rows = append(rows, row)
	}
	s.observe(CommandCounters, "ok")
	return rows, nil
}

// CountersEmbed renders counter rows. Kinds with no traffic are omitted.
func CountersEmbed(rows []CounterRow) auditlog.Embed {
	embed := auditlog.Embed{Title: "Event Counters", Color: auditlog.ColorBlue}
	for _, r := range rows {
		if r.Received == 0 && r.Stored == 0 {
			continue
		}
		embed.Fields = append(embed.Fields, auditlog.EmbedField{
			Name:  string(r.Kind),
			Value: fmt.Sprintf("received %d / stored %d", r.Received, r.Stored),
		})
	}
	if len(embed.Fields) == 0 {
		embed.Description = "No events received yet."
	}
	return embed
}

// Reload re-reads the configuration file.
func (s *Service) Reload(ctx context.Context) error {
	if s.reloader == nil {
		s.observe(CommandReload, "error")
		return fmt.Errorf("reload: %w", sentinel.ErrUnavailable)
	}
	if err := s.reloader.Reload(); err != nil {
		s.logger.ErrorContext(ctx, "config reload failed", "error", err)
		s.observe(CommandReload, "error")
		return err
	}
	s.logger.InfoContext(ctx, "config reloaded by operator command")
	s.observe(CommandReload, "ok")
	return nil
}

// Ready posts the readiness notice into the log channel.
func (s *Service) Ready(ctx context.Context) error {
	if s.notifier == nil {
		s.observe(CommandReady, "error")
		return fmt.Errorf("notifier: %w", sentinel.ErrUnavailable)
	}
	if err := s.notifier.Notify(ctx, ReadyNotice, auditlog.ColorGreen); err != nil {
		s.logger.ErrorContext(ctx, "failed to notify log channel", "error", err)
		s.observe(CommandReady, "error")
		return err
	}
	s.observe(CommandReady, "ok")
	return nil
}

// Denied counts a rejected command.
func (s *Service) Denied(command string) {
	s.observe(command, "denied")
}

func (s *Service) observe(command, outcome string) {
	if s.metrics != nil {
		s.metrics.IncCommand(command, outcome)
	}
}
