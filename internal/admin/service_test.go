package admin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sentrybot/internal/admin"
	"sentrybot/internal/admin/mocks"
	"sentrybot/internal/auditlog"
	platformmetrics "sentrybot/internal/platform/metrics"
	"sentrybot/pkg/platform/sentinel"
)

type staticRoles []string

func (r staticRoles) AdminRoleIDs() []string { return r }

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	probe    *mocks.MockHealthProbe
	db       *mocks.MockPinger
	received *mocks.MockReceivedCounters
	stored   *mocks.MockRecordCounter
	reloader *mocks.MockReloader
	notifier *mocks.MockNotifier
	metrics  *platformmetrics.Metrics
	service  *admin.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.probe = mocks.NewMockHealthProbe(s.ctrl)
	s.db = mocks.NewMockPinger(s.ctrl)
	s.received = mocks.NewMockReceivedCounters(s.ctrl)
	s.stored = mocks.NewMockRecordCounter(s.ctrl)
	s.reloader = mocks.NewMockReloader(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.metrics = platformmetrics.New(prometheus.NewRegistry())

	s.service = admin.New(staticRoles{"900", "901"},
		admin.WithHealthProbe(s.probe),
		admin.WithDatabase(s.db),
		admin.WithCounters(s.received, s.stored),
		admin.WithReloader(s.reloader),
		admin.WithNotifier(s.notifier),
		admin.WithMetrics(s.metrics),
		admin.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// =============================================================================
// Authorization
// =============================================================================
// Justification: every operator command is restricted to the configured admin roles.

func (s *ServiceSuite) TestAuthorize() {
	s.Run("member with an admin role", func() {
		s.NoError(s.service.Authorize([]string{"1", "901"}, true))
	})
	s.Run("member without admin roles", func() {
		s.ErrorIs(s.service.Authorize([]string{"1", "2"}, true), admin.ErrNotAuthorized)
	})
	s.Run("direct message caller", func() {
		s.ErrorIs(s.service.Authorize(nil, false), admin.ErrNotMember)
	})
	s.Run("no admin roles configured", func() {
		svc := admin.New(staticRoles{})
		s.ErrorIs(svc.Authorize([]string{"900"}, true), admin.ErrNotAuthorized)
	})
}

// =============================================================================
// Status
// =============================================================================

func (s *ServiceSuite) TestStatusHealthy() {
	s.probe.EXPECT().Probe(gomock.Any()).Return(`200 {"status":"ok"}`, nil)
	s.db.EXPECT().Ping(gomock.Any()).Return(nil)

	report := s.service.Status(context.Background())
	s.Equal(`200 {"status":"ok"}`, report.HTTP)
	s.Equal("ok", report.Database)

	embed := report.Embed()
	s.Equal("Sentry Status", embed.Title)
	s.Require().Len(embed.Fields, 2)
	s.Equal("HTTP /health", embed.Fields[0].Name)
	s.Equal("Database", embed.Fields[1].Name)
}

func (s *ServiceSuite) TestStatusReportsFailuresInline() {
	s.probe.EXPECT().Probe(gomock.Any()).Return("", errors.New("connection refused"))
	s.db.EXPECT().Ping(gomock.Any()).Return(errors.New("too many clients"))

	report := s.service.Status(context.Background())
	s.Equal("error: connection refused", report.HTTP)
	s.Equal("error: too many clients", report.Database)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CommandsHandled.WithLabelValues(admin.CommandStatus, "ok")))
}

// =============================================================================
// Counters
// =============================================================================

func (s *ServiceSuite) TestCountersGroupEventTypesByKind() {
	s.received.EXPECT().Totals(gomock.Any()).Return(map[string]int64{
		"member_update":      5,
		"voice_state_update": 3,
	}, nil)
	s.stored.EXPECT().CountByType(gomock.Any()).Return(map[auditlog.EventType]int64{
		auditlog.EventNicknameChange: 1,
		auditlog.EventRolesAdded:     2,
		auditlog.EventVoiceJoin:      1,
		auditlog.EventVoiceMove:      1,
	}, nil)

	rows, err := s.service.Counters(context.Background())
	s.Require().NoError(err)
	s.Len(rows, len(auditlog.Kinds()))

	byKind := map[auditlog.Kind]admin.CounterRow{}
	for _, r := range rows {
		byKind[r.Kind] = r
	}
	s.Equal(admin.CounterRow{Kind: auditlog.KindMemberUpdate, Received: 5, Stored: 3}, byKind[auditlog.KindMemberUpdate])
	s.Equal(admin.CounterRow{Kind: auditlog.KindVoiceStateUpdate, Received: 3, Stored: 2}, byKind[auditlog.KindVoiceStateUpdate])

	embed := admin.CountersEmbed(rows)
	s.Len(embed.Fields, 2)
	s.Equal("received 5 / stored 3", embed.Fields[0].Value)
}

func (s *ServiceSuite) TestCountersStoreFailure() {
	s.received.EXPECT().Totals(gomock.Any()).Return(map[string]int64{}, nil)
	s.stored.EXPECT().CountByType(gomock.Any()).Return(nil, errors.New("relation \"logs\" does not exist"))

	_, err := s.service.Counters(context.Background())
	s.Error(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CommandsHandled.WithLabelValues(admin.CommandCounters, "error")))
}

func (s *ServiceSuite) TestCountersEmbedWithoutTraffic() {
	embed := admin.CountersEmbed([]admin.CounterRow{{Kind: auditlog.KindMemberJoin}})
	s.Empty(embed.Fields)
	s.Equal("No events received yet.", embed.Description)
}

// =============================================================================
// Reload and ready
// =============================================================================

func (s *ServiceSuite) TestReload() {
	s.reloader.EXPECT().Reload().Return(nil)
	s.NoError(s.service.Reload(context.Background()))

	s.reloader.EXPECT().Reload().Return(errors.New("config.json: unexpected end of JSON input"))
	s.Error(s.service.Reload(context.Background()))
}

func (s *ServiceSuite) TestReadyNotifiesLogChannel() {
	s.notifier.EXPECT().Notify(gomock.Any(), admin.ReadyNotice, auditlog.ColorGreen).Return(nil)
	s.NoError(s.service.Ready(context.Background()))
}

func (s *ServiceSuite) TestReadyPropagatesMissingChannel() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(sentinel.ErrNotFound)
	s.ErrorIs(s.service.Ready(context.Background()), sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestUnconfiguredDependencies() {
	svc := admin.New(staticRoles{"900"})
	s.ErrorIs(svc.Ready(context.Background()), sentinel.ErrUnavailable)
	s.ErrorIs(svc.Reload(context.Background()), sentinel.ErrUnavailable)
	_, err := svc.Counters(context.Background())
	s.ErrorIs(err, sentinel.ErrUnavailable)

	report := svc.Status(context.Background())
	s.Equal("unknown", report.HTTP)
	s.Equal("unknown", report.Database)
}
