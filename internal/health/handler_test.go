package health_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/diagnostics"
	"sentrybot/internal/auditlog/store/memory"
	"sentrybot/internal/health"
	platformmetrics "sentrybot/internal/platform/metrics"
	httptestutil "sentrybot/pkg/testutil"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

type HandlerSuite struct {
	suite.Suite
	db       *stubPinger
	store    *memory.InMemoryStore
	counters *diagnostics.Counters
	registry *prometheus.Registry
	metrics  *platformmetrics.Metrics
	ready    bool
	router   http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.db = &stubPinger{}
	s.store = memory.NewInMemoryStore()
	s.counters = diagnostics.New(diagnostics.WithLogger(logger))
	s.registry = prometheus.NewRegistry()
	s.metrics = platformmetrics.New(s.registry)
	s.ready = true

	s.router = health.New(s.db,
		health.WithRecords(s.store),
		health.WithCounters(s.counters),
		health.WithGatewayReady(func() bool { return s.ready }),
		health.WithGatherer(s.registry),
		health.WithMetrics(s.metrics),
		health.WithLogger(logger),
	).Router()
}

func (s *HandlerSuite) get(path string) (int, map[string]any) {
	rr := httptestutil.DoRequest(s.router, httptestutil.NewRequest(s.T(), http.MethodGet, path))
	return rr.Code, *httptestutil.UnmarshalResponse[map[string]any](s.T(), rr)
}

// =============================================================================
// Liveness
// =============================================================================
// Justification: the container orchestrator and !status read this contract.

func (s *HandlerSuite) TestHealthOK() {
	code, body := s.get("/health")
	s.Equal(http.StatusOK, code)
	s.Equal(map[string]any{"status": "ok"}, body)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.HealthChecks.WithLabelValues("health", "ok")))
}

func (s *HandlerSuite) TestHealthUnhealthyWhenDatabaseDown() {
	s.db.err = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	code, body := s.get("/health")
	s.Equal(http.StatusServiceUnavailable, code)
	s.Equal("unhealthy", body["status"])
	s.Contains(body["error"], "connection refused")
}

func (s *HandlerSuite) TestHealthWithoutDatabase() {
	router := health.New(nil, health.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))).Router()
	rr := httptestutil.DoRequest(router, httptestutil.NewRequest(s.T(), http.MethodGet, "/health"))
	s.Equal(http.StatusServiceUnavailable, rr.Code)
}

// =============================================================================
// Readiness
// =============================================================================

func (s *HandlerSuite) TestReady() {
	s.Run("gateway ready and database up", func() {
		code, body := s.get("/ready")
		s.Equal(http.StatusOK, code)
		s.Equal("ready", body["status"])
		s.Equal(true, body["gateway"])
	})

	s.Run("gateway not ready yet", func() {
		s.ready = false
		defer func() { s.ready = true }()
		code, body := s.get("/ready")
		s.Equal(http.StatusServiceUnavailable, code)
		s.Equal("not_ready", body["status"])
		s.Equal(false, body["gateway"])
	})

	s.Run("database down", func() {
		s.db.err = errors.New("timeout")
		defer func() { s.db.err = nil }()
		code, body := s.get("/ready")
		s.Equal(http.StatusServiceUnavailable, code)
		s.Equal("timeout", body["database"])
	})
}

func (s *HandlerSuite) TestReadyReportsOptionalDependencies() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := health.New(s.db,
		health.WithOptional("redis", func(context.Context) error { return nil }),
		health.WithOptional("kafka", func(context.Context) error { return errors.New("kafka ping: no seed brokers reachable") }),
		health.WithLogger(logger),
	).Router()

	rr := httptestutil.DoRequest(router, httptestutil.NewRequest(s.T(), http.MethodGet, "/ready"))
	s.Equal(http.StatusOK, rr.Code)
	body := *httptestutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal("ready", body["status"])
	s.Equal(map[string]any{
		"redis": "ok",
		"kafka": "kafka ping: no seed brokers reachable",
	}, body["optional"])
}

// =============================================================================
// Diagnostics
// =============================================================================
// Justification: operators compare received counters with stored counts to spot
// dropped writes.

func (s *HandlerSuite) TestDiagnostics() {
	ctx := context.Background()
	s.counters.Inc(ctx, auditlog.KindMemberJoin)
	s.counters.Inc(ctx, auditlog.KindMemberJoin)
	_, err := s.store.Append(ctx, auditlog.Record{
		Timestamp:   time.Now(),
		EventType:   auditlog.EventMemberJoin,
		ActorID:     "100",
		ActorName:   "Alice",
		Description: "<@100> joined the server.",
		CommunityID: "G1",
	})
	s.Require().NoError(err)

	code, body := s.get("/diagnostics?recent=5")
	s.Equal(http.StatusOK, code)
	s.Equal(map[string]any{"member_join": 2.0}, body["received"])
	s.Equal(map[string]any{"member_join": 1.0}, body["stored"])
	recent, ok := body["recent"].([]any)
	s.Require().True(ok)
	s.Require().Len(recent, 1)
	s.Equal("member_join", recent[0].(map[string]any)["event_type"])
}

func (s *HandlerSuite) TestDiagnosticsRecentForOneCommunity() {
	ctx := context.Background()
	for _, guild := range []string{"111", "222", "111"} {
		_, err := s.store.Append(ctx, auditlog.Record{
			Timestamp:   time.Now(),
			EventType:   auditlog.EventMemberJoin,
			CommunityID: guild,
		})
		s.Require().NoError(err)
	}

	code, body := s.get("/diagnostics?recent=5&community=222")
	s.Equal(http.StatusOK, code)
	recent, ok := body["recent"].([]any)
	s.Require().True(ok)
	s.Require().Len(recent, 1)
	s.Equal("222", recent[0].(map[string]any)["community_id"])

	code, body = s.get("/diagnostics?recent=5&community=not-an-id")
	s.Equal(http.StatusOK, code)
	recent, ok = body["recent"].([]any)
	s.Require().True(ok)
	s.Len(recent, 3)
}

func (s *HandlerSuite) TestDiagnosticsRejectsBadLimit() {
	rr := httptestutil.DoRequest(s.router, httptestutil.NewRequest(s.T(), http.MethodGet, "/diagnostics?recent=-1"))
	httptestutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

// =============================================================================
// Metrics
// =============================================================================

func (s *HandlerSuite) TestMetricsExposition() {
	s.metrics.SetGatewayConnected(true)
	rr := httptestutil.DoRequest(s.router, httptestutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Equal(http.StatusOK, rr.Code)
	s.True(strings.Contains(rr.Body.String(), "sentrybot_gateway_connected 1"))
}
