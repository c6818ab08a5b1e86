// Package health serves the liveness, readiness, metrics and diagnostics endpoints.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentrybot/internal/auditlog"
	platformmetrics "sentrybot/internal/platform/metrics"
	"sentrybot/pkg/platform/httputil"
)

const (
	defaultCheckTimeout = 3 * time.Second
	maxRecentRecords    = 100
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecordReader exposes stored record statistics.
type RecordReader interface {
	CountByType(ctx context.Context) (map[auditlog.EventType]int64, error)
	ListRecent(ctx context.Context, limit int) ([]auditlog.Record, error)
	ListByCommunity(ctx context.Context, communityID string, limit int) ([]auditlog.Record, error)
}

// CounterSnapshot exposes the received counters.
type CounterSnapshot interface {
	Snapshot() map[string]int64
}

// Handler serves the health endpoints.
type Handler struct {
	db           Pinger
	records      RecordReader
	counters     CounterSnapshot
	gatewayReady func() bool
	gatherer     prometheus.Gatherer
	metrics      *platformmetrics.Metrics
	logger       *slog.Logger
	timeout      time.Duration
	optional     []dependency
}

type dependency struct {
	name  string
	check func(ctx context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

func WithRecords(r RecordReader) Option {
	return func(h *Handler) { h.records = r }
}

func WithCounters(c CounterSnapshot) Option {
	return func(h *Handler) { h.counters = c }
}

// WithGatewayReady sets the probe reporting whether the gateway session is ready.
func WithGatewayReady(fn func() bool) Option {
	return func(h *Handler) { h.gatewayReady = fn }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithCheckTimeout caps each dependency check.
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithOptional adds a dependency reported on /ready. A failing optional dependency
// does not make the bot unready.
func WithOptional(name string, check func(ctx context.Context) error) Option {
	return func(h *Handler) {
		if check != nil {
			h.optional = append(h.optional, dependency{name: name, check: check})
		}
	}
}

func New(db Pinger, opts ...Option) *Handler {
	h := &Handler{
		db:       db,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		timeout:  defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the chi router with all endpoints mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/diagnostics", h.handleDiagnostics)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return r
}

type statusResponse struct {
	Status   string            `json:"status"`
	Error    string            `json:"error,omitempty"`
	Gateway  *bool             `json:"gateway,omitempty"`
	Database string            `json:"database,omitempty"`
	Optional map[string]string `json:"optional,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.checkDB(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "error", err)
		h.observe("health", "unhealthy")
		httputil.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	h.observe("health", "ok")
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gateway := h.gatewayReady == nil || h.gatewayReady()
	resp := statusResponse{Status: "ready", Gateway: &gateway, Database: "ok"}
	status := http.StatusOK

	if err := h.checkDB(ctx); err != nil {
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	if !gateway {
		status = http.StatusServiceUnavailable
	}
	if len(h.optional) > 0 {
		resp.Optional = make(map[string]string, len(h.optional))
		for _, dep := range h.optional {
			resp.Optional[dep.name] = h.checkOptional(ctx, dep)
		}
	}
	if status != http.StatusOK {
		resp.Status = "not_ready"
	}
	h.observe("ready", resp.Status)
	httputil.WriteJSON(w, status, resp)
}

type diagnosticsResponse struct {
	Received map[string]int64 `json:"received"`
	Stored   map[string]int64 `json:"stored,omitempty"`
	Recent   []recordView     `json:"recent,omitempty"`
}

type recordView struct {
	ID          int64            `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	EventType   string           `json:"event_type"`
	ActorID     string           `json:"actor_id"`
	ActorName   string           `json:"actor_name"`
	Description string           `json:"description"`
	CommunityID string           `json:"community_id"`
	Details     auditlog.Details `json:"details,omitempty"`
}

func toView(r auditlog.Record) recordView {
	return recordView{
		ID:          r.ID,
		Timestamp:   r.Timestamp.UTC(),
		EventType:   string(r.EventType),
		ActorID:     r.ActorID,
		ActorName:   r.ActorName,
		Description: r.Description,
		CommunityID: r.CommunityID,
		Details:     r.Details,
	}
}

func (h *Handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := diagnosticsResponse{Received: map[string]int64{}}
	if h.counters != nil {
		resp.Received = h.counters.Snapshot()
	}

	limit := 0
	if raw := r.URL.Query().Get("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, errInvalidRecent)
			return
		}
		limit = min(n, maxRecentRecords)
	}

	if h.records != nil {
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		counts, err := h.records.CountByType(cctx)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to count stored records", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Stored = make(map[string]int64, len(counts))
		for et, n := range counts {
			resp.Stored[string(et)] = n
		}

		if limit > 0 {
			recent, err := h.listRecent(cctx, r.URL.Query().Get("community"), limit)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to list recent records", "error", err)
				httputil.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			resp.Recent = make([]recordView, 0, len(recent))
			for _, rec := range recent {
				resp.Recent = append(resp.Recent, toView(rec))
			}
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// listRecent narrows to one community when a snowflake id is given.
func (h *Handler) listRecent(ctx context.Context, community string, limit int) ([]auditlog.Record, error) {
	if _, err := snowflake.ParseString(community); err != nil {
		return h.records.ListRecent(ctx, limit)
	}
	return h.records.ListByCommunity(ctx, community, limit)
}

func (h *Handler) checkDB(ctx context.Context) error {
	if h.db == nil {
		return errNoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.Ping(ctx)
}

func (h *Handler) checkOptional(ctx context.Context, dep dependency) string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := dep.check(ctx); err != nil {
		h.logger.WarnContext(ctx, "optional dependency check failed", "dependency", dep.name, "error", err)
		return err.Error()
	}
	return "ok"
}

func (h *Handler) observe(endpoint, status string) {
	if h.metrics != nil {
		h.metrics.IncHealthCheck(endpoint, status)
	}
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
