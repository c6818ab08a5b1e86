package auditlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sentrybot/internal/auditlog/metrics"
	"sentrybot/pkg/eventcontext"
)

// Publisher writes each record to the store and mirrors it to the log channel.
// Both sinks are attempted for every record and neither failure blocks the other;
// failures are logged and counted, never retried and never returned.
type Publisher struct {
	store   Store
	mirror  Mirror
	stream  Stream
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithLogger sets a logger for sink failures.
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithStream exports committed records to a stream sink.
func WithStream(stream Stream) PublisherOption {
	return func(p *Publisher) {
		p.stream = stream
	}
}

// NewPublisher creates a publisher over store and mirror. Either may be nil, in which
// case that sink is skipped.
func NewPublisher(store Store, mirror Mirror, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		mirror: mirror,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish commits the record and mirrors it. The returned record carries the
// store-assigned id when the commit succeeded and a zero id otherwise.
func (p *Publisher) Publish(ctx context.Context, record Record, color Color) Record {
	record.ID = 0
	if p.metrics != nil {
		p.metrics.IncRecordsBuilt(string(record.EventType))
	}

	committed := p.writeStore(ctx, &record)
	p.writeMirror(ctx, record, color)
	if committed {
		p.writeStream(ctx, record)
	}
	return record
}

func (p *Publisher) writeStore(ctx context.Context, record *Record) bool {
	if p.store == nil {
		return false
	}
	start := time.Now()
	var id int64
	err := safely(func() error {
		var appendErr error
		id, appendErr = p.store.Append(ctx, *record)
		return appendErr
	})
	if err != nil {
		p.fail(ctx, metrics.SinkStore, *record, "failed to write audit record to store", err)
		return false
	}
	record.ID = id
	if p.metrics != nil {
		p.metrics.ObserveStoreWrite(time.Since(start).Seconds())
		p.metrics.IncSinkWrite(metrics.SinkStore)
	}
	p.logger.DebugContext(ctx, "audit record stored",
		"event_id", eventcontext.EventID(ctx),
		"event_type", string(record.EventType),
		"record_id", id,
	)
	return true
}

func (p *Publisher) writeMirror(ctx context.Context, record Record, color Color) {
	if p.mirror == nil {
		return
	}
	if err := safely(func() error { return p.mirror.Send(ctx, record, color) }); err != nil {
		p.fail(ctx, metrics.SinkMirror, record, "failed to mirror audit record to log channel", err)
		return
	}
	if p.metrics != nil {
		p.metrics.IncSinkWrite(metrics.SinkMirror)
	}
}

func (p *Publisher) writeStream(ctx context.Context, record Record) {
	if p.stream == nil {
		return
	}
	if err := safely(func() error { return p.stream.Publish(ctx, record) }); err != nil {
		p.fail(ctx, metrics.SinkStream, record, "failed to export audit record to stream", err)
		return
	}
	if p.metrics != nil {
		p.metrics.IncSinkWrite(metrics.SinkStream)
	}
}

func (p *Publisher) fail(ctx context.Context, sink string, record Record, msg string, err error) {
	if p.metrics != nil {
		p.metrics.IncSinkFailure(sink)
	}
	p.logger.ErrorContext(ctx, msg,
		"sink", sink,
		"event_id", eventcontext.EventID(ctx),
		"event_type", string(record.EventType),
		"community_id", record.CommunityID,
		"actor_id", record.ActorID,
		"error", err,
	)
}

// safely runs fn and converts a panic into an error so one sink cannot take down the
// others.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return fn()
}
