package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"sentrybot/internal/auditlog"
	"sentrybot/pkg/eventcontext"
)

// Producer is the subset of *kgo.Client used by the exporter.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Exporter publishes committed audit records to a Kafka topic. Records are keyed by
// community so consumers see each community's records in commit order.
type Exporter struct {
	producer Producer
	topic    string
}

// NewExporter creates a stream exporter for topic.
func NewExporter(producer Producer, topic string) *Exporter {
	return &Exporter{producer: producer, topic: topic}
}

// recordPayload is the JSON document published per record.
type recordPayload struct {
	ID          int64            `json:"id"`
	EventID     string           `json:"event_id,omitempty"`
	Timestamp   string           `json:"timestamp"`
	EventType   string           `json:"event_type"`
	ActorID     string           `json:"actor_id"`
	ActorName   string           `json:"actor_name"`
	Description string           `json:"description"`
	CommunityID string           `json:"community_id"`
	Details     auditlog.Details `json:"details,omitempty"`
}

// Publish implements auditlog.Stream.
func (e *Exporter) Publish(ctx context.Context, record auditlog.Record) error {
	payload := recordPayload{
		ID:          record.ID,
		EventID:     eventcontext.EventID(ctx),
		Timestamp:   record.Timestamp.UTC().Format(time.RFC3339Nano),
		EventType:   string(record.EventType),
		ActorID:     record.ActorID,
		ActorName:   record.ActorName,
		Description: record.Description,
		CommunityID: record.CommunityID,
		Details:     record.Details,
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stream payload: %w", err)
	}

	rec := &kgo.Record{
		Topic: e.topic,
		Key:   []byte(record.CommunityID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "record_id", Value: []byte(strconv.FormatInt(record.ID, 10))},
			{Key: "event_type", Value: []byte(record.EventType)},
		},
	}
	if err := e.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record %d: %w", record.ID, err)
	}
	return nil
}
