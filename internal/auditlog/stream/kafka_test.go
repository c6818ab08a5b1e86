package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"sentrybot/internal/auditlog"
	"sentrybot/pkg/eventcontext"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.records = append(f.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func TestExporterPublish(t *testing.T) {
	rec := auditlog.Record{
		ID:          12,
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		EventType:   auditlog.EventNicknameChange,
		ActorID:     "100",
		ActorName:   "Alice",
		Description: "<@100>'s nickname was changed.",
		CommunityID: "G1",
		Details:     auditlog.Details{{Key: "Before", Value: "Bob"}, {Key: "After", Value: "Bobby"}},
	}

	t.Run("publishes a keyed JSON document", func(t *testing.T) {
		producer := &fakeProducer{}
		ctx := eventcontext.WithEventID(context.Background(), "evt-1")

		require.NoError(t, NewExporter(producer, "audit.records").Publish(ctx, rec))
		require.Len(t, producer.records, 1)
		got := producer.records[0]
		assert.Equal(t, "audit.records", got.Topic)
		assert.Equal(t, "G1", string(got.Key))

		var payload map[string]any
		require.NoError(t, json.Unmarshal(got.Value, &payload))
		assert.Equal(t, float64(12), payload["id"])
		assert.Equal(t, "evt-1", payload["event_id"])
		assert.Equal(t, "nickname_change", payload["event_type"])
		assert.Equal(t, "2024-05-01T12:00:00Z", payload["timestamp"])
		assert.Equal(t, map[string]any{"Before": "Bob", "After": "Bobby"}, payload["details"])
		assert.Contains(t, got.Headers, kgo.RecordHeader{Key: "record_id", Value: []byte("12")})
	})

	t.Run("producer errors are returned", func(t *testing.T) {
		producer := &fakeProducer{err: errors.New("not leader for partition")}
		err := NewExporter(producer, "audit.records").Publish(context.Background(), rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "produce audit record 12")
	})
}
