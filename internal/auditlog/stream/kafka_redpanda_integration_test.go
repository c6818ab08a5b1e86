//go:build integration

package stream_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/stream"
	"sentrybot/pkg/testutil/containers"
)

type RedpandaExporterSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
}

func TestRedpandaExporterSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedpandaExporterSuite))
}

func (s *RedpandaExporterSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	client, err := kgo.NewClient(kgo.SeedBrokers(s.redpanda.Brokers...), kgo.AllowAutoTopicCreation())
	s.Require().NoError(err)
	s.client = client
}

func (s *RedpandaExporterSuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *RedpandaExporterSuite) TestPublishedRecordIsConsumable() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	topic := "sentrybot.records." + time.Now().Format("150405.000000")

	err := stream.NewExporter(s.client, topic).Publish(ctx, auditlog.Record{
		ID:          3,
		Timestamp:   time.Now().UTC(),
		EventType:   auditlog.EventMemberBan,
		ActorID:     "100",
		ActorName:   "Alice",
		Description: "<@100> was banned.",
		CommunityID: "G1",
	})
	s.Require().NoError(err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal("G1", string(records[0].Key))

	var payload struct {
		ID        int64  `json:"id"`
		EventType string `json:"event_type"`
	}
	s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
	s.Equal(int64(3), payload.ID)
	s.Equal("member_ban", payload.EventType)
}
