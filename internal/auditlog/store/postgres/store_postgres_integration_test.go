//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/store/postgres"
	"sentrybot/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "logs")
	s.Require().NoError(err)
}

func newRecord(eventType auditlog.EventType, community string) auditlog.Record {
	return auditlog.Record{
		Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		EventType:   eventType,
		ActorID:     "100",
		ActorName:   "Alice",
		Description: "<@100> joined the server.",
		CommunityID: community,
	}
}

func (s *PostgresStoreSuite) TestAppendAssignsIncreasingIDs() {
	ctx := context.Background()

	first, err := s.store.Append(ctx, newRecord(auditlog.EventMemberJoin, "G1"))
	s.Require().NoError(err)
	second, err := s.store.Append(ctx, newRecord(auditlog.EventMemberJoin, "G1"))
	s.Require().NoError(err)

	s.Positive(first)
	s.Greater(second, first)
}

func (s *PostgresStoreSuite) TestRoundTripKeepsDetailsOrder() {
	ctx := context.Background()
	rec := newRecord(auditlog.EventNicknameChange, "G1")
	rec.Details = auditlog.Details{{Key: "Before", Value: "Bob"}, {Key: "After", Value: "Bobby"}}

	id, err := s.store.Append(ctx, rec)
	s.Require().NoError(err)

	records, err := s.store.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	got := records[0]
	s.Equal(id, got.ID)
	s.True(rec.Timestamp.Equal(got.Timestamp))
	s.Equal(auditlog.EventNicknameChange, got.EventType)
	s.Equal("Bob", got.Details.Map()["Before"])
	s.Equal("Bobby", got.Details.Map()["After"])
}

func (s *PostgresStoreSuite) TestEmptyIdentityStoresSentinels() {
	ctx := context.Background()
	_, err := s.store.Append(ctx, auditlog.Record{
		EventType:   auditlog.EventBulkMessageDelete,
		Description: "3 messages were deleted.",
	})
	s.Require().NoError(err)

	records, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(auditlog.SystemActorID, records[0].ActorID)
	s.Equal(auditlog.SystemActorName, records[0].ActorName)
	s.Equal(auditlog.UnknownCommunity, records[0].CommunityID)
	s.Nil(records[0].Details)
}

func (s *PostgresStoreSuite) TestListByCommunityAndCounts() {
	ctx := context.Background()
	for _, r := range []auditlog.Record{
		newRecord(auditlog.EventMemberJoin, "G1"),
		newRecord(auditlog.EventMemberJoin, "G2"),
		newRecord(auditlog.EventMemberRemove, "G1"),
	} {
		_, err := s.store.Append(ctx, r)
		s.Require().NoError(err)
	}

	g1, err := s.store.ListByCommunity(ctx, "G1", 10)
	s.Require().NoError(err)
	s.Require().Len(g1, 2)
	s.Equal(auditlog.EventMemberRemove, g1[0].EventType)

	counts, err := s.store.CountByType(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), counts[auditlog.EventMemberJoin])
	s.Equal(int64(1), counts[auditlog.EventMemberRemove])
}

func (s *PostgresStoreSuite) TestCanceledContextWritesNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.store.Append(ctx, newRecord(auditlog.EventMemberJoin, "G1"))
	s.ErrorIs(err, context.Canceled)

	records, err := s.store.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *PostgresStoreSuite) TestConcurrentAppendsAreAllCommitted() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Append(ctx, newRecord(auditlog.EventMessageDelete, "G1"))
			s.NoError(err)
		}()
	}
	wg.Wait()

	counts, err := s.store.CountByType(ctx)
	s.Require().NoError(err)
	s.Equal(int64(20), counts[auditlog.EventMessageDelete])
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	err := postgres.Migrate(s.postgres.DB, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.NoError(err)
}

func (s *PostgresStoreSuite) TestPing() {
	s.NoError(s.store.Ping(context.Background()))
}
