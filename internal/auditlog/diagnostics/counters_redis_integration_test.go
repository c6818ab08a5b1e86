//go:build integration

package diagnostics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/diagnostics"
	"sentrybot/pkg/testutil/containers"
)

type RedisCountersSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisCountersSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCountersSuite))
}

func (s *RedisCountersSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCountersSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCountersSuite) TestTotalsSurviveRestart() {
	ctx := context.Background()

	first := diagnostics.New(diagnostics.WithRedis(s.redis.Client))
	first.Inc(ctx, auditlog.KindMemberJoin)
	first.Inc(ctx, auditlog.KindMemberJoin)
	s.Require().NoError(first.Flush(ctx))

	second := diagnostics.New(diagnostics.WithRedis(s.redis.Client))
	second.Inc(ctx, auditlog.KindMemberJoin)

	s.Equal(int64(1), second.Get(auditlog.KindMemberJoin))
	totals, err := second.Totals(ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), totals["member_join"])
}

func (s *RedisCountersSuite) TestCustomKey() {
	ctx := context.Background()
	c := diagnostics.New(diagnostics.WithRedis(s.redis.Client), diagnostics.WithRedisKey("test:received"))
	c.Inc(ctx, auditlog.KindRoleDelete)
	s.Require().NoError(c.Flush(ctx))

	n, err := s.redis.Client.HGet(ctx, "test:received", "role_delete").Int64()
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *RedisCountersSuite) TestRunFlushesPeriodically() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := diagnostics.New(diagnostics.WithRedis(s.redis.Client), diagnostics.WithFlushInterval(20*time.Millisecond))
	go func() { _ = c.Run(ctx) }()
	c.Inc(ctx, auditlog.KindChannelCreate)

	s.Eventually(func() bool {
		n, err := s.redis.Client.HGet(ctx, diagnostics.DefaultRedisKey, "channel_create").Int64()
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func (s *RedisCountersSuite) TestFlushWithNothingPendingIsNoop() {
	ctx := context.Background()
	c := diagnostics.New(diagnostics.WithRedis(s.redis.Client))
	s.Require().NoError(c.Flush(ctx))

	n, err := s.redis.Client.Exists(ctx, diagnostics.DefaultRedisKey).Result()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RedisCountersSuite) TestClientHealth() {
	s.NoError(s.redis.Client.Health(context.Background()))
}
