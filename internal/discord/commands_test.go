package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sentrybot/internal/admin"
	"sentrybot/internal/admin/mocks"
	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/mirror"
	"sentrybot/pkg/platform/sentinel"
)

type adminRoles []string

func (r adminRoles) AdminRoleIDs() []string { return r }

type CommandsSuite struct {
	suite.Suite
	probe    *mocks.MockHealthProbe
	db       *mocks.MockPinger
	reloader *mocks.MockReloader
	notifier *mocks.MockNotifier
	commands *Commands
}

func TestCommandsSuite(t *testing.T) {
	suite.Run(t, new(CommandsSuite))
}

func (s *CommandsSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.probe = mocks.NewMockHealthProbe(ctrl)
	s.db = mocks.NewMockPinger(ctrl)
	s.reloader = mocks.NewMockReloader(ctrl)
	s.notifier = mocks.NewMockNotifier(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := admin.New(adminRoles{"900"},
		admin.WithHealthProbe(s.probe),
		admin.WithDatabase(s.db),
		admin.WithReloader(s.reloader),
		admin.WithNotifier(s.notifier),
		admin.WithLogger(logger),
	)
	s.commands = NewCommands(svc, nil, logger)
}

func (s *CommandsSuite) TestParseCommand() {
	name, ok := parseCommand("  !Status now")
	s.True(ok)
	s.Equal("status", name)

	_, ok = parseCommand("status")
	s.False(ok)
	_, ok = parseCommand("!")
	s.False(ok)
}

func (s *CommandsSuite) TestUnknownPrefixCommandIsIgnored() {
	_, handled := s.commands.runPrefix(context.Background(), "help", []string{"900"}, true)
	s.False(handled)
}

func (s *CommandsSuite) TestPrefixAuthorization() {
	r, handled := s.commands.runPrefix(context.Background(), admin.CommandStatus, nil, false)
	s.True(handled)
	s.Equal(replyNotMember, r.content)

	r, handled = s.commands.runPrefix(context.Background(), admin.CommandReload, []string{"1"}, true)
	s.True(handled)
	s.Equal(replyNotAuthorized, r.content)
}

func (s *CommandsSuite) TestStatusRepliesWithEmbed() {
	s.probe.EXPECT().Probe(gomock.Any()).Return(`200 {"status":"ok"}`, nil)
	s.db.EXPECT().Ping(gomock.Any()).Return(nil)

	r, handled := s.commands.runPrefix(context.Background(), admin.CommandStatus, []string{"900"}, true)
	s.True(handled)
	s.Require().NotNil(r.embed)
	s.Equal("Sentry Status", r.embed.Title)
}

func (s *CommandsSuite) TestReload() {
	s.reloader.EXPECT().Reload().Return(nil)
	r, _ := s.commands.runPrefix(context.Background(), admin.CommandReload, []string{"900"}, true)
	s.Equal(replyReloaded, r.content)

	s.reloader.EXPECT().Reload().Return(errors.New("bad json"))
	r, _ = s.commands.runPrefix(context.Background(), admin.CommandReload, []string{"900"}, true)
	s.Equal("Reload failed: bad json", r.content)
}

func (s *CommandsSuite) TestCountersWithoutSources() {
	r, handled := s.commands.runPrefix(context.Background(), admin.CommandCounters, []string{"900"}, true)
	s.True(handled)
	s.Contains(r.content, "Failed to read counters")
}

func (s *CommandsSuite) TestReadyReplies() {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "notified", err: nil, want: replyNotified},
		{name: "no channel configured", err: mirror.ErrChannelNotConfigured, want: replyNoLogChannel},
		{name: "channel gone", err: fmt.Errorf("fetch channel 42: %w", sentinel.ErrNotFound), want: replyLogChannelGone},
		{name: "other failure", err: errors.New("rate limited"), want: "Failed to notify log channel: rate limited"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.notifier.EXPECT().Notify(gomock.Any(), admin.ReadyNotice, auditlog.ColorGreen).Return(tt.err)
			s.Equal(tt.want, s.commands.runReady(context.Background(), []string{"900"}, true))
		})
	}
}

func (s *CommandsSuite) TestReadyRequiresMembership() {
	s.Equal(replyNotMember, s.commands.runReady(context.Background(), nil, false))
	s.Equal(replyNotAuthorized, s.commands.runReady(context.Background(), []string{"1"}, true))
}
