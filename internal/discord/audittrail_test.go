package discord

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentrybot/internal/auditlog"
	"sentrybot/pkg/platform/sentinel"
)

type fakeAuditLog struct {
	guildID    string
	actionType int
	limit      int
	log        *discordgo.GuildAuditLog
	err        error
}

func (f *fakeAuditLog) GuildAuditLog(guildID, _, _ string, actionType, limit int, _ ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error) {
	f.guildID, f.actionType, f.limit = guildID, actionType, limit
	return f.log, f.err
}

func TestAuditTrailRecentEntries(t *testing.T) {
	t.Run("maps entries and actor profiles", func(t *testing.T) {
		api := &fakeAuditLog{log: &discordgo.GuildAuditLog{
			Users: []*discordgo.User{{ID: "100", Username: "alice", Discriminator: "0"}},
			AuditLogEntries: []*discordgo.AuditLogEntry{
				{TargetID: "R9", UserID: "100"},
				{TargetID: "R8"},
			},
		}}

		entries, err := NewAuditTrail(api).RecentEntries(context.Background(), "G1", auditlog.TrailRoleCreate, 8)
		require.NoError(t, err)

		assert.Equal(t, "G1", api.guildID)
		assert.Equal(t, int(discordgo.AuditLogActionRoleCreate), api.actionType)
		assert.Equal(t, 8, api.limit)
		require.Len(t, entries, 2)
		assert.Equal(t, "R9", entries[0].TargetID)
		require.NotNil(t, entries[0].Actor)
		assert.Equal(t, "alice", entries[0].Actor.Name)
		assert.Nil(t, entries[1].Actor)
	})

	t.Run("missing permission is reported as unavailable", func(t *testing.T) {
		api := &fakeAuditLog{err: &discordgo.RESTError{
			Response: &http.Response{StatusCode: http.StatusForbidden},
			Message:  &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingPermissions, Message: "Missing Permissions"},
		}}
		_, err := NewAuditTrail(api).RecentEntries(context.Background(), "G1", auditlog.TrailChannelDelete, 8)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := NewAuditTrail(&fakeAuditLog{}).RecentEntries(context.Background(), "G1", auditlog.TrailAction("pin"), 8)
		assert.Error(t, err)
	})
}

func TestMapRESTError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "unknown channel",
			err:  &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}, Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownChannel}},
			want: sentinel.ErrNotFound,
		},
		{
			name: "bare 404",
			err:  &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}},
			want: sentinel.ErrNotFound,
		},
		{
			name: "missing access",
			err:  &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}, Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeMissingAccess}},
			want: sentinel.ErrUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapRESTError(tt.err), tt.want)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		plain := errors.New("websocket closed")
		assert.Equal(t, plain, mapRESTError(plain))
	})
}
