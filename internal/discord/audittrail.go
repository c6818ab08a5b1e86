package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"sentrybot/internal/auditlog"
)

// auditLogReader is the REST surface used to read the guild audit log.
type auditLogReader interface {
	GuildAuditLog(guildID, userID, beforeID string, actionType, limit int, options ...discordgo.RequestOption) (*discordgo.GuildAuditLog, error)
}

// AuditTrail implements auditlog.AuditTrail on the guild audit log endpoint. Reading it
// requires the View Audit Log permission; without it every lookup fails and the
// resolver falls back to the system actor.
type AuditTrail struct {
	api auditLogReader
}

func NewAuditTrail(api auditLogReader) *AuditTrail {
	return &AuditTrail{api: api}
}

// RecentEntries implements auditlog.AuditTrail.
func (t *AuditTrail) RecentEntries(ctx context.Context, communityID string, action auditlog.TrailAction, limit int) ([]auditlog.TrailEntry, error) {
	actionType, ok := trailActionType(action)
	if !ok {
		return nil, fmt.Errorf("unsupported audit trail action %q", action)
	}
	log, err := t.api.GuildAuditLog(communityID, "", "", int(actionType), limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read audit log of guild %s: %w", communityID, mapRESTError(err))
	}
	if log == nil {
		return nil, nil
	}

	users := make(map[string]*discordgo.User, len(log.Users))
	for _, u := range log.Users {
		if u != nil {
			users[u.ID] = u
		}
	}

	entries := make([]auditlog.TrailEntry, 0, len(log.AuditLogEntries))
	for _, e := range log.AuditLogEntries {
		if e == nil {
			continue
		}
		entry := auditlog.TrailEntry{TargetID: e.TargetID}
		if e.UserID != "" {
			actor := auditlog.Actor{ID: e.UserID}
			if u, ok := users[e.UserID]; ok {
				actor.Name = userName(u)
				actor.AvatarURL = u.AvatarURL("")
			}
			entry.Actor = &actor
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
