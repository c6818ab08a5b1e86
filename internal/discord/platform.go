package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"sentrybot/internal/auditlog"
	"sentrybot/pkg/platform/sentinel"
)

// Platform implements mirror.Platform on a gateway session.
type Platform struct {
	session *discordgo.Session
}

func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

// CachedChannel reports whether the channel is in the session state cache.
func (p *Platform) CachedChannel(channelID string) bool {
	if p.session.State == nil {
		return false
	}
	_, err := p.session.State.Channel(channelID)
	return err == nil
}

// FetchChannel looks the channel up over the REST API.
func (p *Platform) FetchChannel(ctx context.Context, channelID string) error {
	if _, err := p.session.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("fetch channel %s: %w", channelID, mapRESTError(err))
	}
	return nil
}

// SendEmbed posts an embed into the channel.
func (p *Platform) SendEmbed(ctx context.Context, channelID string, embed auditlog.Embed) error {
	if _, err := p.session.ChannelMessageSendEmbed(channelID, toEmbed(embed), discordgo.WithContext(ctx)); err != nil {
		return mapRESTError(err)
	}
	return nil
}

// mapRESTError translates platform errors into sentinel errors.
func mapRESTError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuild:
			return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	}
	return err
}
