package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Intents requested by the bot. Members and message content are privileged and must
// be enabled for the application.
const Intents = discordgo.IntentsAllWithoutPrivileged |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsMessageContent

// messageCacheSize bounds the per-channel message cache that delete and edit events
// read their previous content from.
const messageCacheSize = 1000

// NewSession creates a gateway session for a bot token. It does not connect.
func NewSession(token string, logger *slog.Logger) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.MaxMessageCount = messageCacheSize
	s.State.TrackMembers = true
	s.State.TrackRoles = true
	s.State.TrackChannels = true
	s.State.TrackVoice = true
	s.ShouldReconnectOnError = true

	if logger != nil {
		s.LogLevel = discordgo.LogWarning
		discordgo.Logger = func(msgL, _ int, format string, a ...any) {
			msg := fmt.Sprintf(format, a...)
			switch msgL {
			case discordgo.LogError:
				logger.Error("discordgo", "message", msg)
			case discordgo.LogWarning:
				logger.Warn("discordgo", "message", msg)
			default:
				logger.Debug("discordgo", "message", msg)
			}
		}
	}
	return s, nil
}
