package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"sentrybot/internal/admin"
	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/mirror"
	"sentrybot/pkg/platform/sentinel"
)

const (
	commandPrefix  = "!"
	commandTimeout = 15 * time.Second
)

// Replies shown to operators.
const (
	replyNotMember      = "Command must be used in a guild by a member."
	replyNotAuthorized  = "You are not authorized to run this command."
	replyReloaded       = "Configuration reloaded."
	replyNoLogChannel   = "Log channel is not configured."
	replyLogChannelGone = "Could not find the configured log channel."
	replyNotified       = "Notified log channel."
)

var slashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        admin.CommandReady,
		Description: "Notify the configured log channel that the bot is ready",
	},
}

// reply is a command response, either plain text or an embed.
type reply struct {
	content string
	embed   *auditlog.Embed
}

// Commands serves the operator prefix commands and the ready slash command.
type Commands struct {
	admin      *admin.Service
	devGuildID func() string
	logger     *slog.Logger
	syncOnce   sync.Once
}

// NewCommands creates the command handlers. devGuildID is consulted when the
// application commands are synced on the first ready event.
func NewCommands(svc *admin.Service, devGuildID func() string, logger *slog.Logger) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{admin: svc, devGuildID: devGuildID, logger: logger}
}

// Register attaches the command handlers to the session.
func (c *Commands) Register(s *discordgo.Session) {
	s.AddHandler(c.onReady)
	s.AddHandler(c.onMessageCreate)
	s.AddHandler(c.onInteractionCreate)
}

// onReady syncs the slash commands once: to the development guild first for immediate
// availability, then globally.
func (c *Commands) onReady(s *discordgo.Session, r *discordgo.Ready) {
	c.syncOnce.Do(func() {
		if r.User == nil {
			return
		}
		appID := r.User.ID
		if c.devGuildID != nil {
			if guildID := c.devGuildID(); guildID != "" {
				if _, err := s.ApplicationCommandBulkOverwrite(appID, guildID, slashCommands); err != nil {
					c.logger.Warn("failed to sync application commands to dev guild", "guild_id", guildID, "error", err)
				} else {
					c.logger.Info("application commands synced to dev guild", "guild_id", guildID)
				}
			}
		}
		if _, err := s.ApplicationCommandBulkOverwrite(appID, "", slashCommands); err != nil {
			c.logger.Warn("failed to sync application commands", "error", err)
			return
		}
		c.logger.Info("application commands globally synced")
	})
}

func (c *Commands) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	name, ok := parseCommand(m.Content)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var roles []string
	isMember := m.GuildID != "" && m.Member != nil
	if isMember {
		roles = m.Member.Roles
	}
	r, handled := c.runPrefix(ctx, name, roles, isMember)
	if !handled {
		return
	}
	c.logger.InfoContext(ctx, "operator command", "command", name, "user_id", m.Author.ID, "guild_id", m.GuildID)

	var err error
	if r.embed != nil {
		_, err = s.ChannelMessageSendEmbed(m.ChannelID, toEmbed(*r.embed), discordgo.WithContext(ctx))
	} else {
		_, err = s.ChannelMessageSend(m.ChannelID, r.content, discordgo.WithContext(ctx))
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to reply to command", "command", name, "error", err)
	}
}

// parseCommand extracts the command name from a "!name args" message.
func parseCommand(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, commandPrefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, commandPrefix))
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(fields[0]), true
}

// runPrefix executes a prefix command. Unknown commands are ignored.
func (c *Commands) runPrefix(ctx context.Context, name string, roles []string, isMember bool) (reply, bool) {
	switch name {
	case admin.CommandStatus, admin.CommandCounters, admin.CommandReload:
	default:
		return reply{}, false
	}
	if r, denied := c.authorize(name, roles, isMember); denied {
		return r, true
	}

	switch name {
	case admin.CommandStatus:
		embed := c.admin.Status(ctx).Embed()
		return reply{embed: &embed}, true
	case admin.CommandCounters:
		rows, err := c.admin.Counters(ctx)
		if err != nil {
			return reply{content: fmt.Sprintf("Failed to read counters: %v", err)}, true
		}
		embed := admin.CountersEmbed(rows)
		return reply{embed: &embed}, true
	default:
		if err := c.admin.Reload(ctx); err != nil {
			return reply{content: fmt.Sprintf("Reload failed: %v", err)}, true
		}
		return reply{content: replyReloaded}, true
	}
}

func (c *Commands) authorize(command string, roles []string, isMember bool) (reply, bool) {
	err := c.admin.Authorize(roles, isMember)
	switch {
	case err == nil:
		return reply{}, false
	case errors.Is(err, admin.ErrNotMember):
		c.admin.Denied(command)
		return reply{content: replyNotMember}, true
	default:
		c.admin.Denied(command)
		return reply{content: replyNotAuthorized}, true
	}
}

func (c *Commands) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.ApplicationCommandData().Name != admin.CommandReady {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var roles []string
	isMember := i.GuildID != "" && i.Member != nil
	if isMember {
		roles = i.Member.Roles
	}
	content := c.runReady(ctx, roles, isMember)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to respond to interaction", "command", admin.CommandReady, "error", err)
	}
}

// runReady executes the ready slash command and returns the ephemeral reply.
func (c *Commands) runReady(ctx context.Context, roles []string, isMember bool) string {
	if r, denied := c.authorize(admin.CommandReady, roles, isMember); denied {
		return r.content
	}
	err := c.admin.Ready(ctx)
	switch {
	case err == nil:
		return replyNotified
	case errors.Is(err, mirror.ErrChannelNotConfigured):
		return replyNoLogChannel
	case errors.Is(err, sentinel.ErrNotFound):
		return replyLogChannelGone
	default:
		return fmt.Sprintf("Failed to notify log channel: %v", err)
	}
}
