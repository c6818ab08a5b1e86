package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"sentrybot/internal/auditlog"
)

// RoleNamer resolves a role id to its name within a guild.
type RoleNamer func(guildID, roleID string) string

// ChannelNamer resolves a channel id to its name.
type ChannelNamer func(channelID string) string

func jumpURL(guildID, channelID, messageID string) string {
	if guildID == "" || channelID == "" || messageID == "" {
		return ""
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

func toUser(u *discordgo.User) auditlog.User {
	if u == nil {
		return auditlog.User{}
	}
	return auditlog.User{
		ID:        u.ID,
		Name:      userName(u),
		AvatarURL: u.AvatarURL(""),
		Bot:       u.Bot,
	}
}

// userName drops the legacy "#0" discriminator of migrated accounts.
func userName(u *discordgo.User) string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

func toUserPtr(u *discordgo.User) *auditlog.User {
	if u == nil {
		return nil
	}
	out := toUser(u)
	return &out
}

func toMember(m *discordgo.Member, roleName RoleNamer) auditlog.Member {
	if m == nil {
		return auditlog.Member{}
	}
	out := auditlog.Member{
		User: toUser(m.User),
		Nick: m.Nick,
	}
	for _, id := range m.Roles {
		name := ""
		if roleName != nil {
			name = roleName(m.GuildID, id)
		}
		out.Roles = append(out.Roles, auditlog.Role{ID: id, Name: name})
	}
	return out
}

func toChannel(id string, channelName ChannelNamer) auditlog.Channel {
	ch := auditlog.Channel{ID: id}
	if channelName != nil && id != "" {
		ch.Name = channelName(id)
	}
	return ch
}

func toMessage(m *discordgo.Message, channelName ChannelNamer) auditlog.Message {
	if m == nil {
		return auditlog.Message{}
	}
	return auditlog.Message{
		ID:      m.ID,
		Channel: toChannel(m.ChannelID, channelName),
		Author:  toUserPtr(m.Author),
		Content: m.Content,
		JumpURL: jumpURL(m.GuildID, m.ChannelID, m.ID),
	}
}

func toVoiceState(vs *discordgo.VoiceState, channelName ChannelNamer) auditlog.VoiceState {
	if vs == nil {
		return auditlog.VoiceState{}
	}
	out := auditlog.VoiceState{
		SelfMute: vs.SelfMute,
		SelfDeaf: vs.SelfDeaf,
		Mute:     vs.Mute,
		Deaf:     vs.Deaf,
	}
	if vs.ChannelID != "" {
		ch := toChannel(vs.ChannelID, channelName)
		out.Channel = &ch
	}
	return out
}

// toEmbed converts the platform-neutral rendering into a discordgo embed.
func toEmbed(e auditlog.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       int(e.Color),
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.AuthorName != "" {
		out.Author = &discordgo.MessageEmbedAuthor{Name: e.AuthorName, IconURL: e.AuthorIconURL}
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	return out
}

func trailActionType(action auditlog.TrailAction) (discordgo.AuditLogAction, bool) {
	switch action {
	case auditlog.TrailRoleCreate:
		return discordgo.AuditLogActionRoleCreate, true
	case auditlog.TrailRoleDelete:
		return discordgo.AuditLogActionRoleDelete, true
	case auditlog.TrailChannelCreate:
		return discordgo.AuditLogActionChannelCreate, true
	case auditlog.TrailChannelDelete:
		return discordgo.AuditLogActionChannelDelete, true
	default:
		return 0, false
	}
}
