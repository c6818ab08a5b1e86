// Package discord adapts discordgo gateway events and REST calls to the audit log
// pipeline.
package discord

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	lru "github.com/hashicorp/golang-lru/v2"

	"sentrybot/internal/auditlog"
	platformmetrics "sentrybot/internal/platform/metrics"
	"sentrybot/pkg/eventcontext"
)

const (
	defaultEventTimeout = 30 * time.Second
	roleCacheSize       = 8192
	profileCacheSize    = 16384
)

// Intake is the set of entry points the adapter forwards events to.
type Intake interface {
	OnMemberJoin(ctx context.Context, ev auditlog.MemberEvent)
	OnMemberRemove(ctx context.Context, ev auditlog.MemberEvent)
	OnMemberBan(ctx context.Context, ev auditlog.BanEvent)
	OnMemberUnban(ctx context.Context, ev auditlog.BanEvent)
	OnMemberUpdate(ctx context.Context, ev auditlog.MemberUpdateEvent)
	OnUserUpdate(ctx context.Context, ev auditlog.UserUpdateEvent)
	OnMessageDelete(ctx context.Context, ev auditlog.MessageDeleteEvent)
	OnMessageEdit(ctx context.Context, ev auditlog.MessageEditEvent)
	OnBulkMessageDelete(ctx context.Context, ev auditlog.BulkDeleteEvent)
	OnRoleCreate(ctx context.Context, ev auditlog.RoleEvent)
	OnRoleDelete(ctx context.Context, ev auditlog.RoleEvent)
	OnChannelCreate(ctx context.Context, ev auditlog.ChannelEvent)
	OnChannelDelete(ctx context.Context, ev auditlog.ChannelEvent)
	OnVoiceStateUpdate(ctx context.Context, ev auditlog.VoiceStateEvent)
}

// profile is the last seen account-level state of a user.
type profile struct {
	name      string
	avatarURL string
}

// Adapter converts gateway events into intake calls. The gateway delivers no user
// update for other accounts, so username and avatar changes are derived from guild
// member updates and deduplicated across guilds through the profile cache.
type Adapter struct {
	intake  Intake
	logger  *slog.Logger
	metrics *platformmetrics.Metrics
	timeout time.Duration

	roles *lru.Cache[string, string]

	// profileMu makes the compare and swap in profileChange atomic. One profile change
	// arrives once per shared community, each on its own goroutine.
	profileMu sync.Mutex
	profiles  *lru.Cache[string, profile]

	ready atomic.Bool
}

// Option configures the Adapter.
type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func WithMetrics(m *platformmetrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithEventTimeout caps the work done for a single gateway event.
func WithEventTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAdapter creates the adapter.
func NewAdapter(intake Intake, opts ...Option) (*Adapter, error) {
	roles, err := lru.New[string, string](roleCacheSize)
	if err != nil {
		return nil, err
	}
	profiles, err := lru.New[string, profile](profileCacheSize)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		intake:   intake,
		logger:   slog.Default(),
		timeout:  defaultEventTimeout,
		roles:    roles,
		profiles: profiles,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Register attaches every handler to the session.
func (a *Adapter) Register(s *discordgo.Session) {
	s.AddHandler(a.onReady)
	s.AddHandler(a.onResumed)
	s.AddHandler(a.onDisconnect)
	s.AddHandler(a.onGuildCreate)
	s.AddHandler(a.onGuildRoleUpdate)
	s.AddHandler(a.onMemberAdd)
	s.AddHandler(a.onMemberRemove)
	s.AddHandler(a.onBanAdd)
	s.AddHandler(a.onBanRemove)
	s.AddHandler(a.onMemberUpdate)
	s.AddHandler(a.onMessageDelete)
	s.AddHandler(a.onMessageUpdate)
	s.AddHandler(a.onMessageDeleteBulk)
	s.AddHandler(a.onRoleCreate)
	s.AddHandler(a.onRoleDelete)
	s.AddHandler(a.onChannelCreate)
	s.AddHandler(a.onChannelDelete)
	s.AddHandler(a.onVoiceStateUpdate)
}

// Ready reports whether the gateway session is connected.
func (a *Adapter) Ready() bool {
	return a.ready.Load()
}

func (a *Adapter) eventContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	return eventcontext.WithTime(ctx, time.Now()), cancel
}

func (a *Adapter) setReady(ready bool) {
	a.ready.Store(ready)
	if a.metrics != nil {
		a.metrics.SetGatewayConnected(ready)
	}
}

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	a.setReady(true)
	for _, g := range r.Guilds {
		a.cacheRoles(g.ID, g.Roles)
	}
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	a.logger.Info("gateway session ready", "user", name, "guilds", len(r.Guilds))
}

func (a *Adapter) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	a.setReady(true)
	a.logger.Info("gateway session resumed")
}

func (a *Adapter) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	a.setReady(false)
	a.logger.Warn("gateway session disconnected")
}

func (a *Adapter) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}
	a.cacheRoles(g.ID, g.Roles)
	for _, m := range g.Members {
		a.seedProfile(m.User)
	}
}

func (a *Adapter) onGuildRoleUpdate(_ *discordgo.Session, e *discordgo.GuildRoleUpdate) {
	if e.GuildRole != nil && e.Role != nil {
		a.roles.Add(roleKey(e.GuildID, e.Role.ID), e.Role.Name)
	}
}

func (a *Adapter) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil {
		return
	}
	a.seedProfile(e.User)
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnMemberJoin(ctx, auditlog.MemberEvent{CommunityID: e.GuildID, Member: toMember(e.Member, a.roleName)})
}

func (a *Adapter) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnMemberRemove(ctx, auditlog.MemberEvent{CommunityID: e.GuildID, Member: toMember(e.Member, a.roleName)})
}

func (a *Adapter) onBanAdd(_ *discordgo.Session, e *discordgo.GuildBanAdd) {
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnMemberBan(ctx, auditlog.BanEvent{CommunityID: e.GuildID, User: toUser(e.User)})
}

func (a *Adapter) onBanRemove(_ *discordgo.Session, e *discordgo.GuildBanRemove) {
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnMemberUnban(ctx, auditlog.BanEvent{CommunityID: e.GuildID, User: toUser(e.User)})
}

func (a *Adapter) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.Member == nil || e.User == nil {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()

	if before, changed := a.profileChange(e.User); changed {
		a.intake.OnUserUpdate(ctx, auditlog.UserUpdateEvent{Before: before, After: toUser(e.User)})
	}

	// Members not in the state cache have no prior snapshot to diff against.
	if e.BeforeUpdate == nil {
		return
	}
	a.intake.OnMemberUpdate(ctx, auditlog.MemberUpdateEvent{
		CommunityID: e.GuildID,
		Before:      toMember(e.BeforeUpdate, a.roleName),
		After:       toMember(e.Member, a.roleName),
	})
}

func (a *Adapter) onMessageDelete(s *discordgo.Session, e *discordgo.MessageDelete) {
	// Only messages still held in the state cache carry content and author.
	if e.Message == nil || e.BeforeDelete == nil || e.GuildID == "" {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	msg := toMessage(e.BeforeDelete, a.channelNamer(s))
	if msg.Channel.ID == "" {
		msg.Channel = toChannel(e.ChannelID, a.channelNamer(s))
	}
	a.intake.OnMessageDelete(ctx, auditlog.MessageDeleteEvent{CommunityID: e.GuildID, Message: msg})
}

func (a *Adapter) onMessageUpdate(s *discordgo.Session, e *discordgo.MessageUpdate) {
	if e.BeforeUpdate == nil || e.Message == nil || e.GuildID == "" {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	names := a.channelNamer(s)
	after := toMessage(e.Message, names)
	if after.Author == nil {
		after.Author = toUserPtr(e.BeforeUpdate.Author)
	}
	a.intake.OnMessageEdit(ctx, auditlog.MessageEditEvent{
		CommunityID: e.GuildID,
		Before:      toMessage(e.BeforeUpdate, names),
		After:       after,
	})
}

func (a *Adapter) onMessageDeleteBulk(s *discordgo.Session, e *discordgo.MessageDeleteBulk) {
	if e.GuildID == "" {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnBulkMessageDelete(ctx, auditlog.BulkDeleteEvent{
		CommunityID: e.GuildID,
		Channel:     toChannel(e.ChannelID, a.channelNamer(s)),
		Count:       len(e.Messages),
	})
}

func (a *Adapter) onRoleCreate(_ *discordgo.Session, e *discordgo.GuildRoleCreate) {
	if e.GuildRole == nil || e.Role == nil {
		return
	}
	a.roles.Add(roleKey(e.GuildID, e.Role.ID), e.Role.Name)
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnRoleCreate(ctx, auditlog.RoleEvent{
		CommunityID: e.GuildID,
		Role:        auditlog.Role{ID: e.Role.ID, Name: e.Role.Name},
	})
}

func (a *Adapter) onRoleDelete(_ *discordgo.Session, e *discordgo.GuildRoleDelete) {
	// The state cache drops the role before handlers run; the name comes from our cache.
	key := roleKey(e.GuildID, e.RoleID)
	name, _ := a.roles.Get(key)
	a.roles.Remove(key)
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnRoleDelete(ctx, auditlog.RoleEvent{
		CommunityID: e.GuildID,
		Role:        auditlog.Role{ID: e.RoleID, Name: name},
	})
}

func (a *Adapter) onChannelCreate(_ *discordgo.Session, e *discordgo.ChannelCreate) {
	if e.Channel == nil || e.GuildID == "" {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnChannelCreate(ctx, auditlog.ChannelEvent{
		CommunityID: e.GuildID,
		Channel:     auditlog.Channel{ID: e.ID, Name: e.Name},
	})
}

func (a *Adapter) onChannelDelete(_ *discordgo.Session, e *discordgo.ChannelDelete) {
	if e.Channel == nil || e.GuildID == "" {
		return
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	a.intake.OnChannelDelete(ctx, auditlog.ChannelEvent{
		CommunityID: e.GuildID,
		Channel:     auditlog.Channel{ID: e.ID, Name: e.Name},
	})
}

func (a *Adapter) onVoiceStateUpdate(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e.VoiceState == nil || e.GuildID == "" {
		return
	}
	member := e.Member
	if member == nil && s != nil && s.State != nil {
		member, _ = s.State.Member(e.GuildID, e.UserID)
	}
	if member == nil {
		member = &discordgo.Member{GuildID: e.GuildID, User: &discordgo.User{ID: e.UserID}}
	}
	ctx, cancel := a.eventContext()
	defer cancel()
	names := a.channelNamer(s)
	a.intake.OnVoiceStateUpdate(ctx, auditlog.VoiceStateEvent{
		CommunityID: e.GuildID,
		Member:      toMember(member, a.roleName),
		Before:      toVoiceState(e.BeforeUpdate, names),
		After:       toVoiceState(e.VoiceState, names),
	})
}

func roleKey(guildID, roleID string) string {
	return guildID + "/" + roleID
}

func (a *Adapter) cacheRoles(guildID string, roles []*discordgo.Role) {
	for _, r := range roles {
		if r != nil {
			a.roles.Add(roleKey(guildID, r.ID), r.Name)
		}
	}
}

func (a *Adapter) roleName(guildID, roleID string) string {
	name, _ := a.roles.Get(roleKey(guildID, roleID))
	return name
}

func (a *Adapter) channelNamer(s *discordgo.Session) ChannelNamer {
	return func(channelID string) string {
		if s == nil || s.State == nil {
			return ""
		}
		ch, err := s.State.Channel(channelID)
		if err != nil {
			return ""
		}
		return ch.Name
	}
}

func (a *Adapter) seedProfile(u *discordgo.User) {
	if u == nil {
		return
	}
	a.profiles.ContainsOrAdd(u.ID, profileOf(u))
}

// profileChange stores the latest profile of u and returns the previous one when the
// username or avatar changed. The first sighting only seeds the cache.
func (a *Adapter) profileChange(u *discordgo.User) (auditlog.User, bool) {
	current := profileOf(u)

	a.profileMu.Lock()
	defer a.profileMu.Unlock()

	prev, seen, _ := a.profiles.PeekOrAdd(u.ID, current)
	if !seen || prev == current {
		return auditlog.User{}, false
	}
	a.profiles.Add(u.ID, current)

	return auditlog.User{ID: u.ID, Name: prev.name, AvatarURL: prev.avatarURL, Bot: u.Bot}, true
}

func profileOf(u *discordgo.User) profile {
	return profile{name: userName(u), avatarURL: u.AvatarURL("")}
}
