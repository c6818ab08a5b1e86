package auditlog

import "fmt"

// User is a platform account as delivered on an event payload.
type User struct {
	ID        string
	Name      string
	AvatarURL string
	Bot       bool
}

// Mention returns the inline mention markup for the user.
func (u User) Mention() string {
	return fmt.Sprintf("<@%s>", u.ID)
}

func (u User) actor() Actor {
	return Actor{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// Member is a user scoped to one community.
type Member struct {
	User  User
	Nick  string
	Roles []Role
}

// Mention returns the inline mention markup for the member.
func (m Member) Mention() string {
	return m.User.Mention()
}

// Role is a community role.
type Role struct {
	ID   string
	Name string
}

// Mention returns the inline mention markup for the role.
func (r Role) Mention() string {
	return fmt.Sprintf("<@&%s>", r.ID)
}

// Channel is a text or voice channel.
type Channel struct {
	ID   string
	Name string
}

// Mention returns the inline mention markup for the channel.
func (c Channel) Mention() string {
	return fmt.Sprintf("<#%s>", c.ID)
}

// Message is a chat message. Author is nil when the platform did not deliver it.
type Message struct {
	ID      string
	Channel Channel
	Author  *User
	Content string
	JumpURL string
}

// VoiceState is the voice connection of a member. Channel is nil when disconnected.
type VoiceState struct {
	Channel  *Channel
	SelfMute bool
	SelfDeaf bool
	Mute     bool
	Deaf     bool
}

// Actor is the identity credited as responsible for an event.
type Actor struct {
	ID        string
	Name      string
	AvatarURL string
}

// MemberEvent covers join and leave.
type MemberEvent struct {
	CommunityID string
	Member      Member
}

// BanEvent covers ban and unban. User is the affected account.
type BanEvent struct {
	CommunityID string
	User        User
}

// MemberUpdateEvent carries the member before and after a nickname or role change.
type MemberUpdateEvent struct {
	CommunityID string
	Before      Member
	After       Member
}

// UserUpdateEvent carries a profile change that is not scoped to a community.
type UserUpdateEvent struct {
	Before User
	After  User
}

// MessageDeleteEvent carries the deleted message as last seen.
type MessageDeleteEvent struct {
	CommunityID string
	Message     Message
}

// MessageEditEvent carries the message before and after an edit.
type MessageEditEvent struct {
	CommunityID string
	Before      Message
	After       Message
}

// BulkDeleteEvent reports a purge of Count messages in one channel.
type BulkDeleteEvent struct {
	CommunityID string
	Channel     Channel
	Count       int
}

// RoleEvent covers role create and delete.
type RoleEvent struct {
	CommunityID string
	Role        Role
}

// ChannelEvent covers channel create and delete.
type ChannelEvent struct {
	CommunityID string
	Channel     Channel
}

// VoiceStateEvent carries a member's voice state transition.
type VoiceStateEvent struct {
	CommunityID string
	Member      Member
	Before      VoiceState
	After       VoiceState
}
