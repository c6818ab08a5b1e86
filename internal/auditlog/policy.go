package auditlog

// Kind names an intake entry point. Diagnostics counters are keyed by Kind.
type Kind string

const (
	KindMemberJoin        Kind = "member_join"
	KindMemberRemove      Kind = "member_remove"
	KindMemberBan         Kind = "member_ban"
	KindMemberUnban       Kind = "member_unban"
	KindMemberUpdate      Kind = "member_update"
	KindUserUpdate        Kind = "user_update"
	KindMessageDelete     Kind = "message_delete"
	KindMessageEdit       Kind = "message_edit"
	KindBulkMessageDelete Kind = "bulk_message_delete"
	KindRoleCreate        Kind = "role_create"
	KindRoleDelete        Kind = "role_delete"
	KindChannelCreate     Kind = "channel_create"
	KindChannelDelete     Kind = "channel_delete"
	KindVoiceStateUpdate  Kind = "voice_state_update"
)

// policyKeys maps each intake kind to its key in the configured events map.
var policyKeys = map[Kind]string{
	KindMemberJoin:        "on_member_join",
	KindMemberRemove:      "on_member_remove",
	KindMemberBan:         "on_member_ban",
	KindMemberUnban:       "on_member_unban",
	KindMemberUpdate:      "on_member_update",
	KindUserUpdate:        "on_user_update",
	KindMessageDelete:     "on_message_delete",
	KindMessageEdit:       "on_message_edit",
	KindBulkMessageDelete: "on_bulk_message_delete",
	KindRoleCreate:        "on_guild_role_create",
	KindRoleDelete:        "on_guild_role_delete",
	KindChannelCreate:     "on_guild_channel_create",
	KindChannelDelete:     "on_guild_channel_delete",
	KindVoiceStateUpdate:  "on_voice_state_update",
}

// PolicyKey returns the configuration key that enables the kind.
func (k Kind) PolicyKey() string {
	return policyKeys[k]
}

var kindEventTypes = map[Kind][]EventType{
	KindMemberJoin:        {EventMemberJoin},
	KindMemberRemove:      {EventMemberRemove},
	KindMemberBan:         {EventMemberBan},
	KindMemberUnban:       {EventMemberUnban},
	KindMemberUpdate:      {EventNicknameChange, EventRolesAdded, EventRolesRemoved},
	KindUserUpdate:        {EventUsernameChange, EventAvatarChange},
	KindMessageDelete:     {EventMessageDelete},
	KindMessageEdit:       {EventMessageEdit},
	KindBulkMessageDelete: {EventBulkMessageDelete},
	KindRoleCreate:        {EventRoleCreate},
	KindRoleDelete:        {EventRoleDelete},
	KindChannelCreate:     {EventChannelCreate},
	KindChannelDelete:     {EventChannelDelete},
	KindVoiceStateUpdate:  {EventVoiceJoin, EventVoiceLeave, EventVoiceMove},
}

// EventTypes returns the record types an intake kind can produce.
func (k Kind) EventTypes() []EventType {
	return kindEventTypes[k]
}

// Kinds lists every intake kind.
func Kinds() []Kind {
	return []Kind{
		KindMemberJoin, KindMemberRemove, KindMemberBan, KindMemberUnban,
		KindMemberUpdate, KindUserUpdate,
		KindMessageDelete, KindMessageEdit, KindBulkMessageDelete,
		KindRoleCreate, KindRoleDelete, KindChannelCreate, KindChannelDelete,
		KindVoiceStateUpdate,
	}
}

// Policy reports whether an event kind is enabled. Implementations are read on every
// event so a reloaded configuration takes effect without a restart.
type Policy interface {
	Enabled(policyKey string) bool
}

// StaticPolicy is a fixed map policy. Absent keys are disabled.
type StaticPolicy map[string]bool

// Enabled implements Policy.
func (p StaticPolicy) Enabled(policyKey string) bool {
	return p[policyKey]
}

func enabled(p Policy, k Kind) bool {
	if p == nil {
		return false
	}
	return p.Enabled(k.PolicyKey())
}
