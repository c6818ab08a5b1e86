package auditlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the fixed enumeration of record kinds written to the log.
type EventType string

const (
	// Membership
	EventMemberJoin   EventType = "member_join"
	EventMemberRemove EventType = "member_remove"
	EventMemberBan    EventType = "member_ban"
	EventMemberUnban  EventType = "member_unban"

	// Member and profile updates
	EventNicknameChange EventType = "nickname_change"
	EventRolesAdded     EventType = "roles_added"
	EventRolesRemoved   EventType = "roles_removed"
	EventUsernameChange EventType = "username_change"
	EventAvatarChange   EventType = "avatar_change"

	// Messages
	EventMessageDelete     EventType = "message_delete"
	EventMessageEdit       EventType = "message_edit"
	EventBulkMessageDelete EventType = "bulk_message_delete"

	// Roles and channels
	EventRoleCreate    EventType = "role_create"
	EventRoleDelete    EventType = "role_delete"
	EventChannelCreate EventType = "channel_create"
	EventChannelDelete EventType = "channel_delete"

	// Voice
	EventVoiceJoin  EventType = "voice_join"
	EventVoiceLeave EventType = "voice_leave"
	EventVoiceMove  EventType = "voice_move"
)

// eventColors maps each event type to the embed color used in the mirror channel.
var eventColors = map[EventType]Color{
	EventMemberJoin:        ColorGreen,
	EventMemberRemove:      ColorOrange,
	EventMemberBan:         ColorRed,
	EventMemberUnban:       ColorLightGrey,
	EventNicknameChange:    ColorPurple,
	EventRolesAdded:        ColorTeal,
	EventRolesRemoved:      ColorDarkTeal,
	EventUsernameChange:    ColorPurple,
	EventAvatarChange:      ColorPurple,
	EventMessageDelete:     ColorDarkRed,
	EventMessageEdit:       ColorGreyple,
	EventBulkMessageDelete: ColorDarkerRed,
	EventRoleCreate:        ColorBlue,
	EventRoleDelete:        ColorDarkBlue,
	EventChannelCreate:     ColorBlue,
	EventChannelDelete:     ColorDarkBlue,
	EventVoiceJoin:         ColorDarkGreen,
	EventVoiceLeave:        ColorDarkOrange,
	EventVoiceMove:         ColorDarkPurple,
}

// Valid reports whether e belongs to the fixed enumeration.
func (e EventType) Valid() bool {
	_, ok := eventColors[e]
	return ok
}

// Color returns the mirror color for the event type. Unknown types render blue.
func (e EventType) Color() Color {
	if c, ok := eventColors[e]; ok {
		return c
	}
	return ColorBlue
}

// EventTypes lists every event type in declaration order.
func EventTypes() []EventType {
	return []EventType{
		EventMemberJoin, EventMemberRemove, EventMemberBan, EventMemberUnban,
		EventNicknameChange, EventRolesAdded, EventRolesRemoved, EventUsernameChange, EventAvatarChange,
		EventMessageDelete, EventMessageEdit, EventBulkMessageDelete,
		EventRoleCreate, EventRoleDelete, EventChannelCreate, EventChannelDelete,
		EventVoiceJoin, EventVoiceLeave, EventVoiceMove,
	}
}

// Color is a 24-bit RGB value used as the severity tag of a mirrored record.
type Color int

const (
	ColorBlue       Color = 0x3498db
	ColorDarkBlue   Color = 0x206694
	ColorGreen      Color = 0x2ecc71
	ColorDarkGreen  Color = 0x1f8b4c
	ColorOrange     Color = 0xe67e22
	ColorDarkOrange Color = 0xa84300
	ColorRed        Color = 0xe74c3c
	ColorDarkRed    Color = 0x992d22
	ColorDarkerRed  Color = 0x6b1f18
	ColorLightGrey  Color = 0x979c9f
	ColorGreyple    Color = 0x99aab5
	ColorPurple     Color = 0x9b59b6
	ColorDarkPurple Color = 0x71368a
	ColorTeal       Color = 0x1abc9c
	ColorDarkTeal   Color = 0x11806a
)

// Sentinel identities used when no actor or community is known.
const (
	SystemActorID    = "0"
	SystemActorName  = "System"
	UnknownCommunity = "0"
)

// ErrMalformedPayload marks an event that could not be normalized. Such events are
// logged and dropped without producing a partial record.
var ErrMalformedPayload = errors.New("malformed payload")

// Record is the canonical unit persisted to the store and mirrored to the log channel.
// ID is zero until the store commits the record.
type Record struct {
	ID          int64
	Timestamp   time.Time
	EventType   EventType
	ActorID     string
	ActorName   string
	Description string
	CommunityID string
	Details     Details

	// ActorAvatarURL is presentation-only and never persisted.
	ActorAvatarURL string
}

// HasActor reports whether the record credits a real actor instead of the system sentinel.
func (r Record) HasActor() bool {
	return r.ActorID != "" && r.ActorID != SystemActorID
}

// Detail is one labeled supplementary value of a record.
type Detail struct {
	Key   string
	Value string
}

// Details is an ordered key/value list. Order is preserved for rendering; the store
// persists it as a JSON object.
type Details []Detail

// Get returns the value stored under key.
func (d Details) Get(key string) (string, bool) {
	for _, kv := range d {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Map returns the details as a plain map.
func (d Details) Map() map[string]string {
	if d == nil {
		return nil
	}
	m := make(map[string]string, len(d))
	for _, kv := range d {
		m[kv.Key] = kv.Value
	}
	return m
}

// MarshalJSON encodes the details as a JSON object, keeping insertion order.
func (d Details) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, fmt.Errorf("marshal detail key: %w", err)
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal detail value: %w", err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the document.
// Non-string values are kept in their JSON text form.
func (d *Details) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode details: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode details: expected object")
	}
	out := Details{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode details key: %w", err)
		}
		key, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode details value: %w", err)
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			s = string(raw)
		}
		out = append(out, Detail{Key: key, Value: s})
	}
	*d = out
	return nil
}
