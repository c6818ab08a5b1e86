package auditlog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// errBotAuthored marks an event skipped because it was produced by a bot account.
var errBotAuthored = errors.New("bot authored")

// Entry is a built record plus the color it is mirrored with.
type Entry struct {
	Record Record
	Color  Color
}

func newEntry(now time.Time, eventType EventType, actor *Actor, description, communityID string, details Details) Entry {
	rec := Record{
		Timestamp:   now.UTC(),
		EventType:   eventType,
		ActorID:     SystemActorID,
		ActorName:   SystemActorName,
		Description: description,
		CommunityID: communityID,
		Details:     details,
	}
	if actor != nil && actor.ID != "" {
		rec.ActorID = actor.ID
		rec.ActorName = actor.Name
		rec.ActorAvatarURL = actor.AvatarURL
		if rec.ActorName == "" {
			rec.ActorName = actor.ID
		}
	}
	if rec.CommunityID == "" {
		rec.CommunityID = UnknownCommunity
	}
	return Entry{Record: rec, Color: eventType.Color()}
}

func requireUser(u User, what string) error {
	if u.ID == "" {
		return fmt.Errorf("%s has no id: %w", what, ErrMalformedPayload)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func buildMemberJoin(now time.Time, ev MemberEvent) ([]Entry, error) {
	if err := requireUser(ev.Member.User, "member"); err != nil {
		return nil, err
	}
	actor := ev.Member.User.actor()
	desc := fmt.Sprintf("%s joined the server.", ev.Member.Mention())
	return []Entry{newEntry(now, EventMemberJoin, &actor, desc, ev.CommunityID, nil)}, nil
}

func buildMemberRemove(now time.Time, ev MemberEvent) ([]Entry, error) {
	if err := requireUser(ev.Member.User, "member"); err != nil {
		return nil, err
	}
	actor := ev.Member.User.actor()
	desc := fmt.Sprintf("%s left the server.", ev.Member.Mention())
	return []Entry{newEntry(now, EventMemberRemove, &actor, desc, ev.CommunityID, nil)}, nil
}

// Ban and unban credit the affected user, not the moderator who issued the action.
func buildMemberBan(now time.Time, ev BanEvent) ([]Entry, error) {
	if err := requireUser(ev.User, "banned user"); err != nil {
		return nil, err
	}
	actor := ev.User.actor()
	desc := fmt.Sprintf("%s was banned.", ev.User.Mention())
	return []Entry{newEntry(now, EventMemberBan, &actor, desc, ev.CommunityID, nil)}, nil
}

func buildMemberUnban(now time.Time, ev BanEvent) ([]Entry, error) {
	if err := requireUser(ev.User, "unbanned user"); err != nil {
		return nil, err
	}
	actor := ev.User.actor()
	desc := fmt.Sprintf("%s was unbanned.", ev.User.Mention())
	return []Entry{newEntry(now, EventMemberUnban, &actor, desc, ev.CommunityID, nil)}, nil
}

func buildMemberUpdate(now time.Time, ev MemberUpdateEvent) ([]Entry, error) {
	if ev.Before.User.Bot {
		return nil, errBotAuthored
	}
	if err := requireUser(ev.After.User, "member"); err != nil {
		return nil, err
	}
	actor := ev.After.User.actor()
	mention := ev.After.Mention()

	var entries []Entry
	if ev.Before.Nick != ev.After.Nick {
		entries = append(entries, newEntry(now, EventNicknameChange, &actor,
			fmt.Sprintf("%s's nickname was changed.", mention), ev.CommunityID,
			Details{
				{Key: "Before", Value: truncateField(orNone(ev.Before.Nick))},
				{Key: "After", Value: truncateField(orNone(ev.After.Nick))},
			}))
	}

	added := roleDiff(ev.After.Roles, ev.Before.Roles)
	if len(added) > 0 {
		entries = append(entries, newEntry(now, EventRolesAdded, &actor,
			fmt.Sprintf("Roles added to %s", mention), ev.CommunityID,
			Details{{Key: "Roles", Value: truncateField(strings.Join(added, ", "))}}))
	}
	removed := roleDiff(ev.Before.Roles, ev.After.Roles)
	if len(removed) > 0 {
		entries = append(entries, newEntry(now, EventRolesRemoved, &actor,
			fmt.Sprintf("Roles removed from %s", mention), ev.CommunityID,
			Details{{Key: "Roles", Value: truncateField(strings.Join(removed, ", "))}}))
	}
	return entries, nil
}

// roleDiff returns the names of roles present in a but not in b, in a's order.
func roleDiff(a, b []Role) []string {
	present := make(map[string]struct{}, len(b))
	for _, r := range b {
		present[r.ID] = struct{}{}
	}
	var names []string
	for _, r := range a {
		if _, ok := present[r.ID]; ok {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.ID
		}
		names = append(names, name)
	}
	return names
}

// buildUserUpdate fans out one record per community the user belongs to.
func buildUserUpdate(now time.Time, ev UserUpdateEvent, communities []string) ([]Entry, error) {
	if ev.Before.Bot {
		return nil, errBotAuthored
	}
	if err := requireUser(ev.After, "user"); err != nil {
		return nil, err
	}
	actor := ev.After.actor()
	mention := ev.After.Mention()

	var entries []Entry
	if ev.Before.Name != ev.After.Name {
		details := Details{
			{Key: "Before", Value: truncateField(ev.Before.Name)},
			{Key: "After", Value: truncateField(ev.After.Name)},
		}
		for _, community := range communities {
			entries = append(entries, newEntry(now, EventUsernameChange, &actor,
				fmt.Sprintf("%s's username was changed.", mention), community, details))
		}
	}
	if ev.Before.AvatarURL != ev.After.AvatarURL {
		details := Details{{Key: "Avatar URL", Value: truncateField(ev.After.AvatarURL)}}
		for _, community := range communities {
			entries = append(entries, newEntry(now, EventAvatarChange, &actor,
				fmt.Sprintf("%s's avatar was changed.", mention), community, details))
		}
	}
	return entries, nil
}

func buildMessageDelete(now time.Time, ev MessageDeleteEvent) ([]Entry, error) {
	author := ev.Message.Author
	if author == nil || author.ID == "" {
		return nil, fmt.Errorf("deleted message has no author: %w", ErrMalformedPayload)
	}
	if author.Bot {
		return nil, errBotAuthored
	}
	actor := author.actor()
	details := Details{
		{Key: "Content", Value: truncateField(orNA(ev.Message.Content))},
		{Key: "Channel", Value: ev.Message.Channel.Mention()},
	}
	return []Entry{newEntry(now, EventMessageDelete, &actor, "A message was deleted.", ev.CommunityID, details)}, nil
}

// buildMessageEdit returns no entries when the content did not change (embed unfurls
// and pin updates arrive as edits too).
func buildMessageEdit(now time.Time, ev MessageEditEvent) ([]Entry, error) {
	author := ev.Before.Author
	if author == nil {
		author = ev.After.Author
	}
	if author == nil || author.ID == "" {
		return nil, fmt.Errorf("edited message has no author: %w", ErrMalformedPayload)
	}
	if author.Bot {
		return nil, errBotAuthored
	}
	if ev.Before.Content == ev.After.Content {
		return nil, nil
	}
	actor := author.actor()
	desc := "A message was edited."
	if ev.After.JumpURL != "" {
		desc = fmt.Sprintf("A message was edited. [Jump to Message](%s)", ev.After.JumpURL)
	}
	channel := ev.Before.Channel
	if channel.ID == "" {
		channel = ev.After.Channel
	}
	details := Details{
		{Key: "Before", Value: truncateField(ev.Before.Content)},
		{Key: "After", Value: truncateField(ev.After.Content)},
		{Key: "Channel", Value: channel.Mention()},
	}
	return []Entry{newEntry(now, EventMessageEdit, &actor, desc, ev.CommunityID, details)}, nil
}

func buildBulkDelete(now time.Time, ev BulkDeleteEvent) ([]Entry, error) {
	if ev.Count <= 0 {
		return nil, fmt.Errorf("bulk delete without messages: %w", ErrMalformedPayload)
	}
	details := Details{
		{Key: "Count", Value: strconv.Itoa(ev.Count)},
		{Key: "Channel", Value: ev.Channel.Mention()},
	}
	desc := fmt.Sprintf("%d messages were deleted.", ev.Count)
	return []Entry{newEntry(now, EventBulkMessageDelete, nil, desc, ev.CommunityID, details)}, nil
}

func byActor(actor *Actor) string {
	if actor == nil || actor.ID == "" {
		return ""
	}
	return fmt.Sprintf(" by <@%s>", actor.ID)
}

func buildRoleCreate(now time.Time, ev RoleEvent, actor *Actor) ([]Entry, error) {
	if ev.Role.ID == "" {
		return nil, fmt.Errorf("role has no id: %w", ErrMalformedPayload)
	}
	desc := fmt.Sprintf("Role %s (`%s`) was created%s.", ev.Role.Mention(), ev.Role.Name, byActor(actor))
	return []Entry{newEntry(now, EventRoleCreate, actor, desc, ev.CommunityID, nil)}, nil
}

// A deleted role can no longer be mentioned, so only its name is rendered.
func buildRoleDelete(now time.Time, ev RoleEvent, actor *Actor) ([]Entry, error) {
	if ev.Role.ID == "" {
		return nil, fmt.Errorf("role has no id: %w", ErrMalformedPayload)
	}
	name := ev.Role.Name
	if name == "" {
		name = ev.Role.ID
	}
	desc := fmt.Sprintf("Role `%s` was deleted%s.", name, byActor(actor))
	return []Entry{newEntry(now, EventRoleDelete, actor, desc, ev.CommunityID, nil)}, nil
}

func buildChannelCreate(now time.Time, ev ChannelEvent, actor *Actor) ([]Entry, error) {
	if ev.Channel.ID == "" {
		return nil, fmt.Errorf("channel has no id: %w", ErrMalformedPayload)
	}
	desc := fmt.Sprintf("Channel `%s` was created%s.", ev.Channel.Name, byActor(actor))
	return []Entry{newEntry(now, EventChannelCreate, actor, desc, ev.CommunityID, nil)}, nil
}

func buildChannelDelete(now time.Time, ev ChannelEvent, actor *Actor) ([]Entry, error) {
	if ev.Channel.ID == "" {
		return nil, fmt.Errorf("channel has no id: %w", ErrMalformedPayload)
	}
	desc := fmt.Sprintf("Channel `%s` was deleted%s.", ev.Channel.Name, byActor(actor))
	return []Entry{newEntry(now, EventChannelDelete, actor, desc, ev.CommunityID, nil)}, nil
}

// buildVoiceState handles join, leave and move. Mute and deafen changes keep the same
// channel and produce nothing.
func buildVoiceState(now time.Time, ev VoiceStateEvent) ([]Entry, error) {
	if ev.Member.User.Bot {
		return nil, errBotAuthored
	}
	if err := requireUser(ev.Member.User, "voice member"); err != nil {
		return nil, err
	}
	actor := ev.Member.User.actor()
	mention := ev.Member.Mention()
	before, after := ev.Before.Channel, ev.After.Channel

	switch {
	case before == nil && after != nil:
		desc := fmt.Sprintf("%s joined voice channel `%s`.", mention, after.Name)
		return []Entry{newEntry(now, EventVoiceJoin, &actor, desc, ev.CommunityID, nil)}, nil
	case before != nil && after == nil:
		desc := fmt.Sprintf("%s left voice channel `%s`.", mention, before.Name)
		return []Entry{newEntry(now, EventVoiceLeave, &actor, desc, ev.CommunityID, nil)}, nil
	case before != nil && after != nil && before.ID != after.ID:
		details := Details{
			{Key: "From", Value: before.Name},
			{Key: "To", Value: after.Name},
		}
		desc := fmt.Sprintf("%s moved voice channels.", mention)
		return []Entry{newEntry(now, EventVoiceMove, &actor, desc, ev.CommunityID, details)}, nil
	}
	return nil, nil
}
