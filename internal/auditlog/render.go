package auditlog

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Embed is the platform-neutral rendering of a record for the log channel.
type Embed struct {
	Title         string
	AuthorName    string
	AuthorIconURL string
	Description   string
	Color         Color
	Timestamp     time.Time
	Fields        []EmbedField
}

// EmbedField is one labeled detail of an Embed.
type EmbedField struct {
	Name  string
	Value string
}

const codeFence = "```"

// fenceValue renders a detail value as a code block that still fits one field.
func fenceValue(s string) string {
	if s == "" {
		return "N/A"
	}
	s = strings.ReplaceAll(s, codeFence, "`\u200b``")
	return codeFence + Truncate(s, MaxFieldLength-2*len(codeFence)) + codeFence
}

// titleLabel mirrors "snake_case" keys as "Snake Case". Casers are stateful, so one is
// built per call.
func titleLabel(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// Render builds the log channel rendering of a record. Records without an actor are
// titled after their event type.
func Render(rec Record, color Color) Embed {
	embed := Embed{
		Description: rec.Description,
		Color:       color,
		Timestamp:   rec.Timestamp.UTC(),
	}
	if rec.HasActor() {
		embed.AuthorName = rec.ActorName
		embed.AuthorIconURL = rec.ActorAvatarURL
	} else {
		embed.AuthorName = titleLabel(string(rec.EventType))
	}
	for _, d := range rec.Details {
		embed.Fields = append(embed.Fields, EmbedField{
			Name:  titleLabel(d.Key),
			Value: fenceValue(d.Value),
		})
	}
	return embed
}
