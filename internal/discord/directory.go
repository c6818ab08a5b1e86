package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Directory implements auditlog.Directory on the session state member cache. It needs
// the guild members intent to see members beyond the bot itself.
type Directory struct {
	state *discordgo.State
}

func NewDirectory(state *discordgo.State) *Directory {
	return &Directory{state: state}
}

// CommunitiesOf implements auditlog.Directory.
func (d *Directory) CommunitiesOf(ctx context.Context, userID string) ([]string, error) {
	if d.state == nil {
		return nil, nil
	}
	d.state.RLock()
	guildIDs := make([]string, 0, len(d.state.Guilds))
	for _, g := range d.state.Guilds {
		guildIDs = append(guildIDs, g.ID)
	}
	d.state.RUnlock()

	var out []string
	for _, id := range guildIDs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, err := d.state.Member(id, userID); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}
