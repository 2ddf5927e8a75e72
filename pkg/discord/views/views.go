// Package views holds the embeds, buttons and channel lookups shared by the
// ticket, payment and dashboard handlers.
package views

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Component handler prefixes. Every custom_id is "<handler>:<action>:<transport id>".
const (
	HandlerTicket = "ticket"
	HandlerPay    = "pay"
	HandlerShip   = "ship"
	HandlerClient = "client"
	HandlerReport = "report"
	HandlerConfig = "cfg"
	HandlerBank   = "bank"
)

// ErrChannelNotFound is returned when a configured channel does not exist in the guild.
var ErrChannelNotFound = errors.New("channel not found")

// FindChannel resolves a guild text channel by exact name, from state first
// and then from the REST API.
func FindChannel(s *discordgo.Session, guildID, name string) (*discordgo.Channel, error) {
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil {
			for _, ch := range g.Channels {
				if ch.Name == name {
					return ch, nil
				}
			}
		}
	}
	channels, err := s.GuildChannels(guildID)
	if err != nil {
		return nil, fmt.Errorf("list channels of %s: %w", guildID, err)
	}
	for _, ch := range channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: #%s", ErrChannelNotFound, name)
}

// ID formats a transport id for custom ids.
func ID(t *transport.Transport) string { return strconv.FormatInt(t.ID, 10) }

// Mention renders a user mention, or "" when id is empty.
func Mention(id string) string {
	if id == "" {
		return ""
	}
	return "<@" + id + ">"
}

// Embeds returns a builder stamped with the branding footer.
func Embeds(s files.Settings) core.EmbedBuilder {
	return core.NewEmbedBuilder(s.Branding.Footer)
}

// Summary is the full transport card.
func Summary(s files.Settings, t *transport.Transport, title string) *discordgo.MessageEmbed {
	if title == "" {
		title = "🚚 Transporte " + t.Ticket()
	}
	e := Embeds(s).Build(title, "", t.Status.Color(),
		core.Field("🎫 Ticket", t.Ticket(), true),
		core.Field("📊 Status", t.Status.Label(), true),
		core.Field("🎮 Nick", t.Nick, true),
		core.Field("📍 Rota", t.Route(), true),
		core.Field("💰 Valor", transport.FormatSilver(t.Silver)+" prata", true),
		core.Field("⚡ Prioridade", t.Priority.Label(), true),
		core.Field("💵 Taxa", transport.FormatBRL(t.Fee), true),
	)
	if t.ClientDiscordID != "" {
		e.Fields = append(e.Fields, core.Field("👤 Cliente", Mention(t.ClientDiscordID), true))
	}
	if t.TransporterID != "" {
		e.Fields = append(e.Fields, core.Field("🧭 Transportador", Mention(t.TransporterID), true))
	}
	if notes := strings.TrimSpace(t.Notes); notes != "" {
		e.Fields = append(e.Fields, core.Field("📝 Observações", notes, false))
	}
	return e
}

// Compact is a one-line rendering used in lists.
func Compact(t *transport.Transport) string {
	return fmt.Sprintf("**%s** %s | %s | %s | %s", t.Ticket(), t.Priority.Label(), t.Route(), transport.ApproxSilver(t.Silver), transport.FormatBRL(t.Fee))
}

// List renders up to len(ts) transports, one per line.
func List(ts []*transport.Transport, empty string) string {
	if len(ts) == 0 {
		return empty
	}
	lines := make([]string, 0, len(ts))
	for _, t := range ts {
		lines = append(lines, Compact(t))
	}
	return strings.Join(lines, "\n")
}

// Notice is a small colored embed.
func Notice(s files.Settings, title, description string, color int, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return Embeds(s).Build(title, description, color, fields...)
}

// Closed replaces an actionable staff message once handled: same embed, new
// color, handled-by footer and no buttons.
func Closed(m *discordgo.Message, color int, note string) *discordgo.MessageEdit {
	var embeds []*discordgo.MessageEmbed
	if m != nil {
		for _, e := range m.Embeds {
			cp := *e
			cp.Color = color
			cp.Footer = &discordgo.MessageEmbedFooter{Text: note}
			embeds = append(embeds, &cp)
		}
	}
	if len(embeds) == 0 {
		embeds = []*discordgo.MessageEmbed{{Description: note, Color: color}}
	}
	empty := []discordgo.MessageComponent{}
	edit := &discordgo.MessageEdit{Embeds: &embeds, Components: &empty}
	if m != nil {
		edit.ID = m.ID
		edit.Channel = m.ChannelID
	}
	return edit
}

// Bar renders a progress bar of cells cells, filled in proportion to ratio.
func Bar(ratio float64, cells int) string {
	if cells <= 0 {
		return ""
	}
	ratio = min(max(ratio, 0), 1)
	filled := int(ratio*float64(cells) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", cells-filled)
}

// Colors shared by handlers that are not tied to a status.
func Success() int { return theme.Success() }
func Danger() int  { return theme.Danger() }
