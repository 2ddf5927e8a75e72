package payments

import (
	"fmt"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// choiceNameLimit is Discord's cap on an autocomplete choice name.
const choiceNameLimit = 100

// ticketScope says which tickets a subcommand can act on and who may list them.
type ticketScope struct {
	level    core.PermissionLevel
	statuses []transport.Status
}

var ticketScopes = map[string]map[string]ticketScope{
	"transporter": {
		"start":   {core.PermissionTransporter, []transport.Status{transport.StatusDeposited}},
		"confirm": {core.PermissionTransporter, []transport.Status{transport.StatusInTransit}},
	},
	"transporte": {
		"status":   {core.PermissionStaff, openStatuses()},
		"rejeitar": {core.PermissionStaff, []transport.Status{transport.StatusAwaitingPayment}},
		"cancelar": {core.PermissionStaff, []transport.Status{transport.StatusOpen, transport.StatusAwaitingPayment, transport.StatusPaid}},
	},
}

func openStatuses() []transport.Status {
	var out []transport.Status
	for _, s := range transport.AllStatuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// suggestTickets answers the ticket option of command with the tickets the
// focused subcommand could act on, newest first.
func (h *Handler) suggestTickets(command string) func(*core.Context, *discordgo.ApplicationCommandInteractionDataOption) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	return func(ctx *core.Context, focused *discordgo.ApplicationCommandInteractionDataOption) ([]*discordgo.ApplicationCommandOptionChoice, error) {
		if focused.Name != "ticket" {
			return nil, nil
		}
		scope, ok := ticketScopes[command][core.GetSubCommandName(ctx.Interaction)]
		if !ok || !ctx.Can(scope.level) {
			return nil, nil
		}
		prefix := ""
		if focused.Value != nil {
			prefix = fmt.Sprint(focused.Value)
		}
		ts, err := h.service.Suggest(ctx, scope.statuses, prefix, 0)
		if err != nil {
			return nil, err
		}
		choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(ts))
		for _, t := range ts {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  choiceName(t),
				Value: t.TicketNumber,
			})
		}
		return choices, nil
	}
}

func choiceName(t *transport.Transport) string {
	name := fmt.Sprintf("%s · %s · %s → %s · %s", t.Ticket(), t.Nick, t.Origin, t.Destination, t.Status)
	if utf8.RuneCountInString(name) <= choiceNameLimit {
		return name
	}
	r := []rune(name)
	return string(r[:choiceNameLimit-1]) + "…"
}
