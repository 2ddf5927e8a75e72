package dashboards

import (
	"fmt"
	"strings"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/theme"
)

// History answers /historico with the caller's own transports.
type History struct {
	service *dispatch.Service
}

func NewHistory(service *dispatch.Service) *History { return &History{service: service} }

func (h *History) Register(router *core.CommandRouter) {
	router.RegisterCommand(core.NewSimpleCommand("historico", "Mostra os seus transportes", nil, h.handle, core.PermissionNone))
}

func (h *History) handle(ctx *core.Context) error {
	ts, err := h.service.ClientHistory(ctx, ctx.UserID)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(ts))
	for _, t := range ts {
		lines = append(lines, fmt.Sprintf("%s %s", t.Status.Label(), views.Compact(t)))
	}
	desc := "Você ainda não fez nenhum transporte. Use `/abrir` para começar."
	if len(lines) > 0 {
		desc = strings.Join(lines, "\n")
	}
	embed := views.Notice(ctx.Settings, fmt.Sprintf("📜 SEUS TRANSPORTES (%d)", len(ts)), desc, theme.Info())
	return ctx.Embed(embed, true)
}
