package payments

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Actions under the "ship" (transporter) and "client" (ticket owner) handlers.
const (
	actionStart     = "start"
	actionDelivered = "delivered"
	actionDeposit   = "deposit"
	actionPickup    = "pickup"
)

func (h *Handler) handleShip(ctx *core.Context, id core.CustomID) error {
	t, err := h.load(ctx, id)
	if err != nil {
		return err
	}
	switch id.Action {
	case actionStart:
		if _, err := h.start(ctx, t); err != nil {
			return err
		}
		return closeClicked(ctx, theme.Queue(), "🚚 Em transporte com "+ctx.Username)
	case actionDelivered:
		if _, err := h.deliver(ctx, t); err != nil {
			return err
		}
		return closeClicked(ctx, theme.Delivered(), "📦 Entregue por "+ctx.Username)
	}
	return core.NewCommandError("Ação desconhecida.", true)
}

func (h *Handler) handleClient(ctx *core.Context, id core.CustomID) error {
	t, err := h.load(ctx, id)
	if err != nil {
		return err
	}
	if t.ClientDiscordID != ctx.UserID && !ctx.Can(core.PermissionStaff) {
		return core.NewCommandError("Apenas o dono do ticket pode confirmar esta etapa.", true)
	}
	switch id.Action {
	case actionDeposit:
		return h.requestDeposit(ctx, t)
	case actionPickup:
		return h.pickup(ctx, t)
	}
	return core.NewCommandError("Ação desconhecida.", true)
}

func (h *Handler) requestDeposit(ctx *core.Context, t *transport.Transport) error {
	if _, err := h.service.RequestDepositPhoto(ctx, t.ID, ctx.UserID); err != nil {
		return views.Explain(err)
	}
	desc := "Envie agora **uma foto** mostrando os itens depositados na ilha, neste canal."
	if d, err := ctx.Settings.Durations(); err == nil {
		desc += "\nPrazo: **" + views.Duration(d.Deposit) + "**."
	}
	return closeClickedWith(ctx, views.Notice(ctx.Settings, "📸 FOTO DO DEPÓSITO", desc, theme.Ticket()))
}

// closeClickedWith replaces the clicked message with embed and drops its buttons.
func closeClickedWith(ctx *core.Context, embed *discordgo.MessageEmbed) error {
	return ctx.Update(&discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{},
	})
}

// start assigns the transporter and tells the customer and the staff panel.
func (h *Handler) start(ctx *core.Context, t *transport.Transport) (*transport.Transport, error) {
	t, err := h.service.StartTransport(ctx, t.ID, ctx.UserID)
	if err != nil {
		return nil, views.Explain(err)
	}
	h.notify(ctx.Settings, t, "🚚 TRANSPORTE INICIADO",
		fmt.Sprintf("%s está levando seus itens para **%s**.", views.Mention(ctx.UserID), t.Destination), theme.Queue())

	embed := views.Summary(ctx.Settings, t, "🚚 TRANSPORTE CONFIRMADO - "+t.Ticket())
	if _, err := h.post(ctx.GuildID, ctx.Settings.Channels.StaffPanel, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Confirmar Entrega", core.NewCustomID(views.HandlerShip, actionDelivered, views.ID(t)), discordgo.SuccessButton, "📦"),
		)},
	}); err != nil {
		ctx.Logger.Error("❌ Failed to post transport to staff panel", "ticket", t.Ticket(), "error", err)
	}
	ctx.Logger.Info("🚚 Transport started", "ticket", t.Ticket(), "transporter", ctx.UserID)
	return t, nil
}

func (h *Handler) deliver(ctx *core.Context, t *transport.Transport) (*transport.Transport, error) {
	t, err := h.service.ConfirmDelivery(ctx, t.ID, ctx.UserID, "")
	if err != nil {
		return nil, views.Explain(err)
	}
	h.notify(ctx.Settings, t, "📦 ITENS ENTREGUES",
		"Seus itens chegaram em **"+t.Destination+"**. Retire-os e clique em **Confirmar Retirada**.",
		theme.Delivered(),
		core.Row(core.Button("Confirmar Retirada", core.NewCustomID(views.HandlerClient, actionPickup, views.ID(t)), discordgo.SuccessButton, "✅")),
	)
	ctx.Logger.Info("📦 Transport delivered", "ticket", t.Ticket())
	return t, nil
}

func (h *Handler) pickup(ctx *core.Context, t *transport.Transport) error {
	t, entry, err := h.service.ConfirmPickup(ctx, t.ID, ctx.UserID)
	if err != nil {
		return views.Explain(err)
	}
	thanks := views.Notice(ctx.Settings, "🎉 TRANSPORTE CONCLUÍDO",
		"Obrigado por usar a T.A.S Mania! Seu ticket "+t.Ticket()+" foi finalizado.", theme.Success())
	if err := closeClickedWith(ctx, thanks); err != nil {
		return err
	}

	public := views.Notice(ctx.Settings, "✅ TRANSPORTE CONCLUÍDO", "", theme.Delivered(),
		core.Field("📍 Rota", t.Route(), true),
		core.Field("💰 Valor", entry.ApproxValue+" prata", true),
		core.Field("⚡ Prioridade", t.Priority.Label(), true),
		core.Field("📅 Data", entry.ConcludedAt.In(time.Local).Format("02/01/2006 15:04"), true),
	)
	msg, err := h.post(ctx.GuildID, ctx.Settings.Channels.PublicHistory, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{public}})
	if err != nil {
		ctx.Logger.Error("❌ Failed to post public history", "ticket", t.Ticket(), "error", err)
		return nil
	}
	if err := h.service.SetLogMessage(ctx, entry.ID, msg.ID); err != nil {
		ctx.Logger.Warn("⚠️ Failed to store history message id", "ticket", t.Ticket(), "error", err)
	}
	ctx.Logger.Info("🏁 Transport concluded", "ticket", t.Ticket())
	return nil
}

// --- Slash commands ---

func (h *Handler) handleStartCommand(ctx *core.Context) error {
	t, err := h.byTicket(ctx)
	if err != nil {
		return err
	}
	if t, err = h.start(ctx, t); err != nil {
		return err
	}
	return ctx.Success("Transporte " + t.Ticket() + " iniciado.")
}

func (h *Handler) handleConfirmCommand(ctx *core.Context) error {
	t, err := h.byTicket(ctx)
	if err != nil {
		return err
	}
	if t, err = h.deliver(ctx, t); err != nil {
		return err
	}
	return ctx.Success("Entrega do transporte " + t.Ticket() + " confirmada.")
}

func (h *Handler) handleStatusCommand(ctx *core.Context) error {
	t, err := h.byTicket(ctx)
	if err != nil {
		return err
	}
	embed := views.Summary(ctx.Settings, t, "")
	if t.Received > 0 && t.Received != t.Fee {
		embed.Fields = append(embed.Fields, core.Field("💱 Recebido", transport.FormatBRL(t.Received), true))
	}
	if t.ChannelID != "" {
		embed.Fields = append(embed.Fields, core.Field("💬 Canal", "<#"+t.ChannelID+">", true))
	}
	return ctx.Embed(embed, true)
}

func (h *Handler) handleRejectCommand(ctx *core.Context) error {
	t, err := h.byTicket(ctx)
	if err != nil {
		return err
	}
	reason := ctx.Options().String("motivo")
	if t, err = h.service.Reject(ctx, t.ID, ctx.UserID, reason); err != nil {
		return views.Explain(err)
	}
	h.notify(ctx.Settings, t, "❌ PAGAMENTO REJEITADO", withReason("Seu pagamento foi rejeitado pela staff.", reason), theme.Error())
	return ctx.Success("Transporte " + t.Ticket() + " rejeitado.")
}

func (h *Handler) handleCancelCommand(ctx *core.Context) error {
	t, err := h.byTicket(ctx)
	if err != nil {
		return err
	}
	reason := ctx.Options().String("motivo")
	if t, err = h.service.Cancel(ctx, t.ID, ctx.UserID, reason); err != nil {
		return views.Explain(err)
	}
	h.notify(ctx.Settings, t, "🚫 TRANSPORTE CANCELADO", withReason("Seu transporte foi cancelado pela staff.", reason), theme.Danger())
	return ctx.Success("Transporte " + t.Ticket() + " cancelado.")
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + "\nMotivo: " + reason
}
