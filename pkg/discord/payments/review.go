package payments

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Actions under the "pay" handler (staff only).
const (
	actionApprove      = "approve"
	actionReject       = "reject"
	actionCorrect      = "correct"
	actionCorrectModal = "correctm"
	actionRelease      = "release"

	inputReceived = "recebido"
)

func (h *Handler) handlePay(ctx *core.Context, id core.CustomID) error {
	t, err := h.load(ctx, id)
	if err != nil {
		return err
	}
	switch id.Action {
	case actionApprove:
		return h.approve(ctx, t)
	case actionReject:
		return h.rejectProof(ctx, t)
	case actionCorrect:
		return ctx.Modal(core.NewCustomID(views.HandlerPay, actionCorrectModal, views.ID(t)), "Valor Recebido",
			core.TextInput(inputReceived, "Valor deste comprovante (R$)", "Ex: "+transport.FormatBRL(t.Shortfall()), discordgo.TextInputShort, true, 1, 20))
	case actionCorrectModal:
		return h.correct(ctx, t, core.ModalValues(ctx.Interaction)[inputReceived])
	case actionRelease:
		return h.release(ctx, t)
	}
	return core.NewCommandError("Ação desconhecida.", true)
}

func (h *Handler) approve(ctx *core.Context, t *transport.Transport) error {
	t, err := h.service.ApprovePayment(ctx, t.ID, ctx.UserID)
	if err != nil {
		return views.Explain(err)
	}
	if err := closeClicked(ctx, theme.Success(), "✅ Aprovado por "+ctx.Username); err != nil {
		return err
	}
	h.paid(ctx, t)
	return nil
}

// paid tells the customer and asks staff to open the island.
func (h *Handler) paid(ctx *core.Context, t *transport.Transport) {
	h.notify(ctx.Settings, t, "✅ PAGAMENTO APROVADO",
		"Recebemos **"+transport.FormatBRL(t.Fee)+"**. A staff vai liberar seu acesso à ilha para o depósito.", theme.Success())

	embed := views.Summary(ctx.Settings, t, "🔓 LIBERAR ACESSO À ILHA - "+t.Ticket())
	embed.Color = theme.Staff()
	embed.Description = "Adicione **" + t.Nick + "** à ilha e clique abaixo quando terminar."
	if _, err := h.post(ctx.GuildID, ctx.Settings.Channels.StaffPanel, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Acesso Liberado", core.NewCustomID(views.HandlerPay, actionRelease, views.ID(t)), discordgo.SuccessButton, "🔓"),
		)},
	}); err != nil {
		ctx.Logger.Error("❌ Failed to post access request to staff panel", "ticket", t.Ticket(), "error", err)
	}
	ctx.Logger.Info("💰 Payment approved", "ticket", t.Ticket(), "fee", t.Fee.String())
}

func (h *Handler) rejectProof(ctx *core.Context, t *transport.Transport) error {
	t, err := h.service.RejectProof(ctx, t.ID, ctx.UserID, "comprovante recusado")
	if err != nil {
		return views.Explain(err)
	}
	if err := closeClicked(ctx, theme.Error(), "❌ Recusado por "+ctx.Username); err != nil {
		return err
	}
	h.notify(ctx.Settings, t, "❌ COMPROVANTE RECUSADO",
		"Não conseguimos validar o comprovante. Confira o valor de **"+transport.FormatBRL(t.Fee)+"** e envie uma nova imagem neste canal.",
		theme.Error())
	return nil
}

func (h *Handler) correct(ctx *core.Context, t *transport.Transport, raw string) error {
	received, err := transport.ParseBRL(raw)
	if err != nil || received <= 0 {
		return core.NewValidationError("recebido", "Valor inválido. Use por exemplo 12,50.")
	}
	t, short, err := h.service.CorrectPayment(ctx, t.ID, received, ctx.UserID)
	if err != nil {
		return views.Explain(err)
	}
	if short > 0 {
		h.notify(ctx.Settings, t, "⚠️ VALOR INCOMPLETO",
			fmt.Sprintf("Recebemos **%s** de **%s**. Faça um PIX com a diferença de **%s** e envie o novo comprovante.",
				transport.FormatBRL(t.Received), transport.FormatBRL(t.Fee), transport.FormatBRL(short)),
			theme.Warning())
		return closeClicked(ctx, theme.Warning(), fmt.Sprintf("💱 %s recebido, faltam %s (%s)", transport.FormatBRL(t.Received), transport.FormatBRL(short), ctx.Username))
	}
	if err := closeClicked(ctx, theme.Success(), "✅ Aprovado com valor corrigido por "+ctx.Username); err != nil {
		return err
	}
	h.paid(ctx, t)
	return nil
}

func (h *Handler) release(ctx *core.Context, t *transport.Transport) error {
	t, err := h.service.ReleaseAccess(ctx, t.ID, ctx.UserID)
	if err != nil {
		return views.Explain(err)
	}
	if err := closeClicked(ctx, theme.Success(), "🔓 Acesso liberado por "+ctx.Username); err != nil {
		return err
	}
	h.notify(ctx.Settings, t, "🏝️ ACESSO LIBERADO",
		"Seu acesso à ilha foi liberado. Deposite os itens e clique em **Confirmar Depósito**.",
		theme.Success(),
		core.Row(core.Button("Confirmar Depósito", core.NewCustomID(views.HandlerClient, actionDeposit, views.ID(t)), discordgo.SuccessButton, "📦")),
	)
	return nil
}
