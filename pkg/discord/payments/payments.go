// Package payments follows a transport from the payment screenshot to the
// customer confirming pickup: staff review, island access, deposit photo,
// transporter hand-off and the public history post.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/errutil"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// messageTimeout bounds the work done for one posted screenshot.
const messageTimeout = 30 * time.Second

// Handler owns the pay, ship and client component routes, the transporter and
// transporte commands and the screenshot listener.
type Handler struct {
	session  *discordgo.Session
	service  *dispatch.Service
	settings core.SettingsSource
	logger   *slog.Logger
}

// NewHandler creates the payment flow handler.
func NewHandler(session *discordgo.Session, service *dispatch.Service, settings core.SettingsSource) *Handler {
	return &Handler{
		session:  session,
		service:  service,
		settings: settings,
		logger:   log.DiscordLogger().With("component", "payments"),
	}
}

// Register adds the component routes and slash commands.
func (h *Handler) Register(router *core.CommandRouter) {
	router.RegisterComponent(views.HandlerPay, core.PermissionStaff, h.handlePay)
	router.RegisterComponent(views.HandlerShip, core.PermissionTransporter, h.handleShip)
	router.RegisterComponent(views.HandlerClient, core.PermissionNone, h.handleClient)

	ticketOpt := func() *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "ticket", Description: "Número do ticket (ex: 1042)", Required: true, Autocomplete: true}
	}
	reasonOpt := func() *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "motivo", Description: "Motivo", Required: false}
	}

	router.RegisterCommand(core.NewGroupCommand("transporter", "Ações do transportador").
		AddSubCommand(core.NewSimpleCommand("start", "Inicia um transporte da fila",
			[]*discordgo.ApplicationCommandOption{ticketOpt()}, h.handleStartCommand, core.PermissionTransporter)).
		AddSubCommand(core.NewSimpleCommand("confirm", "Confirma a entrega de um transporte",
			[]*discordgo.ApplicationCommandOption{ticketOpt()}, h.handleConfirmCommand, core.PermissionTransporter)))

	router.RegisterCommand(core.NewGroupCommand("transporte", "Gestão de transportes").
		AddSubCommand(core.NewSimpleCommand("status", "Mostra o estado de um transporte",
			[]*discordgo.ApplicationCommandOption{ticketOpt()}, h.handleStatusCommand, core.PermissionStaff)).
		AddSubCommand(core.NewSimpleCommand("rejeitar", "Rejeita definitivamente o pagamento",
			[]*discordgo.ApplicationCommandOption{ticketOpt(), reasonOpt()}, h.handleRejectCommand, core.PermissionStaff)).
		AddSubCommand(core.NewSimpleCommand("cancelar", "Cancela um transporte",
			[]*discordgo.ApplicationCommandOption{ticketOpt(), reasonOpt()}, h.handleCancelCommand, core.PermissionStaff)))

	router.RegisterAutocomplete("transporter", h.suggestTickets("transporter"))
	router.RegisterAutocomplete("transporte", h.suggestTickets("transporte"))
}

// Attach subscribes the screenshot listener; the returned func detaches it.
func (h *Handler) Attach(ctx context.Context) func() {
	return h.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		h.HandleMessage(ctx, m)
	})
}

// --- Screenshot listener ---

// HandleMessage reacts to images posted in ticket channels: the payment proof
// while awaiting payment, or the deposit photo once it was requested.
func (h *Handler) HandleMessage(parent context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" || len(m.Attachments) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(parent, messageTimeout)
	defer cancel()

	t, err := h.service.GetByChannel(ctx, m.ChannelID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Error("❌ Failed to load ticket for message", "channel_id", m.ChannelID, "error", err)
		}
		return
	}
	if m.Author.ID != t.ClientDiscordID {
		return
	}
	settings := h.settings.Snapshot()

	img := firstImage(m.Attachments)
	switch {
	case t.Status == transport.StatusPaid && t.AwaitingDepositPhoto:
		if img == nil {
			h.say(t.ChannelID, "⚠️ Envie uma **imagem** do depósito dos itens na ilha.")
			return
		}
		h.depositPhoto(ctx, settings, m, t, img)
	case t.Status == transport.StatusAwaitingPayment:
		if img == nil {
			h.say(t.ChannelID, "⚠️ Envie uma **imagem** do comprovante (print do PIX).")
			return
		}
		h.paymentProof(ctx, settings, m, t, img)
	}
}

func firstImage(attachments []*discordgo.MessageAttachment) *discordgo.MessageAttachment {
	for _, a := range attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			return a
		}
	}
	return nil
}

func (h *Handler) paymentProof(ctx context.Context, s files.Settings, m *discordgo.MessageCreate, t *transport.Transport, img *discordgo.MessageAttachment) {
	updated, err := h.service.RecordProof(ctx, t.ID, img.URL, m.Author.ID)
	if err != nil {
		h.logger.Warn("⚠️ Payment proof not recorded", "ticket", t.Ticket(), "error", err)
		return
	}
	t = updated

	embed := views.Summary(s, t, "💳 COMPROVANTE RECEBIDO - "+t.Ticket())
	embed.Description = "Enviado por " + views.Mention(m.Author.ID) + ". Confira o valor de **" + transport.FormatBRL(t.Fee) + "**."
	embed.Color = theme.Payment()
	embed.Image = &discordgo.MessageEmbedImage{URL: img.URL}

	staffMsg, err := h.post(m.GuildID, s.Channels.PaymentReview, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Aprovar", core.NewCustomID(views.HandlerPay, actionApprove, views.ID(t)), discordgo.SuccessButton, "✅"),
			core.Button("Rejeitar", core.NewCustomID(views.HandlerPay, actionReject, views.ID(t)), discordgo.DangerButton, "❌"),
			core.Button("Valor Diferente", core.NewCustomID(views.HandlerPay, actionCorrect, views.ID(t)), discordgo.SecondaryButton, "💱"),
		)},
	})
	if err != nil {
		h.logger.Error("❌ Failed to forward payment proof", "ticket", t.Ticket(), "error", err)
		h.say(t.ChannelID, "⚠️ Recebemos seu comprovante, mas não conseguimos avisar a staff. Aguarde um atendente.")
		return
	}
	if err := h.service.SetStaffMessage(ctx, t.ID, staffMsg.ID); err != nil {
		h.logger.Warn("⚠️ Failed to store analysis message id", "ticket", t.Ticket(), "error", err)
	}

	h.notify(s, t, "⏳ Comprovante recebido!", "A staff vai conferir o pagamento. Você será avisado aqui.", theme.Loading())
	h.logger.Info("💳 Payment proof forwarded", "ticket", t.Ticket(), "message_id", staffMsg.ID)
}

func (h *Handler) depositPhoto(ctx context.Context, s files.Settings, m *discordgo.MessageCreate, t *transport.Transport, img *discordgo.MessageAttachment) {
	updated, err := h.service.ConfirmDeposit(ctx, t.ID, img.URL, m.Author.ID)
	if err != nil {
		h.logger.Warn("⚠️ Deposit not confirmed", "ticket", t.Ticket(), "error", err)
		return
	}
	t = updated

	embed := views.Summary(s, t, "📦 NOVO TRANSPORTE NA FILA - "+t.Ticket())
	embed.Color = theme.Queue()
	embed.Image = &discordgo.MessageEmbedImage{URL: img.URL}
	if _, err := h.post(m.GuildID, s.Channels.Queue, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Iniciar Transporte", core.NewCustomID(views.HandlerShip, actionStart, views.ID(t)), discordgo.PrimaryButton, "🚚"),
		)},
	}); err != nil {
		h.logger.Error("❌ Failed to post transport to queue channel", "ticket", t.Ticket(), "error", err)
	}

	h.notify(s, t, "✅ Depósito confirmado!", "Seus itens estão na fila. Um transportador vai assumir em breve.", theme.Success())
	h.logger.Info("📦 Deposit confirmed", "ticket", t.Ticket())
}

// --- Messaging helpers ---

func (h *Handler) post(guildID, channelName string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	ch, err := views.FindChannel(h.session, guildID, channelName)
	if err != nil {
		return nil, err
	}
	var out *discordgo.Message
	err = errutil.HandleDiscordError("post_"+channelName, func() error {
		var err error
		out, err = h.session.ChannelMessageSendComplex(ch.ID, msg)
		return err
	})
	return out, err
}

func (h *Handler) send(channelID string, msg *discordgo.MessageSend) {
	if channelID == "" {
		return
	}
	if _, err := h.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		h.logger.Warn("⚠️ Failed to message ticket channel", "channel_id", channelID, "error", err)
	}
}

func (h *Handler) say(channelID, text string) {
	h.send(channelID, &discordgo.MessageSend{Content: text})
}

// notify posts a small embed in the customer's ticket, mentioning them.
func (h *Handler) notify(s files.Settings, t *transport.Transport, title, desc string, color int, components ...discordgo.MessageComponent) {
	h.send(t.ChannelID, &discordgo.MessageSend{
		Content:    views.Mention(t.ClientDiscordID),
		Embeds:     []*discordgo.MessageEmbed{views.Notice(s, title, desc, color)},
		Components: components,
	})
}

// closeClicked turns the clicked message into a handled record with no buttons.
func closeClicked(ctx *core.Context, color int, note string) error {
	edit := views.Closed(ctx.Interaction.Message, color, note)
	return ctx.Update(&discordgo.InteractionResponseData{Embeds: *edit.Embeds, Components: *edit.Components})
}

// load resolves the transport id carried by a custom id.
func (h *Handler) load(ctx *core.Context, id core.CustomID) (*transport.Transport, error) {
	tid, err := id.Int64(0)
	if err != nil {
		return nil, err
	}
	t, err := h.service.Get(ctx, tid)
	if err != nil {
		return nil, views.Explain(err)
	}
	return t, nil
}

// byTicket resolves the "ticket" option of a slash command.
func (h *Handler) byTicket(ctx *core.Context) (*transport.Transport, error) {
	n := ctx.Options().Int("ticket")
	if n <= 0 {
		return nil, core.NewValidationError("ticket", "Informe o número do ticket.")
	}
	t, err := h.service.GetByTicket(ctx, n)
	if err != nil {
		return nil, views.Explain(err)
	}
	return t, nil
}
