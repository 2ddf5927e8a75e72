// Package tickets opens private ticket channels and walks the customer
// through the transport request: nick, origin, priority, silver and notes.
package tickets

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/errutil"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/pix"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Component actions under the "ticket" handler.
const (
	actionOpen        = "open"
	actionNick        = "nick"
	actionNickModal   = "nickm"
	actionOrigin      = "origin"
	actionPriority    = "prio"
	actionSilver      = "silver"
	actionSilverModal = "silverm"
	actionNotes       = "notes"
	actionNotesModal  = "notesm"
	actionSkipNotes   = "skip"
	actionCopyKey     = "copy"
	actionCancel      = "cancel"

	inputNick   = "nick"
	inputSilver = "silver"
	inputNotes  = "notes"
)

// ticketPermissions is what the requester and staff get on the ticket channel.
const ticketPermissions = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionAttachFiles |
	discordgo.PermissionEmbedLinks |
	discordgo.PermissionReadMessageHistory

// Config carries what the handler needs beyond settings.
type Config struct {
	Roles        core.Roles
	StaticQRPath string
}

// Handler implements the ticket commands and wizard components.
type Handler struct {
	session *discordgo.Session
	service *dispatch.Service
	cfg     Config
	logger  *slog.Logger
}

// NewHandler creates the ticket handler.
func NewHandler(session *discordgo.Session, service *dispatch.Service, cfg Config) *Handler {
	return &Handler{
		session: session,
		service: service,
		cfg:     cfg,
		logger:  log.DiscordLogger().With("component", "tickets"),
	}
}

// Register adds the slash commands and the "ticket" component route.
func (h *Handler) Register(router *core.CommandRouter) {
	router.RegisterCommand(core.NewSimpleCommand("abrir", "Abre um ticket de transporte", nil, h.handleOpenCommand, core.PermissionNone))
	router.RegisterCommand(core.NewSimpleCommand("painel_transporte", "Publica o painel com o botão de abrir transporte", nil, h.handlePanel, core.PermissionStaff))
	router.RegisterCommand(core.NewSimpleCommand("fechar_ticket", "Fecha e apaga o canal deste ticket", nil, h.handleClose, core.PermissionStaff))
	router.RegisterComponent(views.HandlerTicket, core.PermissionNone, h.handleComponent)
}

func (h *Handler) handleComponent(ctx *core.Context, id core.CustomID) error {
	if id.Action == actionOpen {
		return h.openTicket(ctx)
	}

	tid, err := id.Int64(0)
	if err != nil {
		return err
	}
	t, err := h.service.Get(ctx, tid)
	if err != nil {
		return views.Explain(err)
	}
	if t.ClientDiscordID != ctx.UserID && !ctx.Can(core.PermissionStaff) {
		return core.NewCommandError("Apenas o dono do ticket pode usar este botão.", true)
	}

	switch id.Action {
	case actionNick:
		return ctx.Modal(core.NewCustomID(views.HandlerTicket, actionNickModal, views.ID(t)), "Seu Nick no Jogo",
			core.TextInput(inputNick, "Nick exatamente como aparece no jogo", "Ex: Whadawel", discordgo.TextInputShort, true, dispatch.NickMinLen, dispatch.NickMaxLen))
	case actionNickModal:
		return h.saveNick(ctx, t, core.ModalValues(ctx.Interaction)[inputNick])
	case actionOrigin:
		return h.saveOrigin(ctx, t, core.SelectedValue(ctx.Interaction))
	case actionPriority:
		return h.savePriority(ctx, t, id.Arg(1))
	case actionSilver:
		return ctx.Modal(core.NewCustomID(views.HandlerTicket, actionSilverModal, views.ID(t)), "Valor da Carga",
			core.TextInput(inputSilver, "Valor em prata (ex: 18500000 ou 18,5M)", "Apenas números", discordgo.TextInputShort, true, 2, 20))
	case actionSilverModal:
		return h.saveSilver(ctx, t, core.ModalValues(ctx.Interaction)[inputSilver])
	case actionNotes:
		return ctx.Modal(core.NewCustomID(views.HandlerTicket, actionNotesModal, views.ID(t)), "Observações",
			core.TextInput(inputNotes, "Observações", "Peso alto, itens refinados, Black Market...", discordgo.TextInputParagraph, false, 0, dispatch.NotesMaxLen))
	case actionNotesModal:
		return h.submit(ctx, t, core.ModalValues(ctx.Interaction)[inputNotes])
	case actionSkipNotes:
		return h.submit(ctx, t, "")
	case actionCopyKey:
		return h.copyKey(ctx, t)
	case actionCancel:
		return h.cancel(ctx, t)
	}
	return core.NewCommandError("Ação desconhecida.", true)
}

// --- Opening ---

func (h *Handler) handleOpenCommand(ctx *core.Context) error { return h.openTicket(ctx) }

func (h *Handler) handlePanel(ctx *core.Context) error {
	embed := views.Notice(ctx.Settings, "🚚 T.A.S MANIA - TRANSPORTES",
		"Precisa levar seus itens até **"+ctx.Settings.Destination+"** com segurança?\n\nClique no botão abaixo para abrir um ticket privado.",
		theme.Ticket(),
		core.Field("💰 Preço", fmt.Sprintf("R$ %.2f por milhão de prata", ctx.Settings.Pricing.PricePerMillion), true),
		core.Field("⚡ Alta prioridade", fmt.Sprintf("+%.0f%%", ctx.Settings.Pricing.HighPrioritySurcharge*100), true),
		core.Field("📦 Mínimo", transport.FormatSilver(ctx.Settings.Pricing.MinimumSilver)+" prata", true),
	)
	if _, err := h.session.ChannelMessageSendComplex(ctx.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Abrir Transporte", core.NewCustomID(views.HandlerTicket, actionOpen), discordgo.SuccessButton, "🎫"),
		)},
	}); err != nil {
		return err
	}
	return ctx.Success("Painel publicado.")
}

func (h *Handler) openTicket(ctx *core.Context) error {
	if ctx.GuildID == "" {
		return core.NewCommandError("Abra o ticket dentro do servidor.", true)
	}
	if err := ctx.Defer(true); err != nil {
		return err
	}

	t, err := h.service.Open(ctx, ctx.UserID, ctx.Username)
	if err != nil {
		return err
	}

	ch, err := h.createChannel(ctx, t)
	if err != nil {
		if _, cerr := h.service.Cancel(ctx, t.ID, "system", "falha ao criar canal"); cerr != nil {
			h.logger.Warn("⚠️ Failed to cancel ticket without channel", "ticket", t.Ticket(), "error", cerr)
		}
		return err
	}
	if t, err = h.service.AttachChannel(ctx, t.ID, ch.ID); err != nil {
		return err
	}

	welcome := views.Notice(ctx.Settings, "🎫 TICKET ABERTO - "+t.Ticket(),
		"Bem-vindo! Vamos preencher as informações do seu transporte.", theme.Ticket(),
		core.Field("📋 Etapas", "1️⃣ Nick no jogo\n2️⃣ Cidade de origem\n3️⃣ Prioridade\n4️⃣ Valor da carga\n5️⃣ Observações\n6️⃣ Pagamento via PIX", false),
	)
	if _, err := h.session.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: "👋 Olá " + views.Mention(ctx.UserID) + "! Vamos começar...",
		Embeds:  []*discordgo.MessageEmbed{welcome},
	}); err != nil {
		return err
	}
	if err := h.askNick(ctx.Settings, t); err != nil {
		return err
	}

	h.logger.Info("🎫 Ticket channel created", "ticket", t.Ticket(), "channel_id", ch.ID, "user_id", ctx.UserID)
	return ctx.Success("Ticket " + t.Ticket() + " aberto em <#" + ch.ID + ">.")
}

func (h *Handler) createChannel(ctx *core.Context, t *transport.Transport) (*discordgo.Channel, error) {
	data := discordgo.GuildChannelCreateData{
		Name:                 transport.ChannelName(t.TicketNumber),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("Ticket %s | Cliente: %s", t.Ticket(), ctx.Username),
		PermissionOverwrites: h.overwrites(ctx),
	}
	if cat, err := views.FindChannel(h.session, ctx.GuildID, ctx.Settings.Channels.TicketCategory); err == nil && cat.Type == discordgo.ChannelTypeGuildCategory {
		data.ParentID = cat.ID
	}

	var ch *discordgo.Channel
	err := errutil.HandleDiscordError("create_ticket_channel", func() error {
		var err error
		ch, err = h.session.GuildChannelCreateComplex(ctx.GuildID, data)
		return err
	})
	if err != nil {
		return nil, core.NewCommandError("Não consegui criar o canal do ticket. Avise a staff.", true)
	}
	return ch, nil
}

// overwrites hides the channel from @everyone and opens it to the requester,
// the bot and every staff role.
func (h *Handler) overwrites(ctx *core.Context) []*discordgo.PermissionOverwrite {
	out := []*discordgo.PermissionOverwrite{
		{ID: ctx.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: ctx.UserID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketPermissions},
	}
	if h.session.State != nil && h.session.State.User != nil {
		out = append(out, &discordgo.PermissionOverwrite{ID: h.session.State.User.ID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketPermissions | discordgo.PermissionManageChannels})
	}

	seen := map[string]bool{}
	addRole := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, &discordgo.PermissionOverwrite{ID: id, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketPermissions})
	}
	addRole(h.cfg.Roles.AdminRoleID)
	addRole(h.cfg.Roles.StaffRoleID)
	if h.session.State != nil {
		if g, err := h.session.State.Guild(ctx.GuildID); err == nil {
			for _, r := range g.Roles {
				for _, p := range ctx.Settings.Branding.StaffRoleNamePrefixes {
					if p != "" && strings.HasPrefix(r.Name, p) {
						addRole(r.ID)
					}
				}
			}
		}
	}
	return out
}

// --- Wizard ---

func (h *Handler) send(channelID string, msg *discordgo.MessageSend) error {
	return errutil.HandleDiscordError("send_ticket_message", func() error {
		_, err := h.session.ChannelMessageSendComplex(channelID, msg)
		return err
	})
}

func (h *Handler) askNick(s files.Settings, t *transport.Transport) error {
	return h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Notice(s, "🎮 Qual é seu nick no jogo?", "Digite exatamente como aparece no seu personagem.", theme.Ticket())},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Inserir Nick", core.NewCustomID(views.HandlerTicket, actionNick, views.ID(t)), discordgo.PrimaryButton, "🎮"),
		)},
	})
}

func (h *Handler) saveNick(ctx *core.Context, t *transport.Transport, raw string) error {
	t, err := h.service.SetNick(ctx, t.ID, raw)
	if err != nil {
		return views.Explain(err)
	}
	if err := ctx.Embed(views.Notice(ctx.Settings, "✅ Nick Confirmado", "Nick em jogo: **"+t.Nick+"**", theme.Success()), true); err != nil {
		return err
	}

	options := make([]discordgo.SelectMenuOption, 0, len(ctx.Settings.Origins))
	for _, o := range ctx.Settings.Origins {
		options = append(options, discordgo.SelectMenuOption{Label: o, Value: o})
	}
	return h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Notice(ctx.Settings, "📍 Qual é a origem?", "De qual cidade você quer transportar?", theme.Ticket())},
		Components: []discordgo.MessageComponent{core.Row(discordgo.SelectMenu{
			CustomID:    core.NewCustomID(views.HandlerTicket, actionOrigin, views.ID(t)),
			Placeholder: "Selecione a origem...",
			MinValues:   &[]int{1}[0],
			MaxValues:   1,
			Options:     options,
		})},
	})
}

func (h *Handler) saveOrigin(ctx *core.Context, t *transport.Transport, origin string) error {
	if !ctx.Settings.HasOrigin(origin) {
		return core.NewValidationError("origem", "Origem inválida.")
	}
	t, err := h.service.SetOrigin(ctx, t.ID, origin)
	if err != nil {
		return views.Explain(err)
	}
	if err := ctx.Embed(views.Notice(ctx.Settings, "✅ Origem Confirmada", "Saindo de: **"+t.Origin+"**", theme.Success()), true); err != nil {
		return err
	}

	surcharge := fmt.Sprintf("+%.0f%%", ctx.Settings.Pricing.HighPrioritySurcharge*100)
	return h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Notice(ctx.Settings, "⚡ Qual é a prioridade?",
			"Normal: até 2 horas\nAlta: "+surcharge+" na taxa, prioridade máxima", theme.Warning())},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Normal", core.NewCustomID(views.HandlerTicket, actionPriority, views.ID(t), string(transport.PriorityNormal)), discordgo.SecondaryButton, "🕒"),
			core.Button("Alta ("+surcharge+")", core.NewCustomID(views.HandlerTicket, actionPriority, views.ID(t), string(transport.PriorityHigh)), discordgo.DangerButton, "⚡"),
		)},
	})
}

func (h *Handler) savePriority(ctx *core.Context, t *transport.Transport, raw string) error {
	prio, err := transport.ParsePriority(raw)
	if err != nil {
		return core.NewValidationError("prioridade", "Prioridade inválida.")
	}
	if t, err = h.service.SetPriority(ctx, t.ID, prio); err != nil {
		return views.Explain(err)
	}
	if err := ctx.Embed(views.Notice(ctx.Settings, "✅ Prioridade Confirmada", "Prioridade: **"+t.Priority.Label()+"**", theme.Success()), true); err != nil {
		return err
	}
	return h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Notice(ctx.Settings, "💰 Valor Estimado",
			"Qual é o valor aproximado da carga em prata? (Mínimo: "+transport.FormatSilver(ctx.Settings.Pricing.MinimumSilver)+")", theme.Ticket())},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Inserir Valor", core.NewCustomID(views.HandlerTicket, actionSilver, views.ID(t)), discordgo.PrimaryButton, "💰"),
		)},
	})
}

func (h *Handler) saveSilver(ctx *core.Context, t *transport.Transport, raw string) error {
	minimum := h.service.Pricing().MinimumSilver
	silver, err := transport.ParseSilver(raw, minimum)
	if err != nil {
		return core.NewValidationError("valor", "Valor inválido! Mínimo: "+transport.FormatSilver(minimum)+" prata.")
	}
	t, quote, err := h.service.SetSilver(ctx, t.ID, silver)
	if err != nil {
		return views.Explain(err)
	}
	if err := ctx.Embed(views.Notice(ctx.Settings, "✅ Valor Confirmado",
		fmt.Sprintf("Valor: **%s prata**\nTaxa estimada: **%s**", transport.ApproxSilver(quote.Silver), quote.Fee), theme.Success()), true); err != nil {
		return err
	}
	return h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Notice(ctx.Settings, "📝 Observações (opcional)",
			"Tem algo especial que devemos saber?\nEx: peso alto, itens refinados, Black Market.", theme.Ticket())},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Adicionar Observações", core.NewCustomID(views.HandlerTicket, actionNotes, views.ID(t)), discordgo.PrimaryButton, "📝"),
			core.Button("Pular", core.NewCustomID(views.HandlerTicket, actionSkipNotes, views.ID(t)), discordgo.SecondaryButton, "⏭️"),
		)},
	})
}

func (h *Handler) submit(ctx *core.Context, t *transport.Transport, notes string) error {
	if err := ctx.Defer(true); err != nil {
		return err
	}
	t, err := h.service.Submit(ctx, t.ID, notes, ctx.UserID)
	if err != nil {
		return views.Explain(err)
	}
	if err := h.postPayment(ctx.Settings, t); err != nil {
		return err
	}
	h.logger.Info("📨 Transport submitted", "ticket", t.Ticket(), "fee", t.Fee.String())
	return ctx.Success("Resumo criado! Siga as instruções de pagamento no canal.")
}

// PaymentMessage builds the PIX instructions for t: embed, copy and cancel
// buttons and the QR image when one can be produced.
func PaymentMessage(s files.Settings, t *transport.Transport, staticQRPath string) (*discordgo.MessageSend, error) {
	timeouts, _ := s.Durations()
	key := s.PIX.Key
	if key == "" {
		key = "Chave não configurada. Aguarde a staff."
	}
	embed := views.Notice(s, "💳 PAGAMENTO - "+t.Ticket(), "Faça o PIX no valor exato abaixo.", theme.Payment(),
		core.Field("💵 Valor", "**"+transport.FormatBRL(t.Fee)+"**", true),
		core.Field("🔑 Chave PIX", "`"+key+"`", true),
		core.Field("🧾 Identificador", pix.TxIDForTicket(t.TicketNumber), true),
		core.Field("1️⃣", "Faça o PIX conforme acima", false),
		core.Field("2️⃣", "Envie a imagem do comprovante neste canal", false),
		core.Field("3️⃣", "Aguarde a validação da staff", false),
	)
	if timeouts.Payment > 0 {
		embed.Description += "\nPrazo para pagamento: **" + views.Duration(timeouts.Payment) + "**."
	}

	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{core.Row(
			core.Button("Copiar PIX", core.NewCustomID(views.HandlerTicket, actionCopyKey, views.ID(t)), discordgo.PrimaryButton, "📋"),
			core.Button("Cancelar Transporte", core.NewCustomID(views.HandlerTicket, actionCancel, views.ID(t)), discordgo.DangerButton, "❌"),
		)},
	}

	payload, err := pix.Payload(merchant(s), pix.Payment{Amount: t.Fee, TxID: pix.TxIDForTicket(t.TicketNumber)})
	if err != nil {
		// sem chave: instruções sem QR
		return msg, nil
	}
	img, err := pix.QRImage(staticQRPath, payload)
	if err != nil {
		return msg, err
	}
	embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + img.Name}
	msg.Files = []*discordgo.File{{Name: img.Name, ContentType: "image/png", Reader: bytes.NewReader(img.Data)}}
	return msg, nil
}

func merchant(s files.Settings) pix.Merchant {
	return pix.Merchant{Key: s.PIX.Key, Name: s.PIX.MerchantName, City: s.PIX.MerchantCity}
}

func (h *Handler) postPayment(s files.Settings, t *transport.Transport) error {
	if err := h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Summary(s, t, "✅ TRANSPORTE CRIADO")},
	}); err != nil {
		return err
	}

	msg, err := PaymentMessage(s, t, h.cfg.StaticQRPath)
	if err != nil {
		h.logger.Warn("⚠️ QR code unavailable; sending instructions only", "ticket", t.Ticket(), "error", err)
	}
	if err := h.send(t.ChannelID, msg); err != nil {
		return err
	}

	return h.send(t.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{views.Notice(s, "📋 Próximos Passos",
			"1️⃣ Faça o PIX conforme acima\n2️⃣ Envie o comprovante neste canal\n3️⃣ Nós validaremos manualmente\n4️⃣ Você confirmará o depósito dos itens na ilha",
			theme.Ticket())},
	})
}

func (h *Handler) copyKey(ctx *core.Context, t *transport.Transport) error {
	if ctx.Settings.PIX.Key == "" {
		return views.Explain(pix.ErrMissingKey)
	}
	text := "🔑 Chave PIX:\n```" + ctx.Settings.PIX.Key + "```\nValor: **" + transport.FormatBRL(t.Fee) + "**"
	if payload, err := pix.Payload(merchant(ctx.Settings), pix.Payment{Amount: t.Fee, TxID: pix.TxIDForTicket(t.TicketNumber)}); err == nil {
		text += "\n\n📲 PIX copia e cola:\n```" + payload + "```"
	}
	return ctx.Ephemeral(text)
}

func (h *Handler) cancel(ctx *core.Context, t *transport.Transport) error {
	if t.Status != transport.StatusOpen && t.Status != transport.StatusAwaitingPayment && !ctx.Can(core.PermissionStaff) {
		return core.NewCommandError("Após o pagamento, só a staff pode cancelar o transporte.", true)
	}
	t, err := h.service.Cancel(ctx, t.ID, ctx.UserID, "cancelado pelo cliente")
	if err != nil {
		return views.Explain(err)
	}
	return ctx.Update(&discordgo.InteractionResponseData{
		Content:    "❌ Transporte " + t.Ticket() + " cancelado.",
		Embeds:     []*discordgo.MessageEmbed{views.Summary(ctx.Settings, t, "")},
		Components: []discordgo.MessageComponent{},
	})
}

// --- Closing ---

func (h *Handler) handleClose(ctx *core.Context) error {
	t, err := h.service.GetByChannel(ctx, ctx.ChannelID)
	if err != nil {
		num, ok := channelTicket(ctx)
		if !ok {
			return core.NewCommandError("Use este comando dentro de um canal de ticket.", true)
		}
		h.logger.Info("Closing ticket channel without transport row", "ticket", num)
	} else if t.Status == transport.StatusOpen || t.Status == transport.StatusAwaitingPayment {
		if _, err := h.service.Cancel(ctx, t.ID, ctx.UserID, "ticket fechado pela staff"); err != nil {
			return views.Explain(err)
		}
	}

	if err := ctx.Reply("🗑️ Fechando ticket..."); err != nil {
		return err
	}
	return errutil.HandleDiscordError("delete_ticket_channel", func() error {
		_, err := h.session.ChannelDelete(ctx.ChannelID)
		return err
	})
}

func channelTicket(ctx *core.Context) (int64, bool) {
	ch, err := ctx.Session.State.Channel(ctx.ChannelID)
	if err != nil || ch == nil {
		return 0, false
	}
	n, ok := transport.ParseChannelTicket(ch.Name)
	if !ok {
		return 0, false
	}
	return n, true
}
