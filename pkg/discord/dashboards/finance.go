package dashboards

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/errutil"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const (
	actionDeposit   = "deposit"
	actionDepositM  = "depositm"
	actionWithdraw  = "withdraw"
	actionWithdrawM = "withdrawm"
	actionHistory   = "history"

	inputAmount = "valor"
	inputReason = "motivo"

	dashboardEntries = 5
	buttonEntries    = 20
	reasonMaxLen     = 200
)

// Finance is the cash book dashboard and its commands.
type Finance struct {
	session *discordgo.Session
	ledger  *ledger.Ledger
	logger  *slog.Logger
}

// NewFinance creates the cash book dashboard.
func NewFinance(session *discordgo.Session, l *ledger.Ledger) *Finance {
	return &Finance{session: session, ledger: l, logger: log.DiscordLogger().With("component", "finance")}
}

// Register adds the bank commands and the "bank" buttons.
func (f *Finance) Register(router *core.CommandRouter) {
	amount := &discordgo.ApplicationCommandOption{
		Type: discordgo.ApplicationCommandOptionString, Name: inputAmount, Description: "Valor em reais, ex.: 150,00", Required: true,
	}
	router.RegisterCommand(core.NewSimpleCommand("banco", "Mostra o saldo do caixa", nil, f.handleBalance, core.PermissionAdmin))
	router.RegisterCommand(core.NewSimpleCommand("enviar_banco", "Publica o painel do caixa neste canal", nil, f.handleSend, core.PermissionAdmin))
	router.RegisterCommand(core.NewSimpleCommand("depositar", "Registra uma entrada no caixa", []*discordgo.ApplicationCommandOption{
		amount,
		{Type: discordgo.ApplicationCommandOptionString, Name: inputReason, Description: "Motivo do depósito", Required: true, MaxLength: reasonMaxLen},
	}, f.handleDeposit, core.PermissionAdmin))
	router.RegisterCommand(core.NewSimpleCommand("retirada", "Registra uma saída do caixa", []*discordgo.ApplicationCommandOption{amount}, f.handleWithdraw, core.PermissionAdmin))
	router.RegisterCommand(core.NewSimpleCommand("historico_financeiro", "Lista as últimas movimentações do caixa", []*discordgo.ApplicationCommandOption{
		{
			Type: discordgo.ApplicationCommandOptionInteger, Name: "limite",
			Description: fmt.Sprintf("Quantidade de registros (1 a %d)", ledger.MaxHistoryLimit),
		},
	}, f.handleHistory, core.PermissionAdmin))
	router.RegisterComponent(views.HandlerBank, core.PermissionAdmin, f.handleComponent)
}

// Render builds the balance embed with the latest entries.
func (f *Finance) Render(ctx context.Context, s files.Settings) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	bal, err := f.ledger.Balance(ctx)
	if err != nil {
		return nil, nil, err
	}
	recent, err := f.ledger.History(ctx, dashboardEntries)
	if err != nil {
		return nil, nil, err
	}
	var ratio float64
	if bal.In > 0 {
		ratio = float64(bal.Total) / float64(bal.In)
	}
	updated := "nunca"
	if bal.UpdatedAt != nil {
		updated = fmt.Sprintf("<t:%d:R>", bal.UpdatedAt.Unix())
	}
	embed := views.Notice(s, "🏦 CAIXA T.A.S", "", theme.Finance(),
		core.Field("💰 Saldo", transport.FormatBRL(bal.Total), true),
		core.Field("📥 Entradas", transport.FormatBRL(bal.In), true),
		core.Field("📤 Saídas", transport.FormatBRL(bal.Out), true),
		core.Field("📊 Saldo / entradas", fmt.Sprintf("`%s` %.0f%%", views.Bar(ratio, progressCells), ratio*100), false),
		core.Field("🧾 Últimas movimentações", entries(recent, "Nenhuma movimentação registrada."), false),
		core.Field("🕒 Atualizado", updated, false),
	)
	components := []discordgo.MessageComponent{core.Row(
		core.Button("Depositar", core.NewCustomID(views.HandlerBank, actionDeposit), discordgo.SuccessButton, "💵"),
		core.Button("Retirada", core.NewCustomID(views.HandlerBank, actionWithdraw), discordgo.DangerButton, "💸"),
		core.Button("Histórico", core.NewCustomID(views.HandlerBank, actionHistory), discordgo.PrimaryButton, "📜"),
		core.Button("Atualizar", core.NewCustomID(views.HandlerBank, actionRefresh), discordgo.SecondaryButton, "🔄"),
	)}
	return embed, components, nil
}

func entries(es []ledger.Entry, empty string) string {
	if len(es) == 0 {
		return empty
	}
	lines := make([]string, 0, len(es))
	for _, e := range es {
		line := fmt.Sprintf("%s `%s` **%s** %s", e.Kind.Emoji(), e.CreatedAt.Format("02/01 15:04"), transport.FormatBRL(e.Amount), e.Description)
		if e.Reason != "" {
			line += " | " + e.Reason
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (f *Finance) handleBalance(ctx *core.Context) error {
	embed, components, err := f.Render(ctx, ctx.Settings)
	if err != nil {
		return err
	}
	return ctx.Embed(embed, true, components...)
}

func (f *Finance) handleSend(ctx *core.Context) error {
	embed, components, err := f.Render(ctx, ctx.Settings)
	if err != nil {
		return err
	}
	if _, err := f.session.ChannelMessageSendComplex(ctx.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}); err != nil {
		return err
	}
	return ctx.Success("Painel do caixa publicado.")
}

func (f *Finance) handleDeposit(ctx *core.Context) error {
	opts := ctx.Options()
	amount, err := parseAmount(opts.String(inputAmount))
	if err != nil {
		return err
	}
	return f.deposit(ctx, amount, opts.String(inputReason))
}

func (f *Finance) deposit(ctx *core.Context, amount transport.Cents, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return core.NewValidationError(inputReason, "Informe o motivo do depósito.")
	}
	e, err := f.ledger.Deposit(ctx, amount, reason, ctx.UserID)
	if err != nil {
		return views.Explain(err)
	}
	f.record(ctx, e)
	return ctx.Success(fmt.Sprintf("Depósito de %s registrado.", transport.FormatBRL(e.Amount)))
}

func (f *Finance) handleWithdraw(ctx *core.Context) error {
	amount, err := parseAmount(ctx.Options().String(inputAmount))
	if err != nil {
		return err
	}
	return f.withdrawModal(ctx, amount)
}

func (f *Finance) withdrawModal(ctx *core.Context, amount transport.Cents) error {
	inputs := []discordgo.TextInput{core.TextInput(inputReason, "Motivo da retirada", "Ex.: pagamento do transportador", discordgo.TextInputParagraph, true, 3, reasonMaxLen)}
	var args []string
	if amount > 0 {
		args = append(args, strconv.FormatInt(int64(amount), 10))
	} else {
		inputs = append([]discordgo.TextInput{core.TextInput(inputAmount, "Valor (R$)", "150,00", discordgo.TextInputShort, true, 1, 15)}, inputs...)
	}
	return ctx.Modal(core.NewCustomID(views.HandlerBank, actionWithdrawM, args...), "Retirada do caixa", inputs...)
}

func (f *Finance) handleHistory(ctx *core.Context) error {
	return f.showHistory(ctx, ledger.ClampLimit(int(ctx.Options().Int("limite"))))
}

func (f *Finance) showHistory(ctx *core.Context, limit int) error {
	es, err := f.ledger.History(ctx, limit)
	if err != nil {
		return err
	}
	bal, err := f.ledger.Balance(ctx)
	if err != nil {
		return err
	}
	embed := views.Notice(ctx.Settings, fmt.Sprintf("🧾 HISTÓRICO FINANCEIRO (%d)", len(es)), entries(es, "Nenhuma movimentação registrada."), theme.Finance())
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "💰 Saldo atual: " + transport.FormatBRL(bal.Total)}
	return ctx.Embed(embed, true)
}

func (f *Finance) depositModal(ctx *core.Context) error {
	return ctx.Modal(core.NewCustomID(views.HandlerBank, actionDepositM), "Depósito no caixa",
		core.TextInput(inputAmount, "Valor (R$)", "150,00", discordgo.TextInputShort, true, 1, 15),
		core.TextInput(inputReason, "Motivo do depósito", "Ex.: aporte inicial", discordgo.TextInputParagraph, true, 3, reasonMaxLen),
	)
}

func (f *Finance) handleComponent(ctx *core.Context, id core.CustomID) error {
	switch id.Action {
	case actionRefresh:
		embed, components, err := f.Render(ctx, ctx.Settings)
		if err != nil {
			return err
		}
		return ctx.Update(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}, Components: components})
	case actionDeposit:
		return f.depositModal(ctx)
	case actionDepositM:
		values := core.ModalValues(ctx.Interaction)
		amount, err := parseAmount(values[inputAmount])
		if err != nil {
			return err
		}
		return f.deposit(ctx, amount, values[inputReason])
	case actionHistory:
		return f.showHistory(ctx, buttonEntries)
	case actionWithdraw:
		return f.withdrawModal(ctx, 0)
	case actionWithdrawM:
		values := core.ModalValues(ctx.Interaction)
		var amount transport.Cents
		if id.Arg(0) != "" {
			v, err := id.Int64(0)
			if err != nil {
				return core.NewCommandError("Valor inválido.", true)
			}
			amount = transport.Cents(v)
		} else {
			v, err := parseAmount(values[inputAmount])
			if err != nil {
				return err
			}
			amount = v
		}
		e, err := f.ledger.Withdraw(ctx, amount, values[inputReason], ctx.UserID)
		if err != nil {
			return views.Explain(err)
		}
		f.record(ctx, e)
		return ctx.Success(fmt.Sprintf("Retirada de %s registrada.", transport.FormatBRL(e.Amount)))
	}
	return core.NewCommandError("Ação desconhecida.", true)
}

func parseAmount(raw string) (transport.Cents, error) {
	amount, err := transport.ParseBRL(raw)
	if err != nil {
		return 0, core.NewValidationError(inputAmount, "Valor inválido. Use o formato 150,00.")
	}
	if amount <= 0 {
		return 0, core.NewValidationError(inputAmount, "O valor deve ser maior que zero.")
	}
	return amount, nil
}

// record posts a ledger movement to the finance log channel.
func (f *Finance) record(ctx *core.Context, e *ledger.Entry) {
	f.logger.Info("🏦 Ledger entry recorded", "kind", e.Kind, "amount", int64(e.Amount), "ref", e.Ref, "author", e.AuthorID)
	ch, err := views.FindChannel(f.session, ctx.GuildID, ctx.Settings.Channels.Finance)
	if err != nil {
		f.logger.Warn("⚠️ Finance channel unavailable", "error", err)
		return
	}
	color := theme.Success()
	if e.Kind == ledger.KindOut {
		color = theme.Danger()
	}
	embed := views.Notice(ctx.Settings, fmt.Sprintf("%s %s", e.Kind.Emoji(), e.Description), "", color,
		core.Field("Valor", transport.FormatBRL(e.Amount), true),
		core.Field("Responsável", views.Mention(e.AuthorID), true),
		core.Field("Motivo", e.Reason, false),
		core.Field("Referência", "`"+e.Ref+"`", false),
	)
	_ = errutil.HandleDiscordError("finance_log", func() error {
		_, err := f.session.ChannelMessageSendEmbed(ch.ID, embed)
		return err
	})
}
