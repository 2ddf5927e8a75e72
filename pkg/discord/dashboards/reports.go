// Package dashboards renders the staff-facing panels: statistics, pricing,
// the cash book, the transport queue board and the customer history.
package dashboards

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const (
	actionBucket  = "bucket"
	actionRefresh = "refresh"

	// progressCells is the width of the concluded/total bar.
	progressCells = 20
)

// bucketButtons are the detail buttons of the report, in display order.
var bucketButtons = []struct {
	bucket transport.Bucket
	label  string
	emoji  string
}{
	{transport.BucketConcluded, "Concluídos", "✅"},
	{transport.BucketQueue, "Fila", "📦"},
	{transport.BucketAwaitingPayment, "Aguardando", "⏳"},
	{transport.BucketPaid, "Pagos", "💰"},
	{transport.BucketInTransit, "Em transporte", "🚚"},
}

// Reports is the statistics dashboard.
type Reports struct {
	session *discordgo.Session
	service *dispatch.Service
	logger  *slog.Logger
}

// NewReports creates the statistics dashboard.
func NewReports(session *discordgo.Session, service *dispatch.Service) *Reports {
	return &Reports{session: session, service: service, logger: log.DiscordLogger().With("component", "reports")}
}

// Register adds /enviar_relatorio and the "report" buttons.
func (r *Reports) Register(router *core.CommandRouter) {
	router.RegisterCommand(core.NewSimpleCommand("enviar_relatorio", "Publica o painel de relatórios neste canal", nil, r.handleSend, core.PermissionStaff))
	router.RegisterComponent(views.HandlerReport, core.PermissionStaff, r.handleComponent)
}

// Render builds the report embed and its buttons.
func (r *Reports) Render(ctx context.Context, s files.Settings) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	st, err := r.service.Stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	progress := st.Progress()
	embed := views.Notice(s, "📊 RELATÓRIO DE TRANSPORTES", "", theme.Report())
	for _, b := range transport.Buckets {
		embed.Fields = append(embed.Fields, core.Field(b.Title(), fmt.Sprintf("%d", st.Buckets[b]), true))
	}
	embed.Fields = append(embed.Fields,
		core.Field("📦 Total", fmt.Sprintf("%d", st.Total), true),
		core.Field("📈 Progresso", fmt.Sprintf("`%s` %.0f%%", views.Bar(progress, progressCells), progress*100), false),
	)

	details := make([]discordgo.MessageComponent, 0, len(bucketButtons))
	for _, bb := range bucketButtons {
		details = append(details, core.Button(bb.label, core.NewCustomID(views.HandlerReport, actionBucket, string(bb.bucket)), discordgo.SecondaryButton, bb.emoji))
	}
	components := []discordgo.MessageComponent{
		core.Row(details...),
		core.Row(core.Button("Atualizar", core.NewCustomID(views.HandlerReport, actionRefresh), discordgo.PrimaryButton, "🔄")),
	}
	return embed, components, nil
}

func (r *Reports) handleSend(ctx *core.Context) error {
	embed, components, err := r.Render(ctx, ctx.Settings)
	if err != nil {
		return err
	}
	if _, err := r.session.ChannelMessageSendComplex(ctx.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}); err != nil {
		return err
	}
	return ctx.Success("Relatório publicado.")
}

func (r *Reports) handleComponent(ctx *core.Context, id core.CustomID) error {
	switch id.Action {
	case actionRefresh:
		embed, components, err := r.Render(ctx, ctx.Settings)
		if err != nil {
			return err
		}
		return ctx.Update(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}, Components: components})
	case actionBucket:
		b, ok := transport.ParseBucket(id.Arg(0))
		if !ok {
			return core.NewCommandError("Categoria desconhecida.", true)
		}
		ts, err := r.service.ListByBucket(ctx, b, dispatch.BucketLimit)
		if err != nil {
			return err
		}
		embed := views.Notice(ctx.Settings, b.Title(), views.List(ts, "Nenhum transporte nesta categoria."), theme.Report())
		return ctx.Embed(embed, true)
	}
	return core.NewCommandError("Ação desconhecida.", true)
}
