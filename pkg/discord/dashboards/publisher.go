package dashboards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/log"
)

// Message id keys for the dashboards posted at startup.
const (
	ReportsMessageKey = "dashboard_reports_message_id"
	ConfigMessageKey  = "dashboard_config_message_id"
	FinanceMessageKey = "dashboard_finance_message_id"
)

// Publisher posts the reports, pricing and finance dashboards to their channels
// once per start, editing the copies left by the previous run.
type Publisher struct {
	session  *discordgo.Session
	set      *Set
	store    BoardStore
	settings core.SettingsSource
	guildID  string
	logger   *slog.Logger
}

// NewPublisher creates the startup publisher for guildID.
func NewPublisher(session *discordgo.Session, set *Set, store BoardStore, settings core.SettingsSource, guildID string) *Publisher {
	return &Publisher{
		session:  session,
		set:      set,
		store:    store,
		settings: settings,
		guildID:  guildID,
		logger:   log.DiscordLogger().With("component", "dashboard_publisher"),
	}
}

func (p *Publisher) Name() string { return "dashboard-publisher" }

// Start publishes once and returns. A missing channel only skips that dashboard.
func (p *Publisher) Start(ctx context.Context) error {
	if err := p.PublishAll(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("⚠️ Some dashboards were not published", "error", err)
	}
	return nil
}

type dashboard struct {
	key     string
	channel string
	render  func(context.Context, files.Settings) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error)
}

// PublishAll posts or refreshes every startup dashboard.
func (p *Publisher) PublishAll(ctx context.Context) error {
	s := p.settings.Snapshot()
	boards := []dashboard{
		{ReportsMessageKey, s.Channels.Reports, p.set.Reports.Render},
		{ConfigMessageKey, s.Channels.Config, func(_ context.Context, s files.Settings) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
			embed, components := p.set.Config.Render(s)
			return embed, components, nil
		}},
		{FinanceMessageKey, s.Channels.Finance, p.set.Finance.Render},
	}

	var errs []error
	for _, d := range boards {
		if err := p.publish(ctx, s, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.channel, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, s files.Settings, d dashboard) error {
	ch, err := views.FindChannel(p.session, p.guildID, d.channel)
	if err != nil {
		return err
	}
	embed, components, err := d.render(ctx, s)
	if err != nil {
		return err
	}
	posted, err := pinned{session: p.session, store: p.store, key: d.key}.publish(ctx, ch.ID, []*discordgo.MessageEmbed{embed}, components)
	if err != nil {
		return err
	}
	p.logger.Info("📌 Dashboard published", "channel", ch.Name, "new_message", posted)
	return nil
}
