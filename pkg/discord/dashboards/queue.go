package dashboards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// BoardMessageKey is the configuracoes key holding the queue board message id.
const BoardMessageKey = "queue_board_message_id"

const defaultRefresh = 30 * time.Second

// QueueBoard keeps one message in the queue channel listing the paid
// transports waiting for a transporter.
type QueueBoard struct {
	session  *discordgo.Session
	service  *dispatch.Service
	store    BoardStore
	settings core.SettingsSource
	guildID  string
	override time.Duration
	logger   *slog.Logger
}

// NewQueueBoard creates the board for guildID.
func NewQueueBoard(session *discordgo.Session, service *dispatch.Service, store BoardStore, settings core.SettingsSource, guildID string) *QueueBoard {
	return &QueueBoard{
		session:  session,
		service:  service,
		store:    store,
		settings: settings,
		guildID:  guildID,
		logger:   log.DiscordLogger().With("component", "queue_board"),
	}
}

// Name identifies the board in the service manager.
func (b *QueueBoard) Name() string { return "queue-board" }

// Start refreshes the board every queue_refresh until ctx is done. Refresh
// failures are logged and retried on the next tick.
func (b *QueueBoard) Start(ctx context.Context) error {
	b.logger.Info("📋 Queue board started", "guild", b.guildID)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("📋 Queue board stopped")
			return nil
		case <-timer.C:
			if err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
				b.logger.Warn("⚠️ Queue board refresh failed", "error", err)
			}
			timer.Reset(b.interval())
		}
	}
}

// SetInterval fixes the refresh period; zero follows settings.yaml.
func (b *QueueBoard) SetInterval(d time.Duration) { b.override = d }

func (b *QueueBoard) interval() time.Duration {
	if b.override > 0 {
		return b.override
	}
	d, err := b.settings.Snapshot().Durations()
	if err != nil || d.QueueRefresh <= 0 {
		return defaultRefresh
	}
	return d.QueueRefresh
}

// Refresh edits the board in place, or posts a new one when the stored
// message is gone.
func (b *QueueBoard) Refresh(ctx context.Context) error {
	s := b.settings.Snapshot()
	ch, err := views.FindChannel(b.session, b.guildID, s.Channels.Queue)
	if err != nil {
		return err
	}
	queue, err := b.service.Queue(ctx)
	if err != nil {
		return fmt.Errorf("load queue: %w", err)
	}
	embeds := []*discordgo.MessageEmbed{RenderQueue(s, queue, time.Now())}

	posted, err := pinned{session: b.session, store: b.store, key: BoardMessageKey}.publish(ctx, ch.ID, embeds, nil)
	if posted {
		b.logger.Info("📋 Queue board posted", "channel", ch.ID)
	}
	return err
}

// RenderQueue builds the board embed.
func RenderQueue(s files.Settings, queue []*transport.Transport, now time.Time) *discordgo.MessageEmbed {
	var desc strings.Builder
	if len(queue) == 0 {
		desc.WriteString("Nenhum transporte aguardando. 🎉")
	}
	for i, t := range queue {
		fmt.Fprintf(&desc, "`%2d.` %s\n", i+1, views.Compact(t))
	}
	embed := views.Notice(s, fmt.Sprintf("🚚 FILA DE TRANSPORTES (%d)", len(queue)), desc.String(), theme.Queue())
	embed.Timestamp = now.UTC().Format(time.RFC3339)
	return embed
}
