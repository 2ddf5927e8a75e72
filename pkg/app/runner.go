// Package app bootstraps the bot: environment, logging, settings, database,
// Discord session, handlers and background services.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/admin"
	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/dashboards"
	"github.com/small-frappuccino/tasbot/pkg/discord/payments"
	"github.com/small-frappuccino/tasbot/pkg/discord/session"
	"github.com/small-frappuccino/tasbot/pkg/discord/tickets"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/errutil"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/log"
	"github.com/small-frappuccino/tasbot/pkg/service"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/theme"
	"github.com/small-frappuccino/tasbot/pkg/util"
)

// TokenEnv holds the bot token.
const TokenEnv = "BOT_TOKEN"

// Options is everything Run reads from the environment.
type Options struct {
	Token        string
	GuildID      string
	Roles        core.Roles
	SettingsPath string
	DatabaseDSN  string
	StaticQRPath string
	LogDir       string
	LogLevel     string
	// QueueRefresh overrides settings.yaml queue_refresh when positive.
	QueueRefresh time.Duration
}

// OptionsFromEnv loads .env files and reads the bot variables.
func OptionsFromEnv() (Options, error) {
	util.LoadDotEnv()
	token, err := util.LoadEnvWithLocalBinFallback(TokenEnv)
	opts := Options{
		Token:   token,
		GuildID: util.EnvString("GUILD_ID", ""),
		Roles: core.Roles{
			AdminRoleID:       util.EnvString("ADMIN_ROLE_ID", ""),
			StaffRoleID:       util.EnvString("STAFF_ROLE_ID", ""),
			TransporterRoleID: util.EnvString("TRANSPORTER_ROLE_ID", ""),
		},
		SettingsPath: util.SettingsPath(),
		DatabaseDSN:  util.DatabaseDSN(),
		StaticQRPath: util.StaticQRPath(),
		LogDir:       util.LogDir(),
		LogLevel:     util.EnvString("TAS_LOG_LEVEL", "info"),
		QueueRefresh: util.EnvDuration("TAS_QUEUE_REFRESH", 0),
	}
	return opts, err
}

// Bot is the wired application, ready to sync commands and run services.
type Bot struct {
	Session  *discordgo.Session
	Settings *files.ConfigManager
	Store    *storage.Store
	Service  *dispatch.Service
	Router   *core.CommandRouter
	Commands *core.CommandManager
	Services *service.ServiceManager
	Payments *payments.Handler
}

// Wire builds handlers and services over an open session and store. Nothing
// talks to Discord until Start.
func Wire(s *discordgo.Session, store *storage.Store, settings *files.ConfigManager, opts Options) (*Bot, error) {
	l := ledger.New(store)
	svc := dispatch.NewService(store, l, settings, log.DatabaseLogger())

	checker := core.NewPermissionChecker(s, opts.Roles, func() []string {
		return settings.Snapshot().Branding.StaffRoleNamePrefixes
	})
	router := core.NewCommandRouter(s, settings, checker)

	tickets.NewHandler(s, svc, tickets.Config{Roles: opts.Roles, StaticQRPath: opts.StaticQRPath}).Register(router)
	pay := payments.NewHandler(s, svc, settings)
	pay.Register(router)
	dash := dashboards.New(s, svc, l, settings)
	dash.Register(router)

	services := service.NewServiceManager()
	if opts.GuildID != "" {
		board := dashboards.NewQueueBoard(s, svc, store, settings, opts.GuildID)
		board.SetInterval(opts.QueueRefresh)
		if err := services.Register(board); err != nil {
			return nil, err
		}
		if err := services.Register(dashboards.NewPublisher(s, dash, store, settings, opts.GuildID)); err != nil {
			return nil, err
		}
	} else {
		log.ApplicationLogger().Warn("⚠️ GUILD_ID not set; queue board and dashboard publishing disabled, commands synced globally")
	}
	if err := services.Register(service.Func{
		ServiceName: "settings-watcher",
		Run: func(ctx context.Context) error {
			return settings.Watch(ctx, applySettings)
		},
	}); err != nil {
		return nil, err
	}
	admin.NewAdminCommands(services, Version()).RegisterCommands(router)

	return &Bot{
		Session:  s,
		Settings: settings,
		Store:    store,
		Service:  svc,
		Router:   router,
		Commands: core.NewCommandManager(s, router, opts.GuildID),
		Services: services,
		Payments: pay,
	}, nil
}

// Start syncs slash commands, attaches listeners and runs services until ctx
// is done.
func (b *Bot) Start(ctx context.Context) error {
	b.Router.SetBaseContext(ctx)
	if err := b.Commands.SetupCommands(); err != nil {
		return fmt.Errorf("configure slash commands: %w", err)
	}
	defer b.Commands.Shutdown()

	detach := b.Payments.Attach(ctx)
	defer detach()

	log.ApplicationLogger().Info("🔗 Slash commands sync completed", "commands", len(b.Router.GetRegistry().CommandNames()))
	return b.Services.Run(ctx)
}

func applySettings(s files.Settings) {
	if err := theme.SetCurrent(s.Branding.Theme); err != nil {
		log.ApplicationLogger().Warn("⚠️ Unknown theme in settings; keeping current", "theme", s.Branding.Theme, "error", err)
	}
}

// Run bootstraps the bot and blocks until ctx is cancelled or a service fails.
func Run(ctx context.Context, opts Options) error {
	started := time.Now()

	if err := log.SetupLogger(log.Config{Dir: opts.LogDir, Level: opts.LogLevel}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}
	defer log.Close()

	if err := errutil.InitializeGlobalErrorHandler(log.ApplicationLogger()); err != nil {
		return fmt.Errorf("initialize global error handler: %w", err)
	}
	log.ApplicationLogger().Info(formatStartupMessage(util.AppName, Version()))

	if opts.Token == "" {
		return fmt.Errorf("%s not set in environment or .env file", TokenEnv)
	}
	if err := util.EnsureDataDirs(); err != nil {
		return err
	}

	settings := files.NewConfigManager(opts.SettingsPath)
	if err := settings.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	applySettings(settings.Snapshot())

	store := storage.NewStore(opts.DatabaseDSN)
	if err := store.Init(); err != nil {
		return fmt.Errorf("initialize %s store: %w", store.Dialect(), err)
	}
	defer store.Close()

	log.DiscordLogger().Info("🔑 Attempting to authenticate with Discord API...")
	s, err := session.NewDiscordSession(opts.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	defer s.Close()
	if s.State == nil || s.State.User == nil {
		return fmt.Errorf("discord session state not properly initialized")
	}
	log.DiscordLogger().Info(fmt.Sprintf("✅ Authenticated as %s", s.State.User.Username))

	bot, err := Wire(s, store, settings, opts)
	if err != nil {
		return err
	}

	log.ApplicationLogger().Info(fmt.Sprintf("🎯 %s initialized in %s", util.AppName, time.Since(started).Round(time.Millisecond)))
	log.ApplicationLogger().Info(fmt.Sprintf("🤖 %s running. Press Ctrl+C to stop...", util.AppName))

	runErr := bot.Start(ctx)

	log.ApplicationLogger().Info(fmt.Sprintf("🛑 Stopping %s...", util.AppName))
	// Allow in-flight handlers to finish their writes before the store closes.
	time.Sleep(100 * time.Millisecond)
	return runErr
}
