// Package admin exposes the background service status to administrators.
package admin

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/service"
	"github.com/small-frappuccino/tasbot/pkg/theme"
)

// AdminCommands provides /bot servicos and /bot info.
type AdminCommands struct {
	serviceManager *service.ServiceManager
	version        string
	started        time.Time
	now            func() time.Time
}

// NewAdminCommands creates a new admin commands handler
func NewAdminCommands(serviceManager *service.ServiceManager, version string) *AdminCommands {
	return &AdminCommands{serviceManager: serviceManager, version: version, started: time.Now(), now: time.Now}
}

// RegisterCommands registers all admin commands with the router
func (ac *AdminCommands) RegisterCommands(router *core.CommandRouter) {
	router.RegisterCommand(core.NewGroupCommand("bot", "Administração do bot").
		AddSubCommand(core.NewSimpleCommand("servicos", "Estado dos serviços em segundo plano", nil, ac.handleServices, core.PermissionAdmin)).
		AddSubCommand(core.NewSimpleCommand("info", "Informações do sistema", nil, ac.handleInfo, core.PermissionAdmin)))
}

func (ac *AdminCommands) handleServices(ctx *core.Context) error {
	services := ac.serviceManager.GetAllServices()
	lines := make([]string, 0, len(services))
	color := theme.Success()
	for _, info := range services {
		line := fmt.Sprintf("%s **%s** %s", serviceStatusIcon(info.State), info.Name, info.State)
		if info.State == service.StateRunning && info.StartTime != nil {
			line += " há " + formatDuration(ac.now().Sub(*info.StartTime))
		}
		if info.LastError != nil {
			line += fmt.Sprintf("\n└ `%v`", info.LastError)
			color = theme.Error()
		}
		lines = append(lines, line)
	}
	desc := "Nenhum serviço registrado."
	if len(lines) > 0 {
		desc = strings.Join(lines, "\n")
	}
	return ctx.Embed(notice(ctx.Settings, "🔧 Serviços", desc, color), true)
}

func (ac *AdminCommands) handleInfo(ctx *core.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	embed := notice(ctx.Settings, "ℹ️ Informações do sistema", "", theme.Info(),
		core.Field("Versão", ac.version, true),
		core.Field("Online há", formatDuration(ac.now().Sub(ac.started)), true),
		core.Field("Serviços ativos", fmt.Sprintf("%d/%d", len(ac.serviceManager.GetRunningServices()), len(ac.serviceManager.GetAllServices())), true),
		core.Field("Goroutines", fmt.Sprintf("%d", runtime.NumGoroutine()), true),
		core.Field("Memória", formatBytes(int64(mem.Alloc)), true),
		core.Field("Go", runtime.Version(), true),
	)
	return ctx.Embed(embed, true)
}

func notice(s files.Settings, title, desc string, color int, fields ...*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return core.NewEmbedBuilder(s.Branding.Footer).Build(title, desc, color, fields...)
}

func serviceStatusIcon(state service.ServiceState) string {
	switch state {
	case service.StateRunning:
		return "✅"
	case service.StateError:
		return "❌"
	case service.StateStopped:
		return "⏹️"
	case service.StateRegistered:
		return "🔄"
	default:
		return "❓"
	}
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
