package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/tasbot/internal/discordtest"
	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/storage"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(TokenEnv, "secret")
	t.Setenv("GUILD_ID", "g1")
	t.Setenv("STAFF_ROLE_ID", "r-staff")
	t.Setenv("TAS_DATA_DIR", "/srv/tas")
	t.Setenv("TAS_QUEUE_REFRESH", "1m")
	t.Setenv("DATABASE_URL", "")

	opts, err := OptionsFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "secret", opts.Token)
	assert.Equal(t, "g1", opts.GuildID)
	assert.Equal(t, core.Roles{StaffRoleID: "r-staff"}, opts.Roles)
	assert.Equal(t, filepath.Join("/srv/tas", "settings.yaml"), opts.SettingsPath)
	assert.Equal(t, filepath.Join("/srv/tas", "tas_mania.db"), opts.DatabaseDSN)
	assert.Equal(t, time.Minute, opts.QueueRefresh)
}

func TestOptionsFromEnvMissingToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(TokenEnv, "")

	opts, err := OptionsFromEnv()
	assert.Error(t, err)
	assert.Empty(t, opts.Token)
}

func TestWireRegistersHandlersAndServices(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewStore(filepath.Join(dir, "tas.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	settings := files.NewConfigManager(filepath.Join(dir, "settings.yaml"))
	require.NoError(t, settings.Load())
	s, _ := discordtest.New(t)

	bot, err := Wire(s, store, settings, Options{GuildID: discordtest.GuildID})
	require.NoError(t, err)

	names := bot.Router.GetRegistry().CommandNames()
	for _, want := range []string{
		"abrir", "painel_transporte", "fechar_ticket",
		"transporter", "transporte",
		"enviar_relatorio", "enviar_config", "banco", "enviar_banco",
		"depositar", "retirada", "historico_financeiro", "historico", "bot",
	} {
		assert.Contains(t, names, want)
	}

	var services []string
	for _, info := range bot.Services.GetAllServices() {
		services = append(services, info.Name)
	}
	assert.Equal(t, []string{"dashboard-publisher", "queue-board", "settings-watcher"}, services)
}

func TestWireWithoutGuildSkipsQueueBoard(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewStore(filepath.Join(dir, "tas.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	settings := files.NewConfigManager(filepath.Join(dir, "settings.yaml"))
	require.NoError(t, settings.Load())
	s, _ := discordtest.New(t)

	bot, err := Wire(s, store, settings, Options{})
	require.NoError(t, err)
	for _, name := range []string{"queue-board", "dashboard-publisher"} {
		_, ok := bot.Services.GetServiceInfo(name)
		assert.Falsef(t, ok, "service %s", name)
	}
}
