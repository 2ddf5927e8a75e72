package tickets

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/tasbot/internal/discordtest"
	"github.com/small-frappuccino/tasbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/tasbot/pkg/discord/views"
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const staffRole = "r-staff"

type staticSettings files.Settings

func (s staticSettings) Snapshot() files.Settings { return files.Settings(s) }

type env struct {
	session *discordgo.Session
	fake    *discordtest.Fake
	svc     *dispatch.Service
	router  *core.CommandRouter
}

func newEnv(t *testing.T) env {
	t.Helper()
	store := storage.NewStore(filepath.Join(t.TempDir(), "tas.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	svc := dispatch.NewService(store, ledger.New(store), dispatch.StaticPricing(transport.DefaultPricing()), nil)

	settings := files.DefaultSettings()
	settings.PIX.Key = "pix@tasmania.com"

	s, fake := discordtest.New(t)
	roles := core.Roles{StaffRoleID: staffRole}
	checker := core.NewPermissionChecker(s, roles, func() []string { return settings.Branding.StaffRoleNamePrefixes })
	router := core.NewCommandRouter(s, staticSettings(settings), checker)
	NewHandler(s, svc, Config{Roles: roles, StaticQRPath: filepath.Join(t.TempDir(), "missing.png")}).Register(router)
	return env{session: s, fake: fake, svc: svc, router: router}
}

func (e env) run(i *discordgo.InteractionCreate) { e.router.HandleInteraction(e.session, i) }

func (e env) open(t *testing.T, user string) *transport.Transport {
	t.Helper()
	e.run(discordtest.Command("lobby", discordtest.Member(user), "abrir"))
	created := len(e.fake.Find(http.MethodPost, "guilds/"+discordtest.GuildID+"/channels"))
	require.NotZero(t, created)
	tr, err := e.svc.GetByTicket(context.Background(), transport.TicketBase+int64(created))
	require.NoError(t, err)
	return tr
}

func lastResponse(t *testing.T, f *discordtest.Fake) discordtest.Response {
	t.Helper()
	rs := f.InteractionResponses()
	require.NotEmpty(t, rs)
	return rs[len(rs)-1]
}

func TestOpenCreatesPrivateChannel(t *testing.T) {
	e := newEnv(t)
	tr := e.open(t, "alice")

	assert.Equal(t, transport.StatusOpen, tr.Status)
	assert.Equal(t, int64(1001), tr.TicketNumber)
	require.NotEmpty(t, tr.ChannelID)

	var data discordgo.GuildChannelCreateData
	require.NoError(t, e.fake.Find(http.MethodPost, "guilds/")[0].Decode(&data))
	assert.Equal(t, "ticket-1001", data.Name)

	var everyoneDenied, userAllowed, staffAllowed bool
	for _, o := range data.PermissionOverwrites {
		switch o.ID {
		case discordtest.GuildID:
			everyoneDenied = o.Deny&discordgo.PermissionViewChannel != 0
		case "alice":
			userAllowed = o.Allow&discordgo.PermissionViewChannel != 0
		case staffRole:
			staffAllowed = o.Allow&discordgo.PermissionViewChannel != 0
		}
	}
	assert.True(t, everyoneDenied)
	assert.True(t, userAllowed)
	assert.True(t, staffAllowed)

	msgs := e.fake.ChannelMessages(tr.ChannelID)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "<@alice>")
	require.Len(t, msgs[1].Components, 1)

	fu := e.fake.Followups()
	require.NotEmpty(t, fu)
	assert.Contains(t, fu[len(fu)-1].Content, "#1001")
}

func TestWizardReachesPayment(t *testing.T) {
	e := newEnv(t)
	tr := e.open(t, "alice")
	id := views.ID(tr)
	alice := discordtest.Member("alice")

	e.run(discordtest.Component(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionNick, id)))
	assert.Equal(t, discordgo.InteractionResponseModal, lastResponse(t, e.fake).Type)

	e.run(discordtest.Modal(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionNickModal, id), map[string]string{inputNick: " Whadawel "}))
	e.run(discordtest.Component(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionOrigin, id), "Lymhurst"))
	e.run(discordtest.Component(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionPriority, id, "ALTA")))
	e.run(discordtest.Modal(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionSilverModal, id), map[string]string{inputSilver: "18500000"}))

	got, err := e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Whadawel", got.Nick)
	assert.Equal(t, "Lymhurst", got.Origin)
	assert.Equal(t, transport.PriorityHigh, got.Priority)
	assert.EqualValues(t, 18_500_000, got.Silver)

	e.fake.Reset()
	e.run(discordtest.Component(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionSkipNotes, id)))

	got, err = e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusAwaitingPayment, got.Status)
	// 18.5M * 0.60 * 1.2 = R$ 13,32
	assert.EqualValues(t, 1332, got.Fee)

	var withQR bool
	for _, c := range e.fake.Find(http.MethodPost, "channels/"+tr.ChannelID+"/messages") {
		if len(c.Files) > 0 {
			withQR = true
			assert.Equal(t, []string{"pix_qrcode.png"}, c.Files)
			var m discordtest.Sent
			require.NoError(t, c.Decode(&m))
			require.Len(t, m.Embeds, 1)
			assert.Equal(t, "attachment://pix_qrcode.png", m.Embeds[0].Image.URL)
		}
	}
	assert.True(t, withQR, "payment message should carry the QR code")
}

func TestWizardRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	tr := e.open(t, "alice")
	id := views.ID(tr)
	alice := discordtest.Member("alice")

	e.run(discordtest.Modal(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionNickModal, id), map[string]string{inputNick: "ab"}))
	e.run(discordtest.Modal(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionSilverModal, id), map[string]string{inputSilver: "5000"}))
	e.run(discordtest.Component(tr.ChannelID, alice, core.NewCustomID(views.HandlerTicket, actionOrigin, id), "Caerleon"))

	got, err := e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Nick)
	assert.Zero(t, got.Silver)
	assert.Empty(t, got.Origin)

	for _, r := range e.fake.InteractionResponses()[1:] {
		require.NotNil(t, r.Data)
		assert.Equal(t, discordgo.MessageFlagsEphemeral, r.Data.Flags)
		assert.True(t, strings.HasPrefix(r.Data.Content, "❌"), r.Data.Content)
	}
}

func TestOnlyOwnerOrStaffDrivesWizard(t *testing.T) {
	e := newEnv(t)
	tr := e.open(t, "alice")
	id := views.ID(tr)

	e.run(discordtest.Modal(tr.ChannelID, discordtest.Member("mallory"), core.NewCustomID(views.HandlerTicket, actionNickModal, id), map[string]string{inputNick: "Intruder"}))
	got, err := e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Nick)

	e.run(discordtest.Modal(tr.ChannelID, discordtest.Member("staffer", staffRole), core.NewCustomID(views.HandlerTicket, actionNickModal, id), map[string]string{inputNick: "Helper"}))
	got, err = e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Helper", got.Nick)
}

func TestCancelBeforePayment(t *testing.T) {
	e := newEnv(t)
	tr := e.open(t, "alice")

	e.run(discordtest.Component(tr.ChannelID, discordtest.Member("alice"), core.NewCustomID(views.HandlerTicket, actionCancel, views.ID(tr))))

	got, err := e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusCancelled, got.Status)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, lastResponse(t, e.fake).Type)
}

func TestCloseTicketRequiresStaff(t *testing.T) {
	e := newEnv(t)
	tr := e.open(t, "alice")

	e.run(discordtest.Command(tr.ChannelID, discordtest.Member("alice"), "fechar_ticket"))
	assert.Empty(t, e.fake.Find(http.MethodDelete, "channels/"+tr.ChannelID))

	e.run(discordtest.Command(tr.ChannelID, discordtest.Member("staffer", staffRole), "fechar_ticket"))
	assert.Len(t, e.fake.Find(http.MethodDelete, "channels/"+tr.ChannelID), 1)

	got, err := e.svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusCancelled, got.Status)
}

func TestPanelPostsOpenButton(t *testing.T) {
	e := newEnv(t)
	e.run(discordtest.Command("lobby", discordtest.Member(discordtest.OwnerID), "painel_transporte"))

	msgs := e.fake.ChannelMessages("lobby")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].HasCustomID("ticket:open"))
}
