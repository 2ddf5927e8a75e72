package payments

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
	"github.com/small-frappuccino/tasbot/pkg/dispatch"
	"github.com/small-frappuccino/tasbot/pkg/files"
	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const (
	staffRole       = "r-staff"
	transporterRole = "r-transporter"

	ticketChannel  = "tc"
	reviewChannel  = "review"
	panelChannel   = "panel"
	queueChannel   = "queue"
	historyChannel = "history"
)

type staticSettings files.Settings

func (s staticSettings) Snapshot() files.Settings { return files.Settings(s) }

type env struct {
	session *discordgo.Session
	fake    *discordtest.Fake
	svc     *dispatch.Service
	ledger  *ledger.Ledger
	router  *core.CommandRouter
	handler *Handler
}

func newEnv(t *testing.T) env {
	t.Helper()
	store := storage.NewStore(filepath.Join(t.TempDir(), "tas.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	l := ledger.New(store)
	svc := dispatch.NewService(store, l, dispatch.StaticPricing(transport.DefaultPricing()), nil)

	settings := files.DefaultSettings()
	s, fake := discordtest.New(t)
	fake.AddChannel(s, ticketChannel, "ticket-1001")
	fake.AddChannel(s, reviewChannel, settings.Channels.PaymentReview)
	fake.AddChannel(s, panelChannel, settings.Channels.StaffPanel)
	fake.AddChannel(s, queueChannel, settings.Channels.Queue)
	fake.AddChannel(s, historyChannel, settings.Channels.PublicHistory)

	roles := core.Roles{StaffRoleID: staffRole, TransporterRoleID: transporterRole}
	checker := core.NewPermissionChecker(s, roles, nil)
	router := core.NewCommandRouter(s, staticSettings(settings), checker)
	h := NewHandler(s, svc, staticSettings(settings))
	h.Register(router)
	return env{session: s, fake: fake, svc: svc, ledger: l, router: router, handler: h}
}

// awaiting creates a submitted transport bound to the ticket channel.
func (e env) awaiting(t *testing.T) *transport.Transport {
	t.Helper()
	ctx := context.Background()
	tr, err := e.svc.Create(ctx, dispatch.Request{
		DiscordID: "alice", Username: "alice", Nick: "Whadawel", Origin: "Lymhurst",
		Priority: transport.PriorityNormal, Silver: 20_000_000,
	})
	require.NoError(t, err)
	tr, err = e.svc.AttachChannel(ctx, tr.ID, ticketChannel)
	require.NoError(t, err)
	return tr
}

func (e env) get(t *testing.T, id int64) *transport.Transport {
	t.Helper()
	tr, err := e.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return tr
}

func (e env) click(member *discordgo.Member, customID string) {
	e.router.HandleInteraction(e.session, discordtest.Component(ticketChannel, member, customID))
}

func image(author, url string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "upload",
		ChannelID: ticketChannel,
		GuildID:   discordtest.GuildID,
		Author:    &discordgo.User{ID: author},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "a1", URL: url, Filename: "print.png", ContentType: "image/png"},
		},
	}}
}

func hasButton(msgs []discordtest.Sent, customID string) bool {
	for _, m := range msgs {
		if m.HasCustomID(customID) {
			return true
		}
	}
	return false
}

func TestFullLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.awaiting(t)
	alice := discordtest.Member("alice")
	staff := discordtest.Member("staffer", staffRole)
	driver := discordtest.Member("driver", transporterRole)

	e.handler.HandleMessage(ctx, image("alice", "https://cdn.example/proof.png"))
	got := e.get(t, tr.ID)
	assert.Equal(t, "https://cdn.example/proof.png", got.PaymentProofURL)
	assert.NotEmpty(t, got.StaffMessageID)
	review := e.fake.ChannelMessages(reviewChannel)
	require.Len(t, review, 1)
	assert.True(t, review[0].HasCustomID("pay:approve:1"))
	assert.True(t, review[0].HasCustomID("pay:correct:1"))

	e.click(staff, "pay:approve:1")
	got = e.get(t, tr.ID)
	assert.Equal(t, transport.StatusPaid, got.Status)
	bal, err := e.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, got.Fee, bal.Total)
	assert.True(t, hasButton(e.fake.ChannelMessages(panelChannel), "pay:release:1"))

	e.click(staff, "pay:release:1")
	assert.True(t, e.get(t, tr.ID).AccessReleased)
	assert.True(t, hasButton(e.fake.ChannelMessages(ticketChannel), "client:deposit:1"))

	e.click(alice, "client:deposit:1")
	assert.True(t, e.get(t, tr.ID).AwaitingDepositPhoto)

	e.handler.HandleMessage(ctx, image("alice", "https://cdn.example/deposit.png"))
	got = e.get(t, tr.ID)
	assert.Equal(t, transport.StatusDeposited, got.Status)
	assert.Equal(t, "https://cdn.example/deposit.png", got.OriginPhotoURL)
	assert.False(t, got.AwaitingDepositPhoto)
	assert.True(t, hasButton(e.fake.ChannelMessages(queueChannel), "ship:start:1"))

	e.click(driver, "ship:start:1")
	got = e.get(t, tr.ID)
	assert.Equal(t, transport.StatusInTransit, got.Status)
	assert.Equal(t, "driver", got.TransporterID)
	assert.True(t, hasButton(e.fake.ChannelMessages(panelChannel), "ship:delivered:1"))

	e.click(driver, "ship:delivered:1")
	assert.Equal(t, transport.StatusDelivered, e.get(t, tr.ID).Status)
	assert.True(t, hasButton(e.fake.ChannelMessages(ticketChannel), "client:pickup:1"))

	e.click(alice, "client:pickup:1")
	assert.Equal(t, transport.StatusConcluded, e.get(t, tr.ID).Status)
	history := e.fake.ChannelMessages(historyChannel)
	require.Len(t, history, 1)
	require.Len(t, history[0].Embeds, 1)
	assert.Contains(t, history[0].Embeds[0].Title, "CONCLUÍDO")
}

func TestMessageListenerFilters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.awaiting(t)

	e.handler.HandleMessage(ctx, image("mallory", "https://cdn.example/x.png"))
	assert.Empty(t, e.get(t, tr.ID).PaymentProofURL)

	doc := image("alice", "https://cdn.example/x.pdf")
	doc.Attachments[0].ContentType = "application/pdf"
	e.handler.HandleMessage(ctx, doc)
	assert.Empty(t, e.get(t, tr.ID).PaymentProofURL)
	assert.Empty(t, e.fake.ChannelMessages(reviewChannel))
	msgs := e.fake.ChannelMessages(ticketChannel)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "imagem")

	bot := image("alice", "https://cdn.example/x.png")
	bot.Author.Bot = true
	e.handler.HandleMessage(ctx, bot)
	assert.Empty(t, e.fake.ChannelMessages(reviewChannel))
}

func TestRejectProofKeepsAwaitingPayment(t *testing.T) {
	e := newEnv(t)
	tr := e.awaiting(t)
	e.handler.HandleMessage(context.Background(), image("alice", "https://cdn.example/proof.png"))

	e.click(discordtest.Member("staffer", staffRole), "pay:reject:1")

	got := e.get(t, tr.ID)
	assert.Equal(t, transport.StatusAwaitingPayment, got.Status)
	assert.Empty(t, got.PaymentProofURL)
	responses := e.fake.InteractionResponses()
	require.NotEmpty(t, responses)
	last := responses[len(responses)-1]
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, last.Type)
	assert.Empty(t, last.Data.Components)
}

func TestCorrectPaymentShortfallThenApproval(t *testing.T) {
	e := newEnv(t)
	tr := e.awaiting(t)
	staff := discordtest.Member("staffer", staffRole)
	require.EqualValues(t, 1200, tr.Fee)

	e.router.HandleInteraction(e.session, discordtest.Modal(ticketChannel, staff, "pay:correctm:1", map[string]string{inputReceived: "10,00"}))
	got := e.get(t, tr.ID)
	assert.Equal(t, transport.StatusAwaitingPayment, got.Status)
	assert.EqualValues(t, 1000, got.Received)
	msgs := e.fake.ChannelMessages(ticketChannel)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1].Embeds[0].Description, "R$ 2,00")

	e.router.HandleInteraction(e.session, discordtest.Modal(ticketChannel, staff, "pay:correctm:1", map[string]string{inputReceived: "2,00"}))
	got = e.get(t, tr.ID)
	assert.Equal(t, transport.StatusPaid, got.Status)
	assert.EqualValues(t, 1200, got.Received)
}

func TestApproveTwiceCreditsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.awaiting(t)
	staff := discordtest.Member("staffer", staffRole)

	e.click(staff, "pay:approve:1")
	e.click(staff, "pay:approve:1")

	bal, err := e.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, tr.Fee, bal.Total)
	hist, err := e.ledger.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestPayButtonsRequireStaff(t *testing.T) {
	e := newEnv(t)
	tr := e.awaiting(t)

	e.click(discordtest.Member("alice"), "pay:approve:1")
	e.click(discordtest.Member("driver", transporterRole), "pay:approve:1")

	assert.Equal(t, transport.StatusAwaitingPayment, e.get(t, tr.ID).Status)
	assert.Empty(t, e.fake.Find(http.MethodPost, "channels/"+panelChannel))
}

func TestTransporteCommands(t *testing.T) {
	e := newEnv(t)
	tr := e.awaiting(t)
	staff := discordtest.Member("staffer", staffRole)
	sub := func(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
		return discordtest.Option(name, discordgo.ApplicationCommandOptionSubCommand, nil, opts...)
	}
	ticket := discordtest.Option("ticket", discordgo.ApplicationCommandOptionInteger, float64(tr.TicketNumber))

	e.router.HandleInteraction(e.session, discordtest.Command("c", staff, "transporte", sub("status", ticket)))
	responses := e.fake.InteractionResponses()
	require.Len(t, responses, 1)
	require.Len(t, responses[0].Data.Embeds, 1)
	assert.Contains(t, responses[0].Data.Embeds[0].Title, "#1001")

	reason := discordtest.Option("motivo", discordgo.ApplicationCommandOptionString, "comprovante falso")
	e.router.HandleInteraction(e.session, discordtest.Command("c", staff, "transporte", sub("rejeitar", ticket, reason)))
	assert.Equal(t, transport.StatusRejected, e.get(t, tr.ID).Status)

	e.router.HandleInteraction(e.session, discordtest.Command("c", staff, "transporte", sub("cancelar", ticket)))
	assert.Equal(t, transport.StatusRejected, e.get(t, tr.ID).Status, "terminal statuses cannot be cancelled")
}

func TestTransporterStartCommand(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.awaiting(t)
	_, err := e.svc.ApprovePayment(ctx, tr.ID, "staffer")
	require.NoError(t, err)
	_, err = e.svc.ConfirmDeposit(ctx, tr.ID, "https://cdn.example/d.png", "alice")
	require.NoError(t, err)

	ticket := discordtest.Option("ticket", discordgo.ApplicationCommandOptionInteger, float64(tr.TicketNumber))
	start := discordtest.Option("start", discordgo.ApplicationCommandOptionSubCommand, nil, ticket)
	e.router.HandleInteraction(e.session, discordtest.Command("c", discordtest.Member("driver", transporterRole), "transporter", start))

	got := e.get(t, tr.ID)
	assert.Equal(t, transport.StatusInTransit, got.Status)
	assert.Equal(t, "driver", got.TransporterID)
}

func TestTicketAutocomplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	waiting := e.awaiting(t)
	deposited, err := e.svc.Create(ctx, dispatch.Request{
		DiscordID: "bob", Username: "bob", Nick: "Bobzin", Origin: "Martlock",
		Priority: transport.PriorityNormal, Silver: 20_000_000,
	})
	require.NoError(t, err)
	_, err = e.svc.AttachChannel(ctx, deposited.ID, "tc2")
	require.NoError(t, err)
	_, err = e.svc.ApprovePayment(ctx, deposited.ID, "staffer")
	require.NoError(t, err)
	_, err = e.svc.ConfirmDeposit(ctx, deposited.ID, "https://cdn.example/d.png", "bob")
	require.NoError(t, err)

	staff := discordtest.Member("staffer", staffRole)
	driver := discordtest.Member("driver", transporterRole)
	typing := func(sub, value string) *discordgo.ApplicationCommandInteractionDataOption {
		return discordtest.Option(sub, discordgo.ApplicationCommandOptionSubCommand, nil,
			discordtest.Focused(discordtest.Option("ticket", discordgo.ApplicationCommandOptionInteger, value)))
	}

	tests := []struct {
		name    string
		member  *discordgo.Member
		command string
		option  *discordgo.ApplicationCommandInteractionDataOption
		want    []float64
	}{
		{"reject lists awaiting payment", staff, "transporte", typing("rejeitar", ""), []float64{float64(waiting.TicketNumber)}},
		{"status lists every open ticket", staff, "transporte", typing("status", ""), []float64{float64(deposited.TicketNumber), float64(waiting.TicketNumber)}},
		{"status filters by typed prefix", staff, "transporte", typing("status", deposited.Ticket()), []float64{float64(deposited.TicketNumber)}},
		{"start lists deposited", driver, "transporter", typing("start", ""), []float64{float64(deposited.TicketNumber)}},
		{"confirm has nothing in transit", driver, "transporter", typing("confirm", ""), nil},
		{"transporter cannot list staff tickets", driver, "transporte", typing("status", ""), nil},
		{"customer gets nothing", discordtest.Member("alice"), "transporter", typing("start", ""), nil},
		{
			"other focused option", staff, "transporte",
			discordtest.Option("cancelar", discordgo.ApplicationCommandOptionSubCommand, nil,
				discordtest.Option("ticket", discordgo.ApplicationCommandOptionInteger, "1001"),
				discordtest.Focused(discordtest.Option("motivo", discordgo.ApplicationCommandOptionString, "du"))),
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e.fake.Reset()
			e.router.HandleInteraction(e.session, discordtest.Autocomplete("c", tt.member, tt.command, tt.option))

			responses := e.fake.InteractionResponses()
			require.Len(t, responses, 1)
			assert.Equal(t, discordgo.InteractionApplicationCommandAutocompleteResult, responses[0].Type)
			require.NotNil(t, responses[0].Data)
			var got []float64
			for _, c := range responses[0].Data.Choices {
				got = append(got, c.Value.(float64))
				assert.LessOrEqual(t, len([]rune(c.Name)), choiceNameLimit)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChoiceNameTruncates(t *testing.T) {
	tr := &transport.Transport{TicketNumber: 1001, Nick: strings.Repeat("n", 120), Origin: "Lymhurst", Destination: "Caerleon", Status: transport.StatusPaid}
	name := choiceName(tr)
	assert.Equal(t, choiceNameLimit, len([]rune(name)))
	assert.True(t, strings.HasSuffix(name, "…"))
	assert.True(t, strings.HasPrefix(name, "#1001 · nnn"))
}
