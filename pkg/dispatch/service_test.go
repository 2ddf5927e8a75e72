package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

type fixture struct {
	svc    *Service
	store  *storage.Store
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := storage.NewStore(filepath.Join(t.TempDir(), "tas.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })
	l := ledger.New(store)
	return fixture{
		svc:    NewService(store, l, StaticPricing(transport.DefaultPricing()), nil),
		store:  store,
		ledger: l,
	}
}

func (f fixture) create(t *testing.T, user string, silver int64, prio transport.Priority) *transport.Transport {
	t.Helper()
	tr, err := f.svc.Create(context.Background(), Request{
		DiscordID: user,
		Username:  "user" + user,
		Nick:      "Player" + user,
		Origin:    "Lymhurst",
		Priority:  prio,
		Silver:    silver,
	})
	require.NoError(t, err)
	return tr
}

func auditActions(t *testing.T, store *storage.Store, id int64) []string {
	t.Helper()
	audits, err := store.ListAudits(context.Background(), id)
	require.NoError(t, err)
	out := make([]string, len(audits))
	for i, a := range audits {
		out[i] = a.Action
	}
	return out
}

func TestWizardFlowPersistsAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tr, err := f.svc.Open(ctx, "100", "ana")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusOpen, tr.Status)
	assert.Equal(t, transport.TicketNumberFor(tr.ID), tr.TicketNumber)

	_, err = f.svc.SetNick(ctx, tr.ID, "ab")
	assert.ErrorIs(t, err, ErrInvalidNick)

	_, err = f.svc.Submit(ctx, tr.ID, "", "100")
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = f.svc.SetNick(ctx, tr.ID, "  AnaTAS ")
	require.NoError(t, err)
	_, err = f.svc.SetOrigin(ctx, tr.ID, "Martlock")
	require.NoError(t, err)
	_, err = f.svc.SetPriority(ctx, tr.ID, transport.PriorityHigh)
	require.NoError(t, err)

	_, _, err = f.svc.SetSilver(ctx, tr.ID, 9_000_000)
	assert.ErrorIs(t, err, transport.ErrBelowMinimum)

	_, quote, err := f.svc.SetSilver(ctx, tr.ID, 50_000_000)
	require.NoError(t, err)
	assert.Equal(t, transport.Cents(3600), quote.Fee)

	submitted, err := f.svc.Submit(ctx, tr.ID, "itens frágeis", "100")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusAwaitingPayment, submitted.Status)
	assert.Equal(t, "AnaTAS", submitted.Nick)
	assert.Equal(t, "itens frágeis", submitted.Notes)
	assert.Equal(t, transport.Cents(3600), submitted.Fee)

	_, err = f.svc.SetNick(ctx, tr.ID, "Outro")
	assert.ErrorIs(t, err, ErrUnexpectedStatus, "answers are frozen after submit")
}

func TestHappyPathToConcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "200", 10_000_000, transport.PriorityNormal)

	var err error
	tr, err = f.svc.RecordProof(ctx, tr.ID, "https://cdn/proof.png", "200")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/proof.png", tr.PaymentProofURL)

	tr, err = f.svc.ApprovePayment(ctx, tr.ID, "staff")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusPaid, tr.Status)
	require.NotNil(t, tr.PaidAt)

	tr, err = f.svc.ReleaseAccess(ctx, tr.ID, "staff")
	require.NoError(t, err)
	assert.True(t, tr.AccessReleased)

	tr, err = f.svc.RequestDepositPhoto(ctx, tr.ID, "200")
	require.NoError(t, err)
	assert.True(t, tr.AwaitingDepositPhoto)

	tr, err = f.svc.ConfirmDeposit(ctx, tr.ID, "https://cdn/deposit.png", "200")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusDeposited, tr.Status)
	assert.False(t, tr.AwaitingDepositPhoto)
	assert.True(t, tr.DepositConfirmed)

	tr, err = f.svc.StartTransport(ctx, tr.ID, "carrier")
	require.NoError(t, err)
	assert.Equal(t, "carrier", tr.TransporterID)

	tr, err = f.svc.ConfirmDelivery(ctx, tr.ID, "carrier", "")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusDelivered, tr.Status)

	tr, entry, err := f.svc.ConfirmPickup(ctx, tr.ID, "200")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusConcluded, tr.Status)
	require.NotNil(t, tr.ConcludedAt)
	assert.Equal(t, "~10.0M", entry.ApproxValue)

	client, err := f.store.GetClient(ctx, "200")
	require.NoError(t, err)
	assert.EqualValues(t, 1, client.TotalTransports)

	want := []string{
		"open", "submit", "payment_proof", "approve_payment", "release_access",
		"request_deposit", "confirm_deposit", "start_transport", "confirm_delivery", "confirm_pickup",
	}
	if diff := cmp.Diff(want, auditActions(t, f.store, tr.ID)); diff != "" {
		t.Fatalf("audit trail mismatch (-want +got):\n%s", diff)
	}

	_, err = f.svc.Cancel(ctx, tr.ID, "staff", "late")
	assert.ErrorIs(t, err, transport.ErrInvalidTransition)
}

func TestApproveCreditsLedgerOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "300", 50_000_000, transport.PriorityNormal)

	_, err := f.svc.ApprovePayment(ctx, tr.ID, "staff")
	require.NoError(t, err)
	_, err = f.svc.ApprovePayment(ctx, tr.ID, "staff")
	var te *transport.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, transport.StatusPaid, te.From)

	n, err := f.store.CountLedgerEntriesForTransport(ctx, tr.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	bal, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.Cents(3000), bal.Total)
}

func TestCorrectPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "400", 50_000_000, transport.PriorityNormal)

	got, short, err := f.svc.CorrectPayment(ctx, tr.ID, 2500, "staff")
	require.NoError(t, err)
	assert.Equal(t, transport.Cents(500), short)
	assert.Equal(t, transport.StatusAwaitingPayment, got.Status)
	assert.Equal(t, transport.Cents(2500), got.Received)

	got, short, err = f.svc.CorrectPayment(ctx, tr.ID, 300, "staff")
	require.NoError(t, err)
	assert.Equal(t, transport.Cents(200), short)
	assert.Equal(t, transport.Cents(2800), got.Received, "each correction adds to what was already received")

	got, short, err = f.svc.CorrectPayment(ctx, tr.ID, 300, "staff")
	require.NoError(t, err)
	assert.Zero(t, short)
	assert.Equal(t, transport.StatusPaid, got.Status)

	bal, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, transport.Cents(3100), bal.Total, "ledger records what was actually received")

	_, _, err = f.svc.CorrectPayment(ctx, tr.ID, 0, "staff")
	assert.ErrorIs(t, err, transport.ErrInvalidAmount)
}

func TestRejectProofKeepsStatusAndRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "500", 10_000_000, transport.PriorityNormal)

	_, err := f.svc.RecordProof(ctx, tr.ID, "https://cdn/blurry.png", "500")
	require.NoError(t, err)
	got, err := f.svc.RejectProof(ctx, tr.ID, "staff", "ilegível")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusAwaitingPayment, got.Status)
	assert.Empty(t, got.PaymentProofURL)

	got, err = f.svc.Reject(ctx, tr.ID, "staff", "fraude")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusRejected, got.Status)

	_, err = f.svc.ApprovePayment(ctx, tr.ID, "staff")
	assert.ErrorIs(t, err, transport.ErrInvalidTransition)
	_, err = f.svc.RecordProof(ctx, tr.ID, "x", "500")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestQueueOrderAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	normal := f.create(t, "1", 10_000_000, transport.PriorityNormal)
	high := f.create(t, "2", 10_000_000, transport.PriorityHigh)
	waiting := f.create(t, "3", 10_000_000, transport.PriorityHigh)
	_, err := f.svc.Open(ctx, "4", "d")
	require.NoError(t, err)
	cancelled := f.create(t, "5", 10_000_000, transport.PriorityNormal)

	for _, id := range []int64{normal.ID, high.ID} {
		_, err := f.svc.ApprovePayment(ctx, id, "staff")
		require.NoError(t, err)
	}
	_, err = f.svc.Cancel(ctx, cancelled.ID, "5", "desisti")
	require.NoError(t, err)

	q, err := f.svc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, q, 2)
	assert.Equal(t, high.ID, q[0].ID)
	assert.Equal(t, normal.ID, q[1].ID)

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, st.Total)
	assert.EqualValues(t, 2, st.Buckets[transport.BucketPaid])
	assert.EqualValues(t, 1, st.Buckets[transport.BucketQueue])
	assert.EqualValues(t, 1, st.Buckets[transport.BucketAwaitingPayment])
	assert.EqualValues(t, 1, st.Buckets[transport.BucketCancelled])
	assert.Zero(t, st.Progress())

	aw, err := f.svc.ListByBucket(ctx, transport.BucketAwaitingPayment, 0)
	require.NoError(t, err)
	require.Len(t, aw, 1)
	assert.Equal(t, waiting.ID, aw[0].ID)

	hist, err := f.svc.ClientHistory(ctx, "2")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	none, err := f.svc.ClientHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransitionOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "9", 10_000_000, transport.PriorityNormal)

	_, err := f.svc.Transition(ctx, tr.ID, transport.StatusDeposited, "staff", "")
	assert.ErrorIs(t, err, transport.ErrInvalidTransition)

	got, err := f.svc.Transition(ctx, tr.ID, transport.StatusPaid, "staff", "manual")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusPaid, got.Status)

	n, err := f.store.CountLedgerEntriesForTransport(ctx, tr.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "manual PAGO goes through the ledger too")
}

func TestSuggestFiltersByStatusAndPrefix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "700", 10_000_000, transport.PriorityNormal)
	second := f.create(t, "701", 10_000_000, transport.PriorityNormal)
	paid := f.create(t, "702", 10_000_000, transport.PriorityNormal)
	_, err := f.svc.ApprovePayment(ctx, paid.ID, "staff")
	require.NoError(t, err)

	tickets := func(ts []*transport.Transport) []int64 {
		var out []int64
		for _, tr := range ts {
			out = append(out, tr.TicketNumber)
		}
		return out
	}

	got, err := f.svc.Suggest(ctx, []transport.Status{transport.StatusAwaitingPayment}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{second.TicketNumber, first.TicketNumber}, tickets(got))

	got, err = f.svc.Suggest(ctx, []transport.Status{transport.StatusAwaitingPayment, transport.StatusPaid}, paid.Ticket(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{paid.TicketNumber}, tickets(got))

	got, err = f.svc.Suggest(ctx, []transport.Status{transport.StatusAwaitingPayment, transport.StatusPaid}, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{paid.TicketNumber}, tickets(got))

	got, err = f.svc.Suggest(ctx, []transport.Status{transport.StatusInTransit}, "", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCancelAfterPaymentRefundsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "800", 50_000_000, transport.PriorityNormal)
	_, err := f.svc.ApprovePayment(ctx, tr.ID, "staff")
	require.NoError(t, err)

	got, err := f.svc.Transition(ctx, tr.ID, transport.StatusCancelled, "staff", "cliente desistiu")
	require.NoError(t, err)
	assert.Equal(t, transport.StatusCancelled, got.Status)

	bal, err := f.ledger.Balance(ctx)
	require.NoError(t, err)
	assert.Zero(t, bal.Total)
	assert.Equal(t, transport.Cents(3000), bal.Out)
	n, err := f.store.CountLedgerEntriesForTransport(ctx, tr.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	unpaid := f.create(t, "801", 50_000_000, transport.PriorityNormal)
	_, err = f.svc.Cancel(ctx, unpaid.ID, "staff", "")
	require.NoError(t, err)
	n, err = f.store.CountLedgerEntriesForTransport(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing was credited, so nothing is reversed")
}

func TestCancelAfterPaymentFailsWhenBalanceWasWithdrawn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.create(t, "802", 50_000_000, transport.PriorityNormal)
	_, err := f.svc.ApprovePayment(ctx, tr.ID, "staff")
	require.NoError(t, err)
	_, err = f.ledger.Withdraw(ctx, 3000, "repasse", "admin")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, tr.ID, "staff", "")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	got, err := f.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transport.StatusPaid, got.Status, "the status change rolls back with the refund")
}
