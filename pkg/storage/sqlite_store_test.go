package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/small-frappuccino/tasbot/pkg/transport"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tas_mania.db")
	store := NewStore(dbPath)
	if err := store.Init(); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedTransport(t *testing.T, s *Store, discordID string, status transport.Status, prio transport.Priority, created time.Time) *transport.Transport {
	t.Helper()
	ctx := context.Background()
	c, err := s.GetOrCreateClient(ctx, discordID, "user-"+discordID)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	tr := &transport.Transport{
		ClientID:  c.ID,
		Status:    status,
		Nick:      "Nick" + discordID,
		Origin:    "Martlock",
		Silver:    20_000_000,
		Priority:  prio,
		Fee:       1200,
		CreatedAt: created,
	}
	if err := s.InsertTransport(ctx, tr); err != nil {
		t.Fatalf("insert transport: %v", err)
	}
	return tr
}

func TestInitIsIdempotentAndMigrates(t *testing.T) {
	store := newTempStore(t)
	if err := store.Init(); err != nil {
		t.Fatalf("second init: %v", err)
	}
	ok, err := columnExists(context.Background(), store.db, DialectSQLite, "transportes", "aguardando_foto_deposito")
	if err != nil || !ok {
		t.Fatalf("expected migrated column, ok=%v err=%v", ok, err)
	}
	if err := store.AddColumnIfMissing(context.Background(), "transportes", "nick", "TEXT NOT NULL DEFAULT ''"); err != nil {
		t.Fatalf("re-adding existing column should be a no-op: %v", err)
	}
}

func TestUninitializedStore(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "x.db"))
	if _, err := store.GetTransport(context.Background(), 1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestClientUpsert(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()

	a, err := store.GetOrCreateClient(ctx, "111", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := store.GetOrCreateClient(ctx, "111", "alice2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected same client id, got %d and %d", a.ID, b.ID)
	}
	if b.Username != "alice2" {
		t.Fatalf("expected refreshed username, got %q", b.Username)
	}
	if err := store.IncrementClientTransports(ctx, a.ID); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, _ := store.GetClientByID(ctx, a.ID)
	if got.TotalTransports != 1 {
		t.Fatalf("expected 1 transport, got %d", got.TotalTransports)
	}
	if _, err := store.GetClient(ctx, "999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertAndGetTransport(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	tr := seedTransport(t, store, "42", transport.StatusOpen, transport.PriorityHigh, created)
	if tr.TicketNumber != transport.TicketNumberFor(tr.ID) {
		t.Fatalf("ticket number %d does not derive from id %d", tr.TicketNumber, tr.ID)
	}

	got, err := store.GetTransportByTicket(ctx, tr.TicketNumber)
	if err != nil {
		t.Fatalf("by ticket: %v", err)
	}
	if got.ClientDiscordID != "42" || got.Destination != transport.DefaultDestination || got.Fee != 1200 {
		t.Fatalf("unexpected transport: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created at round trip: want %v got %v", created, got.CreatedAt)
	}
	if got.PaidAt != nil {
		t.Fatalf("expected nil paid at")
	}

	if err := store.UpdateTransportFields(ctx, tr.ID, Fields{
		ColChannelID:            "chan-1",
		ColAwaitingDepositPhoto: true,
		ColReceived:             transport.Cents(1100),
	}); err != nil {
		t.Fatalf("update fields: %v", err)
	}
	byChan, err := store.GetTransportByChannel(ctx, "chan-1")
	if err != nil {
		t.Fatalf("by channel: %v", err)
	}
	if !byChan.AwaitingDepositPhoto || byChan.Received != 1100 {
		t.Fatalf("fields not persisted: %+v", byChan)
	}

	if err := store.UpdateTransportFields(ctx, tr.ID, Fields{"status": "PAGO"}); err == nil {
		t.Fatalf("status must not be updatable through fields")
	}
	if _, err := store.GetTransport(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusIsConditional(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	tr := seedTransport(t, store, "1", transport.StatusAwaitingPayment, transport.PriorityNormal, time.Now().UTC())

	paid := time.Now().UTC()
	if err := store.UpdateStatus(ctx, tr.ID, transport.StatusAwaitingPayment, transport.StatusPaid, StatusStamps{PaidAt: &paid}); err != nil {
		t.Fatalf("update status: %v", err)
	}
	err := store.UpdateStatus(ctx, tr.ID, transport.StatusAwaitingPayment, transport.StatusPaid, StatusStamps{})
	if !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
	if err := store.UpdateStatus(ctx, 777, transport.StatusOpen, transport.StatusCancelled, StatusStamps{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := store.GetTransport(ctx, tr.ID)
	if got.Status != transport.StatusPaid || got.PaidAt == nil {
		t.Fatalf("unexpected state: %s paid=%v", got.Status, got.PaidAt)
	}
}

func TestListByStatusesQueueOrder(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	oldNormal := seedTransport(t, store, "1", transport.StatusPaid, transport.PriorityNormal, base)
	newHigh := seedTransport(t, store, "2", transport.StatusDeposited, transport.PriorityHigh, base.Add(30*time.Minute))
	oldHigh := seedTransport(t, store, "3", transport.StatusPaid, transport.PriorityHigh, base.Add(10*time.Minute))
	seedTransport(t, store, "4", transport.StatusConcluded, transport.PriorityHigh, base)

	got, err := store.ListByStatuses(ctx, []transport.Status{transport.StatusPaid, transport.StatusDeposited}, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int64{oldHigh.ID, newHigh.ID, oldNormal.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want id %d got %d", i, id, got[i].ID)
		}
	}

	recent, err := store.ListRecentByStatuses(ctx, []transport.Status{transport.StatusPaid, transport.StatusDeposited}, 1)
	if err != nil || len(recent) != 1 || recent[0].ID != newHigh.ID {
		t.Fatalf("recent: %v %+v", err, recent)
	}

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[transport.StatusPaid] != 2 || counts[transport.StatusConcluded] != 1 || counts[transport.StatusRejected] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(q *Queries) error {
		if err := q.InsertLedgerEntry(ctx, &LedgerEntry{Ref: "r1", Kind: "ENTRADA", Value: 500}); err != nil {
			return err
		}
		if err := q.AddToLedgerBalance(ctx, 500, 0, time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, _ := store.ListLedgerEntries(ctx, 10)
	bal, _ := store.GetLedgerBalance(ctx)
	if len(entries) != 0 || bal.Total != 0 {
		t.Fatalf("rollback failed: entries=%d balance=%d", len(entries), bal.Total)
	}

	err = store.WithTx(ctx, func(q *Queries) error {
		if err := q.InsertLedgerEntry(ctx, &LedgerEntry{Ref: "r2", Kind: "ENTRADA", Value: 500}); err != nil {
			return err
		}
		return q.AddToLedgerBalance(ctx, 500, 0, time.Now())
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	bal, _ = store.GetLedgerBalance(ctx)
	if bal.Total != 500 || bal.In != 500 || bal.UpdatedAt == nil {
		t.Fatalf("unexpected balance: %+v", bal)
	}
}

func TestAuditsLogsAndConfig(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	tr := seedTransport(t, store, "7", transport.StatusDelivered, transport.PriorityNormal, time.Now().UTC())

	if err := store.InsertAudit(ctx, &Audit{ActorID: "staff", Action: "confirm_pickup", TransportID: tr.ID, FromStatus: "ENTREGUE", ToStatus: "CONCLUIDO"}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	audits, err := store.ListAudits(ctx, tr.ID)
	if err != nil || len(audits) != 1 || audits[0].ToStatus != "CONCLUIDO" {
		t.Fatalf("audits: %v %+v", err, audits)
	}

	entry := &LogEntry{TransportID: tr.ID, Origin: "Martlock", Destination: "Caerleon", ApproxValue: "~20.0M", FinalStatus: "CONCLUIDO"}
	if err := store.InsertLog(ctx, entry); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := store.SetLogMessage(ctx, entry.ID, "msg-9"); err != nil {
		t.Fatalf("set log message: %v", err)
	}
	logs, err := store.ListLogs(ctx, 5)
	if err != nil || len(logs) != 1 || logs[0].MessageID != "msg-9" {
		t.Fatalf("logs: %v %+v", err, logs)
	}

	if _, ok, _ := store.GetConfig(ctx, "queue_board_message_id"); ok {
		t.Fatalf("expected missing key")
	}
	if err := store.SetConfig(ctx, "queue_board_message_id", "123", ""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetConfig(ctx, "queue_board_message_id", "456", ""); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := store.GetConfig(ctx, "queue_board_message_id")
	if err != nil || !ok || v != "456" {
		t.Fatalf("get config: %q %v %v", v, ok, err)
	}
}

func TestRebind(t *testing.T) {
	q := "UPDATE t SET a = ?, b = ? WHERE id = ?"
	if got := rebind(DialectSQLite, q); got != q {
		t.Fatalf("sqlite must not rewrite: %q", got)
	}
	if got, want := rebind(DialectPostgres, q), "UPDATE t SET a = $1, b = $2 WHERE id = $3"; got != want {
		t.Fatalf("want %q got %q", want, got)
	}
	if !IsPostgresURL("postgresql://u@h/db") || IsPostgresURL("./data/tas_mania.db") {
		t.Fatalf("postgres url detection")
	}
	if NewStore("postgres://u@h/db").Dialect() != DialectPostgres {
		t.Fatalf("expected postgres dialect")
	}
}

func TestLedgerBalanceNeverGoesNegative(t *testing.T) {
	store := newTempStore(t)
	ctx := context.Background()
	at := time.Now().UTC()

	if err := store.AddToLedgerBalance(ctx, 1000, 0, at); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.AddToLedgerBalance(ctx, 0, 1001, at); !errors.Is(err, ErrBalanceTooLow) {
		t.Fatalf("expected ErrBalanceTooLow, got %v", err)
	}
	if err := store.AddToLedgerBalance(ctx, 0, 1000, at); err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	b, err := store.GetLedgerBalance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if b.Total != 0 || b.In != 1000 || b.Out != 1000 {
		t.Fatalf("unexpected balance %+v", b)
	}
}
