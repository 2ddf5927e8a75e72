// Package ledger keeps the T.A.S cash book: every PIX received for a transport and every manual
// deposit or withdrawal, plus the running balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// Kind is the direction of a ledger entry.
type Kind string

const (
	KindIn  Kind = "ENTRADA"
	KindOut Kind = "SAIDA"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 50
)

var (
	ErrNonPositive       = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient balance")
)

// Entry is a ledger row with its amount as Cents.
type Entry struct {
	ID          int64
	Ref         string
	Kind        Kind
	Amount      transport.Cents
	Description string
	Reason      string
	AuthorID    string
	TransportID int64
	CreatedAt   time.Time
}

// Balance is the running total.
type Balance struct {
	Total     transport.Cents
	In        transport.Cents
	Out       transport.Cents
	UpdatedAt *time.Time
}

// Ledger records money movements on top of the store.
type Ledger struct {
	store *storage.Store
	now   func() time.Time
}

// New builds a ledger over an initialized store.
func New(store *storage.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Deposit records a manual ENTRADA.
func (l *Ledger) Deposit(ctx context.Context, amount transport.Cents, reason, authorID string) (*Entry, error) {
	e := &Entry{Kind: KindIn, Amount: amount, Description: "Depósito manual", Reason: reason, AuthorID: authorID}
	if err := l.store.WithTx(ctx, func(q *storage.Queries) error {
		return l.Record(ctx, q, e)
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Withdraw records a manual SAIDA. It never takes the balance below zero.
func (l *Ledger) Withdraw(ctx context.Context, amount transport.Cents, reason, authorID string) (*Entry, error) {
	e := &Entry{Kind: KindOut, Amount: amount, Description: "Retirada", Reason: reason, AuthorID: authorID}
	if err := l.store.WithTx(ctx, func(q *storage.Queries) error {
		return l.Record(ctx, q, e)
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// CreditTransport records the fee of an approved transport inside the caller's transaction.
func (l *Ledger) CreditTransport(ctx context.Context, q *storage.Queries, t *transport.Transport, authorID string) (*Entry, error) {
	e := &Entry{
		Kind:        KindIn,
		Amount:      t.Fee,
		Description: "Transporte Ticket " + t.Ticket(),
		Reason:      "Cliente: " + t.ClientDiscordID,
		AuthorID:    authorID,
		TransportID: t.ID,
	}
	if err := l.Record(ctx, q, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RefundTransport reverses the credit of a paid transport inside the caller's
// transaction. The SAIDA carries the amount the approval credited.
func (l *Ledger) RefundTransport(ctx context.Context, q *storage.Queries, t *transport.Transport, authorID, reason string) (*Entry, error) {
	amount := t.Received
	if amount < t.Fee {
		amount = t.Fee
	}
	if reason == "" {
		reason = "Transporte cancelado"
	}
	e := &Entry{
		Kind:        KindOut,
		Amount:      amount,
		Description: "Estorno Ticket " + t.Ticket(),
		Reason:      reason,
		AuthorID:    authorID,
		TransportID: t.ID,
	}
	if err := l.Record(ctx, q, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Record writes e and moves the balance using q, which may be a transaction.
func (l *Ledger) Record(ctx context.Context, q *storage.Queries, e *Entry) error {
	if e.Amount <= 0 {
		return fmt.Errorf("%w: %s", ErrNonPositive, e.Amount)
	}
	if e.Kind != KindIn && e.Kind != KindOut {
		return fmt.Errorf("unknown ledger kind %q", e.Kind)
	}
	// The balance update re-checks atomically; this read only gives a clearer error.
	if e.Kind == KindOut {
		bal, err := q.GetLedgerBalance(ctx)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if transport.Cents(bal.Total) < e.Amount {
			return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientFunds, transport.Cents(bal.Total), e.Amount)
		}
	}
	if e.Ref == "" {
		e.Ref = uuid.NewString()
	}
	e.CreatedAt = l.now().UTC()

	row := &storage.LedgerEntry{
		Ref:         e.Ref,
		Kind:        string(e.Kind),
		Value:       int64(e.Amount),
		Description: e.Description,
		Reason:      e.Reason,
		AuthorID:    e.AuthorID,
		TransportID: e.TransportID,
		CreatedAt:   e.CreatedAt,
	}
	if err := q.InsertLedgerEntry(ctx, row); err != nil {
		return err
	}
	e.ID = row.ID

	var in, out int64
	if e.Kind == KindIn {
		in = int64(e.Amount)
	} else {
		out = int64(e.Amount)
	}
	if err := q.AddToLedgerBalance(ctx, in, out, e.CreatedAt); err != nil {
		if errors.Is(err, storage.ErrBalanceTooLow) {
			return fmt.Errorf("%w: requested %s", ErrInsufficientFunds, e.Amount)
		}
		return err
	}
	return nil
}

// Balance returns the current totals.
func (l *Ledger) Balance(ctx context.Context) (Balance, error) {
	b, err := l.store.GetLedgerBalance(ctx)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Total:     transport.Cents(b.Total),
		In:        transport.Cents(b.In),
		Out:       transport.Cents(b.Out),
		UpdatedAt: b.UpdatedAt,
	}, nil
}

// ClampLimit keeps a history page size within 1..MaxHistoryLimit; zero means the default.
func ClampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultHistoryLimit
	case limit < 1:
		return 1
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}

// History returns the newest entries, at most ClampLimit(limit).
func (l *Ledger) History(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.store.ListLedgerEntries(ctx, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			ID:          r.ID,
			Ref:         r.Ref,
			Kind:        Kind(r.Kind),
			Amount:      transport.Cents(r.Value),
			Description: r.Description,
			Reason:      r.Reason,
			AuthorID:    r.AuthorID,
			TransportID: r.TransportID,
			CreatedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// Emoji marks the direction in history listings.
func (k Kind) Emoji() string {
	if k == KindOut {
		return "📤"
	}
	return "📥"
}
