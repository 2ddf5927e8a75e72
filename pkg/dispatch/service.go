// Package dispatch drives transports through their lifecycle. Every status change goes through
// one transaction that checks the state machine, updates the row and writes the audit trail.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/small-frappuccino/tasbot/pkg/ledger"
	"github.com/small-frappuccino/tasbot/pkg/storage"
	"github.com/small-frappuccino/tasbot/pkg/transport"
)

const (
	NickMinLen   = 3
	NickMaxLen   = 30
	NotesMaxLen  = 500
	QueueLimit   = 10
	BucketLimit  = 10
	HistoryLimit = 10
	// SuggestLimit is the most choices Discord shows for one autocomplete.
	SuggestLimit = 25
	suggestScan  = 200
)

var (
	ErrUnexpectedStatus = errors.New("transport is not in the expected status")
	ErrIncomplete       = errors.New("transport request is incomplete")
	ErrInvalidNick      = errors.New("invalid nick")
	ErrNotesTooLong     = errors.New("notes too long")
)

// PricingSource supplies the current tariff; the settings manager implements it.
type PricingSource interface {
	Pricing() transport.Pricing
}

// StaticPricing is a fixed PricingSource.
type StaticPricing transport.Pricing

func (p StaticPricing) Pricing() transport.Pricing { return transport.Pricing(p) }

// Service is the transport workflow.
type Service struct {
	store   *storage.Store
	ledger  *ledger.Ledger
	pricing PricingSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the workflow. A nil logger falls back to slog.Default().
func NewService(store *storage.Store, l *ledger.Ledger, pricing PricingSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, ledger: l, pricing: pricing, logger: logger, now: time.Now}
}

// Pricing returns the tariff currently in force.
func (s *Service) Pricing() transport.Pricing { return s.pricing.Pricing() }

func requireStatus(t *transport.Transport, want ...transport.Status) error {
	for _, w := range want {
		if t.Status == w {
			return nil
		}
	}
	return fmt.Errorf("%w: ticket %s is %s", ErrUnexpectedStatus, t.Ticket(), t.Status)
}

// step is one transition request.
type step struct {
	id     int64
	to     transport.Status
	actor  string
	action transport.Action
	detail string
	fields storage.Fields
	// within runs in the same transaction after the status update.
	within func(q *storage.Queries, before *transport.Transport) error
}

func (s *Service) apply(ctx context.Context, st step) (*transport.Transport, error) {
	var out *transport.Transport
	err := s.store.WithTx(ctx, func(q *storage.Queries) error {
		t, err := q.GetTransport(ctx, st.id)
		if err != nil {
			return err
		}
		if err := transport.CheckTransition(t.Status, st.to); err != nil {
			return err
		}
		now := s.now().UTC()
		var stamps storage.StatusStamps
		switch st.to {
		case transport.StatusPaid:
			stamps.PaidAt = &now
		case transport.StatusConcluded:
			stamps.ConcludedAt = &now
		}
		if err := q.UpdateStatus(ctx, t.ID, t.Status, st.to, stamps); err != nil {
			if errors.Is(err, storage.ErrStaleStatus) {
				return &transport.TransitionError{From: t.Status, To: st.to}
			}
			return err
		}
		if err := q.UpdateTransportFields(ctx, t.ID, st.fields); err != nil {
			return err
		}
		if st.within != nil {
			if err := st.within(q, t); err != nil {
				return err
			}
		}
		if err := q.InsertAudit(ctx, &storage.Audit{
			ActorID:     st.actor,
			Action:      string(st.action),
			TransportID: t.ID,
			FromStatus:  string(t.Status),
			ToStatus:    string(st.to),
			At:          now,
			Details:     st.detail,
		}); err != nil {
			return err
		}
		out, err = q.GetTransport(ctx, t.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("🔄 Transport status changed",
		"ticket", out.Ticket(), "status", string(out.Status), "action", string(st.action), "actor", st.actor)
	return out, nil
}

// annotate updates fields of a transport that must be in one of want, with an audit row
// that leaves the status unchanged.
func (s *Service) annotate(ctx context.Context, id int64, actor string, action transport.Action, detail string,
	fields func(t *transport.Transport) (storage.Fields, error), want ...transport.Status) (*transport.Transport, error) {
	var out *transport.Transport
	err := s.store.WithTx(ctx, func(q *storage.Queries) error {
		t, err := q.GetTransport(ctx, id)
		if err != nil {
			return err
		}
		if len(want) > 0 {
			if err := requireStatus(t, want...); err != nil {
				return err
			}
		}
		f, err := fields(t)
		if err != nil {
			return err
		}
		if err := q.UpdateTransportFields(ctx, id, f); err != nil {
			return err
		}
		if action != "" {
			if err := q.InsertAudit(ctx, &storage.Audit{
				ActorID:     actor,
				Action:      string(action),
				TransportID: id,
				FromStatus:  string(t.Status),
				ToStatus:    string(t.Status),
				At:          s.now().UTC(),
				Details:     detail,
			}); err != nil {
				return err
			}
		}
		out, err = q.GetTransport(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fixed(f storage.Fields) func(*transport.Transport) (storage.Fields, error) {
	return func(*transport.Transport) (storage.Fields, error) { return f, nil }
}

// Get returns a transport by id.
func (s *Service) Get(ctx context.Context, id int64) (*transport.Transport, error) {
	return s.store.GetTransport(ctx, id)
}

// GetByTicket returns a transport by its public ticket number.
func (s *Service) GetByTicket(ctx context.Context, ticket int64) (*transport.Transport, error) {
	return s.store.GetTransportByTicket(ctx, ticket)
}

// GetByChannel returns the transport bound to a ticket channel.
func (s *Service) GetByChannel(ctx context.Context, channelID string) (*transport.Transport, error) {
	return s.store.GetTransportByChannel(ctx, channelID)
}

// Open registers a new ticket for discordID in ABERTO.
func (s *Service) Open(ctx context.Context, discordID, username string) (*transport.Transport, error) {
	var out *transport.Transport
	err := s.store.WithTx(ctx, func(q *storage.Queries) error {
		c, err := q.GetOrCreateClient(ctx, discordID, username)
		if err != nil {
			return err
		}
		t := &transport.Transport{
			ClientID:        c.ID,
			ClientDiscordID: c.DiscordID,
			Status:          transport.StatusOpen,
			Priority:        transport.PriorityNormal,
			Destination:     transport.DefaultDestination,
			CreatedAt:       s.now().UTC(),
		}
		if err := q.InsertTransport(ctx, t); err != nil {
			return err
		}
		if err := q.InsertAudit(ctx, &storage.Audit{
			ActorID:     discordID,
			Action:      string(transport.ActionOpen),
			TransportID: t.ID,
			ToStatus:    string(t.Status),
			At:          t.CreatedAt,
		}); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("🎫 Ticket opened", "ticket", out.Ticket(), "user", discordID)
	return out, nil
}

// AttachChannel binds the private ticket channel.
func (s *Service) AttachChannel(ctx context.Context, id int64, channelID string) (*transport.Transport, error) {
	return s.annotate(ctx, id, "", "", "", fixed(storage.Fields{storage.ColChannelID: channelID}))
}

// SetStaffMessage remembers the staff analysis message for a transport.
func (s *Service) SetStaffMessage(ctx context.Context, id int64, messageID string) error {
	_, err := s.annotate(ctx, id, "", "", "", fixed(storage.Fields{storage.ColStaffMessageID: messageID}))
	return err
}

// ValidateNick trims and checks the in-game nick length.
func ValidateNick(raw string) (string, error) {
	nick := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(nick)
	if n < NickMinLen || n > NickMaxLen {
		return "", fmt.Errorf("%w: must have %d to %d characters", ErrInvalidNick, NickMinLen, NickMaxLen)
	}
	return nick, nil
}

// SetNick stores the in-game nick while the ticket is ABERTO.
func (s *Service) SetNick(ctx context.Context, id int64, raw string) (*transport.Transport, error) {
	nick, err := ValidateNick(raw)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, id, "", "", "", fixed(storage.Fields{storage.ColNick: nick}), transport.StatusOpen)
}

// SetOrigin stores the pickup city while the ticket is ABERTO.
func (s *Service) SetOrigin(ctx context.Context, id int64, origin string) (*transport.Transport, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil, fmt.Errorf("%w: origin is empty", ErrIncomplete)
	}
	return s.annotate(ctx, id, "", "", "", fixed(storage.Fields{storage.ColOrigin: origin}), transport.StatusOpen)
}

// SetPriority stores the service level while the ticket is ABERTO.
func (s *Service) SetPriority(ctx context.Context, id int64, prio transport.Priority) (*transport.Transport, error) {
	if _, err := transport.ParsePriority(string(prio)); err != nil {
		return nil, err
	}
	return s.annotate(ctx, id, "", "", "", fixed(storage.Fields{storage.ColPriority: prio}), transport.StatusOpen)
}

// SetSilver validates the load against the current minimum and stores it with its quote.
func (s *Service) SetSilver(ctx context.Context, id int64, silver int64) (*transport.Transport, transport.Quote, error) {
	var quote transport.Quote
	t, err := s.annotate(ctx, id, "", "", "", func(t *transport.Transport) (storage.Fields, error) {
		q, err := s.pricing.Pricing().Quote(silver, t.Priority)
		if err != nil {
			return nil, err
		}
		quote = q
		return storage.Fields{storage.ColSilver: silver, storage.ColFee: q.Fee}, nil
	}, transport.StatusOpen)
	if err != nil {
		return nil, transport.Quote{}, err
	}
	return t, quote, nil
}

// Submit prices the request with the current tariff and moves it to AGUARDANDO_PAGAMENTO.
func (s *Service) Submit(ctx context.Context, id int64, notes, actor string) (*transport.Transport, error) {
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) > NotesMaxLen {
		return nil, fmt.Errorf("%w: max %d characters", ErrNotesTooLong, NotesMaxLen)
	}
	current, err := s.store.GetTransport(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Nick == "" || current.Origin == "" || current.Silver == 0 {
		return nil, fmt.Errorf("%w: ticket %s", ErrIncomplete, current.Ticket())
	}
	quote, err := s.pricing.Pricing().Quote(current.Silver, current.Priority)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusAwaitingPayment,
		actor:  actor,
		action: transport.ActionSubmit,
		detail: "taxa " + quote.Fee.String(),
		fields: storage.Fields{storage.ColFee: quote.Fee, storage.ColNotes: notes},
	})
}

// Request is a complete transport order.
type Request struct {
	DiscordID string
	Username  string
	Nick      string
	Origin    string
	Priority  transport.Priority
	Silver    int64
	Notes     string
}

// Create opens, fills and submits a transport in one call.
func (s *Service) Create(ctx context.Context, r Request) (*transport.Transport, error) {
	nick, err := ValidateNick(r.Nick)
	if err != nil {
		return nil, err
	}
	prio, err := transport.ParsePriority(string(r.Priority))
	if err != nil {
		return nil, err
	}
	if _, err := s.pricing.Pricing().Quote(r.Silver, prio); err != nil {
		return nil, err
	}
	t, err := s.Open(ctx, r.DiscordID, r.Username)
	if err != nil {
		return nil, err
	}
	if _, err := s.annotate(ctx, t.ID, "", "", "", fixed(storage.Fields{
		storage.ColNick:     nick,
		storage.ColOrigin:   strings.TrimSpace(r.Origin),
		storage.ColPriority: prio,
		storage.ColSilver:   r.Silver,
	}), transport.StatusOpen); err != nil {
		return nil, err
	}
	return s.Submit(ctx, t.ID, r.Notes, r.DiscordID)
}

// RecordProof stores the payment screenshot URL sent by the customer.
func (s *Service) RecordProof(ctx context.Context, id int64, url, actor string) (*transport.Transport, error) {
	return s.annotate(ctx, id, actor, transport.ActionPaymentProof, url,
		fixed(storage.Fields{storage.ColPaymentProof: url}), transport.StatusAwaitingPayment)
}

// ApprovePayment marks the PIX as received and credits the ledger in the same transaction.
// A second approval fails the transition check, so the credit happens once.
func (s *Service) ApprovePayment(ctx context.Context, id int64, actor string) (*transport.Transport, error) {
	return s.approve(ctx, id, actor, transport.ActionApprovePayment, "")
}

func (s *Service) approve(ctx context.Context, id int64, actor string, action transport.Action, detail string) (*transport.Transport, error) {
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusPaid,
		actor:  actor,
		action: action,
		detail: detail,
		within: func(q *storage.Queries, before *transport.Transport) error {
			credit := *before
			if before.Received < before.Fee {
				credit.Received = before.Fee
				if err := q.UpdateTransportFields(ctx, before.ID, storage.Fields{storage.ColReceived: before.Fee}); err != nil {
					return err
				}
			}
			credit.Fee = credit.Received
			_, err := s.ledger.CreditTransport(ctx, q, &credit, actor)
			return err
		},
	})
}

// RejectProof asks the customer to resend. The status stays AGUARDANDO_PAGAMENTO.
func (s *Service) RejectProof(ctx context.Context, id int64, actor, reason string) (*transport.Transport, error) {
	return s.annotate(ctx, id, actor, transport.ActionRejectPayment, reason,
		fixed(storage.Fields{storage.ColPaymentProof: ""}), transport.StatusAwaitingPayment)
}

// CorrectPayment adds the amount staff actually saw on one proof to what the
// transport already received. Enough money approves the payment; otherwise the
// shortfall is returned and the transport keeps waiting for the difference.
func (s *Service) CorrectPayment(ctx context.Context, id int64, received transport.Cents, actor string) (*transport.Transport, transport.Cents, error) {
	if received <= 0 {
		return nil, 0, fmt.Errorf("%w: %s", transport.ErrInvalidAmount, received)
	}
	t, err := s.annotate(ctx, id, actor, transport.ActionCorrectPayment, "recebido +"+received.String(),
		func(t *transport.Transport) (storage.Fields, error) {
			if t.Received > math.MaxInt64-received {
				return nil, fmt.Errorf("%w: %s", transport.ErrInvalidAmount, received)
			}
			return storage.Fields{storage.ColReceived: t.Received + received}, nil
		}, transport.StatusAwaitingPayment)
	if err != nil {
		return nil, 0, err
	}
	if short := t.Shortfall(); short > 0 {
		return t, short, nil
	}
	t, err = s.approve(ctx, id, actor, transport.ActionApprovePayment, "valor corrigido")
	return t, 0, err
}

// ReleaseAccess records that staff opened the island for the customer.
func (s *Service) ReleaseAccess(ctx context.Context, id int64, actor string) (*transport.Transport, error) {
	return s.annotate(ctx, id, actor, transport.ActionReleaseAccess, "",
		fixed(storage.Fields{storage.ColAccessReleased: true}), transport.StatusPaid)
}

// RequestDepositPhoto puts the ticket in the state where its next image is the deposit photo.
func (s *Service) RequestDepositPhoto(ctx context.Context, id int64, actor string) (*transport.Transport, error) {
	return s.annotate(ctx, id, actor, transport.ActionRequestDeposit, "",
		fixed(storage.Fields{storage.ColAwaitingDepositPhoto: true}), transport.StatusPaid)
}

// ConfirmDeposit stores the deposit photo and moves PAGO -> DEPOSITADO.
func (s *Service) ConfirmDeposit(ctx context.Context, id int64, photoURL, actor string) (*transport.Transport, error) {
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusDeposited,
		actor:  actor,
		action: transport.ActionConfirmDeposit,
		detail: photoURL,
		fields: storage.Fields{
			storage.ColOriginPhoto:          photoURL,
			storage.ColDepositConfirmed:     true,
			storage.ColAwaitingDepositPhoto: false,
		},
	})
}

// StartTransport assigns the transporter and moves DEPOSITADO -> EM_TRANSPORTE.
func (s *Service) StartTransport(ctx context.Context, id int64, transporterID string) (*transport.Transport, error) {
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusInTransit,
		actor:  transporterID,
		action: transport.ActionStartTransport,
		fields: storage.Fields{
			storage.ColTransporterID:    transporterID,
			storage.ColTransitConfirmed: true,
		},
	})
}

// ConfirmDelivery moves EM_TRANSPORTE -> ENTREGUE. photoURL is optional.
func (s *Service) ConfirmDelivery(ctx context.Context, id int64, actor, photoURL string) (*transport.Transport, error) {
	fields := storage.Fields{storage.ColDeliveryConfirmed: true}
	if photoURL != "" {
		fields[storage.ColDeliveryPhoto] = photoURL
	}
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusDelivered,
		actor:  actor,
		action: transport.ActionConfirmDelivery,
		detail: photoURL,
		fields: fields,
	})
}

// ConfirmPickup closes the job: ENTREGUE -> CONCLUIDO, a public history row and the client's counter.
func (s *Service) ConfirmPickup(ctx context.Context, id int64, actor string) (*transport.Transport, *storage.LogEntry, error) {
	var entry *storage.LogEntry
	t, err := s.apply(ctx, step{
		id:     id,
		to:     transport.StatusConcluded,
		actor:  actor,
		action: transport.ActionConfirmPickup,
		within: func(q *storage.Queries, before *transport.Transport) error {
			entry = &storage.LogEntry{
				TransportID: before.ID,
				Origin:      before.Origin,
				Destination: before.Destination,
				ApproxValue: transport.ApproxSilver(before.Silver),
				Priority:    string(before.Priority),
				FinalStatus: string(transport.StatusConcluded),
				ConcludedAt: s.now().UTC(),
			}
			if err := q.InsertLog(ctx, entry); err != nil {
				return err
			}
			return q.IncrementClientTransports(ctx, before.ClientID)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return t, entry, nil
}

// SetLogMessage stores the history channel message posted for a concluded transport.
func (s *Service) SetLogMessage(ctx context.Context, logID int64, messageID string) error {
	return s.store.SetLogMessage(ctx, logID, messageID)
}

// Cancel moves the transport to CANCELADO when the state machine allows it.
// Cancelling a PAGO transport also writes the reversing SAIDA in the same
// transaction, so the balance no longer counts money that was refunded.
func (s *Service) Cancel(ctx context.Context, id int64, actor, reason string) (*transport.Transport, error) {
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusCancelled,
		actor:  actor,
		action: transport.ActionCancel,
		detail: reason,
		fields: storage.Fields{storage.ColAwaitingDepositPhoto: false},
		within: func(q *storage.Queries, before *transport.Transport) error {
			if before.Status != transport.StatusPaid {
				return nil
			}
			_, err := s.ledger.RefundTransport(ctx, q, before, actor, reason)
			return err
		},
	})
}

// Reject refuses the payment for good: AGUARDANDO_PAGAMENTO -> REJEITADO.
func (s *Service) Reject(ctx context.Context, id int64, actor, reason string) (*transport.Transport, error) {
	return s.apply(ctx, step{
		id:     id,
		to:     transport.StatusRejected,
		actor:  actor,
		action: transport.ActionReject,
		detail: reason,
	})
}

// Transition is the generic staff override, limited to edges of the state machine.
func (s *Service) Transition(ctx context.Context, id int64, to transport.Status, actor, detail string) (*transport.Transport, error) {
	switch to {
	case transport.StatusPaid:
		return s.approve(ctx, id, actor, transport.ActionApprovePayment, detail)
	case transport.StatusConcluded:
		t, _, err := s.ConfirmPickup(ctx, id, actor)
		return t, err
	case transport.StatusCancelled:
		return s.Cancel(ctx, id, actor, detail)
	}
	return s.apply(ctx, step{id: id, to: to, actor: actor, action: transport.Action("set_" + strings.ToLower(string(to))), detail: detail})
}

// Queue lists jobs waiting for a transporter: PAGO and DEPOSITADO, ALTA first then oldest.
func (s *Service) Queue(ctx context.Context) ([]*transport.Transport, error) {
	return s.store.ListByStatuses(ctx, []transport.Status{transport.StatusPaid, transport.StatusDeposited}, QueueLimit)
}

// Stats is the report dashboard snapshot.
type Stats struct {
	Buckets map[transport.Bucket]int64
	Total   int64
}

// Progress is concluded/total in [0,1].
func (st Stats) Progress() float64 {
	if st.Total == 0 {
		return 0
	}
	return float64(st.Buckets[transport.BucketConcluded]) / float64(st.Total)
}

// Stats counts transports per dashboard bucket.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Buckets: make(map[transport.Bucket]int64, len(transport.Buckets))}
	for _, b := range transport.Buckets {
		for _, status := range b.Statuses() {
			st.Buckets[b] += counts[status]
		}
		st.Total += st.Buckets[b]
	}
	return st, nil
}

// ListByBucket lists the newest transports of a dashboard bucket.
func (s *Service) ListByBucket(ctx context.Context, b transport.Bucket, limit int) ([]*transport.Transport, error) {
	if limit <= 0 || limit > BucketLimit {
		limit = BucketLimit
	}
	return s.store.ListRecentByStatuses(ctx, b.Statuses(), limit)
}

// Suggest returns up to limit transports in statuses whose ticket number starts
// with prefix, newest first. It feeds slash command autocomplete.
func (s *Service) Suggest(ctx context.Context, statuses []transport.Status, prefix string, limit int) ([]*transport.Transport, error) {
	if limit <= 0 || limit > SuggestLimit {
		limit = SuggestLimit
	}
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "#")
	ts, err := s.store.ListRecentByStatuses(ctx, statuses, suggestScan)
	if err != nil {
		return nil, err
	}
	out := make([]*transport.Transport, 0, limit)
	for _, t := range ts {
		if strings.HasPrefix(strconv.FormatInt(t.TicketNumber, 10), prefix) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ClientHistory lists the newest transports of a customer.
func (s *Service) ClientHistory(ctx context.Context, discordID string) ([]*transport.Transport, error) {
	c, err := s.store.GetClient(ctx, discordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.store.ListClientTransports(ctx, c.ID, HistoryLimit)
}
