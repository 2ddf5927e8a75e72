package transport

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a transport job, persisted verbatim in transportes.status.
type Status string

const (
	StatusOpen            Status = "ABERTO"
	StatusAwaitingPayment Status = "AGUARDANDO_PAGAMENTO"
	StatusPaid            Status = "PAGO"
	StatusDeposited       Status = "DEPOSITADO"
	StatusInTransit       Status = "EM_TRANSPORTE"
	StatusDelivered       Status = "ENTREGUE"
	StatusConcluded       Status = "CONCLUIDO"
	StatusCancelled       Status = "CANCELADO"
	StatusRejected        Status = "REJEITADO"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusOpen,
	StatusAwaitingPayment,
	StatusPaid,
	StatusDeposited,
	StatusInTransit,
	StatusDelivered,
	StatusConcluded,
	StatusCancelled,
	StatusRejected,
}

// transitions is the whole state machine: from -> allowed targets.
var transitions = map[Status][]Status{
	StatusOpen:            {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusPaid, StatusCancelled, StatusRejected},
	StatusPaid:            {StatusDeposited, StatusCancelled},
	StatusDeposited:       {StatusInTransit},
	StatusInTransit:       {StatusDelivered},
	StatusDelivered:       {StatusConcluded},
	StatusConcluded:       nil,
	StatusCancelled:       nil,
	StatusRejected:        nil,
}

var (
	ErrUnknownStatus     = errors.New("unknown transport status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionError describes a refused status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move transport from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ParseStatus accepts the persisted spelling, case-insensitively.
func ParseStatus(s string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(s)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError when from -> to is not allowed.
func CheckTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Label is the human (pt-BR) rendering used in embeds.
func (s Status) Label() string {
	switch s {
	case StatusOpen:
		return "📝 Aberto"
	case StatusAwaitingPayment:
		return "⏳ Aguardando pagamento"
	case StatusPaid:
		return "💰 Pago"
	case StatusDeposited:
		return "📦 Depositado"
	case StatusInTransit:
		return "🚚 Em transporte"
	case StatusDelivered:
		return "📬 Entregue"
	case StatusConcluded:
		return "✅ Concluído"
	case StatusCancelled:
		return "❌ Cancelado"
	case StatusRejected:
		return "⛔ Rejeitado"
	default:
		return string(s)
	}
}

// Bucket groups statuses the way the report dashboards count them.
type Bucket string

const (
	BucketConcluded       Bucket = "concluidos"
	BucketQueue           Bucket = "fila"
	BucketAwaitingPayment Bucket = "aguardando"
	BucketPaid            Bucket = "pagos"
	BucketInTransit       Bucket = "transportando"
	BucketCancelled       Bucket = "cancelados"
)

// Buckets lists the dashboard buckets in display order.
var Buckets = []Bucket{
	BucketConcluded,
	BucketQueue,
	BucketAwaitingPayment,
	BucketPaid,
	BucketInTransit,
	BucketCancelled,
}

// Statuses returns the statuses counted under b.
func (b Bucket) Statuses() []Status {
	switch b {
	case BucketConcluded:
		return []Status{StatusConcluded, StatusDelivered}
	case BucketQueue:
		return []Status{StatusOpen}
	case BucketAwaitingPayment:
		return []Status{StatusAwaitingPayment}
	case BucketPaid:
		return []Status{StatusPaid, StatusDeposited}
	case BucketInTransit:
		return []Status{StatusInTransit}
	case BucketCancelled:
		return []Status{StatusCancelled, StatusRejected}
	default:
		return nil
	}
}

// Title is the dashboard heading for b.
func (b Bucket) Title() string {
	switch b {
	case BucketConcluded:
		return "✅ CONCLUÍDOS"
	case BucketQueue:
		return "📋 EM FILA"
	case BucketAwaitingPayment:
		return "⏳ AGUARDANDO PAGAMENTO"
	case BucketPaid:
		return "💰 PAGOS - TRANSPORTAR"
	case BucketInTransit:
		return "🚚 EM TRANSPORTE"
	case BucketCancelled:
		return "❌ CANCELADOS"
	default:
		return string(b)
	}
}

// ParseBucket resolves a bucket name coming from a button custom id.
func ParseBucket(s string) (Bucket, bool) {
	for _, b := range Buckets {
		if string(b) == s {
			return b, true
		}
	}
	return "", false
}

// Color is the embed color for s.
func (s Status) Color() int {
	switch s {
	case StatusOpen:
		return 0x3498DB
	case StatusAwaitingPayment:
		return 0xF39C12
	case StatusPaid, StatusDeposited:
		return 0x2ECC71
	case StatusInTransit:
		return 0x9B59B6
	case StatusDelivered, StatusConcluded:
		return 0x27AE60
	case StatusCancelled:
		return 0xE74C3C
	case StatusRejected:
		return 0xC0392B
	default:
		return 0x95A5A6
	}
}
