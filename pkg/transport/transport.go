package transport

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicketBase is added to the row id to form the public ticket number.
const TicketBase = 1000

// DefaultDestination is where every transport ends.
const DefaultDestination = "Caerleon"

// Transport is one customer job, mirroring a transportes row.
type Transport struct {
	ID           int64
	TicketNumber int64
	ClientID     int64
	// ClientDiscordID is joined from clientes for notifications.
	ClientDiscordID string

	Status      Status
	Nick        string
	Origin      string
	Destination string
	Silver      int64
	Priority    Priority
	Fee         Cents
	Received    Cents
	Notes       string

	PaymentProofURL   string
	OriginPhotoURL    string
	DeliveryPhotoURL  string
	DepositConfirmed  bool
	TransitConfirmed  bool
	DeliveryConfirmed bool

	AccessReleased       bool
	AwaitingDepositPhoto bool

	ChannelID      string
	StaffMessageID string
	TransporterID  string

	CreatedAt   time.Time
	PaidAt      *time.Time
	ConcludedAt *time.Time
}

// Ticket renders the ticket number as "#1042".
func (t *Transport) Ticket() string { return FormatTicket(t.TicketNumber) }

// Route renders "Origin → Destination".
func (t *Transport) Route() string {
	origin := t.Origin
	if origin == "" {
		origin = "?"
	}
	dest := t.Destination
	if dest == "" {
		dest = DefaultDestination
	}
	return origin + " → " + dest
}

// Shortfall is how much is still owed after a corrected payment.
func (t *Transport) Shortfall() Cents {
	if t.Received >= t.Fee {
		return 0
	}
	return t.Fee - t.Received
}

// TicketNumberFor derives the public ticket number from a row id.
func TicketNumberFor(id int64) int64 { return TicketBase + id }

// FormatTicket renders a ticket number zero-padded to four digits.
func FormatTicket(n int64) string { return fmt.Sprintf("#%04d", n) }

// ChannelName is the private ticket channel name.
func ChannelName(n int64) string { return fmt.Sprintf("ticket-%04d", n) }

// ParseChannelTicket extracts the ticket number from a ticket channel name.
// Names may carry a decoration prefix such as an emoji.
func ParseChannelTicket(name string) (int64, bool) {
	idx := strings.LastIndex(name, "ticket-")
	if idx < 0 {
		return 0, false
	}
	rest := name[idx+len("ticket-"):]
	if i := strings.LastIndex(rest, "-"); i >= 0 {
		rest = rest[i+1:]
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
