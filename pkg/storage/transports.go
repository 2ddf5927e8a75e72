package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/small-frappuccino/tasbot/pkg/transport"
)

// ErrStaleStatus is returned when a conditional status update finds the row in another status.
var ErrStaleStatus = errors.New("transport status changed concurrently")

// Column names the transportes columns that UpdateTransportFields may touch.
type Column string

const (
	ColNick                 Column = "nick"
	ColOrigin               Column = "origem"
	ColDestination          Column = "destino"
	ColSilver               Column = "valor_estimado"
	ColPriority             Column = "prioridade"
	ColFee                  Column = "taxa_final"
	ColReceived             Column = "valor_recebido"
	ColNotes                Column = "notas"
	ColPaymentProof         Column = "comprovante_pagamento"
	ColOriginPhoto          Column = "print_items_origem"
	ColDeliveryPhoto        Column = "print_items_destino"
	ColDepositConfirmed     Column = "confirmacao_deposito_origem"
	ColTransitConfirmed     Column = "confirmacao_transporte"
	ColDeliveryConfirmed    Column = "confirmacao_entrega"
	ColAccessReleased       Column = "acesso_liberado"
	ColAwaitingDepositPhoto Column = "aguardando_foto_deposito"
	ColChannelID            Column = "ticket_channel_id"
	ColStaffMessageID       Column = "staff_message_id"
	ColTransporterID        Column = "transportador_id"
)

var updatableColumns = map[Column]bool{
	ColNick: true, ColOrigin: true, ColDestination: true, ColSilver: true, ColPriority: true,
	ColFee: true, ColReceived: true, ColNotes: true, ColPaymentProof: true, ColOriginPhoto: true,
	ColDeliveryPhoto: true, ColDepositConfirmed: true, ColTransitConfirmed: true,
	ColDeliveryConfirmed: true, ColAccessReleased: true, ColAwaitingDepositPhoto: true,
	ColChannelID: true, ColStaffMessageID: true, ColTransporterID: true,
}

// Fields is a set of column updates for UpdateTransportFields.
type Fields map[Column]any

const transportSelect = `SELECT t.id, COALESCE(t.numero_ticket, 0), t.cliente_id, COALESCE(c.discord_id, ''),
    t.status, t.nick, t.origem, t.destino, t.valor_estimado, t.prioridade, t.taxa_final, t.valor_recebido, t.notas,
    t.comprovante_pagamento, t.print_items_origem, t.print_items_destino,
    t.confirmacao_deposito_origem, t.confirmacao_transporte, t.confirmacao_entrega,
    t.acesso_liberado, t.aguardando_foto_deposito,
    t.ticket_channel_id, t.staff_message_id, t.transportador_id,
    t.data_criacao, t.data_pagamento, t.data_conclusao
FROM transportes t LEFT JOIN clientes c ON c.id = t.cliente_id`

func scanTransport(sc interface{ Scan(...any) error }) (*transport.Transport, error) {
	var (
		t                   transport.Transport
		status, prio        string
		fee, received       int64
		paidAt, concludedAt sql.NullTime
	)
	err := sc.Scan(
		&t.ID, &t.TicketNumber, &t.ClientID, &t.ClientDiscordID,
		&status, &t.Nick, &t.Origin, &t.Destination, &t.Silver, &prio, &fee, &received, &t.Notes,
		&t.PaymentProofURL, &t.OriginPhotoURL, &t.DeliveryPhotoURL,
		&t.DepositConfirmed, &t.TransitConfirmed, &t.DeliveryConfirmed,
		&t.AccessReleased, &t.AwaitingDepositPhoto,
		&t.ChannelID, &t.StaffMessageID, &t.TransporterID,
		&t.CreatedAt, &paidAt, &concludedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	t.Status = transport.Status(status)
	t.Priority = transport.Priority(prio)
	t.Fee = transport.Cents(fee)
	t.Received = transport.Cents(received)
	if paidAt.Valid {
		v := paidAt.Time
		t.PaidAt = &v
	}
	if concludedAt.Valid {
		v := concludedAt.Time
		t.ConcludedAt = &v
	}
	return &t, nil
}

func (q *Queries) listTransports(ctx context.Context, query string, args ...any) ([]*transport.Transport, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*transport.Transport
	for rows.Next() {
		t, err := scanTransport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) getTransport(ctx context.Context, where string, arg any) (*transport.Transport, error) {
	row, err := q.queryRow(ctx, transportSelect+" WHERE "+where, arg)
	if err != nil {
		return nil, err
	}
	return scanTransport(row)
}

// InsertTransport stores t, filling ID, TicketNumber and CreatedAt.
func (q *Queries) InsertTransport(ctx context.Context, t *transport.Transport) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Destination == "" {
		t.Destination = transport.DefaultDestination
	}
	if t.Priority == "" {
		t.Priority = transport.PriorityNormal
	}
	id, err := q.insertID(ctx,
		`INSERT INTO transportes (cliente_id, status, nick, origem, destino, valor_estimado, prioridade,
            taxa_final, notas, ticket_channel_id, data_criacao)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ClientID, string(t.Status), t.Nick, t.Origin, t.Destination, t.Silver, string(t.Priority),
		int64(t.Fee), t.Notes, t.ChannelID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transport: %w", err)
	}
	ticket := transport.TicketNumberFor(id)
	if _, err := q.exec(ctx, `UPDATE transportes SET numero_ticket = ? WHERE id = ?`, ticket, id); err != nil {
		return fmt.Errorf("assign ticket number: %w", err)
	}
	t.ID = id
	t.TicketNumber = ticket
	return nil
}

// GetTransport returns a transport by row id or ErrNotFound.
func (q *Queries) GetTransport(ctx context.Context, id int64) (*transport.Transport, error) {
	return q.getTransport(ctx, "t.id = ?", id)
}

// GetTransportByTicket returns a transport by its public ticket number.
func (q *Queries) GetTransportByTicket(ctx context.Context, ticket int64) (*transport.Transport, error) {
	return q.getTransport(ctx, "t.numero_ticket = ?", ticket)
}

// GetTransportByChannel returns the transport bound to a ticket channel.
func (q *Queries) GetTransportByChannel(ctx context.Context, channelID string) (*transport.Transport, error) {
	if channelID == "" {
		return nil, ErrNotFound
	}
	return q.getTransport(ctx, "t.ticket_channel_id = ?", channelID)
}

// StatusStamps are the timestamp columns set alongside a status change.
type StatusStamps struct {
	PaidAt      *time.Time
	ConcludedAt *time.Time
}

// UpdateStatus moves a transport from one status to another. The update is conditional on the
// current status so two concurrent clicks cannot both succeed; the loser gets ErrStaleStatus.
func (q *Queries) UpdateStatus(ctx context.Context, id int64, from, to transport.Status, stamps StatusStamps) error {
	sets := []string{"status = ?"}
	args := []any{string(to)}
	if stamps.PaidAt != nil {
		sets = append(sets, "data_pagamento = ?")
		args = append(args, stamps.PaidAt.UTC())
	}
	if stamps.ConcludedAt != nil {
		sets = append(sets, "data_conclusao = ?")
		args = append(args, stamps.ConcludedAt.UTC())
	}
	args = append(args, id, string(from))
	res, err := q.exec(ctx, `UPDATE transportes SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.GetTransport(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

// UpdateTransportFields writes whitelisted columns of one transport.
func (q *Queries) UpdateTransportFields(ctx context.Context, id int64, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if !updatableColumns[c] {
			return fmt.Errorf("column %q is not updatable", c)
		}
		cols = append(cols, string(c))
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, normalizeArg(fields[Column(c)]))
	}
	args = append(args, id)
	res, err := q.exec(ctx, `UPDATE transportes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update transport fields: %w", err)
	}
	return expectOne(res)
}

// normalizeArg unwraps domain types into driver values.
func normalizeArg(v any) any {
	switch x := v.(type) {
	case transport.Cents:
		return int64(x)
	case transport.Status:
		return string(x)
	case transport.Priority:
		return string(x)
	default:
		return v
	}
}

const queueOrder = ` ORDER BY CASE t.prioridade WHEN 'ALTA' THEN 0 ELSE 1 END, t.data_criacao, t.id`

func statusFilter(statuses []transport.Status) (string, []any) {
	marks := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		marks[i] = "?"
		args[i] = string(s)
	}
	return "t.status IN (" + strings.Join(marks, ", ") + ")", args
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// ListByStatuses lists transports in any of statuses, ALTA first then oldest.
func (q *Queries) ListByStatuses(ctx context.Context, statuses []transport.Status, limit int) ([]*transport.Transport, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	where, args := statusFilter(statuses)
	return q.listTransports(ctx, transportSelect+" WHERE "+where+queueOrder+limitClause(limit), args...)
}

// ListRecentByStatuses lists transports in any of statuses, newest first.
func (q *Queries) ListRecentByStatuses(ctx context.Context, statuses []transport.Status, limit int) ([]*transport.Transport, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	where, args := statusFilter(statuses)
	return q.listTransports(ctx, transportSelect+" WHERE "+where+" ORDER BY t.data_criacao DESC, t.id DESC"+limitClause(limit), args...)
}

// ListClientTransports lists one client's transports, newest first.
func (q *Queries) ListClientTransports(ctx context.Context, clientID int64, limit int) ([]*transport.Transport, error) {
	return q.listTransports(ctx, transportSelect+" WHERE t.cliente_id = ? ORDER BY t.data_criacao DESC, t.id DESC"+limitClause(limit), clientID)
}

// CountByStatus returns the number of transports per status. Absent statuses are zero.
func (q *Queries) CountByStatus(ctx context.Context) (map[transport.Status]int64, error) {
	rows, err := q.query(ctx, `SELECT status, COUNT(*) FROM transportes GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[transport.Status]int64, len(transport.AllStatuses))
	for _, s := range transport.AllStatuses {
		out[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[transport.Status(status)] = n
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
