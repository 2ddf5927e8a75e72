package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LogEntry is a public history row of log_transportes, written when a transport concludes.
type LogEntry struct {
	ID          int64
	TransportID int64
	Origin      string
	Destination string
	ApproxValue string
	Priority    string
	FinalStatus string
	ConcludedAt time.Time
	MessageID   string
}

// InsertLog appends a history row.
func (q *Queries) InsertLog(ctx context.Context, e *LogEntry) error {
	if e.ConcludedAt.IsZero() {
		e.ConcludedAt = time.Now().UTC()
	}
	id, err := q.insertID(ctx,
		`INSERT INTO log_transportes (transporte_id, origem, destino, valor_aproximado, prioridade, status_final, data_conclusao, message_id)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TransportID, e.Origin, e.Destination, e.ApproxValue, e.Priority, e.FinalStatus, e.ConcludedAt.UTC(), e.MessageID,
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	e.ID = id
	return nil
}

// SetLogMessage records the history channel message id posted for a log row.
func (q *Queries) SetLogMessage(ctx context.Context, id int64, messageID string) error {
	res, err := q.exec(ctx, `UPDATE log_transportes SET message_id = ? WHERE id = ?`, messageID, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ListLogs returns the newest history rows.
func (q *Queries) ListLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := q.query(ctx,
		`SELECT id, transporte_id, origem, destino, valor_aproximado, prioridade, status_final, data_conclusao, message_id
         FROM log_transportes ORDER BY data_conclusao DESC, id DESC`+limitClause(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.TransportID, &e.Origin, &e.Destination, &e.ApproxValue, &e.Priority, &e.FinalStatus, &e.ConcludedAt, &e.MessageID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Audit is one staff or customer action recorded in auditorias.
type Audit struct {
	ID          int64
	ActorID     string
	Action      string
	TransportID int64
	FromStatus  string
	ToStatus    string
	At          time.Time
	Details     string
}

// InsertAudit appends an audit row. TransportID 0 is stored as NULL.
func (q *Queries) InsertAudit(ctx context.Context, a *Audit) error {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	var tid any
	if a.TransportID != 0 {
		tid = a.TransportID
	}
	id, err := q.insertID(ctx,
		`INSERT INTO auditorias (staff_id, acao, transporte_id, status_anterior, status_novo, data, detalhes)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ActorID, a.Action, tid, a.FromStatus, a.ToStatus, a.At.UTC(), a.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	a.ID = id
	return nil
}

// ListAudits returns the audit trail of one transport, oldest first.
func (q *Queries) ListAudits(ctx context.Context, transportID int64) ([]Audit, error) {
	rows, err := q.query(ctx,
		`SELECT id, staff_id, acao, transporte_id, status_anterior, status_novo, data, detalhes
         FROM auditorias WHERE transporte_id = ? ORDER BY id`, transportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Audit
	for rows.Next() {
		var (
			a   Audit
			tid sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &a.Action, &tid, &a.FromStatus, &a.ToStatus, &a.At, &a.Details); err != nil {
			return nil, err
		}
		a.TransportID = tid.Int64
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetConfig reads a key from configuracoes.
func (q *Queries) GetConfig(ctx context.Context, key string) (string, bool, error) {
	row, err := q.queryRow(ctx, `SELECT valor FROM configuracoes WHERE chave = ?`, key)
	if err != nil {
		return "", false, err
	}
	var v string
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// SetConfig upserts a key in configuracoes.
func (q *Queries) SetConfig(ctx context.Context, key, value, kind string) error {
	if kind == "" {
		kind = "string"
	}
	_, err := q.exec(ctx,
		`INSERT INTO configuracoes (chave, valor, tipo) VALUES (?, ?, ?)
         ON CONFLICT (chave) DO UPDATE SET valor = excluded.valor, tipo = excluded.tipo`,
		key, value, kind,
	)
	return err
}

// LedgerEntry is a row of financeiro_transacoes. Value is in centavos.
type LedgerEntry struct {
	ID          int64
	Ref         string
	Kind        string
	Value       int64
	Description string
	Reason      string
	AuthorID    string
	TransportID int64
	CreatedAt   time.Time
}

// LedgerBalance is the single row of financeiro_saldo.
type LedgerBalance struct {
	Total     int64
	In        int64
	Out       int64
	UpdatedAt *time.Time
}

// InsertLedgerEntry appends a ledger row. It does not touch the balance.
func (q *Queries) InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var tid any
	if e.TransportID != 0 {
		tid = e.TransportID
	}
	id, err := q.insertID(ctx,
		`INSERT INTO financeiro_transacoes (ref, tipo, valor, descricao, motivo, autor_id, transporte_id, data_criacao)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Ref, e.Kind, e.Value, e.Description, e.Reason, e.AuthorID, tid, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	e.ID = id
	return nil
}

// ListLedgerEntries returns the newest ledger rows.
func (q *Queries) ListLedgerEntries(ctx context.Context, limit int) ([]LedgerEntry, error) {
	rows, err := q.query(ctx,
		`SELECT id, ref, tipo, valor, descricao, motivo, autor_id, transporte_id, data_criacao
         FROM financeiro_transacoes ORDER BY data_criacao DESC, id DESC`+limitClause(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var (
			e   LedgerEntry
			tid sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Ref, &e.Kind, &e.Value, &e.Description, &e.Reason, &e.AuthorID, &tid, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TransportID = tid.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountLedgerEntriesForTransport counts ledger rows tied to one transport.
func (q *Queries) CountLedgerEntriesForTransport(ctx context.Context, transportID int64) (int64, error) {
	row, err := q.queryRow(ctx, `SELECT COUNT(*) FROM financeiro_transacoes WHERE transporte_id = ?`, transportID)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetLedgerBalance reads the balance row.
func (q *Queries) GetLedgerBalance(ctx context.Context) (LedgerBalance, error) {
	row, err := q.queryRow(ctx, `SELECT saldo_total, saldo_entrada, saldo_saida, ultima_atualizacao FROM financeiro_saldo WHERE id = 1`)
	if err != nil {
		return LedgerBalance{}, err
	}
	var (
		b  LedgerBalance
		at sql.NullTime
	)
	if err := row.Scan(&b.Total, &b.In, &b.Out, &at); err != nil {
		return LedgerBalance{}, notFound(err)
	}
	if at.Valid {
		v := at.Time
		b.UpdatedAt = &v
	}
	return b, nil
}

// AddToLedgerBalance applies deltas to the balance row. The update only
// matches while the total stays non-negative, so two concurrent withdrawals
// cannot both pass; the loser gets ErrBalanceTooLow.
func (q *Queries) AddToLedgerBalance(ctx context.Context, in, out int64, at time.Time) error {
	res, err := q.exec(ctx,
		`UPDATE financeiro_saldo
         SET saldo_total = saldo_total + ? - ?, saldo_entrada = saldo_entrada + ?, saldo_saida = saldo_saida + ?, ultima_atualizacao = ?
         WHERE id = 1 AND saldo_total + ? - ? >= 0`,
		in, out, in, out, at.UTC(), in, out,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if err := expectOne(res); err != nil {
		if _, readErr := q.GetLedgerBalance(ctx); readErr != nil {
			return readErr
		}
		return ErrBalanceTooLow
	}
	return nil
}
