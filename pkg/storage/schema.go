package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// column types that differ between SQLite and Postgres
type dialectTypes struct {
	pk, big, ts, real string
}

func typesFor(d Dialect) dialectTypes {
	if d == DialectPostgres {
		return dialectTypes{pk: "BIGSERIAL PRIMARY KEY", big: "BIGINT", ts: "TIMESTAMPTZ", real: "DOUBLE PRECISION"}
	}
	return dialectTypes{pk: "INTEGER PRIMARY KEY AUTOINCREMENT", big: "INTEGER", ts: "TIMESTAMP", real: "REAL"}
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS clientes (
    id {pk},
    discord_id TEXT NOT NULL UNIQUE,
    username TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    data_criacao {ts} NOT NULL,
    total_transportes {big} NOT NULL DEFAULT 0,
    status_verificado BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS transportes (
    id {pk},
    numero_ticket {big} UNIQUE,
    cliente_id {big} NOT NULL REFERENCES clientes(id) ON DELETE CASCADE,
    status TEXT NOT NULL,
    origem TEXT NOT NULL DEFAULT '',
    destino TEXT NOT NULL DEFAULT 'Caerleon',
    valor_estimado {big} NOT NULL DEFAULT 0,
    prioridade TEXT NOT NULL DEFAULT 'NORMAL',
    taxa_final {big} NOT NULL DEFAULT 0,
    comprovante_pagamento TEXT NOT NULL DEFAULT '',
    print_items_origem TEXT NOT NULL DEFAULT '',
    print_items_destino TEXT NOT NULL DEFAULT '',
    confirmacao_deposito_origem BOOLEAN NOT NULL DEFAULT FALSE,
    confirmacao_transporte BOOLEAN NOT NULL DEFAULT FALSE,
    confirmacao_entrega BOOLEAN NOT NULL DEFAULT FALSE,
    ticket_channel_id TEXT NOT NULL DEFAULT '',
    data_criacao {ts} NOT NULL,
    data_pagamento {ts},
    data_conclusao {ts},
    notas TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transportes_status ON transportes(status);
CREATE INDEX IF NOT EXISTS idx_transportes_cliente ON transportes(cliente_id);
CREATE INDEX IF NOT EXISTS idx_transportes_channel ON transportes(ticket_channel_id);

CREATE TABLE IF NOT EXISTS log_transportes (
    id {pk},
    transporte_id {big} NOT NULL REFERENCES transportes(id) ON DELETE CASCADE,
    origem TEXT NOT NULL DEFAULT '',
    destino TEXT NOT NULL DEFAULT '',
    valor_aproximado TEXT NOT NULL DEFAULT '',
    prioridade TEXT NOT NULL DEFAULT '',
    status_final TEXT NOT NULL DEFAULT '',
    data_conclusao {ts} NOT NULL,
    message_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS configuracoes (
    chave TEXT PRIMARY KEY,
    valor TEXT NOT NULL,
    tipo TEXT NOT NULL DEFAULT 'string'
);

CREATE TABLE IF NOT EXISTS auditorias (
    id {pk},
    staff_id TEXT NOT NULL DEFAULT '',
    acao TEXT NOT NULL,
    transporte_id {big},
    status_anterior TEXT NOT NULL DEFAULT '',
    status_novo TEXT NOT NULL DEFAULT '',
    data {ts} NOT NULL,
    detalhes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_auditorias_transporte ON auditorias(transporte_id);

CREATE TABLE IF NOT EXISTS financeiro_transacoes (
    id {pk},
    ref TEXT NOT NULL UNIQUE,
    tipo TEXT NOT NULL,
    valor {big} NOT NULL,
    descricao TEXT NOT NULL DEFAULT '',
    motivo TEXT NOT NULL DEFAULT '',
    autor_id TEXT NOT NULL DEFAULT '',
    transporte_id {big},
    data_criacao {ts} NOT NULL
);

CREATE TABLE IF NOT EXISTS financeiro_saldo (
    id INTEGER PRIMARY KEY,
    saldo_total {big} NOT NULL DEFAULT 0,
    saldo_entrada {big} NOT NULL DEFAULT 0,
    saldo_saida {big} NOT NULL DEFAULT 0,
    ultima_atualizacao {ts}
);

INSERT INTO financeiro_saldo (id, saldo_total, saldo_entrada, saldo_saida)
VALUES (1, 0, 0, 0)
ON CONFLICT (id) DO NOTHING;
`

// migrations added after the first release; applied with AddColumnIfMissing.
var transportMigrations = []struct{ column, decl string }{
	{"staff_message_id", "TEXT NOT NULL DEFAULT ''"},
	{"nick", "TEXT NOT NULL DEFAULT ''"},
	{"acesso_liberado", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"aguardando_foto_deposito", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"valor_recebido", "{big} NOT NULL DEFAULT 0"},
	{"transportador_id", "TEXT NOT NULL DEFAULT ''"},
}

func expand(d Dialect, sqlText string) string {
	t := typesFor(d)
	return strings.NewReplacer(
		"{pk}", t.pk,
		"{big}", t.big,
		"{ts}", t.ts,
		"{real}", t.real,
	).Replace(sqlText)
}

func ensureSchema(db *sql.DB, d Dialect) error {
	for _, stmt := range strings.Split(expand(d, schemaTemplate), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	ctx := context.Background()
	for _, m := range transportMigrations {
		if err := addColumnIfMissing(ctx, db, d, "transportes", m.column, expand(d, m.decl)); err != nil {
			return err
		}
	}
	return nil
}

// AddColumnIfMissing adds column to table unless it already exists.
func (s *Store) AddColumnIfMissing(ctx context.Context, table, column, decl string) error {
	if s.db == nil {
		return ErrNotInitialized
	}
	return addColumnIfMissing(ctx, s.db, s.dialect, table, column, expand(s.dialect, decl))
}

func addColumnIfMissing(ctx context.Context, db *sql.DB, d Dialect, table, column, decl string) error {
	ok, err := columnExists(ctx, db, d, table, column)
	if err != nil {
		return fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	if ok {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, d Dialect, table, column string) (bool, error) {
	if d == DialectPostgres {
		var n int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`,
			table, column,
		).Scan(&n)
		return n > 0, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
