package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/small-frappuccino/tasbot/pkg/errutil"
)

// Dialect selects the SQL flavour spoken by the underlying database.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

var (
	ErrNotFound       = errors.New("record not found")
	ErrNotInitialized = errors.New("store not initialized")
	ErrBalanceTooLow  = errors.New("balance would go negative")
)

// IsPostgresURL reports whether dsn points at a Postgres server.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Store wraps the transport database. It talks to an embedded SQLite file by default
// (modernc.org/sqlite, CGO-less) and to Postgres through pgx when given a postgres:// URL.
// Every query method lives on the embedded Queries so the same code runs inside WithTx.
type Store struct {
	dsn     string
	dialect Dialect
	db      *sql.DB
	Queries
}

// NewStore creates a new Store pointing to dsnOrPath. Call Init() before using it.
func NewStore(dsnOrPath string) *Store {
	d := DialectSQLite
	if IsPostgresURL(dsnOrPath) {
		d = DialectPostgres
	}
	return &Store{dsn: dsnOrPath, dialect: d}
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() Dialect { return s.dialect }

// Init opens the database, configures pragmas, and ensures the schema exists.
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if s.dsn == "" {
		return fmt.Errorf("db path is empty")
	}

	var (
		db  *sql.DB
		err error
	)
	switch s.dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", s.dsn)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
	default:
		if err := os.MkdirAll(filepath.Dir(s.dsn), 0o755); err != nil {
			return fmt.Errorf("failed to create db directory: %w", err)
		}
		db, err = sql.Open("sqlite", s.dsn+"?_time_format=sqlite")
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		// one connection keeps pragmas and write transactions on the same handle
		db.SetMaxOpenConns(1)
		if err := applyPragmas(db); err != nil {
			_ = db.Close()
			return err
		}
	}

	if err := errutil.HandleDatabaseError("ensure_schema", func() error { return ensureSchema(db, s.dialect) }); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.Queries = Queries{q: db, dialect: s.dialect}
	return nil
}

func applyPragmas(db *sql.DB) error {
	// Pragmas for durability and concurrency
	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode=WAL;`, "set WAL"},
		{`PRAGMA foreign_keys=ON;`, "enable FKs"},
		{`PRAGMA busy_timeout=5000;`, "set busy_timeout"},
		{`PRAGMA synchronous=NORMAL;`, "set synchronous"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			return fmt.Errorf("%s: %w", p.what, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.Queries = Queries{}
	return err
}

// WithTx runs fn inside a transaction. fn must only use the Queries it is given.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	if s.db == nil {
		return ErrNotInitialized
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Queries{q: tx, dialect: s.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return errutil.HandleDatabaseError("commit tx", tx.Commit)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every read/write operation, bound either to the pool or to a transaction.
type Queries struct {
	q       querier
	dialect Dialect
}

func (q *Queries) ready() error {
	if q == nil || q.q == nil {
		return ErrNotInitialized
	}
	return nil
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}
	return q.q.ExecContext(ctx, rebind(q.dialect, query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}
	return q.q.QueryContext(ctx, rebind(q.dialect, query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) (*sql.Row, error) {
	if err := q.ready(); err != nil {
		return nil, err
	}
	return q.q.QueryRowContext(ctx, rebind(q.dialect, query), args...), nil
}

// insertID runs an INSERT ... RETURNING id on both dialects.
func (q *Queries) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	row, err := q.queryRow(ctx, query+" RETURNING id", args...)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// rebind turns ? placeholders into $n for Postgres. Queries never carry a literal '?'.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
