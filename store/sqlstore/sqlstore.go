/*
Package sqlstore provides a SQL-backed booking.TxStore for SQLite and
PostgreSQL.

PURPOSE:
  Implements booking.Store on top of sqlx. Queries are built with goqu in
  the dialect of the configured driver, so the same code runs on SQLite
  (mattn/go-sqlite3) and PostgreSQL (pgx stdlib driver).

KEY TABLES:
  locations, calendars:  Named collections of events
  events:                Seat counter lives in spaces_available
  reservations:          One row per active reservation
  users:                 Balance with CHECK (balance >= 0)
  credit_transactions:   Append-only credit log

INDEXES:
  - idx_events_calendar_date: listing a calendar range (hot path)
  - idx_events_series: series update by series id
  - idx_reservations_event_owner (UNIQUE): one reservation per user+event
  - credit_transactions.idempotency_key (UNIQUE): one refund per reservation

CONCURRENCY:
  PostgreSQL: LockEvent/LockUser use SELECT ... FOR UPDATE inside WithTx.
  SQLite: transactions start with BEGIN IMMEDIATE (_txlock=immediate) and
  WithTx is serialized by a process mutex, so the database has one writer.

USAGE:
  store, err := sqlstore.New("./data/reservations.db")
  store, err := sqlstore.Open("pgx", "postgres://...")
  defer store.Close()

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xstejsk/bp-backup/booking"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Store implements booking.TxStore.
type Store struct {
	queries
	db     *sqlx.DB
	driver string
	txMu   sync.Mutex
}

var _ booking.TxStore = (*Store)(nil)

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory
// database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open opens a store with driver "sqlite3" or "pgx" and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialect string
	switch driver {
	case DriverSQLite:
		dialect = "sqlite3"
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection: an in-memory database exists per connection, and
		// SQLite has a single writer anyway.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		queries: queries{q: db, dialect: goqu.Dialect(dialect)},
		db:      db,
		driver:  driver,
	}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	const opts = "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if path == ":memory:" {
		return "file::memory:?" + opts
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + opts + "&_journal_mode=WAL"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database driver name.
func (s *Store) Driver() string { return s.driver }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithTx executes fn within a transaction.
// If fn returns error, transaction is rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) (err error) {
	if s.driver == DriverSQLite {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	view := &queries{q: tx, dialect: s.dialect, lockRows: s.driver == DriverPostgres}
	if err := fn(view); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// SCHEMA
// =============================================================================

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	types := strings.NewReplacer("{{BLOB}}", "BLOB", "{{SERIAL}}", "INTEGER PRIMARY KEY AUTOINCREMENT")
	if s.driver == DriverPostgres {
		types = strings.NewReplacer("{{BLOB}}", "BYTEA", "{{SERIAL}}", "BIGSERIAL PRIMARY KEY")
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, types.Replace(stmt)); err != nil {
			return fmt.Errorf("%s: %w", strings.TrimSpace(strings.SplitN(stmt, "(", 2)[0]), err)
		}
	}
	return nil
}

// Dates are TEXT "2006-01-02", times of day TEXT "15:04", timestamps TEXT
// RFC3339; all three sort lexicographically.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS calendars (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		location_id TEXT REFERENCES locations(id),
		thumbnail {{BLOB}},
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		calendar_id TEXT NOT NULL REFERENCES calendars(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		event_date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		price BIGINT NOT NULL CHECK (price >= 0),
		discount_price BIGINT NOT NULL CHECK (discount_price >= 0),
		maximum_capacity INTEGER NOT NULL CHECK (maximum_capacity >= 1),
		spaces_available INTEGER NOT NULL
			CHECK (spaces_available >= 0 AND spaces_available <= maximum_capacity),
		recurrence_days TEXT,
		repeat_until TEXT,
		series_id TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_calendar_date
		ON events(calendar_id, event_date, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_events_series
		ON events(series_id) WHERE series_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		balance BIGINT NOT NULL CHECK (balance >= 0),
		has_daily_discount BOOLEAN NOT NULL DEFAULT FALSE,
		enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		owner_id TEXT NOT NULL REFERENCES users(id),
		discount_applied BOOLEAN NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_event_owner
		ON reservations(event_id, owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_owner
		ON reservations(owner_id)`,

	// Append-only credit log
	`CREATE TABLE IF NOT EXISTS credit_transactions (
		seq {{SERIAL}},
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES users(id),
		delta BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user
		ON credit_transactions(user_id, seq)`,
}
