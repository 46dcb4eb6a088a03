package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
// 2 - Receipt numbers unique per branch instead of per database
const currentSchemaVersion = 2

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides durable storage for the terminal.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
//
// Pragmas travel in the DSN so every pooled connection gets them:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//   - IMMEDIATE transactions so writers take the lock up front
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	return "file:" + path + "?" + params.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Products returns the product repository bound to the store.
func (s *Store) Products() *ProductRepository { return &ProductRepository{q: s.db} }

// Staff returns the staff repository bound to the store.
func (s *Store) Staff() *StaffRepository { return &StaffRepository{q: s.db} }

// Transactions returns the sales transaction repository bound to the store.
func (s *Store) Transactions() *TransactionRepository { return &TransactionRepository{q: s.db} }

// Outbox returns the outbox repository bound to the store.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{q: s.db} }

// Settings returns the single-row settings repository.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{q: s.db} }

// Tx is a local transaction. Repositories obtained from it share the
// transaction and commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Products() *ProductRepository { return &ProductRepository{q: t.tx} }
func (t *Tx) Staff() *StaffRepository { return &StaffRepository{q: t.tx} }
func (t *Tx) Transactions() *TransactionRepository { return &TransactionRepository{q: t.tx} }
func (t *Tx) Outbox() *OutboxRepository { return &OutboxRepository{q: t.tx} }

// WithTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, currentSchemaVersion)
	}

	// A fresh database (version 0) already has the current tables.
	if version == 1 {
		if err := migrateReceiptNumbers(db); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateReceiptNumbers rebuilds sales_transactions with a per-branch
// UNIQUE (branch_id, number). SQLite cannot drop an inline constraint, so
// the table is copied. Foreign keys are off on the pinned connection so the
// drop does not cascade into transaction_items.
func migrateReceiptNumbers(db *sql.DB) error {
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`CREATE TABLE sales_transactions_v2 (
			id             TEXT PRIMARY KEY,
			business_id    TEXT NOT NULL,
			branch_id      TEXT NOT NULL,
			number         TEXT NOT NULL,
			staff_id       TEXT,
			subtotal       TEXT NOT NULL,
			tax            TEXT NOT NULL,
			total          TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			status         TEXT NOT NULL,
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL,
			UNIQUE (branch_id, number)
		)`,
		`INSERT INTO sales_transactions_v2 SELECT
			id, business_id, branch_id, number, staff_id, subtotal, tax, total,
			payment_method, status, created_at, updated_at
		FROM sales_transactions`,
		`DROP TABLE sales_transactions`,
		`ALTER TABLE sales_transactions_v2 RENAME TO sales_transactions`,
	}
	for _, stmt := range steps {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	rows, err := tx.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return err
	}
	broken := rows.Next()
	rows.Close()
	if broken {
		return errors.New("foreign key check failed after rebuilding sales_transactions")
	}
	return tx.Commit()
}

// notFound maps sql.ErrNoRows onto the given sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
