package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Ledger is the durable record of games, polls, responses and reminders.
// SQLite allows one writer, so the pool holds a single connection and every
// multi-statement operation runs in one transaction on it.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to ledger: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error applying ledger schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("error closing ledger: %w", err)
	}
	return nil
}

// utc normalizes every timestamp written to the ledger so stored values
// compare correctly as text.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func (l *Ledger) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}
