package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

type Options struct {
	MaxOpenConns int
	Logger       zerolog.Logger
}

// Store persists trades and positions in a single SQLite file.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		trade_type TEXT NOT NULL,
		order_type TEXT NOT NULL DEFAULT 'MARKET',
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		total_value TEXT NOT NULL,
		confidence TEXT,
		strategy TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		exchange_order_id INTEGER,
		exchange_status TEXT NOT NULL DEFAULT '',
		reconciled INTEGER NOT NULL DEFAULT 0,
		profit_loss TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_symbol_created ON trades (symbol, created_at)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL UNIQUE,
		entry_price TEXT NOT NULL,
		current_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		stop_loss TEXT,
		take_profit TEXT,
		trailing_stop TEXT,
		unrealized_pnl TEXT,
		opened_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

// Open creates the parent directory, opens the database and applies the
// schema. Use a file path; ":memory:" gives every pooled connection its own
// empty database.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("database path required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	maxConns := opts.MaxOpenConns
	if maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	opts.Logger.Info().Str("event", "store_opened").Str("path", path).Msg("")
	return &Store{db: db, log: opts.Logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not open")
	}
	return s.db.PingContext(ctx)
}

func decString(d decimal.Decimal) string {
	return d.String()
}

func nullDecString(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseDec(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}

func parseNullDec(v sql.NullString) (decimal.NullDecimal, error) {
	if !v.Valid || v.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
