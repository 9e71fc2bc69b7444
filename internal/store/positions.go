package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Position struct {
	ID            int64               `json:"id"`
	Symbol        string              `json:"symbol"`
	EntryPrice    decimal.Decimal     `json:"entry_price"`
	CurrentPrice  decimal.Decimal     `json:"current_price"`
	Quantity      decimal.Decimal     `json:"quantity"`
	StopLoss      decimal.NullDecimal `json:"stop_loss"`
	TakeProfit    decimal.NullDecimal `json:"take_profit"`
	TrailingStop  decimal.NullDecimal `json:"trailing_stop"`
	UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
	OpenedAt      time.Time           `json:"opened_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// PositionUpdate changes only the fields that are Valid.
type PositionUpdate struct {
	CurrentPrice  decimal.NullDecimal `json:"current_price"`
	StopLoss      decimal.NullDecimal `json:"stop_loss"`
	TakeProfit    decimal.NullDecimal `json:"take_profit"`
	TrailingStop  decimal.NullDecimal `json:"trailing_stop"`
	UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
}

const positionColumns = `id, symbol, entry_price, current_price, quantity, stop_loss, take_profit,
	trailing_stop, unrealized_pnl, opened_at, updated_at`

// ListPositions returns newest first.
func (s *Store) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY opened_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := make([]Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *Store) GetPosition(ctx context.Context, symbol string) (Position, error) {
	return getPosition(ctx, s.db, symbol)
}

// CreatePosition opens a position with current price equal to entry price.
func (s *Store) CreatePosition(ctx context.Context, p Position) (Position, error) {
	now := s.now().UTC()
	if p.OpenedAt.IsZero() {
		p.OpenedAt = now
	}
	p.UpdatedAt = now
	if p.CurrentPrice.IsZero() {
		p.CurrentPrice = p.EntryPrice
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (symbol, entry_price, current_price, quantity, stop_loss, take_profit,
			trailing_stop, unrealized_pnl, opened_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Symbol, decString(p.EntryPrice), decString(p.CurrentPrice), decString(p.Quantity),
		nullDecString(p.StopLoss), nullDecString(p.TakeProfit), nullDecString(p.TrailingStop),
		nullDecString(p.UnrealizedPnL), p.OpenedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Position{}, fmt.Errorf("position %s: %w", p.Symbol, ErrConflict)
		}
		return Position{}, fmt.Errorf("failed to insert position: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return Position{}, fmt.Errorf("failed to read position id: %w", err)
	}
	p.OpenedAt = fromMillis(p.OpenedAt.UnixMilli())
	p.UpdatedAt = fromMillis(p.UpdatedAt.UnixMilli())
	return p, nil
}

func (s *Store) UpdatePosition(ctx context.Context, symbol string, u PositionUpdate) (Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Position{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE positions
		SET current_price = COALESCE(?, current_price),
			stop_loss = COALESCE(?, stop_loss),
			take_profit = COALESCE(?, take_profit),
			trailing_stop = COALESCE(?, trailing_stop),
			unrealized_pnl = COALESCE(?, unrealized_pnl),
			updated_at = ?
		WHERE symbol = ?`,
		nullDecString(u.CurrentPrice), nullDecString(u.StopLoss), nullDecString(u.TakeProfit),
		nullDecString(u.TrailingStop), nullDecString(u.UnrealizedPnL), s.now().UnixMilli(), symbol,
	)
	if err != nil {
		return Position{}, fmt.Errorf("failed to update position: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Position{}, err
	} else if n == 0 {
		return Position{}, ErrNotFound
	}
	p, err := getPosition(ctx, tx, symbol)
	if err != nil {
		return Position{}, err
	}
	return p, tx.Commit()
}

// DeletePosition closes a position and returns the row as it was.
func (s *Store) DeletePosition(ctx context.Context, symbol string) (Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Position{}, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := getPosition(ctx, tx, symbol)
	if err != nil {
		return Position{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return Position{}, fmt.Errorf("failed to delete position: %w", err)
	}
	return p, tx.Commit()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPosition(ctx context.Context, q queryRower, symbol string) (Position, error) {
	p, err := scanPosition(q.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE symbol = ?`, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	return p, err
}

func scanPosition(r rowScanner) (Position, error) {
	var (
		p                                Position
		entry, current, qty              string
		stop, take, trailing, unrealized sql.NullString
		opened, updated                  int64
	)
	if err := r.Scan(&p.ID, &p.Symbol, &entry, &current, &qty, &stop, &take, &trailing, &unrealized, &opened, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, err
		}
		return Position{}, fmt.Errorf("failed to scan position: %w", err)
	}
	p.OpenedAt = fromMillis(opened)
	p.UpdatedAt = fromMillis(updated)
	var err error
	if p.EntryPrice, err = parseDec(entry); err != nil {
		return Position{}, fmt.Errorf("position %s entry_price: %w", p.Symbol, err)
	}
	if p.CurrentPrice, err = parseDec(current); err != nil {
		return Position{}, fmt.Errorf("position %s current_price: %w", p.Symbol, err)
	}
	if p.Quantity, err = parseDec(qty); err != nil {
		return Position{}, fmt.Errorf("position %s quantity: %w", p.Symbol, err)
	}
	for _, f := range []struct {
		dst *decimal.NullDecimal
		src sql.NullString
	}{{&p.StopLoss, stop}, {&p.TakeProfit, take}, {&p.TrailingStop, trailing}, {&p.UnrealizedPnL, unrealized}} {
		if *f.dst, err = parseNullDec(f.src); err != nil {
			return Position{}, fmt.Errorf("position %s: %w", p.Symbol, err)
		}
	}
	return p, nil
}
