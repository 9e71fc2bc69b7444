package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/core"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 1000
)

type Trade struct {
	ID              int64               `json:"id"`
	Symbol          string              `json:"symbol"`
	TradeType       core.Side           `json:"trade_type"`
	OrderType       core.OrderType      `json:"order_type"`
	Price           decimal.Decimal     `json:"price"`
	Quantity        decimal.Decimal     `json:"quantity"`
	TotalValue      decimal.Decimal     `json:"total_value"`
	Confidence      decimal.NullDecimal `json:"confidence"`
	Strategy        string              `json:"strategy"`
	Mode            core.Mode           `json:"mode"`
	ExchangeOrderID *int64              `json:"exchange_order_id,omitempty"`
	ExchangeStatus  string              `json:"exchange_status,omitempty"`
	Reconciled      bool                `json:"reconciled,omitempty"`
	ProfitLoss      decimal.NullDecimal `json:"profit_loss"`
	CreatedAt       time.Time           `json:"created_at"`
}

// TradeFromOutcome builds the row for a confirmed execution.
func TradeFromOutcome(req core.TradeRequest, out core.ExecutionOutcome) Trade {
	t := Trade{
		Symbol:     req.Symbol,
		TradeType:  req.Side,
		OrderType:  req.OrderType,
		Price:      req.Price,
		Quantity:   req.Quantity,
		TotalValue: out.TotalValue,
		Confidence: req.Confidence,
		Strategy:   req.Strategy,
		Mode:       out.Mode,
		Reconciled: out.Reconciled,
	}
	if t.OrderType == "" {
		t.OrderType = core.Market
	}
	if out.Order != nil {
		id := out.Order.OrderID
		t.ExchangeOrderID = &id
		t.ExchangeStatus = string(out.Order.Status)
	}
	return t
}

type TradeFilter struct {
	Symbol string
	Limit  int
}

type TradeSummary struct {
	TotalTrades   int64               `json:"total_trades"`
	BuyTrades     int64               `json:"buy_trades"`
	SellTrades    int64               `json:"sell_trades"`
	TotalProfit   decimal.Decimal     `json:"total_profit"`
	TotalLoss     decimal.Decimal     `json:"total_loss"`
	AvgConfidence decimal.NullDecimal `json:"avg_confidence"`
	LastTradeTime *time.Time          `json:"last_trade_time"`
	WinRate       string              `json:"win_rate"`
	ProfitFactor  string              `json:"profit_factor"`
}

const tradeColumns = `id, symbol, trade_type, order_type, price, quantity, total_value, confidence, strategy,
	mode, exchange_order_id, exchange_status, reconciled, profit_loss, created_at`

func (s *Store) InsertTrade(ctx context.Context, t Trade) (Trade, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	var orderID sql.NullInt64
	if t.ExchangeOrderID != nil {
		orderID = sql.NullInt64{Int64: *t.ExchangeOrderID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (symbol, trade_type, order_type, price, quantity, total_value, confidence, strategy,
			mode, exchange_order_id, exchange_status, reconciled, profit_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Symbol, string(t.TradeType), string(t.OrderType), decString(t.Price), decString(t.Quantity),
		decString(t.TotalValue), nullDecString(t.Confidence), t.Strategy, string(t.Mode), orderID,
		t.ExchangeStatus, t.Reconciled, nullDecString(t.ProfitLoss), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Trade{}, fmt.Errorf("failed to insert trade: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Trade{}, fmt.Errorf("failed to read trade id: %w", err)
	}
	t.ID = id
	t.CreatedAt = fromMillis(t.CreatedAt.UnixMilli())
	return t, nil
}

// ListTrades returns newest first.
func (s *Store) ListTrades(ctx context.Context, f TradeFilter) ([]Trade, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	q := `SELECT ` + tradeColumns + ` FROM trades`
	args := make([]any, 0, 2)
	if sym := strings.TrimSpace(f.Symbol); sym != "" {
		q += ` WHERE symbol = ?`
		args = append(args, sym)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *Store) GetTrade(ctx context.Context, id int64) (Trade, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, ErrNotFound
	}
	return t, err
}

// TradeSummary aggregates in Go so decimal sums stay exact.
func (s *Store) TradeSummary(ctx context.Context) (TradeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_type, confidence, profit_loss, created_at FROM trades`)
	if err != nil {
		return TradeSummary{}, fmt.Errorf("failed to query trade summary: %w", err)
	}
	defer rows.Close()

	var (
		sum        TradeSummary
		confSum    = decimal.Zero
		confCount  int64
		completed  int64
		winning    int64
		lastMillis int64
	)
	sum.TotalProfit = decimal.Zero
	sum.TotalLoss = decimal.Zero
	for rows.Next() {
		var (
			side       string
			confidence sql.NullString
			pnl        sql.NullString
			created    int64
		)
		if err := rows.Scan(&side, &confidence, &pnl, &created); err != nil {
			return TradeSummary{}, fmt.Errorf("failed to scan trade summary: %w", err)
		}
		sum.TotalTrades++
		switch core.Side(side) {
		case core.Buy:
			sum.BuyTrades++
		case core.Sell:
			sum.SellTrades++
		}
		if c, err := parseNullDec(confidence); err == nil && c.Valid {
			confSum = confSum.Add(c.Decimal)
			confCount++
		}
		if p, err := parseNullDec(pnl); err == nil && p.Valid {
			completed++
			switch {
			case p.Decimal.IsPositive():
				winning++
				sum.TotalProfit = sum.TotalProfit.Add(p.Decimal)
			case p.Decimal.IsNegative():
				sum.TotalLoss = sum.TotalLoss.Add(p.Decimal)
			}
		}
		if created > lastMillis {
			lastMillis = created
		}
	}
	if err := rows.Err(); err != nil {
		return TradeSummary{}, err
	}

	if confCount > 0 {
		sum.AvgConfidence = decimal.NewNullDecimal(confSum.Div(decimal.NewFromInt(confCount)))
	}
	if lastMillis > 0 {
		last := fromMillis(lastMillis)
		sum.LastTradeTime = &last
	}
	sum.WinRate = decimal.Zero.StringFixed(2)
	if completed > 0 {
		sum.WinRate = decimal.NewFromInt(winning).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(completed)).StringFixed(2)
	}
	switch {
	case !sum.TotalLoss.IsZero():
		sum.ProfitFactor = sum.TotalProfit.Div(sum.TotalLoss.Abs()).StringFixed(2)
	case sum.TotalProfit.IsPositive():
		sum.ProfitFactor = "Infinity"
	default:
		sum.ProfitFactor = "0"
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(r rowScanner) (Trade, error) {
	var (
		t                      Trade
		side, orderType, mode  string
		price, quantity, total string
		confidence, pnl        sql.NullString
		orderID                sql.NullInt64
		created                int64
	)
	if err := r.Scan(&t.ID, &t.Symbol, &side, &orderType, &price, &quantity, &total, &confidence,
		&t.Strategy, &mode, &orderID, &t.ExchangeStatus, &t.Reconciled, &pnl, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trade{}, err
		}
		return Trade{}, fmt.Errorf("failed to scan trade: %w", err)
	}
	t.TradeType = core.Side(side)
	t.OrderType = core.OrderType(orderType)
	t.Mode = core.Mode(mode)
	t.CreatedAt = fromMillis(created)
	if orderID.Valid {
		id := orderID.Int64
		t.ExchangeOrderID = &id
	}
	var err error
	if t.Price, err = parseDec(price); err != nil {
		return Trade{}, fmt.Errorf("trade %d price: %w", t.ID, err)
	}
	if t.Quantity, err = parseDec(quantity); err != nil {
		return Trade{}, fmt.Errorf("trade %d quantity: %w", t.ID, err)
	}
	if t.TotalValue, err = parseDec(total); err != nil {
		return Trade{}, fmt.Errorf("trade %d total_value: %w", t.ID, err)
	}
	if t.Confidence, err = parseNullDec(confidence); err != nil {
		return Trade{}, fmt.Errorf("trade %d confidence: %w", t.ID, err)
	}
	if t.ProfitLoss, err = parseNullDec(pnl); err != nil {
		return Trade{}, fmt.Errorf("trade %d profit_loss: %w", t.ID, err)
	}
	return t, nil
}
