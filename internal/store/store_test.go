package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "trading.db"), Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func nullDec(v string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(v)) }

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  ", Options{}); err == nil {
		t.Fatalf("Open(\"\") error = nil, want error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trading.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), path, Options{Logger: zerolog.Nop()})
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i, err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
		_ = s.Close()
	}
}

func TestInsertAndGetTrade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	orderID := int64(9876)
	in := Trade{
		Symbol:          "BTC/USDT",
		TradeType:       core.Buy,
		OrderType:       core.Market,
		Price:           dec("67012.35"),
		Quantity:        dec("0.0015"),
		TotalValue:      dec("100.518525"),
		Confidence:      nullDec("72.5"),
		Strategy:        "rsi_momentum",
		Mode:            core.ModeLive,
		ExchangeOrderID: &orderID,
		ExchangeStatus:  "FILLED",
		Reconciled:      true,
	}
	saved, err := s.InsertTrade(ctx, in)
	if err != nil {
		t.Fatalf("InsertTrade() error = %v", err)
	}
	if saved.ID <= 0 {
		t.Fatalf("InsertTrade() id = %d, want > 0", saved.ID)
	}
	if saved.CreatedAt.IsZero() {
		t.Fatalf("InsertTrade() created_at not set")
	}

	got, err := s.GetTrade(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetTrade() error = %v", err)
	}
	if got.Symbol != in.Symbol || got.TradeType != core.Buy || got.Mode != core.ModeLive || got.Strategy != in.Strategy {
		t.Fatalf("GetTrade() = %+v, want fields of %+v", got, in)
	}
	if !got.Price.Equal(in.Price) || !got.Quantity.Equal(in.Quantity) || !got.TotalValue.Equal(in.TotalValue) {
		t.Fatalf("GetTrade() amounts = %s/%s/%s", got.Price, got.Quantity, got.TotalValue)
	}
	if !got.Confidence.Valid || !got.Confidence.Decimal.Equal(dec("72.5")) {
		t.Fatalf("GetTrade() confidence = %+v, want 72.5", got.Confidence)
	}
	if got.ProfitLoss.Valid {
		t.Fatalf("GetTrade() profit_loss = %+v, want null", got.ProfitLoss)
	}
	if got.ExchangeOrderID == nil || *got.ExchangeOrderID != orderID {
		t.Fatalf("GetTrade() exchange_order_id = %v, want %d", got.ExchangeOrderID, orderID)
	}
	if !got.Reconciled || got.ExchangeStatus != "FILLED" {
		t.Fatalf("GetTrade() reconciled/status = %v/%q", got.Reconciled, got.ExchangeStatus)
	}
	if !got.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("GetTrade() created_at = %v, want %v", got.CreatedAt, saved.CreatedAt)
	}
}

func TestGetTradeNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetTrade(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTrade() error = %v, want ErrNotFound", err)
	}
}

func TestListTradesNewestFirstWithFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	symbols := []string{"BTC/USDT", "ETH/USDT", "BTC/USDT", "BTC/USDT"}
	for i, sym := range symbols {
		_, err := s.InsertTrade(ctx, Trade{
			Symbol:     sym,
			TradeType:  core.Buy,
			OrderType:  core.Market,
			Price:      dec("10"),
			Quantity:   dec("1"),
			TotalValue: dec("10"),
			Mode:       core.ModePaper,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertTrade() error = %v", err)
		}
	}

	all, err := s.ListTrades(ctx, TradeFilter{})
	if err != nil {
		t.Fatalf("ListTrades() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("ListTrades() len = %d, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("ListTrades() not newest first at %d", i)
		}
	}

	btc, err := s.ListTrades(ctx, TradeFilter{Symbol: "BTC/USDT", Limit: 2})
	if err != nil {
		t.Fatalf("ListTrades(symbol) error = %v", err)
	}
	if len(btc) != 2 {
		t.Fatalf("ListTrades(symbol, limit 2) len = %d, want 2", len(btc))
	}
	for _, tr := range btc {
		if tr.Symbol != "BTC/USDT" {
			t.Fatalf("ListTrades(symbol) got %q", tr.Symbol)
		}
	}
	if !btc[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("ListTrades(symbol)[0].created_at = %v, want %v", btc[0].CreatedAt, base.Add(3*time.Minute))
	}
}

func TestListTradesEmpty(t *testing.T) {
	s := openTestStore(t)
	trades, err := s.ListTrades(context.Background(), TradeFilter{})
	if err != nil {
		t.Fatalf("ListTrades() error = %v", err)
	}
	if trades == nil || len(trades) != 0 {
		t.Fatalf("ListTrades() = %v, want empty non-nil slice", trades)
	}
}

func TestTradeSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rows := []struct {
		side core.Side
		conf decimal.NullDecimal
		pnl  decimal.NullDecimal
	}{
		{core.Buy, nullDec("80"), decimal.NullDecimal{}},
		{core.Sell, nullDec("60"), nullDec("30")},
		{core.Sell, decimal.NullDecimal{}, nullDec("-10")},
		{core.Sell, nullDec("70"), nullDec("10")},
	}
	for _, r := range rows {
		if _, err := s.InsertTrade(ctx, Trade{
			Symbol: "BTC/USDT", TradeType: r.side, OrderType: core.Market,
			Price: dec("1"), Quantity: dec("1"), TotalValue: dec("1"),
			Confidence: r.conf, ProfitLoss: r.pnl, Mode: core.ModePaper,
		}); err != nil {
			t.Fatalf("InsertTrade() error = %v", err)
		}
	}

	sum, err := s.TradeSummary(ctx)
	if err != nil {
		t.Fatalf("TradeSummary() error = %v", err)
	}
	if sum.TotalTrades != 4 || sum.BuyTrades != 1 || sum.SellTrades != 3 {
		t.Fatalf("TradeSummary() counts = %d/%d/%d, want 4/1/3", sum.TotalTrades, sum.BuyTrades, sum.SellTrades)
	}
	if !sum.TotalProfit.Equal(dec("40")) || !sum.TotalLoss.Equal(dec("-10")) {
		t.Fatalf("TradeSummary() profit/loss = %s/%s, want 40/-10", sum.TotalProfit, sum.TotalLoss)
	}
	if !sum.AvgConfidence.Valid || !sum.AvgConfidence.Decimal.Equal(dec("70")) {
		t.Fatalf("TradeSummary() avg_confidence = %+v, want 70", sum.AvgConfidence)
	}
	if sum.WinRate != "66.67" {
		t.Fatalf("TradeSummary() win_rate = %q, want 66.67", sum.WinRate)
	}
	if sum.ProfitFactor != "4.00" {
		t.Fatalf("TradeSummary() profit_factor = %q, want 4.00", sum.ProfitFactor)
	}
	if sum.LastTradeTime == nil {
		t.Fatalf("TradeSummary() last_trade_time = nil")
	}
}

func TestTradeSummaryEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.TradeSummary(ctx)
	if err != nil {
		t.Fatalf("TradeSummary() error = %v", err)
	}
	if empty.TotalTrades != 0 || empty.WinRate != "0.00" || empty.ProfitFactor != "0" || empty.LastTradeTime != nil {
		t.Fatalf("TradeSummary() empty = %+v", empty)
	}

	if _, err := s.InsertTrade(ctx, Trade{
		Symbol: "ETH/USDT", TradeType: core.Sell, OrderType: core.Market,
		Price: dec("1"), Quantity: dec("1"), TotalValue: dec("1"),
		ProfitLoss: nullDec("5"), Mode: core.ModePaper,
	}); err != nil {
		t.Fatalf("InsertTrade() error = %v", err)
	}
	onlyWins, err := s.TradeSummary(ctx)
	if err != nil {
		t.Fatalf("TradeSummary() error = %v", err)
	}
	if onlyWins.ProfitFactor != "Infinity" || onlyWins.WinRate != "100.00" {
		t.Fatalf("TradeSummary() = %q/%q, want Infinity/100.00", onlyWins.ProfitFactor, onlyWins.WinRate)
	}
}

func TestTradeFromOutcome(t *testing.T) {
	req := core.TradeRequest{
		Symbol:   "BTC/USDT",
		Side:     core.Sell,
		Price:    dec("100"),
		Quantity: dec("2"),
		Strategy: "manual",
		Mode:     core.ModeLive,
	}
	out := core.ExecutionOutcome{
		Mode:       core.ModeLive,
		TotalValue: dec("200"),
		Order:      &core.OrderResult{OrderID: 55, Status: core.OrderFilled},
		Reconciled: true,
	}
	tr := TradeFromOutcome(req, out)
	if tr.OrderType != core.Market {
		t.Fatalf("TradeFromOutcome() order_type = %q, want MARKET", tr.OrderType)
	}
	if tr.ExchangeOrderID == nil || *tr.ExchangeOrderID != 55 || tr.ExchangeStatus != "FILLED" {
		t.Fatalf("TradeFromOutcome() order = %v/%q", tr.ExchangeOrderID, tr.ExchangeStatus)
	}
	if !tr.Reconciled || !tr.TotalValue.Equal(dec("200")) {
		t.Fatalf("TradeFromOutcome() = %+v", tr)
	}

	paper := TradeFromOutcome(req, core.ExecutionOutcome{Mode: core.ModePaper, TotalValue: dec("200")})
	if paper.ExchangeOrderID != nil || paper.Mode != core.ModePaper {
		t.Fatalf("TradeFromOutcome(paper) = %+v", paper)
	}
}

func TestPositionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.CreatePosition(ctx, Position{
		Symbol:     "BTC/USDT",
		EntryPrice: dec("60000"),
		Quantity:   dec("0.01"),
		StopLoss:   nullDec("58000"),
	})
	if err != nil {
		t.Fatalf("CreatePosition() error = %v", err)
	}
	if created.ID <= 0 || !created.CurrentPrice.Equal(dec("60000")) {
		t.Fatalf("CreatePosition() = %+v, want id and current_price = entry", created)
	}

	if _, err := s.CreatePosition(ctx, Position{Symbol: "BTC/USDT", EntryPrice: dec("1"), Quantity: dec("1")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("CreatePosition(duplicate) error = %v, want ErrConflict", err)
	}

	updated, err := s.UpdatePosition(ctx, "BTC/USDT", PositionUpdate{
		CurrentPrice:  nullDec("61000"),
		UnrealizedPnL: nullDec("10"),
	})
	if err != nil {
		t.Fatalf("UpdatePosition() error = %v", err)
	}
	if !updated.CurrentPrice.Equal(dec("61000")) || !updated.UnrealizedPnL.Valid || !updated.UnrealizedPnL.Decimal.Equal(dec("10")) {
		t.Fatalf("UpdatePosition() = %+v", updated)
	}
	if !updated.StopLoss.Valid || !updated.StopLoss.Decimal.Equal(dec("58000")) {
		t.Fatalf("UpdatePosition() stop_loss = %+v, want kept 58000", updated.StopLoss)
	}
	if updated.TakeProfit.Valid {
		t.Fatalf("UpdatePosition() take_profit = %+v, want null", updated.TakeProfit)
	}

	if _, err := s.CreatePosition(ctx, Position{Symbol: "ETH/USDT", EntryPrice: dec("3000"), Quantity: dec("1"), OpenedAt: created.OpenedAt.Add(time.Hour)}); err != nil {
		t.Fatalf("CreatePosition(ETH) error = %v", err)
	}
	list, err := s.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions() error = %v", err)
	}
	if len(list) != 2 || list[0].Symbol != "ETH/USDT" {
		t.Fatalf("ListPositions() = %+v, want ETH first", list)
	}

	deleted, err := s.DeletePosition(ctx, "BTC/USDT")
	if err != nil {
		t.Fatalf("DeletePosition() error = %v", err)
	}
	if deleted.Symbol != "BTC/USDT" || !deleted.CurrentPrice.Equal(dec("61000")) {
		t.Fatalf("DeletePosition() = %+v", deleted)
	}
	if _, err := s.GetPosition(ctx, "BTC/USDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPosition(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestPositionNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.GetPosition(ctx, "DOGE/USDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPosition() error = %v, want ErrNotFound", err)
	}
	if _, err := s.UpdatePosition(ctx, "DOGE/USDT", PositionUpdate{CurrentPrice: nullDec("1")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdatePosition() error = %v, want ErrNotFound", err)
	}
	if _, err := s.DeletePosition(ctx, "DOGE/USDT"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeletePosition() error = %v, want ErrNotFound", err)
	}
}
