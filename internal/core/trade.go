package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeSymbol turns a display symbol such as "btc/usdt" into the
// exchange form "BTCUSDT". Applying it twice yields the same value.
func NormalizeSymbol(symbol string) string {
	b := strings.Builder{}
	b.Grow(len(symbol))
	for _, r := range strings.ToUpper(symbol) {
		switch r {
		case '/', '-', '_', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// TotalValue is price * quantity without rounding.
func TotalValue(price, quantity decimal.Decimal) decimal.Decimal {
	return price.Mul(quantity)
}

// Validate checks the fields every execution path needs and returns the
// request with side and order type normalised.
func (r TradeRequest) Validate() (TradeRequest, error) {
	r.Symbol = strings.TrimSpace(r.Symbol)
	if r.Symbol == "" || NormalizeSymbol(r.Symbol) == "" {
		return r, invalidTrade("symbol is required")
	}
	side, ok := ParseSide(string(r.Side))
	if r.Side == "" {
		return r, invalidTrade("trade_type is required")
	}
	if !ok {
		return r, invalidTrade("trade_type must be BUY or SELL")
	}
	r.Side = side
	orderType, ok := ParseOrderType(string(r.OrderType))
	if !ok {
		return r, invalidTrade("order_type must be MARKET or LIMIT")
	}
	r.OrderType = orderType
	if r.Price.Cmp(decimal.Zero) <= 0 {
		return r, invalidTrade("price must be > 0")
	}
	if r.Quantity.Cmp(decimal.Zero) <= 0 {
		return r, invalidTrade("quantity must be > 0")
	}
	r.Mode = Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	return r, nil
}
