package alert

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TradeAlert struct {
	Side       string
	Symbol     string
	Mode       string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	ProfitLoss decimal.NullDecimal
	Confidence decimal.NullDecimal
	OrderID    int64
	Time       time.Time
}

// FormatTradeAlert renders the operator-facing trade summary. Empty
// optional lines are omitted.
func FormatTradeAlert(t TradeAlert) string {
	ts := t.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	lines := []string{
		"Trading Bot Alert",
		"",
		"Type: " + t.Side,
		"Symbol: " + t.Symbol,
		"Price: $" + t.Price.String(),
		"Quantity: " + t.Quantity.String(),
	}
	if t.ProfitLoss.Valid && !t.ProfitLoss.Decimal.IsZero() {
		lines = append(lines, "P&L: $"+t.ProfitLoss.Decimal.String())
	}
	if t.Confidence.Valid {
		lines = append(lines, "Confidence: "+t.Confidence.Decimal.String()+"%")
	}
	if t.Mode != "" {
		lines = append(lines, "Mode: "+t.Mode)
	}
	if t.OrderID > 0 {
		lines = append(lines, "Order: "+strconv.FormatInt(t.OrderID, 10))
	}
	lines = append(lines, "Time: "+ts.UTC().Format(time.RFC3339))
	return strings.Join(lines, "\n")
}
