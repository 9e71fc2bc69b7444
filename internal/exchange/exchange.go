package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/core"
)

// OrderPlacer sends order writes. Implementations must not retry a write
// whose outcome is unknown.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, symbol string, side core.Side, quantity decimal.Decimal) (core.OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side core.Side, quantity, price decimal.Decimal) (core.OrderResult, error)
}

type OrderLookup interface {
	GetOrder(ctx context.Context, symbol string, orderID int64) (core.OrderResult, error)
	RecentOrders(ctx context.Context, symbol string, since time.Time) ([]core.OrderResult, error)
}

type OrderCanceler interface {
	CancelOrder(ctx context.Context, symbol string, orderID int64) (core.OrderResult, error)
}

type MarketData interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Get24hrStats(ctx context.Context, symbol string) (core.TickerStats, error)
}

type AccountReader interface {
	GetAccount(ctx context.Context) (core.Account, error)
}

// Trader is what the live execution path needs.
type Trader interface {
	OrderPlacer
	OrderLookup
}

// Exchange is the full surface the API server talks to.
type Exchange interface {
	Name() string
	Trader
	OrderCanceler
	MarketData
	AccountReader
}
