package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type OrderStatus string

type Mode string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	Limit  OrderType = "LIMIT"
	Market OrderType = "MARKET"
)

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
	OrderExpiredInMatch  OrderStatus = "EXPIRED_IN_MATCH"
)

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// ParseSide uppercases v and reports whether it names a known side.
func ParseSide(v string) (Side, bool) {
	s := Side(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case Buy, Sell:
		return s, true
	}
	return s, false
}

// ParseOrderType defaults to MARKET when v is empty.
func ParseOrderType(v string) (OrderType, bool) {
	t := OrderType(strings.ToUpper(strings.TrimSpace(v)))
	switch t {
	case "":
		return Market, true
	case Market, Limit:
		return t, true
	}
	return t, false
}

// OrderResult is the exchange view of a single order. Raw keeps the
// untouched response body. CreatedAt is when the exchange accepted the
// order; on order history rows TransactTime is the last update instead.
type OrderResult struct {
	OrderID            int64           `json:"orderId"`
	ClientOrderID      string          `json:"clientOrderId,omitempty"`
	Symbol             string          `json:"symbol"`
	Side               Side            `json:"side"`
	Type               OrderType       `json:"type"`
	Status             OrderStatus     `json:"status"`
	Price              decimal.Decimal `json:"price"`
	Quantity           decimal.Decimal `json:"origQty"`
	ExecutedQty        decimal.Decimal `json:"executedQty"`
	CumulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	TransactTime       time.Time       `json:"transactTime,omitempty"`
	CreatedAt          time.Time       `json:"createdAt,omitempty"`
	Raw                json.RawMessage `json:"raw,omitempty"`
}

type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type Account struct {
	CanTrade    bool            `json:"canTrade"`
	CanWithdraw bool            `json:"canWithdraw"`
	CanDeposit  bool            `json:"canDeposit"`
	AccountType string          `json:"accountType,omitempty"`
	UpdateTime  time.Time       `json:"updateTime"`
	Balances    []Balance       `json:"balances"`
	Raw         json.RawMessage `json:"-"`
}

// NonZeroBalances drops assets with nothing free or locked.
func (a Account) NonZeroBalances() []Balance {
	out := make([]Balance, 0, len(a.Balances))
	for _, b := range a.Balances {
		if b.Free.IsZero() && b.Locked.IsZero() {
			continue
		}
		out = append(out, b)
	}
	return out
}

type TickerStats struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	WeightedAvgPrice   decimal.Decimal `json:"weightedAvgPrice"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	OpenPrice          decimal.Decimal `json:"openPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenTime           time.Time       `json:"openTime"`
	CloseTime          time.Time       `json:"closeTime"`
	Count              int64           `json:"count"`
}

// TradeRequest is what a caller asks for before anything is persisted.
// Confidence and Strategy are carried through untouched.
type TradeRequest struct {
	Symbol     string              `json:"symbol"`
	Side       Side                `json:"trade_type"`
	OrderType  OrderType           `json:"order_type,omitempty"`
	Price      decimal.Decimal     `json:"price"`
	Quantity   decimal.Decimal     `json:"quantity"`
	Confidence decimal.NullDecimal `json:"confidence"`
	Strategy   string              `json:"strategy,omitempty"`
	Mode       Mode                `json:"mode"`
}

type ExecutionOutcome struct {
	Mode           Mode            `json:"mode"`
	Order          *OrderResult    `json:"order"`
	TotalValue     decimal.Decimal `json:"total_value"`
	Symbol         string          `json:"symbol"`
	ExchangeSymbol string          `json:"exchange_symbol"`
	Reconciled     bool            `json:"reconciled,omitempty"`
}
