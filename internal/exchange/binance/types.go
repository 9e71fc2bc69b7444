package binance

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/core"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// APIError is a non-2xx response. Code is zero when the body carried no
// exchange error payload.
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e APIError) Error() string {
	if e.Code == 0 {
		return "binance http error " + strconv.Itoa(e.Status) + ": " + e.Msg
	}
	return "binance api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type orderResponse struct {
	Symbol             string `json:"symbol"`
	OrderID            int64  `json:"orderId"`
	ClientOrderID      string `json:"clientOrderId"`
	TransactTime       int64  `json:"transactTime"`
	Time               int64  `json:"time"`
	UpdateTime         int64  `json:"updateTime"`
	Price              string `json:"price"`
	OrigQty            string `json:"origQty"`
	ExecutedQty        string `json:"executedQty"`
	CumulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status             string `json:"status"`
	Type               string `json:"type"`
	Side               string `json:"side"`
}

func (r orderResponse) result(raw []byte) core.OrderResult {
	out := core.OrderResult{
		OrderID:            r.OrderID,
		ClientOrderID:      r.ClientOrderID,
		Symbol:             r.Symbol,
		Side:               core.Side(r.Side),
		Type:               core.OrderType(r.Type),
		Status:             core.OrderStatus(r.Status),
		Price:              parseDecimal(r.Price),
		Quantity:           parseDecimal(r.OrigQty),
		ExecutedQty:        parseDecimal(r.ExecutedQty),
		CumulativeQuoteQty: parseDecimal(r.CumulativeQuoteQty),
	}
	switch {
	case r.TransactTime > 0:
		out.TransactTime = time.UnixMilli(r.TransactTime).UTC()
	case r.UpdateTime > 0:
		out.TransactTime = time.UnixMilli(r.UpdateTime).UTC()
	case r.Time > 0:
		out.TransactTime = time.UnixMilli(r.Time).UTC()
	}
	// Query and history rows carry the creation time in "time"; a fresh
	// placement only has transactTime.
	switch {
	case r.Time > 0:
		out.CreatedAt = time.UnixMilli(r.Time).UTC()
	case r.TransactTime > 0:
		out.CreatedAt = out.TransactTime
	}
	if len(raw) > 0 {
		out.Raw = json.RawMessage(append([]byte(nil), raw...))
	}
	return out
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type ticker24hrResponse struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	LastPrice          string `json:"lastPrice"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	Count              int64  `json:"count"`
}

func (r ticker24hrResponse) stats() core.TickerStats {
	return core.TickerStats{
		Symbol:             r.Symbol,
		PriceChange:        parseDecimal(r.PriceChange),
		PriceChangePercent: parseDecimal(r.PriceChangePercent),
		WeightedAvgPrice:   parseDecimal(r.WeightedAvgPrice),
		LastPrice:          parseDecimal(r.LastPrice),
		OpenPrice:          parseDecimal(r.OpenPrice),
		HighPrice:          parseDecimal(r.HighPrice),
		LowPrice:           parseDecimal(r.LowPrice),
		Volume:             parseDecimal(r.Volume),
		QuoteVolume:        parseDecimal(r.QuoteVolume),
		OpenTime:           time.UnixMilli(r.OpenTime).UTC(),
		CloseTime:          time.UnixMilli(r.CloseTime).UTC(),
		Count:              r.Count,
	}
}

type accountResponse struct {
	CanTrade    bool   `json:"canTrade"`
	CanWithdraw bool   `json:"canWithdraw"`
	CanDeposit  bool   `json:"canDeposit"`
	AccountType string `json:"accountType"`
	UpdateTime  int64  `json:"updateTime"`
	Balances    []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

func (r accountResponse) account(raw []byte) core.Account {
	acct := core.Account{
		CanTrade:    r.CanTrade,
		CanWithdraw: r.CanWithdraw,
		CanDeposit:  r.CanDeposit,
		AccountType: r.AccountType,
		Balances:    make([]core.Balance, 0, len(r.Balances)),
		Raw:         json.RawMessage(append([]byte(nil), raw...)),
	}
	if r.UpdateTime > 0 {
		acct.UpdateTime = time.UnixMilli(r.UpdateTime).UTC()
	}
	for _, b := range r.Balances {
		acct.Balances = append(acct.Balances, core.Balance{
			Asset:  b.Asset,
			Free:   parseDecimal(b.Free),
			Locked: parseDecimal(b.Locked),
		})
	}
	return acct
}

func parseDecimal(v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}
