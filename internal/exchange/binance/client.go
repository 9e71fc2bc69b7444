package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/config"
	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/metrics"
)

const (
	ProductionBaseURL = config.ProductionRestBaseURL
	TestnetBaseURL    = config.TestnetRestBaseURL

	defaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 4 << 20
)

type Client struct {
	creds      Credentials
	signer     *Signer
	baseURL    string
	testnet    bool
	httpClient *http.Client
	readRetry  RetryPolicy
	now        func() time.Time
	log        zerolog.Logger
}

type Options struct {
	APIKey    string
	APISecret string
	Testnet   bool
	// BaseURL overrides the endpoint picked from Testnet.
	BaseURL     string
	HTTPTimeout time.Duration
	HTTPClient  *http.Client
	// ReadRetry applies to idempotent reads only. Zero tries means one attempt.
	ReadRetry RetryPolicy
	Now       func() time.Time
	Logger    zerolog.Logger
}

func NewClient(cfg config.ExchangeConfig, log zerolog.Logger) (*Client, error) {
	return NewClientWithOptions(Options{
		APIKey:      cfg.APIKey,
		APISecret:   cfg.APISecret,
		Testnet:     cfg.Testnet,
		BaseURL:     cfg.RestBaseURL,
		HTTPTimeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond,
		ReadRetry:   RetryPolicyFromConfig(cfg.ReadRetry),
		Logger:      log,
	})
}

func NewClientWithOptions(opts Options) (*Client, error) {
	creds := Credentials{APIKey: strings.TrimSpace(opts.APIKey), APISecret: strings.TrimSpace(opts.APISecret)}
	if creds.APIKey == "" {
		return nil, &core.ConfigurationError{Field: "api_key", Reason: "required"}
	}
	signer, err := NewSigner(creds.APISecret)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = ProductionBaseURL
		if opts.Testnet {
			baseURL = TestnetBaseURL
		}
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		creds:      creds,
		signer:     signer,
		baseURL:    baseURL,
		testnet:    opts.Testnet,
		httpClient: httpClient,
		readRetry:  opts.ReadRetry,
		now:        now,
		log:        opts.Logger,
	}, nil
}

func (c *Client) Name() string { return "binance" }

func (c *Client) Testnet() bool { return c.testnet }

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return RetryRead(ctx, c.readRetry, func(ctx context.Context) (decimal.Decimal, error) {
		return c.getPrice(ctx, symbol)
	})
}

func (c *Client) getPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "" {
		return decimal.Zero, errors.New("symbol required")
	}
	q := newQuery().add("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", q, false, kindPublic)
	if err != nil {
		return decimal.Zero, err
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, decodeError("/api/v3/ticker/price", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, decodeError("/api/v3/ticker/price", err)
	}
	return price, nil
}

func (c *Client) Get24hrStats(ctx context.Context, symbol string) (core.TickerStats, error) {
	return RetryRead(ctx, c.readRetry, func(ctx context.Context) (core.TickerStats, error) {
		return c.get24hrStats(ctx, symbol)
	})
}

func (c *Client) get24hrStats(ctx context.Context, symbol string) (core.TickerStats, error) {
	if symbol == "" {
		return core.TickerStats{}, errors.New("symbol required")
	}
	q := newQuery().add("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", q, false, kindPublic)
	if err != nil {
		return core.TickerStats{}, err
	}
	var resp ticker24hrResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.TickerStats{}, decodeError("/api/v3/ticker/24hr", err)
	}
	return resp.stats(), nil
}

func (c *Client) GetAccount(ctx context.Context) (core.Account, error) {
	return RetryRead(ctx, c.readRetry, c.getAccount)
}

func (c *Client) getAccount(ctx context.Context) (core.Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", newQuery(), true, kindPrivateRead)
	if err != nil {
		return core.Account{}, err
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Account{}, decodeError("/api/v3/account", err)
	}
	return resp.account(body), nil
}

// PlaceOrder sends a MARKET order. It is never retried: when the outcome
// cannot be confirmed the error is a *core.AmbiguousExecutionError.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, side core.Side, quantity decimal.Decimal) (core.OrderResult, error) {
	q := newQuery().
		add("symbol", symbol).
		add("side", strings.ToUpper(string(side))).
		add("type", string(core.Market)).
		add("quantity", quantity.String())
	return c.placeOrder(ctx, q, symbol, side, core.Market, quantity, decimal.Zero)
}

// PlaceLimitOrder sends a GTC LIMIT order with the same write discipline as PlaceOrder.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side core.Side, quantity, price decimal.Decimal) (core.OrderResult, error) {
	if !price.IsPositive() {
		return core.OrderResult{}, errors.New("limit price must be positive")
	}
	q := newQuery().
		add("symbol", symbol).
		add("side", strings.ToUpper(string(side))).
		add("type", string(core.Limit)).
		add("timeInForce", "GTC").
		add("quantity", quantity.String()).
		add("price", price.String())
	return c.placeOrder(ctx, q, symbol, side, core.Limit, quantity, price)
}

func (c *Client) placeOrder(ctx context.Context, q *query, symbol string, side core.Side, typ core.OrderType, quantity, price decimal.Decimal) (core.OrderResult, error) {
	if symbol == "" {
		return core.OrderResult{}, errors.New("symbol required")
	}
	if !quantity.IsPositive() {
		return core.OrderResult{}, errors.New("quantity must be positive")
	}
	sentAt := c.now()
	ambiguous := func(err error) error {
		c.log.Warn().
			Str("event", "order_outcome_unknown").
			Str("symbol", symbol).
			Str("side", string(side)).
			Str("type", string(typ)).
			Str("quantity", quantity.String()).
			Err(err).
			Msg("")
		return &core.AmbiguousExecutionError{
			Symbol:   symbol,
			Side:     core.Side(strings.ToUpper(string(side))),
			Type:     typ,
			Quantity: quantity,
			Price:    price,
			SentAt:   sentAt,
			Err:      err,
		}
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", q, true, kindOrderWrite)
	if err != nil {
		if outcomeUnknown(err) {
			return core.OrderResult{}, ambiguous(err)
		}
		return core.OrderResult{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderResult{}, ambiguous(decodeError("/api/v3/order", err))
	}
	if resp.OrderID == 0 {
		return core.OrderResult{}, ambiguous(decodeError("/api/v3/order", errors.New("response missing orderId")))
	}
	result := resp.result(body)
	c.log.Info().
		Str("event", "order_placed").
		Str("symbol", result.Symbol).
		Int64("order_id", result.OrderID).
		Str("status", string(result.Status)).
		Str("type", string(typ)).
		Msg("")
	return result, nil
}

func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (core.OrderResult, error) {
	return RetryRead(ctx, c.readRetry, func(ctx context.Context) (core.OrderResult, error) {
		return c.orderCall(ctx, http.MethodGet, symbol, orderID, kindPrivateRead)
	})
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (core.OrderResult, error) {
	return c.orderCall(ctx, http.MethodDelete, symbol, orderID, kindOrderCancel)
}

func (c *Client) orderCall(ctx context.Context, method, symbol string, orderID int64, kind requestKind) (core.OrderResult, error) {
	if symbol == "" {
		return core.OrderResult{}, errors.New("symbol required")
	}
	if orderID <= 0 {
		return core.OrderResult{}, errors.New("orderId must be positive")
	}
	q := newQuery().add("symbol", symbol).add("orderId", strconv.FormatInt(orderID, 10))
	body, err := c.doRequest(ctx, method, "/api/v3/order", q, true, kind)
	if err != nil {
		return core.OrderResult{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderResult{}, decodeError("/api/v3/order", err)
	}
	return resp.result(body), nil
}

// RecentOrders lists orders for symbol created at or after since, oldest first.
func (c *Client) RecentOrders(ctx context.Context, symbol string, since time.Time) ([]core.OrderResult, error) {
	return RetryRead(ctx, c.readRetry, func(ctx context.Context) ([]core.OrderResult, error) {
		return c.recentOrders(ctx, symbol, since)
	})
}

func (c *Client) recentOrders(ctx context.Context, symbol string, since time.Time) ([]core.OrderResult, error) {
	if symbol == "" {
		return nil, errors.New("symbol required")
	}
	q := newQuery().add("symbol", symbol)
	if !since.IsZero() {
		q.add("startTime", strconv.FormatInt(since.UnixMilli(), 10))
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/allOrders", q, true, kindPrivateRead)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, decodeError("/api/v3/allOrders", err)
	}
	out := make([]core.OrderResult, 0, len(raws))
	for _, raw := range raws {
		var resp orderResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, decodeError("/api/v3/allOrders", err)
		}
		out = append(out, resp.result(raw))
	}
	return out, nil
}

// doRequest sends one call. Signed calls append timestamp last, then the
// signature over the exact string that goes on the wire.
func (c *Client) doRequest(ctx context.Context, method, path string, q *query, signed bool, kind requestKind) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload := q.encode()
	if signed {
		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		if payload == "" {
			payload = "timestamp=" + ts
		} else {
			payload += "&timestamp=" + ts
		}
		payload += "&signature=" + c.signer.Sign(payload)
	}
	urlStr := c.baseURL + path
	if payload != "" {
		urlStr += "?" + payload
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.creds.APIKey)
	}

	endpoint := method + " " + path
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	metrics.ExchangeLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(endpoint, "transport_error").Inc()
		c.log.Warn().
			Str("event", "exchange_transport_error").
			Str("method", method).
			Str("path", path).
			Dur("latency", elapsed).
			Err(err).
			Msg("")
		return nil, &TransportError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ExchangeRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, &TransportError{Method: method, Path: path, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode/100 != 2 {
		apiErr := parseAPIError(resp.StatusCode, body)
		metrics.ExchangeRequests.WithLabelValues(endpoint, "api_error").Inc()
		c.log.Warn().
			Str("event", "exchange_api_error").
			Str("method", method).
			Str("path", path).
			Int("status", apiErr.Status).
			Int("code", apiErr.Code).
			Str("msg", apiErr.Msg).
			Msg("")
		return nil, classifyAPIError(kind, apiErr)
	}
	metrics.ExchangeRequests.WithLabelValues(endpoint, "ok").Inc()
	c.log.Debug().
		Str("event", "exchange_request").
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", elapsed).
		Msg("")
	return body, nil
}

func decodeError(path string, err error) error {
	return fmt.Errorf("decode %s response: %w", path, errors.Join(err, core.ErrNetwork))
}
