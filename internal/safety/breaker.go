package safety

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/alert"
	"trading-bot-backend/internal/config"
	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type circuitState string

const (
	circuitClosed   circuitState = "closed"
	circuitOpen     circuitState = "open"
	circuitHalfOpen circuitState = "half_open"
)

const defaultCooldown = time.Minute

// Breaker guards order placement. A nil or disabled Breaker allows everything.
type Breaker struct {
	enabled     bool
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu       sync.Mutex
	state    circuitState
	failures int
	openedAt time.Time
	openErr  error
	probing  bool
	alerter  alert.Alerter
}

func NewBreaker(enabled bool, maxFailures int, cooldown time.Duration, log zerolog.Logger) *Breaker {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Breaker{
		enabled:     enabled,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		log:         log,
		state:       circuitClosed,
	}
}

func NewBreakerFromConfig(cfg config.CircuitBreakerConfig, log zerolog.Logger) *Breaker {
	return NewBreaker(cfg.Enabled, cfg.MaxPlaceFailures, time.Duration(cfg.CooldownSec)*time.Second, log)
}

func (b *Breaker) SetAlerter(alerter alert.Alerter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerter = alerter
}

func (b *Breaker) State() string {
	if b == nil || !b.enabled {
		return string(circuitClosed)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.state)
}

// AllowPlace reports whether an order may be sent now. After the cooldown
// exactly one caller gets through as the half-open probe.
func (b *Breaker) AllowPlace() error {
	if b == nil || !b.enabled || b.maxFailures < 1 {
		return nil
	}
	b.mu.Lock()
	switch b.state {
	case circuitClosed:
		b.mu.Unlock()
		return nil
	case circuitHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return fmt.Errorf("%w: place order probe in flight", ErrCircuitOpen)
		}
		b.probing = true
		b.mu.Unlock()
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		err := b.openErr
		b.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("%w: place order circuit is open", ErrCircuitOpen)
		}
		return err
	}
	b.state = circuitHalfOpen
	b.probing = true
	alerter := b.alerter
	b.mu.Unlock()
	b.log.Info().
		Str("event", "circuit_breaker_half_open").
		Str("action", "place order").
		Int64("cooldown_sec", int64(b.cooldown/time.Second)).
		Msg("")
	if alerter != nil {
		alerter.Important("circuit_breaker_half_open", map[string]string{
			"action":       "place order",
			"cooldown_sec": strconv.FormatInt(int64(b.cooldown/time.Second), 10),
		})
	}
	return nil
}

// RecordPlace feeds the result of one placement. Exchange business
// rejections prove the exchange is reachable and count as success.
func (b *Breaker) RecordPlace(err error) error {
	if b == nil || !b.enabled || b.maxFailures < 1 {
		return nil
	}
	if !countsAsFailure(err) {
		b.recordSuccess()
		return nil
	}

	b.mu.Lock()
	b.probing = false
	alerter := b.alerter
	if b.state == circuitOpen {
		openErr := b.openErr
		b.mu.Unlock()
		return openErr
	}
	if b.state == circuitHalfOpen {
		openErr := b.tripLocked(err, b.maxFailures, "half_open_probe_failed")
		b.mu.Unlock()
		b.logTrip(alerter, "half_open", b.maxFailures, err)
		return openErr
	}

	b.failures++
	failures := b.failures
	if failures < b.maxFailures {
		b.mu.Unlock()
		if b.maxFailures > 1 && failures == b.maxFailures-1 {
			b.log.Warn().
				Str("event", "circuit_breaker_near_trip").
				Str("action", "place order").
				Int("consecutive_failures", failures).
				Int("threshold", b.maxFailures).
				Err(err).
				Msg("")
			if alerter != nil {
				alerter.Important("circuit_breaker_near_trip", map[string]string{
					"action":               "place order",
					"consecutive_failures": strconv.Itoa(failures),
					"threshold":            strconv.Itoa(b.maxFailures),
					"last_error":           err.Error(),
				})
			}
		}
		return nil
	}
	openErr := b.tripLocked(err, failures, "consecutive_failures")
	b.mu.Unlock()
	b.logTrip(alerter, "closed", failures, err)
	return openErr
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	prevState := b.state
	prevFailures := b.failures
	recovered := false
	switch b.state {
	case circuitHalfOpen:
		recovered = true
		b.state = circuitClosed
		b.failures = 0
		b.openErr = nil
		b.openedAt = time.Time{}
	case circuitClosed:
		if b.failures > 0 {
			recovered = true
			b.failures = 0
		}
	}
	b.probing = false
	alerter := b.alerter
	b.mu.Unlock()
	if !recovered {
		return
	}
	b.log.Info().
		Str("event", "circuit_breaker_recovered").
		Str("action", "place order").
		Int("previous_consecutive_failures", prevFailures).
		Str("from_state", string(prevState)).
		Msg("")
	if alerter != nil && prevState == circuitHalfOpen {
		alerter.Important("circuit_breaker_recovered", map[string]string{
			"action":                        "place order",
			"previous_consecutive_failures": strconv.Itoa(prevFailures),
			"from_state":                    string(prevState),
		})
	}
}

func (b *Breaker) tripLocked(err error, failures int, reason string) error {
	b.state = circuitOpen
	b.openedAt = b.now()
	b.failures = failures
	b.openErr = fmt.Errorf("%w: place order failed %d consecutive times, cooldown=%s, reason=%s, last error: %v", ErrCircuitOpen, failures, b.cooldown, reason, err)
	return b.openErr
}

func (b *Breaker) logTrip(alerter alert.Alerter, phase string, failures int, err error) {
	b.log.Error().
		Str("event", "circuit_breaker_trip").
		Str("action", "place order").
		Str("phase", phase).
		Int("consecutive_failures", failures).
		Int("threshold", b.maxFailures).
		Err(err).
		Msg("")
	if alerter != nil {
		alerter.Important("circuit_breaker_trip", map[string]string{
			"action":               "place order",
			"phase":                phase,
			"consecutive_failures": strconv.Itoa(failures),
			"threshold":            strconv.Itoa(b.maxFailures),
			"last_error":           err.Error(),
		})
	}
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrAmbiguousExecution) {
		return true
	}
	return !errors.Is(err, core.ErrOrderRejected) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, core.ErrInvalidTrade)
}

// GuardedTrader puts a Breaker in front of order placement. Lookups go
// straight through so reconciliation keeps working while the circuit is open.
type GuardedTrader struct {
	inner   exchange.Trader
	breaker *Breaker
}

func NewGuardedTrader(inner exchange.Trader, breaker *Breaker) *GuardedTrader {
	return &GuardedTrader{inner: inner, breaker: breaker}
}

func (g *GuardedTrader) PlaceOrder(ctx context.Context, symbol string, side core.Side, quantity decimal.Decimal) (core.OrderResult, error) {
	if err := g.breaker.AllowPlace(); err != nil {
		return core.OrderResult{}, err
	}
	placed, err := g.inner.PlaceOrder(ctx, symbol, side, quantity)
	_ = g.breaker.RecordPlace(err)
	return placed, err
}

func (g *GuardedTrader) PlaceLimitOrder(ctx context.Context, symbol string, side core.Side, quantity, price decimal.Decimal) (core.OrderResult, error) {
	if err := g.breaker.AllowPlace(); err != nil {
		return core.OrderResult{}, err
	}
	placed, err := g.inner.PlaceLimitOrder(ctx, symbol, side, quantity, price)
	_ = g.breaker.RecordPlace(err)
	return placed, err
}

func (g *GuardedTrader) GetOrder(ctx context.Context, symbol string, orderID int64) (core.OrderResult, error) {
	return g.inner.GetOrder(ctx, symbol, orderID)
}

func (g *GuardedTrader) RecentOrders(ctx context.Context, symbol string, since time.Time) ([]core.OrderResult, error) {
	return g.inner.RecentOrders(ctx, symbol, since)
}
