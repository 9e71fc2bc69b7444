package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange"
)

const (
	defaultReconcileTimeout  = 10 * time.Second
	defaultReconcileLookback = time.Minute
	defaultReconcileSkew     = 5 * time.Second
)

var (
	errNoMatchingOrder    = errors.New("no matching order found")
	errMultipleCandidates = errors.New("multiple matching orders found")
	errUnsettledStatus    = errors.New("matching order has an unsettled status")
)

type ReconcilerOptions struct {
	Timeout time.Duration
	// Lookback bounds the order history query before the send time.
	Lookback time.Duration
	// Skew tolerates clock drift between us and the exchange when matching.
	Skew   time.Duration
	Logger zerolog.Logger
}

// Reconciler looks for the order behind an ambiguous placement. It runs on
// a context detached from the caller so an aborted request still resolves.
type Reconciler struct {
	lookup   exchange.OrderLookup
	timeout  time.Duration
	lookback time.Duration
	skew     time.Duration
	log      zerolog.Logger
}

func NewReconciler(lookup exchange.OrderLookup, opts ReconcilerOptions) *Reconciler {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultReconcileTimeout
	}
	if opts.Lookback <= 0 {
		opts.Lookback = defaultReconcileLookback
	}
	if opts.Skew <= 0 {
		opts.Skew = defaultReconcileSkew
	}
	return &Reconciler{
		lookup:   lookup,
		timeout:  opts.Timeout,
		lookback: opts.Lookback,
		skew:     opts.Skew,
		log:      opts.Logger,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, amb *core.AmbiguousExecutionError) (core.OrderResult, error) {
	if r == nil || r.lookup == nil {
		return core.OrderResult{}, errors.New("reconciliation unavailable")
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	sentAt := amb.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	orders, err := r.lookup.RecentOrders(rctx, amb.Symbol, sentAt.Add(-r.lookback))
	if err != nil {
		return core.OrderResult{}, fmt.Errorf("list recent orders: %w", err)
	}

	notBefore := sentAt.Add(-r.skew)
	var candidates []core.OrderResult
	for _, o := range orders {
		if matches(o, amb, notBefore) {
			candidates = append(candidates, o)
		}
	}
	switch len(candidates) {
	case 0:
		return core.OrderResult{}, errNoMatchingOrder
	case 1:
	default:
		return core.OrderResult{}, fmt.Errorf("%w: %d candidates", errMultipleCandidates, len(candidates))
	}

	confirmed, err := r.lookup.GetOrder(rctx, amb.Symbol, candidates[0].OrderID)
	if err != nil {
		return core.OrderResult{}, fmt.Errorf("confirm order %d: %w", candidates[0].OrderID, err)
	}
	if err := settled(amb.Symbol, confirmed); err != nil {
		r.log.Warn().
			Str("event", "order_reconcile_unexecuted").
			Str("symbol", amb.Symbol).
			Int64("order_id", confirmed.OrderID).
			Str("status", string(confirmed.Status)).
			Err(err).
			Msg("")
		return core.OrderResult{}, err
	}
	r.log.Info().
		Str("event", "order_reconciled").
		Str("symbol", amb.Symbol).
		Int64("order_id", confirmed.OrderID).
		Str("status", string(confirmed.Status)).
		Msg("")
	return confirmed, nil
}

// settled accepts an order that is working or has traded. A terminal order
// with nothing filled resolves the placement as not executed; any other
// status leaves it ambiguous.
func settled(symbol string, o core.OrderResult) error {
	switch o.Status {
	case core.OrderNew, core.OrderPartiallyFilled, core.OrderFilled:
		return nil
	}
	if o.ExecutedQty.IsPositive() {
		return nil
	}
	switch o.Status {
	case core.OrderCanceled, core.OrderRejected, core.OrderExpired, core.OrderExpiredInMatch:
		return &core.OrderNotExecutedError{Symbol: symbol, OrderID: o.OrderID, Status: o.Status}
	}
	return fmt.Errorf("%w: order %d is %q", errUnsettledStatus, o.OrderID, o.Status)
}

func matches(o core.OrderResult, amb *core.AmbiguousExecutionError, notBefore time.Time) bool {
	if o.Side != amb.Side || o.Type != amb.Type || !o.Quantity.Equal(amb.Quantity) {
		return false
	}
	if amb.Type == core.Limit && !amb.Price.IsZero() && !o.Price.Equal(amb.Price) {
		return false
	}
	placed := o.CreatedAt
	if placed.IsZero() {
		placed = o.TransactTime
	}
	if !placed.IsZero() && placed.Before(notBefore) {
		return false
	}
	return true
}
