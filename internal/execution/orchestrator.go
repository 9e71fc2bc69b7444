package execution

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange"
	"trading-bot-backend/internal/metrics"
)

type Options struct {
	// Trader is required for live execution; nil means paper only.
	Trader     exchange.Trader
	Reconciler *Reconciler
	// MaxLiveNotional caps price*quantity of a live trade. Zero disables the cap.
	MaxLiveNotional decimal.Decimal
	Logger          zerolog.Logger
}

type Orchestrator struct {
	gate            *Gate
	trader          exchange.Trader
	reconciler      *Reconciler
	maxLiveNotional decimal.Decimal
	log             zerolog.Logger
}

func NewOrchestrator(gate *Gate, opts Options) *Orchestrator {
	if gate == nil {
		gate = NewGate(false)
	}
	return &Orchestrator{
		gate:            gate,
		trader:          opts.Trader,
		reconciler:      opts.Reconciler,
		maxLiveNotional: opts.MaxLiveNotional,
		log:             opts.Logger,
	}
}

func (o *Orchestrator) Gate() *Gate { return o.gate }

// Execute validates, authorizes and runs one trade. A live order is sent
// at most once; an unconfirmed send yields *core.AmbiguousExecutionError
// unless reconciliation finds the order.
func (o *Orchestrator) Execute(ctx context.Context, req core.TradeRequest) (core.ExecutionOutcome, error) {
	req, err := req.Validate()
	if err != nil {
		o.record(req.Mode, "invalid")
		return core.ExecutionOutcome{}, err
	}
	exchangeSymbol := core.NormalizeSymbol(req.Symbol)

	auth, err := o.gate.Authorize(req)
	if err != nil {
		o.record(req.Mode, "rejected")
		o.log.Warn().
			Str("event", "trade_gate_rejected").
			Str("symbol", exchangeSymbol).
			Str("mode", string(req.Mode)).
			Err(err).
			Msg("")
		return core.ExecutionOutcome{}, err
	}

	outcome := core.ExecutionOutcome{
		Mode:           auth.Mode,
		TotalValue:     core.TotalValue(req.Price, req.Quantity),
		Symbol:         req.Symbol,
		ExchangeSymbol: exchangeSymbol,
	}
	if auth.Mode == core.ModePaper {
		o.record(auth.Mode, "ok")
		o.log.Info().
			Str("event", "paper_trade").
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Str("quantity", req.Quantity.String()).
			Str("price", req.Price.String()).
			Msg("")
		return outcome, nil
	}

	if o.trader == nil {
		o.record(auth.Mode, "rejected")
		return core.ExecutionOutcome{}, &core.GateRejectedError{Mode: auth.Mode, Reason: reasonLiveUnavailable}
	}
	if o.maxLiveNotional.IsPositive() && outcome.TotalValue.GreaterThan(o.maxLiveNotional) {
		o.record(auth.Mode, "invalid")
		return core.ExecutionOutcome{}, &core.InvalidTradeError{Reason: "total value " + outcome.TotalValue.String() + " exceeds live limit " + o.maxLiveNotional.String()}
	}

	o.log.Info().
		Str("event", "live_trade_submit").
		Str("symbol", exchangeSymbol).
		Str("side", string(req.Side)).
		Str("type", string(req.OrderType)).
		Str("quantity", req.Quantity.String()).
		Str("price", req.Price.String()).
		Msg("")
	var order core.OrderResult
	if req.OrderType == core.Limit {
		order, err = o.trader.PlaceLimitOrder(ctx, exchangeSymbol, req.Side, req.Quantity, req.Price)
	} else {
		order, err = o.trader.PlaceOrder(ctx, exchangeSymbol, req.Side, req.Quantity)
	}
	if err != nil {
		var amb *core.AmbiguousExecutionError
		if !errors.As(err, &amb) {
			o.record(auth.Mode, "error")
			o.log.Warn().Str("event", "live_trade_failed").Str("symbol", exchangeSymbol).Err(err).Msg("")
			return core.ExecutionOutcome{}, err
		}
		if o.reconciler != nil {
			found, rerr := o.reconciler.Reconcile(ctx, amb)
			if rerr == nil {
				o.record(auth.Mode, "reconciled")
				outcome.Order = &found
				outcome.Reconciled = true
				return outcome, nil
			}
			if errors.Is(rerr, core.ErrOrderNotExecuted) {
				o.record(auth.Mode, "not_executed")
				o.log.Warn().Str("event", "live_trade_not_executed").Str("symbol", exchangeSymbol).Err(rerr).Msg("")
				return core.ExecutionOutcome{}, rerr
			}
			amb.ReconcileErr = rerr
		}
		o.record(auth.Mode, "ambiguous")
		o.log.Error().
			Str("event", "live_trade_ambiguous").
			Str("symbol", exchangeSymbol).
			Str("side", string(req.Side)).
			Str("quantity", req.Quantity.String()).
			Err(amb).
			Msg("")
		return core.ExecutionOutcome{}, amb
	}

	o.record(auth.Mode, "ok")
	outcome.Order = &order
	o.log.Info().
		Str("event", "live_trade_executed").
		Str("symbol", exchangeSymbol).
		Int64("order_id", order.OrderID).
		Str("status", string(order.Status)).
		Msg("")
	return outcome, nil
}

func (o *Orchestrator) record(mode core.Mode, result string) {
	label := string(mode)
	if mode != core.ModePaper && mode != core.ModeLive {
		label = "unknown"
	}
	metrics.TradeExecutions.WithLabelValues(label, result).Inc()
}
