package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrConfiguration indicates credentials or endpoint settings are missing or malformed.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuth indicates the exchange rejected the signature, timestamp or API key.
	ErrAuth = errors.New("exchange authentication failed")
	// ErrOrderRejected indicates the exchange authenticated the request but refused the order.
	ErrOrderRejected = errors.New("order rejected")
	// ErrNetwork indicates a transport failure, timeout or non-success response with no business meaning.
	ErrNetwork = errors.New("exchange network error")
	// ErrGateRejected indicates the execution gate refused the trade before any exchange call.
	ErrGateRejected = errors.New("execution gate rejected trade")
	// ErrAmbiguousExecution indicates an order write was sent but its outcome was never confirmed.
	ErrAmbiguousExecution = errors.New("ambiguous order execution")
	// ErrInvalidTrade indicates the trade request itself is malformed.
	ErrInvalidTrade = errors.New("invalid trade request")
	// ErrInsufficientBalance indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateOrder indicates the exchange saw the same order before.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotExecuted indicates the exchange holds the order but ended it without any fill.
	ErrOrderNotExecuted = errors.New("order not executed")
)

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return "configuration error: " + e.Field + ": " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

type InvalidTradeError struct {
	Reason string
}

func (e *InvalidTradeError) Error() string { return "invalid trade: " + e.Reason }

func (e *InvalidTradeError) Unwrap() error { return ErrInvalidTrade }

func invalidTrade(reason string) error {
	return &InvalidTradeError{Reason: reason}
}

type GateRejectedError struct {
	Mode   Mode
	Reason string
}

func (e *GateRejectedError) Error() string { return e.Reason }

func (e *GateRejectedError) Unwrap() error { return ErrGateRejected }

// AmbiguousExecutionError describes an order write whose fate is unknown.
// The order may have filled; callers must reconcile before acting again.
type AmbiguousExecutionError struct {
	Symbol       string
	Side         Side
	Type         OrderType
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	SentAt       time.Time
	Err          error
	ReconcileErr error
}

func (e *AmbiguousExecutionError) Error() string {
	msg := fmt.Sprintf("ambiguous execution of %s %s %s %s: %v", e.Type, e.Side, e.Quantity.String(), e.Symbol, e.Err)
	if e.ReconcileErr != nil {
		msg += " (reconcile: " + e.ReconcileErr.Error() + ")"
	}
	return msg
}

func (e *AmbiguousExecutionError) Unwrap() []error {
	errs := []error{ErrAmbiguousExecution}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// OrderNotExecutedError is a resolved ambiguous placement: the order reached
// the exchange and finished in Status with nothing filled.
type OrderNotExecutedError struct {
	Symbol  string
	OrderID int64
	Status  OrderStatus
}

func (e *OrderNotExecutedError) Error() string {
	return fmt.Sprintf("order %d on %s ended %s without a fill", e.OrderID, e.Symbol, e.Status)
}

func (e *OrderNotExecutedError) Unwrap() []error {
	return []error{ErrOrderNotExecuted, ErrOrderRejected}
}

// IsClientError reports whether err is the caller's to fix rather than an
// exchange or server fault. Auth failures are the service's credentials, so
// they are not.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAmbiguousExecution) || errors.Is(err, ErrAuth) {
		return false
	}
	return errors.Is(err, ErrInvalidTrade) ||
		errors.Is(err, ErrGateRejected) ||
		errors.Is(err, ErrOrderRejected) ||
		errors.Is(err, ErrOrderNotFound)
}
