package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange/binance"
	"trading-bot-backend/internal/safety"
	"trading-bot-backend/internal/store"
)

var (
	errExchangeUnavailable = errors.New("binance api not configured")
	errBadRequest          = errors.New("bad request")
)

type errorDetails struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type ambiguousOrder struct {
	Symbol         string          `json:"symbol"`
	Side           core.Side       `json:"side"`
	Type           core.OrderType  `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	SentAt         time.Time       `json:"sent_at"`
	ReconcileError string          `json:"reconcile_error,omitempty"`
}

type errorResponse struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error"`
	Details   *errorDetails   `json:"details,omitempty"`
	Ambiguous bool            `json:"ambiguous,omitempty"`
	Order     *ambiguousOrder `json:"order,omitempty"`
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return errBadRequest }

// statusFor maps the error taxonomy onto HTTP. Ambiguity wins over
// whatever cause it wraps.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrAmbiguousExecution):
		return http.StatusGatewayTimeout
	case errors.Is(err, safety.ErrCircuitOpen), errors.Is(err, errExchangeUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrInvalidTrade), errors.Is(err, core.ErrGateRejected), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, core.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrOrderRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrAuth), errors.Is(err, core.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if status == http.StatusInternalServerError {
		log.Error().Str("event", "api_internal_error").Err(err).Msg("")
		resp.Error = "internal server error"
	}
	var apiErr binance.APIError
	if errors.As(err, &apiErr) {
		resp.Details = &errorDetails{Code: apiErr.Code, Msg: apiErr.Msg}
	}
	var amb *core.AmbiguousExecutionError
	if errors.As(err, &amb) {
		resp.Ambiguous = true
		resp.Order = &ambiguousOrder{
			Symbol:   amb.Symbol,
			Side:     amb.Side,
			Type:     amb.Type,
			Quantity: amb.Quantity,
			Price:    amb.Price,
			SentAt:   amb.SentAt.UTC(),
		}
		if amb.ReconcileErr != nil {
			resp.Order.ReconcileError = amb.ReconcileErr.Error()
		}
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
