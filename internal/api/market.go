package api

import (
	"net/http"
	"strconv"
	"time"

	"trading-bot-backend/internal/core"
)

func (s *Server) requireExchange(w http.ResponseWriter) bool {
	if s.exchange == nil {
		writeError(w, s.log, errExchangeUnavailable)
		return false
	}
	return true
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if !s.requireExchange(w) {
		return
	}
	symbol := r.PathValue("symbol")
	exchangeSymbol := core.NormalizeSymbol(symbol)
	price, err := s.exchange.GetPrice(r.Context(), exchangeSymbol)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"symbol":        symbol,
		"binanceSymbol": exchangeSymbol,
		"price":         price,
		"timestamp":     s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handle24hr(w http.ResponseWriter, r *http.Request) {
	if !s.requireExchange(w) {
		return
	}
	exchangeSymbol := core.NormalizeSymbol(r.PathValue("symbol"))
	stats, err := s.exchange.Get24hrStats(r.Context(), exchangeSymbol)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"binanceSymbol": exchangeSymbol,
		"stats":         stats,
	})
}

func (s *Server) orderParams(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, s.log, badRequest("orderId must be a positive integer"))
		return "", 0, false
	}
	return core.NormalizeSymbol(r.PathValue("symbol")), id, true
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if !s.requireExchange(w) {
		return
	}
	symbol, id, ok := s.orderParams(w, r)
	if !ok {
		return
	}
	order, err := s.exchange.GetOrder(r.Context(), symbol, id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	if !s.requireExchange(w) {
		return
	}
	symbol, id, ok := s.orderParams(w, r)
	if !ok {
		return
	}
	order, err := s.exchange.CancelOrder(r.Context(), symbol, id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.log.Info().Str("event", "order_canceled").Str("symbol", symbol).Int64("order_id", id).Msg("")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	if !s.requireExchange(w) {
		return
	}
	account, err := s.exchange.GetAccount(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	account.Balances = account.NonZeroBalances()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "account": account})
}
