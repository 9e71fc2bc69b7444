package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"trading-bot-backend/internal/alert"
	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/store"
)

const (
	eventTradeExecuted  = "trade_executed"
	eventPositionOpened = "position_opened"
	eventPositionUpdate = "position_updated"
	eventPositionClosed = "position_closed"
)

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, s.log, badRequest("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	trades, err := s.store.ListTrades(r.Context(), store.TradeFilter{Symbol: q.Get("symbol"), Limit: limit})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(trades),
		"trades":  trades,
	})
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, s.log, badRequest("trade id must be a positive integer"))
		return
	}
	trade, err := s.store.GetTrade(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "trade": trade})
}

func (s *Server) handleTradeSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.TradeSummary(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": summary})
}

// handleCreateTrade runs gate, execution, persistence and notification in
// that order. Nothing is stored unless execution produced a confirmed outcome.
func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req core.TradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if strings.TrimSpace(string(req.Mode)) == "" {
		req.Mode = core.ModePaper
	}
	req, err := req.Validate()
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	out, err := s.exec.Execute(r.Context(), req)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	// A live order already exists; record it even if the caller went away.
	trade, err := s.store.InsertTrade(context.WithoutCancel(r.Context()), store.TradeFromOutcome(req, out))
	if err != nil {
		ev := s.log.Error().Str("event", "trade_persist_failed").Str("symbol", req.Symbol).Str("mode", string(out.Mode)).Err(err)
		if out.Order != nil {
			ev = ev.Int64("order_id", out.Order.OrderID)
		}
		ev.Msg("")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success":      false,
			"error":        "trade executed but could not be recorded",
			"binanceOrder": out.Order,
			"mode":         out.Mode,
		})
		return
	}

	if s.alerter != nil {
		a := alert.TradeAlert{
			Side:       string(trade.TradeType),
			Symbol:     trade.Symbol,
			Mode:       string(trade.Mode),
			Price:      trade.Price,
			Quantity:   trade.Quantity,
			ProfitLoss: trade.ProfitLoss,
			Confidence: trade.Confidence,
			Time:       trade.CreatedAt,
		}
		if trade.ExchangeOrderID != nil {
			a.OrderID = *trade.ExchangeOrderID
		}
		s.alerter.TradeExecuted(a)
	}
	s.hub.Broadcast(eventTradeExecuted, trade)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"trade":        trade,
		"binanceOrder": out.Order,
		"mode":         out.Mode,
		"reconciled":   out.Reconciled,
	})
}
