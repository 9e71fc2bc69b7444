package api

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/store"
)

type createPositionRequest struct {
	Symbol       string              `json:"symbol"`
	EntryPrice   decimal.Decimal     `json:"entry_price"`
	Quantity     decimal.Decimal     `json:"quantity"`
	StopLoss     decimal.NullDecimal `json:"stop_loss"`
	TakeProfit   decimal.NullDecimal `json:"take_profit"`
	TrailingStop decimal.NullDecimal `json:"trailing_stop"`
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"count":     len(positions),
		"positions": positions,
	})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPosition(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "position": p})
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req createPositionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" || !req.EntryPrice.IsPositive() || !req.Quantity.IsPositive() {
		writeError(w, s.log, badRequest("missing required fields: symbol, entry_price, quantity"))
		return
	}
	p, err := s.store.CreatePosition(r.Context(), store.Position{
		Symbol:       req.Symbol,
		EntryPrice:   req.EntryPrice,
		Quantity:     req.Quantity,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		TrailingStop: req.TrailingStop,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.hub.Broadcast(eventPositionOpened, p)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "position": p})
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var u store.PositionUpdate
	if err := decodeJSON(r, &u); err != nil {
		writeError(w, s.log, err)
		return
	}
	p, err := s.store.UpdatePosition(r.Context(), r.PathValue("symbol"), u)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.hub.Broadcast(eventPositionUpdate, p)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "position": p})
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.DeletePosition(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	s.hub.Broadcast(eventPositionClosed, p)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Position closed",
		"position": p,
	})
}
