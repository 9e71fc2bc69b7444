// Package api serves the dashboard REST surface and the websocket event feed.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"trading-bot-backend/internal/alert"
	"trading-bot-backend/internal/config"
	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange"
	"trading-bot-backend/internal/metrics"
	"trading-bot-backend/internal/store"
)

const (
	serviceName    = "Trading Bot API"
	serviceVersion = "1.0.0"
	maxBodyBytes   = 1 << 20
)

type Executor interface {
	Execute(ctx context.Context, req core.TradeRequest) (core.ExecutionOutcome, error)
}

type Options struct {
	Store    *store.Store
	Executor Executor
	// Exchange is nil when no credentials are configured.
	Exchange             exchange.Exchange
	Alerter              alert.TradeAlerter
	Hub                  *Hub
	Environment          string
	Testnet              bool
	LiveTradingAvailable bool
	CORSOrigins          []string
	Logger               zerolog.Logger
}

type Server struct {
	store       *store.Store
	exec        Executor
	exchange    exchange.Exchange
	alerter     alert.TradeAlerter
	hub         *Hub
	environment string
	testnet     bool
	live        bool
	log         zerolog.Logger
	now         func() time.Time
	handler     http.Handler
}

func NewServer(opts Options) *Server {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewHub(origins, opts.Logger)
	}
	s := &Server{
		store:       opts.Store,
		exec:        opts.Executor,
		exchange:    opts.Exchange,
		alerter:     opts.Alerter,
		hub:         hub,
		environment: opts.Environment,
		testnet:     opts.Testnet,
		live:        opts.LiveTradingAvailable,
		log:         opts.Logger,
		now:         time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /ws/events", hub)

	mux.HandleFunc("GET /api/trades", s.handleListTrades)
	mux.HandleFunc("POST /api/trades", s.handleCreateTrade)
	mux.HandleFunc("GET /api/trades/{id}", s.handleGetTrade)
	mux.HandleFunc("GET /api/trades/stats/summary", s.handleTradeSummary)
	mux.HandleFunc("GET /api/trades/price/{symbol}", s.handlePrice)
	mux.HandleFunc("GET /api/market/{symbol}/24hr", s.handle24hr)
	mux.HandleFunc("GET /api/orders/{symbol}/{orderId}", s.handleGetOrder)
	mux.HandleFunc("DELETE /api/orders/{symbol}/{orderId}", s.handleCancelOrder)
	mux.HandleFunc("GET /api/account", s.handleAccount)

	mux.HandleFunc("GET /api/positions", s.handleListPositions)
	mux.HandleFunc("POST /api/positions", s.handleCreatePosition)
	mux.HandleFunc("GET /api/positions/{symbol}", s.handleGetPosition)
	mux.HandleFunc("PUT /api/positions/{symbol}", s.handleUpdatePosition)
	mux.HandleFunc("DELETE /api/positions/{symbol}", s.handleDeletePosition)

	s.handler = cors(origins, instrument(opts.Logger, mux))
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Hub() *Hub { return s.hub }

// Run serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context, cfg config.ServerConfig) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSec) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("event", "http_listen").Str("addr", cfg.Addr).Msg("")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Str("event", "http_shutdown").Msg("")
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"health":    "/health",
			"config":    "/config",
			"metrics":   "/metrics",
			"events":    "/ws/events",
			"trades":    "/api/trades",
			"positions": "/api/positions",
			"market":    "/api/market/{symbol}/24hr",
			"orders":    "/api/orders/{symbol}/{orderId}",
			"account":   "/api/account",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"environment": s.environment,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	dbConnected := s.store != nil && s.store.Ping(r.Context()) == nil
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"config": map[string]any{
			"databaseConnected":    dbConnected,
			"binanceConfigured":    s.exchange != nil,
			"liveTradingAvailable": s.live,
			"environment":          s.environment,
			"testnet":              s.testnet,
		},
	})
}
