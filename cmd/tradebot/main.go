package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-bot-backend/internal/alert"
	"trading-bot-backend/internal/api"
	"trading-bot-backend/internal/config"
	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange"
	"trading-bot-backend/internal/exchange/binance"
	"trading-bot-backend/internal/execution"
	"trading-bot-backend/internal/logging"
	"trading-bot-backend/internal/safety"
	"trading-bot-backend/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional config yaml path")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	log := logging.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Database.Path, store.Options{MaxOpenConns: cfg.Database.MaxOpenConns, Logger: log})
	if err != nil {
		fatal(err.Error())
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Str("event", "store_close_failed").Err(err).Msg("")
		}
	}()

	alerts := buildAlertManager(cfg, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := alerts.Close(closeCtx); err != nil {
			log.Error().Str("event", "alert_close_failed").Err(err).Msg("")
		}
	}()

	client, err := buildClient(cfg.Exchange, log)
	if err != nil {
		fatal(err.Error())
	}

	srvOpts := api.Options{
		Store:       st,
		Environment: string(cfg.Environment),
		Testnet:     cfg.Exchange.Testnet,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      log,
	}
	if alerts != nil {
		srvOpts.Alerter = alerts
	}
	execOpts := execution.Options{
		MaxLiveNotional: cfg.Execution.MaxLiveNotional.Decimal,
		Logger:          log,
	}
	if client != nil {
		breaker := safety.NewBreakerFromConfig(cfg.Execution.CircuitBreaker, log)
		if alerts != nil {
			breaker.SetAlerter(alerts)
		}
		execOpts.Trader = safety.NewGuardedTrader(client, breaker)
		execOpts.Reconciler = execution.NewReconciler(client, execution.ReconcilerOptions{
			Timeout:  time.Duration(cfg.Execution.ReconcileTimeoutSec) * time.Second,
			Lookback: time.Duration(cfg.Execution.ReconcileLookbackSec) * time.Second,
			Logger:   log,
		})
		srvOpts.Exchange = client
	}
	gate := execution.NewGate(client != nil)
	srvOpts.Executor = execution.NewOrchestrator(gate, execOpts)
	srvOpts.LiveTradingAvailable = gate.CanExecuteLive()

	log.Info().
		Str("event", "startup").
		Str("environment", string(cfg.Environment)).
		Str("addr", cfg.Server.Addr).
		Str("database", cfg.Database.Path).
		Bool("binance_configured", client != nil).
		Bool("testnet", cfg.Exchange.Testnet).
		Bool("telegram", alerts != nil).
		Msg("")

	srv := api.NewServer(srvOpts)
	if err := srv.Run(ctx, cfg.Server); err != nil {
		log.Error().Str("event", "http_server_failed").Err(err).Msg("")
		fatal(err.Error())
	}
	log.Info().Str("event", "shutdown_complete").Msg("")
}

// buildClient returns nil without error when credentials are missing or
// malformed; the service then runs paper-only.
func buildClient(cfg config.ExchangeConfig, log zerolog.Logger) (exchange.Exchange, error) {
	if cfg.PartialCredentials() {
		log.Warn().
			Str("event", "binance_partial_credentials").
			Bool("api_key_set", cfg.APIKey != "").
			Bool("api_secret_set", cfg.APISecret != "").
			Msg("live trading disabled")
	}
	if !cfg.HasCredentials() {
		return nil, nil
	}
	client, err := binance.NewClient(cfg, log)
	if errors.Is(err, core.ErrConfiguration) {
		log.Warn().
			Str("event", "binance_client_unavailable").
			Err(err).
			Msg("live trading disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("event", "binance_client_ready").
		Str("base_url", client.BaseURL()).
		Bool("testnet", client.Testnet()).
		Msg("")
	return client, nil
}

func buildAlertManager(cfg config.Config, log zerolog.Logger) *alert.Manager {
	tg := cfg.Notifications.Telegram
	if !tg.Enabled {
		return nil
	}
	return alert.NewManagerWithOptions(string(cfg.Environment), alert.NewTelegramNotifierFromConfig(tg), alert.ManagerOptions{
		QueueSize:          cfg.Notifications.QueueSize,
		DropReportInterval: time.Duration(cfg.Notifications.DropReportSec) * time.Second,
		Logger:             log,
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
