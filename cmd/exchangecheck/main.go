package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-bot-backend/internal/config"
	"trading-bot-backend/internal/core"
	"trading-bot-backend/internal/exchange/binance"
	"trading-bot-backend/internal/logging"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	BaseURL    string        `json:"base_url"`
	Testnet    bool          `json:"testnet"`
	Symbol     string        `json:"symbol"`
	Checks     []checkResult `json:"checks"`
}

type selectedChecks struct {
	preflight bool
	lifecycle bool
}

func main() {
	var (
		configPath   string
		symbol       string
		qtyFlag      string
		timeoutSec   int
		outJSONPath  string
		allowLiveRun bool
		checkFlag    string
	)
	flag.StringVar(&configPath, "config", "", "optional config yaml path")
	flag.StringVar(&symbol, "symbol", "BTCUSDT", "symbol to check")
	flag.StringVar(&qtyFlag, "qty", "0.001", "quantity for the lifecycle LIMIT order")
	flag.IntVar(&timeoutSec, "timeout-sec", 60, "total timeout seconds")
	flag.StringVar(&outJSONPath, "out-json", "", "optional output report path")
	flag.BoolVar(&allowLiveRun, "allow-live", false, "allow order checks against the production endpoint")
	flag.StringVar(&checkFlag, "check", "default", "checks to run: default | all | comma list (preflight,lifecycle)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fatal(err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if !cfg.Exchange.HasCredentials() {
		fatal("exchangecheck requires BINANCE_API_KEY and BINANCE_SECRET")
	}
	checks, err := parseCheckFlag(checkFlag)
	if err != nil {
		fatal(err.Error())
	}
	if checks.lifecycle && !cfg.Exchange.Testnet && !allowLiveRun {
		fatal("lifecycle check against production blocked by default; set -allow-live=true to continue")
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(qtyFlag))
	if err != nil || !qty.IsPositive() {
		fatal("qty must be a positive decimal")
	}
	symbol = core.NormalizeSymbol(symbol)
	if timeoutSec < 10 {
		timeoutSec = 10
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	log := logging.NewLoggerTo(os.Stderr, cfg.Log.Level)
	client, err := binance.NewClient(cfg.Exchange, log)
	if err != nil {
		fatal(err.Error())
	}

	r := report{
		StartedAt: time.Now().UTC(),
		BaseURL:   client.BaseURL(),
		Testnet:   client.Testnet(),
		Symbol:    symbol,
	}

	var (
		lastPrice decimal.Decimal
		placedID  int64
	)

	run := func(name string, fn func() (string, error)) {
		start := time.Now()
		detail, err := fn()
		cr := checkResult{
			Name:       name,
			DurationMs: time.Since(start).Milliseconds(),
			Detail:     detail,
		}
		if err != nil {
			cr.Status = statusFail
			cr.Error = err.Error()
		} else {
			cr.Status = statusPass
		}
		r.Checks = append(r.Checks, cr)
		if cr.Status == statusPass {
			fmt.Printf("[PASS] %s (%dms)", name, cr.DurationMs)
			if cr.Detail != "" {
				fmt.Printf(" - %s", cr.Detail)
			}
			fmt.Println()
		} else {
			fmt.Printf("[FAIL] %s (%dms) - %s\n", name, cr.DurationMs, cr.Error)
		}
	}

	loadPrice := func() error {
		if lastPrice.IsPositive() {
			return nil
		}
		price, err := client.GetPrice(ctx, symbol)
		if err != nil {
			return err
		}
		lastPrice = price
		return nil
	}

	if checks.preflight {
		run("exchange_preflight", func() (string, error) {
			if err := loadPrice(); err != nil {
				return "", err
			}
			stats, err := client.Get24hrStats(ctx, symbol)
			if err != nil {
				return "", err
			}
			account, err := client.GetAccount(ctx)
			if err != nil {
				return "", err
			}
			if !account.CanTrade {
				return "", errors.New("account cannot trade")
			}
			return fmt.Sprintf("price=%s change24h=%s%% balances=%d", lastPrice.String(), stats.PriceChangePercent.String(), len(account.NonZeroBalances())), nil
		})
	}

	if checks.lifecycle {
		run("order_lifecycle_place_query_cancel", func() (string, error) {
			if err := loadPrice(); err != nil {
				return "", err
			}
			price := lifecyclePrice(lastPrice)
			if !price.IsPositive() {
				return "", errors.New("calculated order price <= 0")
			}
			placed, err := client.PlaceLimitOrder(ctx, symbol, core.Buy, qty, price)
			if err != nil {
				return "", err
			}
			if placed.OrderID <= 0 {
				return "", errors.New("empty order id")
			}
			placedID = placed.OrderID

			query, err := client.GetOrder(ctx, symbol, placed.OrderID)
			if err != nil {
				return "", err
			}
			since := placed.TransactTime
			if since.IsZero() {
				since = time.Now()
			}
			recent, err := client.RecentOrders(ctx, symbol, since.Add(-time.Minute))
			if err != nil {
				return "", err
			}
			foundInRecent := false
			for _, o := range recent {
				if o.OrderID == placed.OrderID {
					foundInRecent = true
					break
				}
			}

			status := string(query.Status)
			switch query.Status {
			case core.OrderNew, core.OrderPartiallyFilled:
				canceled, err := client.CancelOrder(ctx, symbol, placed.OrderID)
				if err != nil {
					return "", fmt.Errorf("cancel order failed: %w", err)
				}
				status = string(canceled.Status)
				placedID = 0
			case core.OrderFilled:
				placedID = 0
			}

			return fmt.Sprintf("id=%d qty=%s price=%s status=%s foundInRecent=%t", placed.OrderID, qty.String(), price.String(), status, foundInRecent), nil
		})
	}

	if placedID != 0 {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, _ = client.CancelOrder(cleanupCtx, symbol, placedID)
		cleanupCancel()
	}

	r.FinishedAt = time.Now().UTC()
	printSummary(r)

	if outJSONPath != "" {
		if err := writeReport(outJSONPath, r); err != nil {
			fatal(err.Error())
		}
		fmt.Printf("report written: %s\n", outJSONPath)
	}

	for _, c := range r.Checks {
		if c.Status == statusFail {
			os.Exit(1)
		}
	}
}

func parseCheckFlag(raw string) (selectedChecks, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "default" {
		return selectedChecks{preflight: true}, nil
	}
	if raw == "all" {
		return selectedChecks{preflight: true, lifecycle: true}, nil
	}

	var out selectedChecks
	for _, p := range strings.Split(raw, ",") {
		name := strings.TrimSpace(p)
		switch name {
		case "":
			continue
		case "preflight", "exchange_preflight":
			out.preflight = true
		case "lifecycle", "order_lifecycle", "order_lifecycle_place_query_cancel":
			out.lifecycle = true
		default:
			return selectedChecks{}, fmt.Errorf("unknown check: %s", name)
		}
	}
	if !out.preflight && !out.lifecycle {
		return selectedChecks{}, errors.New("no checks selected")
	}
	return out, nil
}

// lifecyclePrice sits far below market so the check order rests unfilled.
func lifecyclePrice(last decimal.Decimal) decimal.Decimal {
	return last.Mul(decimal.RequireFromString("0.5")).RoundDown(2)
}

func printSummary(r report) {
	pass := 0
	fail := 0
	for _, c := range r.Checks {
		if c.Status == statusPass {
			pass++
		} else {
			fail++
		}
	}
	fmt.Printf("\nsummary base_url=%s testnet=%t symbol=%s pass=%d fail=%d duration=%s\n",
		r.BaseURL,
		r.Testnet,
		r.Symbol,
		pass,
		fail,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	)
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(msg))
	os.Exit(1)
}
