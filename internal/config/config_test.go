package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadEmptyAppliesDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Environment != EnvDevelopment {
		t.Fatalf("environment = %q, want %q", cfg.Environment, EnvDevelopment)
	}
	if cfg.Server.Addr != ":10000" {
		t.Fatalf("server.addr = %q, want :10000", cfg.Server.Addr)
	}
	if cfg.Exchange.RestBaseURL != ProductionRestBaseURL {
		t.Fatalf("exchange.rest_base_url = %q, want %q", cfg.Exchange.RestBaseURL, ProductionRestBaseURL)
	}
	if cfg.Exchange.HTTPTimeoutMs != 10000 {
		t.Fatalf("exchange.http_timeout_ms = %d, want 10000", cfg.Exchange.HTTPTimeoutMs)
	}
	if cfg.Exchange.HasCredentials() {
		t.Fatalf("HasCredentials() = true, want false with no key or secret")
	}
	if cfg.Execution.ReconcileTimeoutSec != 10 {
		t.Fatalf("execution.reconcile_timeout_sec = %d, want 10", cfg.Execution.ReconcileTimeoutSec)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Fatalf("server.cors_origins = %v, want [*]", cfg.Server.CORSOrigins)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("log.level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadTestnetSelectsTestnetURL(t *testing.T) {
	cfgPath := writeTempConfig(t, `
exchange:
  testnet: true
`)
	cfg, err := LoadWithEnv(cfgPath, noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Exchange.RestBaseURL != TestnetRestBaseURL {
		t.Fatalf("exchange.rest_base_url = %q, want %q", cfg.Exchange.RestBaseURL, TestnetRestBaseURL)
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	cfgPath := writeTempConfig(t, `
server:
  addr: ":8080"
exchange:
  api_key: file-key
`)
	env := envMap(map[string]string{
		"BINANCE_API_KEY":    "env-key",
		"BINANCE_SECRET":     "env-secret",
		"BINANCE_TESTNET":    "true",
		"PORT":               "9000",
		"DATABASE_PATH":      "/tmp/trades.db",
		"TELEGRAM_BOT_TOKEN": "token",
		"TELEGRAM_CHAT_ID":   "42",
		"LOG_LEVEL":          "DEBUG",
		"APP_ENV":            "production",
	})
	cfg, err := LoadWithEnv(cfgPath, env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("credentials not taken from environment")
	}
	if !cfg.Exchange.HasCredentials() {
		t.Fatalf("HasCredentials() = false, want true")
	}
	if !cfg.Exchange.Testnet || cfg.Exchange.RestBaseURL != TestnetRestBaseURL {
		t.Fatalf("testnet = %v url = %q, want testnet", cfg.Exchange.Testnet, cfg.Exchange.RestBaseURL)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("server.addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Database.Path != "/tmp/trades.db" {
		t.Fatalf("database.path = %q, want /tmp/trades.db", cfg.Database.Path)
	}
	if !cfg.Notifications.Telegram.Enabled {
		t.Fatalf("telegram.enabled = false, want true when token and chat id come from env")
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Environment != EnvProduction {
		t.Fatalf("environment = %q, want production", cfg.Environment)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	_, err := LoadWithEnv("", envMap(map[string]string{"PORT": "http"}))
	if err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Fatalf("LoadWithEnv() error = %v, want PORT error", err)
	}
}

func TestLoadRejectsInvalidTestnetFlag(t *testing.T) {
	_, err := LoadWithEnv("", envMap(map[string]string{"BINANCE_TESTNET": "maybe"}))
	if err == nil || !strings.Contains(err.Error(), "BINANCE_TESTNET") {
		t.Fatalf("LoadWithEnv() error = %v, want BINANCE_TESTNET error", err)
	}
}

func TestPartialCredentialsIsPaperOnly(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(map[string]string{"BINANCE_API_KEY": "key-only"}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if cfg.Exchange.HasCredentials() {
		t.Fatalf("HasCredentials() = true, want false")
	}
	if !cfg.Exchange.PartialCredentials() {
		t.Fatalf("PartialCredentials() = false, want true")
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	cfgPath := writeTempConfig(t, `
exchange:
  api_key: k
  unknown_field: true
`)
	_, err := LoadWithEnv(cfgPath, noEnv)
	if err == nil {
		t.Fatalf("LoadWithEnv() error = nil, want unknown field error")
	}
	if !strings.Contains(err.Error(), "unknown_field") {
		t.Fatalf("error = %v, want mention of unknown_field", err)
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	cfgPath := writeTempConfig(t, `
log:
  level: info
---
log:
  level: debug
`)
	if _, err := LoadWithEnv(cfgPath, noEnv); err == nil {
		t.Fatalf("LoadWithEnv() error = nil, want single document error")
	}
}

func TestLoadRejectsInvalidRestBaseURL(t *testing.T) {
	cfgPath := writeTempConfig(t, `
exchange:
  rest_base_url: ftp://api.binance.com
`)
	_, err := LoadWithEnv(cfgPath, noEnv)
	if err == nil || !strings.Contains(err.Error(), "exchange.rest_base_url") {
		t.Fatalf("LoadWithEnv() error = %v, want rest_base_url error", err)
	}
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	cfgPath := writeTempConfig(t, `
environment: qa
`)
	if _, err := LoadWithEnv(cfgPath, noEnv); err == nil {
		t.Fatalf("LoadWithEnv() error = nil, want environment error")
	}
}

func TestLoadParsesMaxLiveNotional(t *testing.T) {
	cfgPath := writeTempConfig(t, `
execution:
  max_live_notional: "2500.50"
`)
	cfg, err := LoadWithEnv(cfgPath, noEnv)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if !cfg.Execution.MaxLiveNotional.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("execution.max_live_notional = %s, want 2500.50", cfg.Execution.MaxLiveNotional.String())
	}
}

func TestLoadMaxLiveNotionalFromEnv(t *testing.T) {
	cfg, err := LoadWithEnv("", envMap(map[string]string{"MAX_LIVE_NOTIONAL": " 1000 "}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if !cfg.Execution.MaxLiveNotional.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("execution.max_live_notional = %s, want 1000", cfg.Execution.MaxLiveNotional.String())
	}
	if _, err := LoadWithEnv("", envMap(map[string]string{"MAX_LIVE_NOTIONAL": "lots"})); err == nil {
		t.Fatalf("LoadWithEnv() error = nil, want MAX_LIVE_NOTIONAL error")
	}
}

func TestLoadRejectsNegativeMaxLiveNotional(t *testing.T) {
	cfgPath := writeTempConfig(t, `
execution:
  max_live_notional: "-1"
`)
	if _, err := LoadWithEnv(cfgPath, noEnv); err == nil {
		t.Fatalf("LoadWithEnv() error = nil, want max_live_notional error")
	}
}

func TestLoadRejectsInvalidCircuitBreaker(t *testing.T) {
	cfgPath := writeTempConfig(t, `
execution:
  circuit_breaker:
    enabled: true
    cooldown_sec: 7200
`)
	_, err := LoadWithEnv(cfgPath, noEnv)
	if err == nil || !strings.Contains(err.Error(), "cooldown_sec") {
		t.Fatalf("LoadWithEnv() error = %v, want cooldown_sec error", err)
	}
}

func TestLoadTelegramDisabledIgnoresInvalidAPIBaseURL(t *testing.T) {
	cfgPath := writeTempConfig(t, `
notifications:
  telegram:
    enabled: false
    api_base_url: "://bad"
`)
	if _, err := LoadWithEnv(cfgPath, noEnv); err != nil {
		t.Fatalf("LoadWithEnv() error = %v, want nil when telegram disabled", err)
	}
}

func TestLoadTelegramEnabledRequiresToken(t *testing.T) {
	cfgPath := writeTempConfig(t, `
notifications:
  telegram:
    enabled: true
    chat_id: "1"
`)
	_, err := LoadWithEnv(cfgPath, noEnv)
	if err == nil || !strings.Contains(err.Error(), "bot_token") {
		t.Fatalf("LoadWithEnv() error = %v, want bot_token error", err)
	}
}

func TestLoadDotEnvDoesNotOverrideExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TRADEBOT_DOTENV_A=from-file\nTRADEBOT_DOTENV_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}
	t.Setenv("TRADEBOT_DOTENV_A", "from-env")
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("TRADEBOT_DOTENV_B") })
	if got := os.Getenv("TRADEBOT_DOTENV_A"); got != "from-env" {
		t.Fatalf("TRADEBOT_DOTENV_A = %q, want from-env", got)
	}
	if got := os.Getenv("TRADEBOT_DOTENV_B"); got != "from-file" {
		t.Fatalf("TRADEBOT_DOTENV_B = %q, want from-file", got)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write temp config failed: %v", err)
	}
	return path
}
