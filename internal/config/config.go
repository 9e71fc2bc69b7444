package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

const (
	ProductionRestBaseURL = "https://api.binance.com"
	TestnetRestBaseURL    = "https://testnet.binance.vision"
)

type Config struct {
	Environment   Environment         `yaml:"environment"`
	Server        ServerConfig        `yaml:"server"`
	Exchange      ExchangeConfig      `yaml:"exchange"`
	Execution     ExecutionConfig     `yaml:"execution"`
	Database      DatabaseConfig      `yaml:"database"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Log           LogConfig           `yaml:"log"`
}

type ServerConfig struct {
	Addr               string   `yaml:"addr"`
	ReadTimeoutSec     int64    `yaml:"read_timeout_sec"`
	WriteTimeoutSec    int64    `yaml:"write_timeout_sec"`
	ShutdownTimeoutSec int64    `yaml:"shutdown_timeout_sec"`
	CORSOrigins        []string `yaml:"cors_origins"`
}

type ExchangeConfig struct {
	APIKey        string    `yaml:"api_key"`
	APISecret     string    `yaml:"api_secret"`
	Testnet       bool      `yaml:"testnet"`
	RestBaseURL   string    `yaml:"rest_base_url"`
	HTTPTimeoutMs int64     `yaml:"http_timeout_ms"`
	ReadRetry     RetryConf `yaml:"read_retry"`
}

type RetryConf struct {
	MaxTries          uint  `yaml:"max_tries"`
	InitialIntervalMs int64 `yaml:"initial_interval_ms"`
	MaxIntervalMs     int64 `yaml:"max_interval_ms"`
}

type ExecutionConfig struct {
	ReconcileTimeoutSec  int64                `yaml:"reconcile_timeout_sec"`
	ReconcileLookbackSec int64                `yaml:"reconcile_lookback_sec"`
	MaxLiveNotional      Decimal              `yaml:"max_live_notional"`
	CircuitBreaker       CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool  `yaml:"enabled"`
	MaxPlaceFailures int   `yaml:"max_place_failures"`
	CooldownSec      int64 `yaml:"cooldown_sec"`
}

type DatabaseConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type NotificationsConfig struct {
	Telegram      TelegramConfig `yaml:"telegram"`
	QueueSize     int            `yaml:"queue_size"`
	DropReportSec int64          `yaml:"drop_report_sec"`
}

type TelegramConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIBaseURL string `yaml:"api_base_url"`
	TimeoutSec int64  `yaml:"timeout_sec"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// HasCredentials reports whether both halves of the API credential pair are set.
func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.APISecret != ""
}

// PartialCredentials reports a key without a secret or the reverse.
func (e ExchangeConfig) PartialCredentials() bool {
	return (e.APIKey == "") != (e.APISecret == "")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the optional YAML file at path, overlays the environment and
// validates the result. An empty path means environment only.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("config must contain a single YAML document")
		}
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setString("BINANCE_API_KEY", &c.Exchange.APIKey)
	setString("BINANCE_SECRET", &c.Exchange.APISecret)
	setString("DATABASE_PATH", &c.Database.Path)
	setString("TELEGRAM_BOT_TOKEN", &c.Notifications.Telegram.BotToken)
	setString("TELEGRAM_CHAT_ID", &c.Notifications.Telegram.ChatID)
	setString("LOG_LEVEL", &c.Log.Level)
	if v, ok := lookup("APP_ENV"); ok && strings.TrimSpace(v) != "" {
		c.Environment = Environment(v)
	}
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("PORT must be a number between 1 and 65535")
		}
		c.Server.Addr = ":" + strconv.Itoa(port)
	}
	if v, ok := lookup("BINANCE_TESTNET"); ok && strings.TrimSpace(v) != "" {
		testnet, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BINANCE_TESTNET must be a boolean")
		}
		c.Exchange.Testnet = testnet
	}
	if v, ok := lookup("MAX_LIVE_NOTIONAL"); ok && strings.TrimSpace(v) != "" {
		limit, err := parseDecimal(v)
		if err != nil {
			return fmt.Errorf("MAX_LIVE_NOTIONAL: %w", err)
		}
		c.Execution.MaxLiveNotional = limit
	}
	_, tokenFromEnv := lookup("TELEGRAM_BOT_TOKEN")
	if tokenFromEnv && c.Notifications.Telegram.BotToken != "" && c.Notifications.Telegram.ChatID != "" {
		c.Notifications.Telegram.Enabled = true
	}
	return nil
}

func (c *Config) normalize() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimRight(strings.TrimSpace(c.Exchange.RestBaseURL), "/")
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	c.Notifications.Telegram.BotToken = strings.TrimSpace(c.Notifications.Telegram.BotToken)
	c.Notifications.Telegram.ChatID = strings.TrimSpace(c.Notifications.Telegram.ChatID)
	c.Notifications.Telegram.APIBaseURL = strings.TrimSpace(c.Notifications.Telegram.APIBaseURL)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	origins := make([]string, 0, len(c.Server.CORSOrigins))
	for _, o := range c.Server.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.CORSOrigins = origins
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":10000"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 30
	}
	if c.Server.ShutdownTimeoutSec == 0 {
		c.Server.ShutdownTimeoutSec = 10
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Exchange.RestBaseURL == "" {
		if c.Exchange.Testnet {
			c.Exchange.RestBaseURL = TestnetRestBaseURL
		} else {
			c.Exchange.RestBaseURL = ProductionRestBaseURL
		}
	}
	if c.Exchange.HTTPTimeoutMs == 0 {
		c.Exchange.HTTPTimeoutMs = 10000
	}
	if c.Exchange.ReadRetry.MaxTries == 0 {
		c.Exchange.ReadRetry.MaxTries = 3
	}
	if c.Exchange.ReadRetry.InitialIntervalMs == 0 {
		c.Exchange.ReadRetry.InitialIntervalMs = 200
	}
	if c.Exchange.ReadRetry.MaxIntervalMs == 0 {
		c.Exchange.ReadRetry.MaxIntervalMs = 2000
	}
	if c.Execution.ReconcileTimeoutSec == 0 {
		c.Execution.ReconcileTimeoutSec = 10
	}
	if c.Execution.ReconcileLookbackSec == 0 {
		c.Execution.ReconcileLookbackSec = 60
	}
	if c.Execution.CircuitBreaker.MaxPlaceFailures == 0 {
		c.Execution.CircuitBreaker.MaxPlaceFailures = 3
	}
	if c.Execution.CircuitBreaker.CooldownSec == 0 {
		c.Execution.CircuitBreaker.CooldownSec = 60
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/trading.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 1
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = 128
	}
	if c.Notifications.DropReportSec == 0 {
		c.Notifications.DropReportSec = 60
	}
	if c.Notifications.Telegram.APIBaseURL == "" {
		c.Notifications.Telegram.APIBaseURL = "https://api.telegram.org"
	}
	if c.Notifications.Telegram.TimeoutSec == 0 {
		c.Notifications.Telegram.TimeoutSec = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, "test", "staging":
	default:
		return fmt.Errorf("environment must be development, staging, production or test")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ReadTimeoutSec < 1 || c.Server.ReadTimeoutSec > 300 {
		return fmt.Errorf("server.read_timeout_sec must be between 1 and 300")
	}
	if c.Server.WriteTimeoutSec < 1 || c.Server.WriteTimeoutSec > 300 {
		return fmt.Errorf("server.write_timeout_sec must be between 1 and 300")
	}
	if c.Server.ShutdownTimeoutSec < 1 || c.Server.ShutdownTimeoutSec > 120 {
		return fmt.Errorf("server.shutdown_timeout_sec must be between 1 and 120")
	}
	if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange.rest_base_url %v", err)
	}
	if c.Exchange.HTTPTimeoutMs < 100 || c.Exchange.HTTPTimeoutMs > 120000 {
		return fmt.Errorf("exchange.http_timeout_ms must be between 100 and 120000")
	}
	if c.Exchange.ReadRetry.MaxTries > 10 {
		return fmt.Errorf("exchange.read_retry.max_tries must be <= 10")
	}
	if c.Exchange.ReadRetry.InitialIntervalMs < 0 || c.Exchange.ReadRetry.MaxIntervalMs < c.Exchange.ReadRetry.InitialIntervalMs {
		return fmt.Errorf("exchange.read_retry intervals must satisfy 0 <= initial <= max")
	}
	if c.Execution.ReconcileTimeoutSec < 1 || c.Execution.ReconcileTimeoutSec > 120 {
		return fmt.Errorf("execution.reconcile_timeout_sec must be between 1 and 120")
	}
	if c.Execution.ReconcileLookbackSec < 1 || c.Execution.ReconcileLookbackSec > 3600 {
		return fmt.Errorf("execution.reconcile_lookback_sec must be between 1 and 3600")
	}
	if c.Execution.MaxLiveNotional.IsNegative() {
		return fmt.Errorf("execution.max_live_notional must be >= 0")
	}
	if c.Execution.CircuitBreaker.Enabled {
		if c.Execution.CircuitBreaker.MaxPlaceFailures < 1 {
			return fmt.Errorf("execution.circuit_breaker.max_place_failures must be >= 1")
		}
		if c.Execution.CircuitBreaker.CooldownSec < 1 || c.Execution.CircuitBreaker.CooldownSec > 3600 {
			return fmt.Errorf("execution.circuit_breaker.cooldown_sec must be between 1 and 3600")
		}
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be >= 1")
	}
	if c.Notifications.QueueSize < 1 {
		return fmt.Errorf("notifications.queue_size must be >= 1")
	}
	if c.Notifications.DropReportSec < 0 || c.Notifications.DropReportSec > 3600 {
		return fmt.Errorf("notifications.drop_report_sec must be between 0 and 3600")
	}
	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.BotToken == "" {
			return fmt.Errorf("notifications.telegram.bot_token is required when telegram enabled")
		}
		if c.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("notifications.telegram.chat_id is required when telegram enabled")
		}
		if c.Notifications.Telegram.TimeoutSec < 1 || c.Notifications.Telegram.TimeoutSec > 120 {
			return fmt.Errorf("notifications.telegram.timeout_sec must be between 1 and 120")
		}
		if err := validateURL(c.Notifications.Telegram.APIBaseURL, "http", "https"); err != nil {
			return fmt.Errorf("notifications.telegram.api_base_url %v", err)
		}
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
