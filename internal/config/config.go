// Package config defines the top-level configuration for the execution
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by EXECBOT_* environment
// variables. Monetary values are decimal strings so no precision is lost
// between the file and the engine.
type Config struct {
	Instrument Instrument      `toml:"instrument"`
	Execution  ExecutionConfig `toml:"execution"`
	Fees       FeeConfig       `toml:"fees"`
	Risk       RiskConfig      `toml:"risk"`
	Paper      PaperConfig     `toml:"paper"`
	Backtest   BacktestConfig  `toml:"backtest"`
	Recorder   RecorderConfig  `toml:"recorder"`
	Gateway    GatewayConfig   `toml:"gateway"`
	Postgres   PostgresConfig  `toml:"postgres"`
	Redis      RedisConfig     `toml:"redis"`
	S3         S3Config        `toml:"s3"`
	Notify     NotifyConfig    `toml:"notify"`
	Mode       string          `toml:"mode"`
	LogLevel   string          `toml:"log_level"`
}

// Instrument identifies the traded market and its tick sizes.
type Instrument struct {
	Exchange          string `toml:"exchange"`
	Symbol            string `toml:"symbol"`
	BaseAsset         string `toml:"base_asset"`
	QuoteAsset        string `toml:"quote_asset"`
	PriceIncrement    string `toml:"price_increment"`
	QuantityIncrement string `toml:"quantity_increment"`
}

// ExecutionConfig holds the order-slicing parameters for one run.
type ExecutionConfig struct {
	Strategy string `toml:"strategy"`
	Side     string `toml:"side"`

	// Exactly one of the two targets may be set; the other stays "0".
	TotalTargetQuantity        string `toml:"total_target_quantity"`
	TotalTargetQuantityInQuote string `toml:"total_target_quantity_in_quote"`

	OrderPriceLimit                    string  `toml:"order_price_limit"`
	OrderPriceLimitRelativeToMidPrice  string  `toml:"order_price_limit_relative_to_mid_price"`
	OrderQuantityLimitRelativeToTarget string  `toml:"order_quantity_limit_relative_to_target"`
	TwapOrderQuantityRandomizationMax  float64 `toml:"twap_order_quantity_randomization_max"`

	OrderRefreshIntervalSeconds int `toml:"order_refresh_interval_seconds"`
	// OrderRefreshIntervalOffsetSeconds pins refresh ticks to a
	// wall-clock offset within the interval; -1 disables offset mode.
	OrderRefreshIntervalOffsetSeconds int `toml:"order_refresh_interval_offset_seconds"`
	AccountBalanceRefreshWaitSeconds  int `toml:"account_balance_refresh_wait_seconds"`
	NumOrderRefreshIntervals          int `toml:"num_order_refresh_intervals"`
	TotalDurationSeconds              int `toml:"total_duration_seconds"`

	// StartTime is RFC3339; empty means "now" (LIVE/PAPER) or the
	// backtest start date.
	StartTime string `toml:"start_time"`

	ImmediatelyPlaceNewOrders bool   `toml:"immediately_place_new_orders"`
	AccountID                 string `toml:"account_id"`
	RandomSeed                int64  `toml:"random_seed"`
}

// FeeConfig holds maker/taker fee rates and fee-asset assignments.
type FeeConfig struct {
	MakerFee            string `toml:"maker_fee"`
	TakerFee            string `toml:"taker_fee"`
	MakerBuyerFeeAsset  string `toml:"maker_buyer_fee_asset"`
	MakerSellerFeeAsset string `toml:"maker_seller_fee_asset"`
	TakerBuyerFeeAsset  string `toml:"taker_buyer_fee_asset"`
	TakerSellerFeeAsset string `toml:"taker_seller_fee_asset"`
}

// RiskConfig holds the haircut applied to venue-reported balances.
type RiskConfig struct {
	BaseAvailableBalanceProportion  string `toml:"base_available_balance_proportion"`
	QuoteAvailableBalanceProportion string `toml:"quote_available_balance_proportion"`
}

// PaperConfig seeds the simulated account for PAPER and BACKTEST runs.
type PaperConfig struct {
	BaseBalance  string `toml:"base_balance"`
	QuoteBalance string `toml:"quote_balance"`
}

// BacktestConfig locates the historical market data and sets replay pace.
type BacktestConfig struct {
	// DataSource is "local" or "s3".
	DataSource       string `toml:"data_source"`
	DataDir          string `toml:"data_dir"`
	StartDate        string `toml:"start_date"`
	EndDate          string `toml:"end_date"`
	ClockStepSeconds int    `toml:"clock_step_seconds"`
}

// RecorderConfig controls CSV output.
type RecorderConfig struct {
	Dir                  string `toml:"dir"`
	FilePrefix           string `toml:"file_prefix"`
	FileSuffix           string `toml:"file_suffix"`
	OnlySaveFinalSummary bool   `toml:"only_save_final_summary"`
}

// GatewayConfig holds exchange connectivity for LIVE and PAPER modes.
type GatewayConfig struct {
	WsURL     string `toml:"ws_url"`
	RestURL   string `toml:"rest_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters. Used both for
// fetching backtest data and for uploading run artifacts.
type S3Config struct {
	Enabled         bool   `toml:"enabled"`
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	Bucket          string `toml:"bucket"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	ForcePathStyle  bool   `toml:"force_path_style"`
	UploadArtifacts bool   `toml:"upload_artifacts"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Instrument: Instrument{
			Exchange:          "binance",
			Symbol:            "BTCUSDT",
			BaseAsset:         "BTC",
			QuoteAsset:        "USDT",
			PriceIncrement:    "0.01",
			QuantityIncrement: "0.00001",
		},
		Execution: ExecutionConfig{
			Strategy:                           "TWAP",
			Side:                               "BUY",
			TotalTargetQuantity:                "0",
			TotalTargetQuantityInQuote:         "0",
			OrderPriceLimit:                    "0",
			OrderPriceLimitRelativeToMidPrice:  "0",
			OrderQuantityLimitRelativeToTarget: "1",
			TwapOrderQuantityRandomizationMax:  1,
			OrderRefreshIntervalSeconds:        10,
			OrderRefreshIntervalOffsetSeconds:  -1,
			AccountBalanceRefreshWaitSeconds:   0,
			NumOrderRefreshIntervals:           6,
			TotalDurationSeconds:               60,
			RandomSeed:                         1,
		},
		Fees: FeeConfig{
			MakerFee:            "0",
			TakerFee:            "0",
			MakerBuyerFeeAsset:  "",
			MakerSellerFeeAsset: "",
			TakerBuyerFeeAsset:  "",
			TakerSellerFeeAsset: "",
		},
		Risk: RiskConfig{
			BaseAvailableBalanceProportion:  "1",
			QuoteAvailableBalanceProportion: "1",
		},
		Paper: PaperConfig{
			BaseBalance:  "0",
			QuoteBalance: "0",
		},
		Backtest: BacktestConfig{
			DataSource:       "local",
			DataDir:          "data",
			ClockStepSeconds: 1,
		},
		Recorder: RecorderConfig{
			Dir:        "output",
			FilePrefix: "",
			FileSuffix: "",
		},
		Gateway: GatewayConfig{
			WsURL:   "wss://stream.binance.com:9443",
			RestURL: "https://api.binance.com",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "execbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region: "us-east-1",
			Bucket: "execbot-data",
		},
		Notify: NotifyConfig{
			Events: []string{"run_complete", "error"},
		},
		Mode:     "PAPER",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"LIVE":     true,
	"PAPER":    true,
	"BACKTEST": true,
}

// validStrategies enumerates the accepted execution strategies. Only TWAP
// has sizing behavior today; the rest fail at sizing time.
var validStrategies = map[string]bool{
	"TWAP": true,
	"VWAP": true,
	"POV":  true,
	"IS":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToUpper(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: LIVE, PAPER, BACKTEST)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Instrument
	if c.Instrument.Symbol == "" {
		errs = append(errs, "instrument: symbol must not be empty")
	}
	if c.Instrument.BaseAsset == "" || c.Instrument.QuoteAsset == "" {
		errs = append(errs, "instrument: base_asset and quote_asset must not be empty")
	}
	for _, f := range []struct{ name, value string }{
		{"instrument.price_increment", c.Instrument.PriceIncrement},
		{"instrument.quantity_increment", c.Instrument.QuantityIncrement},
	} {
		if d, err := decimal.NewFromString(f.value); err != nil || !d.IsPositive() {
			errs = append(errs, fmt.Sprintf("%s must be a positive decimal, got %q", f.name, f.value))
		}
	}

	// Execution
	if !validStrategies[strings.ToUpper(c.Execution.Strategy)] {
		errs = append(errs, fmt.Sprintf("execution: unknown strategy %q (valid: TWAP, VWAP, POV, IS)", c.Execution.Strategy))
	}
	side := strings.ToUpper(c.Execution.Side)
	if side != "BUY" && side != "SELL" {
		errs = append(errs, fmt.Sprintf("execution: side must be BUY or SELL, got %q", c.Execution.Side))
	}
	targetBase, errBase := decimal.NewFromString(c.Execution.TotalTargetQuantity)
	targetQuote, errQuote := decimal.NewFromString(c.Execution.TotalTargetQuantityInQuote)
	switch {
	case errBase != nil || errQuote != nil:
		errs = append(errs, "execution: targets must be decimals")
	case targetBase.IsPositive() && targetQuote.IsPositive():
		errs = append(errs, "execution: set only one of total_target_quantity and total_target_quantity_in_quote")
	case !targetBase.IsPositive() && !targetQuote.IsPositive():
		errs = append(errs, "execution: one of total_target_quantity and total_target_quantity_in_quote must be positive")
	}
	for _, f := range []struct{ name, value string }{
		{"execution.order_price_limit", c.Execution.OrderPriceLimit},
		{"execution.order_price_limit_relative_to_mid_price", c.Execution.OrderPriceLimitRelativeToMidPrice},
		{"execution.order_quantity_limit_relative_to_target", c.Execution.OrderQuantityLimitRelativeToTarget},
	} {
		if _, err := decimal.NewFromString(f.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a decimal, got %q", f.name, f.value))
		}
	}
	if c.Execution.OrderRefreshIntervalSeconds <= 0 {
		errs = append(errs, "execution: order_refresh_interval_seconds must be positive")
	}
	if off := c.Execution.OrderRefreshIntervalOffsetSeconds; off != -1 &&
		(off < 0 || off >= c.Execution.OrderRefreshIntervalSeconds) {
		errs = append(errs, fmt.Sprintf("execution: order_refresh_interval_offset_seconds must be -1 or in [0, %d)", c.Execution.OrderRefreshIntervalSeconds))
	}
	if c.Execution.AccountBalanceRefreshWaitSeconds < 0 {
		errs = append(errs, "execution: account_balance_refresh_wait_seconds must be >= 0")
	}
	if c.Execution.NumOrderRefreshIntervals <= 0 {
		errs = append(errs, "execution: num_order_refresh_intervals must be positive")
	}
	if c.Execution.TotalDurationSeconds <= 0 {
		errs = append(errs, "execution: total_duration_seconds must be positive")
	}
	if c.Execution.TwapOrderQuantityRandomizationMax < 0 {
		errs = append(errs, "execution: twap_order_quantity_randomization_max must be >= 0")
	}
	if c.Execution.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, c.Execution.StartTime); err != nil {
			errs = append(errs, fmt.Sprintf("execution: start_time must be RFC3339, got %q", c.Execution.StartTime))
		}
	}

	// Fees
	for _, f := range []struct{ name, value string }{
		{"fees.maker_fee", c.Fees.MakerFee},
		{"fees.taker_fee", c.Fees.TakerFee},
	} {
		if _, err := decimal.NewFromString(f.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a decimal, got %q", f.name, f.value))
		}
	}

	// Risk
	for _, f := range []struct{ name, value string }{
		{"risk.base_available_balance_proportion", c.Risk.BaseAvailableBalanceProportion},
		{"risk.quote_available_balance_proportion", c.Risk.QuoteAvailableBalanceProportion},
	} {
		if d, err := decimal.NewFromString(f.value); err != nil || !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(1)) {
			errs = append(errs, fmt.Sprintf("%s must be a decimal in (0, 1], got %q", f.name, f.value))
		}
	}

	mode := strings.ToUpper(c.Mode)

	// Paper balances matter whenever fills are simulated.
	if mode == "PAPER" || mode == "BACKTEST" {
		for _, f := range []struct{ name, value string }{
			{"paper.base_balance", c.Paper.BaseBalance},
			{"paper.quote_balance", c.Paper.QuoteBalance},
		} {
			if d, err := decimal.NewFromString(f.value); err != nil || d.IsNegative() {
				errs = append(errs, fmt.Sprintf("%s must be a non-negative decimal, got %q", f.name, f.value))
			}
		}
	}

	// Backtest
	if mode == "BACKTEST" {
		if c.Backtest.DataSource != "local" && c.Backtest.DataSource != "s3" {
			errs = append(errs, fmt.Sprintf("backtest: data_source must be local or s3, got %q", c.Backtest.DataSource))
		}
		for _, f := range []struct{ name, value string }{
			{"backtest.start_date", c.Backtest.StartDate},
			{"backtest.end_date", c.Backtest.EndDate},
		} {
			if _, err := time.Parse("2006-01-02", f.value); err != nil {
				errs = append(errs, fmt.Sprintf("%s must be YYYY-MM-DD, got %q", f.name, f.value))
			}
		}
		if c.Backtest.ClockStepSeconds <= 0 {
			errs = append(errs, "backtest: clock_step_seconds must be positive")
		}
	}

	// Gateway credentials are only needed when orders go to the venue.
	if mode == "LIVE" {
		if c.Gateway.ApiKey == "" || c.Gateway.ApiSecret == "" {
			errs = append(errs, "gateway: api_key and api_secret are required for LIVE mode")
		}
		if c.Gateway.RestURL == "" || c.Gateway.WsURL == "" {
			errs = append(errs, "gateway: ws_url and rest_url must not be empty")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled || (mode == "BACKTEST" && c.Backtest.DataSource == "s3") {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Decimal parses a config decimal string. Call only after Validate; an
// unparseable value here is a programming error.
func Decimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("config: invalid decimal %q: %v", s, err))
	}
	return d
}
