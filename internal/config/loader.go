package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EXECBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EXECBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Instrument ──
	setStr(&cfg.Instrument.Exchange, "EXECBOT_INSTRUMENT_EXCHANGE")
	setStr(&cfg.Instrument.Symbol, "EXECBOT_INSTRUMENT_SYMBOL")
	setStr(&cfg.Instrument.BaseAsset, "EXECBOT_INSTRUMENT_BASE_ASSET")
	setStr(&cfg.Instrument.QuoteAsset, "EXECBOT_INSTRUMENT_QUOTE_ASSET")
	setStr(&cfg.Instrument.PriceIncrement, "EXECBOT_INSTRUMENT_PRICE_INCREMENT")
	setStr(&cfg.Instrument.QuantityIncrement, "EXECBOT_INSTRUMENT_QUANTITY_INCREMENT")

	// ── Execution ──
	setStr(&cfg.Execution.Strategy, "EXECBOT_EXECUTION_STRATEGY")
	setStr(&cfg.Execution.Side, "EXECBOT_EXECUTION_SIDE")
	setStr(&cfg.Execution.TotalTargetQuantity, "EXECBOT_EXECUTION_TOTAL_TARGET_QUANTITY")
	setStr(&cfg.Execution.TotalTargetQuantityInQuote, "EXECBOT_EXECUTION_TOTAL_TARGET_QUANTITY_IN_QUOTE")
	setStr(&cfg.Execution.OrderPriceLimit, "EXECBOT_EXECUTION_ORDER_PRICE_LIMIT")
	setStr(&cfg.Execution.OrderPriceLimitRelativeToMidPrice, "EXECBOT_EXECUTION_ORDER_PRICE_LIMIT_RELATIVE_TO_MID_PRICE")
	setStr(&cfg.Execution.OrderQuantityLimitRelativeToTarget, "EXECBOT_EXECUTION_ORDER_QUANTITY_LIMIT_RELATIVE_TO_TARGET")
	setFloat64(&cfg.Execution.TwapOrderQuantityRandomizationMax, "EXECBOT_EXECUTION_TWAP_ORDER_QUANTITY_RANDOMIZATION_MAX")
	setInt(&cfg.Execution.OrderRefreshIntervalSeconds, "EXECBOT_EXECUTION_ORDER_REFRESH_INTERVAL_SECONDS")
	setInt(&cfg.Execution.OrderRefreshIntervalOffsetSeconds, "EXECBOT_EXECUTION_ORDER_REFRESH_INTERVAL_OFFSET_SECONDS")
	setInt(&cfg.Execution.AccountBalanceRefreshWaitSeconds, "EXECBOT_EXECUTION_ACCOUNT_BALANCE_REFRESH_WAIT_SECONDS")
	setInt(&cfg.Execution.NumOrderRefreshIntervals, "EXECBOT_EXECUTION_NUM_ORDER_REFRESH_INTERVALS")
	setInt(&cfg.Execution.TotalDurationSeconds, "EXECBOT_EXECUTION_TOTAL_DURATION_SECONDS")
	setStr(&cfg.Execution.StartTime, "EXECBOT_EXECUTION_START_TIME")
	setBool(&cfg.Execution.ImmediatelyPlaceNewOrders, "EXECBOT_EXECUTION_IMMEDIATELY_PLACE_NEW_ORDERS")
	setStr(&cfg.Execution.AccountID, "EXECBOT_EXECUTION_ACCOUNT_ID")
	setInt64(&cfg.Execution.RandomSeed, "EXECBOT_EXECUTION_RANDOM_SEED")

	// ── Fees ──
	setStr(&cfg.Fees.MakerFee, "EXECBOT_FEES_MAKER_FEE")
	setStr(&cfg.Fees.TakerFee, "EXECBOT_FEES_TAKER_FEE")
	setStr(&cfg.Fees.MakerBuyerFeeAsset, "EXECBOT_FEES_MAKER_BUYER_FEE_ASSET")
	setStr(&cfg.Fees.MakerSellerFeeAsset, "EXECBOT_FEES_MAKER_SELLER_FEE_ASSET")
	setStr(&cfg.Fees.TakerBuyerFeeAsset, "EXECBOT_FEES_TAKER_BUYER_FEE_ASSET")
	setStr(&cfg.Fees.TakerSellerFeeAsset, "EXECBOT_FEES_TAKER_SELLER_FEE_ASSET")

	// ── Risk ──
	setStr(&cfg.Risk.BaseAvailableBalanceProportion, "EXECBOT_RISK_BASE_AVAILABLE_BALANCE_PROPORTION")
	setStr(&cfg.Risk.QuoteAvailableBalanceProportion, "EXECBOT_RISK_QUOTE_AVAILABLE_BALANCE_PROPORTION")

	// ── Paper ──
	setStr(&cfg.Paper.BaseBalance, "EXECBOT_PAPER_BASE_BALANCE")
	setStr(&cfg.Paper.QuoteBalance, "EXECBOT_PAPER_QUOTE_BALANCE")

	// ── Backtest ──
	setStr(&cfg.Backtest.DataSource, "EXECBOT_BACKTEST_DATA_SOURCE")
	setStr(&cfg.Backtest.DataDir, "EXECBOT_BACKTEST_DATA_DIR")
	setStr(&cfg.Backtest.StartDate, "EXECBOT_BACKTEST_START_DATE")
	setStr(&cfg.Backtest.EndDate, "EXECBOT_BACKTEST_END_DATE")
	setInt(&cfg.Backtest.ClockStepSeconds, "EXECBOT_BACKTEST_CLOCK_STEP_SECONDS")

	// ── Recorder ──
	setStr(&cfg.Recorder.Dir, "EXECBOT_RECORDER_DIR")
	setStr(&cfg.Recorder.FilePrefix, "EXECBOT_RECORDER_FILE_PREFIX")
	setStr(&cfg.Recorder.FileSuffix, "EXECBOT_RECORDER_FILE_SUFFIX")
	setBool(&cfg.Recorder.OnlySaveFinalSummary, "EXECBOT_RECORDER_ONLY_SAVE_FINAL_SUMMARY")

	// ── Gateway ──
	setStr(&cfg.Gateway.WsURL, "EXECBOT_GATEWAY_WS_URL")
	setStr(&cfg.Gateway.RestURL, "EXECBOT_GATEWAY_REST_URL")
	setStr(&cfg.Gateway.ApiKey, "EXECBOT_GATEWAY_API_KEY")
	setStr(&cfg.Gateway.ApiSecret, "EXECBOT_GATEWAY_API_SECRET")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "EXECBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "EXECBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "EXECBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EXECBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EXECBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EXECBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EXECBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EXECBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EXECBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EXECBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EXECBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EXECBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EXECBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EXECBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EXECBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EXECBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EXECBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EXECBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "EXECBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "EXECBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EXECBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "EXECBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "EXECBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EXECBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "EXECBOT_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.UploadArtifacts, "EXECBOT_S3_UPLOAD_ARTIFACTS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EXECBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EXECBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EXECBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EXECBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "EXECBOT_MODE")
	setStr(&cfg.LogLevel, "EXECBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
