package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	s3blob "github.com/alanyoungcy/execbot/internal/blob/s3"
	"github.com/alanyoungcy/execbot/internal/cache/redis"
	"github.com/alanyoungcy/execbot/internal/config"
	"github.com/alanyoungcy/execbot/internal/domain"
	"github.com/alanyoungcy/execbot/internal/exec"
	"github.com/alanyoungcy/execbot/internal/notify"
	"github.com/alanyoungcy/execbot/internal/recorder"
	"github.com/alanyoungcy/execbot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the run modes need. Constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	RunID string

	// Recorder fans out to CSV and, when enabled, PostgreSQL.
	Recorder domain.Recorder

	// Publisher is nil unless Redis is enabled.
	Publisher exec.Publisher
	BookCache *redis.BookCache

	// Blob storage, nil unless S3 is enabled or the backtest reads from it.
	BlobReader *s3blob.Reader
	BlobWriter *s3blob.Writer

	Notifier *notify.Notifier
}

// needsS3 reports whether the run requires object storage.
func needsS3(cfg *config.Config) bool {
	if cfg.S3.Enabled {
		return true
	}
	return strings.ToUpper(cfg.Mode) == "BACKTEST" && cfg.Backtest.DataSource == "s3"
}

// Wire constructs the concrete infrastructure from the configuration and
// returns it with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{RunID: uuid.NewString()}

	// --- Recorders ---
	startDate, endDate := runDates(cfg)
	csvRec, err := recorder.NewCSV(recorder.CSVOptions{
		Dir:                  cfg.Recorder.Dir,
		FilePrefix:           cfg.Recorder.FilePrefix,
		FileSuffix:           cfg.Recorder.FileSuffix,
		Exchange:             cfg.Instrument.Exchange,
		BaseAsset:            cfg.Instrument.BaseAsset,
		QuoteAsset:           cfg.Instrument.QuoteAsset,
		StartDate:            startDate,
		EndDate:              endDate,
		OnlySaveFinalSummary: cfg.Recorder.OnlySaveFinalSummary,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: csv recorder: %w", err)
	}
	closers = append(closers, func() { _ = csvRec.Close() })
	recorders := []domain.Recorder{csvRec}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		store := postgres.NewExecutionStore(pgClient.Pool(), deps.RunID)
		if err := store.CreateRun(ctx,
			cfg.Instrument.Exchange,
			cfg.Instrument.Symbol,
			strings.ToUpper(cfg.Mode),
			strings.ToUpper(cfg.Execution.Side),
		); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: create run: %w", err)
		}
		recorders = append(recorders, store)
	}

	deps.Recorder = recorder.NewMulti(recorders...)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Publisher = redis.NewEventBus(redisClient, deps.RunID)
		deps.BookCache = redis.NewBookCache(redisClient)
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// runDates resolves the date range stamped on the summary file: the
// backtest window when replaying, today otherwise.
func runDates(cfg *config.Config) (time.Time, time.Time) {
	if strings.ToUpper(cfg.Mode) == "BACKTEST" {
		start, _ := time.Parse("2006-01-02", cfg.Backtest.StartDate)
		end, _ := time.Parse("2006-01-02", cfg.Backtest.EndDate)
		return start, end
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	return today, today
}
