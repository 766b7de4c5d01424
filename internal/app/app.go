// Package app provides application-level wiring and dependency injection
// for the tablesheet server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/juju/clock"

	"tablesheet/internal/api"
	"tablesheet/internal/config"
	internaldb "tablesheet/internal/db"
	"tablesheet/internal/db/mongostore"
	"tablesheet/internal/db/repository"
	"tablesheet/internal/domain"
	"tablesheet/internal/mapper"
	"tablesheet/internal/middleware"
	"tablesheet/internal/notify"
	"tablesheet/internal/refresh"
	"tablesheet/internal/rowsource"
	"tablesheet/internal/service/table"
)

// Deps holds the external dependencies that main() must provide.
type Deps struct {
	Cfg    *config.Config
	Logger *slog.Logger

	// Overrides for tests; nil selects the configured implementation.
	Repo      domain.TableRepository
	Source    domain.RowSource
	Validator middleware.JWTValidator
	Clock     clock.Clock
}

// App holds the fully-wired application.
type App struct {
	Router    http.Handler
	Tables    *table.Service
	Hub       *notify.Hub
	Refresher *refresh.Refresher // nil when REFRESH_SCHEDULE is empty

	closers []func() error
}

// New wires the store, row source, services, notifier, and router.
// ctx bounds background goroutines such as the rate limiter's eviction loop.
func New(ctx context.Context, deps Deps) (_ *App, err error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// === Table store ===
	repo := deps.Repo
	if repo == nil {
		repo, err = a.openStore(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	// === Row source ===
	src := deps.Source
	if src == nil {
		src, err = openSource(ctx, cfg.Source, logger)
		if err != nil {
			return nil, err
		}
	}
	src = rowsource.NewRetryingSource(src, rowsource.RetryConfig{
		Attempts:       cfg.Source.RetryAttempts,
		Delay:          cfg.Source.RetryDelay,
		MaxDelay:       cfg.Source.RetryMaxDelay,
		AttemptTimeout: cfg.Source.FetchTimeout,
	}, deps.Clock, logger.With("component", "rowsource"))

	// === Services ===
	datePolicy, err := mapper.ParseDatePolicy(cfg.Policy.DatePolicy)
	if err != nil {
		return nil, err
	}
	a.Hub = notify.NewHub(cfg.NotifyQueueSize, logger.With("component", "notify"))
	a.Tables = table.NewService(table.Deps{
		Repo:      repo,
		Source:    src,
		Publisher: a.Hub,
		Policy: table.Policy{
			RejectColumnCollisions:    cfg.Policy.RejectColumnCollisions,
			RejectDuplicateTableNames: cfg.Policy.RejectDuplicateTableNames,
			DatePolicy:                datePolicy,
		},
		PublishTimeout: refreshTimeout(cfg.Source),
		Logger:         logger.With("component", "tables"),
	})

	if cfg.RefreshSchedule != "" {
		a.Refresher = refresh.New(refresh.Config{
			Schedule:    cfg.RefreshSchedule,
			Tables:      repo,
			Source:      src,
			Projector:   a.Tables,
			Subs:        a.Hub,
			TickTimeout: refreshTimeout(cfg.Source),
			Logger:      logger.With("component", "refresh"),
		})
	}

	// === HTTP ===
	validator := deps.Validator
	if validator == nil {
		validator, err = middleware.NewValidator(ctx, cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth validator: %w", err)
		}
	}

	handler := api.NewHandler(a.Tables, logger.With("component", "api"))
	stream := notify.NewStreamHandler(a.Hub, a.Tables, originChecker(cfg.CORSAllowedOrigins), logger.With("component", "stream"))
	stream.OnError = handler.WriteError

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimitRPS > 0 {
		rateLimit = middleware.RateLimiter(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		})
	}

	a.Router = api.NewRouter(api.RouterDeps{
		Handler:     handler,
		Stream:      stream,
		Auth:        middleware.AuthMiddleware(validator, logger.With("component", "auth")),
		RateLimit:   rateLimit,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger.With("component", "http"),
	})
	return a, nil
}

// Close waits for background publishes and releases store connections.
func (a *App) Close() error {
	if a.Tables != nil {
		a.Tables.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(cfg *config.Config, logger *slog.Logger) (domain.TableRepository, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		store, err := mongostore.Dial(cfg.MongoURL, cfg.MongoDatabase, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		logger.Info("table store ready", "backend", "mongo", "database", cfg.MongoDatabase)
		return store, nil
	default:
		writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.DBPath, 4)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, writeDB.Close, readDB.Close)
		if err := internaldb.RunMigrations(writeDB); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		version, err := internaldb.MigrationVersion(writeDB)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("table store ready", "backend", "sqlite", "path", cfg.DBPath, "schema_version", version)
		return repository.NewTableRepo(writeDB, readDB), nil
	}
}

func openSource(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (domain.RowSource, error) {
	switch cfg.Provider {
	case config.SourceSheets:
		src, err := rowsource.NewSheetsSource(ctx, rowsource.SheetsConfig{
			SpreadsheetID:   cfg.SpreadsheetID,
			Range:           cfg.Range,
			CredentialsFile: cfg.CredentialsFile,
			APIKey:          cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("sheets source: %w", err)
		}
		logger.Info("row source ready", "provider", "sheets", "range", cfg.Range)
		return src, nil
	default:
		var records []domain.Record
		if cfg.CSVPath != "" {
			var err error
			records, err = rowsource.LoadCSVFile(cfg.CSVPath)
			if err != nil {
				return nil, fmt.Errorf("static source: %w", err)
			}
		}
		logger.Info("row source ready", "provider", "static", "records", len(records))
		return rowsource.NewStaticSource(records), nil
	}
}

// refreshTimeout bounds one background re-projection, leaving room for the
// retrying source to use every attempt.
func refreshTimeout(cfg config.SourceConfig) time.Duration {
	return cfg.FetchTimeout * time.Duration(max(cfg.RetryAttempts, 1)*2)
}

// originChecker allows websocket upgrades from the configured CORS origins.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
