// Package bootstrap assembles the certificate service from configuration.
// Both the HTTP server and the certctl CLI start from here.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"certstamp/internal/config"
	"certstamp/internal/database"
	"certstamp/internal/database/migration"
	"certstamp/internal/events"
	"certstamp/internal/qrcode"
	"certstamp/internal/repository"
	"certstamp/internal/repository/memory"
	"certstamp/internal/repository/postgres"
	"certstamp/internal/repository/sqlite"
	"certstamp/internal/repository/xlsx"
	"certstamp/internal/service"
	"certstamp/internal/stamper"
	"certstamp/internal/storage"
)

// App holds the wired components and the resources to release on shutdown.
type App struct {
	Service  service.CertificateService
	Repo     repository.CertificateRepository
	Storage  storage.Storage
	Location *time.Location

	closers []func() error
}

// Close releases databases and brokers in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds every component cfg asks for. On error, anything already opened
// is closed again.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	app.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	app.Repo, err = app.newRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Storage, err = newStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pub, err := app.newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	layout, err := stamper.LoadLayout(cfg.LayoutFile)
	if err != nil {
		return nil, err
	}
	st, err := stamper.New(layout)
	if err != nil {
		return nil, err
	}
	enc, err := qrcode.NewEncoder(cfg.QR.Level, cfg.QR.Size)
	if err != nil {
		return nil, err
	}

	app.Service = service.NewCertificateService(app.Repo, app.Storage, st, enc,
		service.WithPublisher(pub),
		service.WithBaseURL(cfg.PublicBaseURL),
		service.WithLogger(logger),
		service.WithLocation(app.Location),
	)

	logger.Info("bootstrap.ready",
		"log_store", cfg.Log.Store,
		"qr_storage", cfg.QR.Storage,
		"events", len(cfg.Kafka.Brokers) > 0,
		"layout_file", cfg.LayoutFile,
	)
	return app, nil
}

func (a *App) newRepository(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (repository.CertificateRepository, error) {
	switch cfg.Log.Store {
	case config.StoreXLSX:
		return xlsx.NewCertificateXLSX(cfg.Log.XLSXPath, xlsx.WithLocation(a.Location))
	case config.StoreMemory:
		return memory.NewCertificateMemory(), nil
	case config.StoreSQLite:
		db, err := database.NewSQLite(ctx, cfg.Log.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := migrate(ctx, db, migration.SQLite, logger); err != nil {
			return nil, err
		}
		return sqlite.NewCertificateSQLite(db), nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := migrate(ctx, db, migration.Postgres, logger); err != nil {
			return nil, err
		}
		return postgres.NewCertificatePostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown LOG_STORE %q", cfg.Log.Store)
	}
}

func migrate(ctx context.Context, db *sql.DB, d migration.Dialect, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return migration.EnsureMigrated(ctx, db, d, logger)
}

func newStorage(ctx context.Context, cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.QR.Storage {
	case config.StorageLocal:
		return storage.NewLocal(cfg.QR.Dir)
	case config.StorageMinIO:
		return storage.NewMinIO(ctx, cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown QR_STORAGE %q", cfg.QR.Storage)
	}
}

func (a *App) newPublisher(cfg *config.AppConfig, logger *slog.Logger) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Noop{}, nil
	}
	p, err := events.NewKafkaPublisher(cfg.Kafka, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}
