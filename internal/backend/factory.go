package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"koperasi/internal/ledger/memory"
	"koperasi/internal/storage"
	"koperasi/internal/storage/postgres"
)

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Open opens the store described by cfg. When pub is non-nil every
// successful commit is announced through it.
func (f *Factory) Open(ctx context.Context, cfg Config, pub ChangePublisher) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch cfg.Type {
	case MemoryBackend:
		res, err = f.openMemory(cfg)
	case SQLiteBackend:
		res, err = f.openSQLite(cfg)
	case PostgresBackend:
		res, err = f.openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if pub != nil {
		res.Store = NewPublishingStore(res.Store, pub, f.logger)
		f.logger.Info("Ledger change feed enabled", "backend", cfg.Type)
	}
	return res, nil
}

func (f *Factory) openMemory(cfg Config) (*Result, error) {
	store := memory.New(f.logger)
	if cfg.SnapshotPath != "" {
		if err := store.LoadFile(cfg.SnapshotPath); err != nil {
			store.Close()
			return nil, fmt.Errorf("load memory snapshot: %w", err)
		}
	}
	f.logger.Info("Initialized memory backend", "snapshot", cfg.SnapshotPath)

	return &Result{
		Store: store,
		Cleanup: func() error {
			var saveErr error
			if cfg.SnapshotPath != "" {
				saveErr = store.SaveFile(cfg.SnapshotPath)
			}
			return errors.Join(saveErr, store.Close())
		},
	}, nil
}

func (f *Factory) openSQLite(cfg Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	return &Result{Store: repo, Cleanup: repo.Close}, nil
}

func (f *Factory) openPostgres(ctx context.Context, cfg Config) (*Result, error) {
	store, err := postgres.Open(cfg.DatabaseURL, cfg.SlowThreshold, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	f.logger.Info("Initialized postgres backend")
	return &Result{Store: store, Cleanup: store.Close}, nil
}
