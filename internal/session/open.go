package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/bookkeeper/internal/config"
	infra "github.com/dvloznov/bookkeeper/internal/infra/bigquery"
)

// Open returns the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Dir)
	case config.BackendBolt:
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return NewBoltStore(cfg.Path)
	case config.BackendSQLite:
		if err := ensureParent(cfg.Path); err != nil {
			return nil, err
		}
		return NewSQLiteStore(ctx, cfg.Path)
	case config.BackendBigQuery:
		repo, err := infra.NewBigQuerySessionRepository(ctx, infra.Dataset{
			ProjectID: cfg.ProjectID,
			DatasetID: cfg.Dataset,
		})
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		return NewBigQueryStore(repo), nil
	}
	return nil, fmt.Errorf("Open: unknown storage backend %q", cfg.Backend)
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Open: creating directory for %s: %w", path, err)
	}
	return nil
}
