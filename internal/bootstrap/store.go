package bootstrap

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/insightlab/insightd/config"
	"github.com/insightlab/insightd/internal/core"
	"github.com/insightlab/insightd/internal/data"
)

// NewJobStore builds the batch job store selected by configuration. The
// returned closer is non-nil for backends that hold external resources.
func NewJobStore(cfg config.BatchConfig, logger *slog.Logger) (core.BatchJobStore, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Info("using in-memory job store")
		return data.NewMemoryStore(), nil, nil

	case config.StoreFile:
		store, err := data.NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("create file job store: %w", err)
		}
		logger.Info("using file job store", "dir", cfg.StorePath)
		return store, nil, nil

	case config.StoreSQLite:
		store, err := data.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite job store: %w", err)
		}
		logger.Info("using sqlite job store", "path", cfg.SQLitePath)
		return store, store, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}
}
