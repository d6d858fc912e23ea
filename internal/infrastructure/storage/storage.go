// Package storage holds the summary store adapters.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"articlepipe/internal/config"
	"articlepipe/internal/ports"
)

// Open connects the store selected by cfg.Kind. The returned close function
// releases its resources.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (ports.SummaryStore, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Kind {
	case config.StorePostgres:
		pool, err := OpenPool(ctx, cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		store := NewPostgresStore(pool, cfg.Collection)
		if cfg.Migrate {
			if err := store.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
			logger.Info("summary table ready", "table", cfg.Collection)
		}
		return store, pool.Close, nil
	case config.StoreAstra:
		store, err := NewAstraStore(cfg, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
