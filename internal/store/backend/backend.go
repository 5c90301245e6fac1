// Package backend opens the store implementation selected by STORE_DRIVER.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/albapepper/medminder/internal/config"
	"github.com/albapepper/medminder/internal/store"
	"github.com/albapepper/medminder/internal/store/postgres"
	"github.com/albapepper/medminder/internal/store/sqlite"
)

// Open connects to the configured backend and ensures its schema exists.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("Store connected", "driver", cfg.StoreDriver,
			"pool_min", cfg.DBPoolMinConns, "pool_max", cfg.DBPoolMaxConns)
		return st, nil

	case config.DriverSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		logger.Info("Store connected", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
