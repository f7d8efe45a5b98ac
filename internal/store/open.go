package store

import (
	"context"
	"fmt"
	"log/slog"

	"forge/internal/config"
	"forge/internal/db"
	"forge/internal/game"
	"forge/internal/store/pgstore"
	"forge/internal/store/sqlitestore"
)

// Open connects the backend named by cfg and brings its schema up to date.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (game.Store, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return pgstore.New(pool, logger), nil
	case config.StoreSQLite:
		return sqlitestore.Open(ctx, cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
