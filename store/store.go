// Package store opens the configured payroll storage backend.
package store

import (
	"context"
	"fmt"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/postgres"
	"github.com/warp/payroll-engine/store/sqlite"
)

// Backend is a transactional payroll store that owns a connection.
type Backend interface {
	payroll.TxStore
	Reset(ctx context.Context) error
	Close() error
}

// Open connects to the database named by cfg.Database.Driver.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
