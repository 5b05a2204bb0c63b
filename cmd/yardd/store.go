package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/infra"
	"github.com/xela07ax/yardwatch/internal/repository/postgres"
	"github.com/xela07ax/yardwatch/internal/repository/sqlite"
)

// store — то, что data plane берет из БД: архив алертов и ручные статусы.
type store interface {
	WriteAlerts(ctx context.Context, records []domain.AlertRecord) error
	ListOverrides(ctx context.Context) ([]domain.Override, error)
	Ping(ctx context.Context) error
	Close()
}

// openStore возвращает nil, nil для driver=none.
func openStore(ctx context.Context, cfg infra.DatabaseConfig) (store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.Driver {
	case infra.DriverPostgres:
		repo, err := postgres.NewRepo(ctx, postgres.PoolConfig{URL: cfg.URL, MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("database unreachable: %w", err)
		}
		if cfg.Migrate {
			if err := repo.Migrate(); err != nil {
				repo.Close()
				return nil, err
			}
		}
		return repo, nil
	case infra.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, nil
	}
}
