package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/soaringjerry/storeaudit/internal/config"
	"github.com/soaringjerry/storeaudit/internal/db"
)

// app holds what every subcommand needs: config, logger and the store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	conn   *sql.DB
	store  *db.SQLStore
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		if _, err := config.ParseLevel(g.logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = g.logLevel
	}
	return cfg, nil
}

// openApp loads config, opens the database and applies migrations.
func openApp(ctx context.Context, g *globalFlags) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()
	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(conn, cfg.Database.Driver, cfg.Database.MigrationsDir); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := db.NewSQLStore(conn, cfg.Database.Driver, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, conn: conn, store: store}, nil
}

func (a *app) Close() error { return a.conn.Close() }
