// Package app provides application-level wiring and dependency injection
// for the dclake tools following hexagonal architecture.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"dclake/internal/blob"
	"dclake/internal/config"
	"dclake/internal/db"
	"dclake/internal/db/repository"
	"dclake/internal/engine"
	"dclake/internal/service/catalog"
	"dclake/internal/service/ingestion"
	"dclake/internal/service/join"
	"dclake/internal/tablestore"
)

// App holds the fully-wired application: one DuckDB session, the catalog,
// the canonical table store and the services built on them.
type App struct {
	Config    *config.Config
	Catalog   *catalog.LocalCatalog
	Store     *tablestore.Store
	Ingestion *ingestion.Service
	Joins     *join.Service
	Logger    *slog.Logger

	session  *engine.Session
	registry *sql.DB
	opener   *blob.Opener
}

// New wires all repositories, services, and the engine session from cfg.
// Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// === Registry ===
	a.registry, err = db.OpenRegistry(ctx, cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	fileRepo := repository.NewFileRepo(a.registry)
	locationRepo := repository.NewTableLocationRepo(a.registry)

	// === Storage ===
	a.opener = blob.NewOpener(cfg.Storage)
	bucket, err := a.opener.OpenURI(ctx, cfg.StoreURI)
	if err != nil {
		return nil, fmt.Errorf("open table store %s: %w", cfg.StoreURI, err)
	}
	a.Store = tablestore.New(bucket, tablestore.Options{Retain: cfg.Retain}, logger.With("component", "tablestore"))

	// === Engine ===
	a.session, err = engine.Open(ctx, engine.Options{
		Threads:     cfg.Threads,
		MemoryLimit: cfg.MemoryLimit,
		ScratchDir:  cfg.ScratchDir,
	}, logger.With("component", "engine"))
	if err != nil {
		return nil, err
	}

	// === Services ===
	a.Catalog = catalog.NewLocalCatalog(cfg.ProjectPath, fileRepo, locationRepo, a.opener, logger.With("component", "catalog"))
	a.Ingestion = ingestion.NewService(a.Catalog, a.Store, a.session, a.opener, logger.With("component", "ingestion"))
	a.Joins = join.NewService(a.Catalog, a.Store, a.session, a.Ingestion, logger.With("component", "join"))
	return a, nil
}

// Close releases the session, storage clients and the registry.
func (a *App) Close() error {
	var errs []error
	if a.session != nil {
		errs = append(errs, a.session.Close())
	}
	if a.opener != nil {
		errs = append(errs, a.opener.Close())
	}
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	return errors.Join(errs...)
}
