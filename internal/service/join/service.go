// Package join validates, executes, previews and persists joins between the
// canonical tables of two data collections, and runs every join of a project
// as a batch.
package join

import (
	"context"
	"log/slog"
	"time"

	"dclake/internal/domain"
	"dclake/internal/engine"
	"dclake/internal/service/ingestion"
	"dclake/internal/tablestore"
)

// Store reads and writes canonical tables.
type Store interface {
	Location(dcID string) string
	Exists(ctx context.Context, dcID string) (bool, error)
	Read(ctx context.Context, sess *engine.Session, dcID string) (*tablestore.Snapshot, error)
	Write(ctx context.Context, dcID string, tbl *engine.Table, opts tablestore.WriteOptions) (*tablestore.Manifest, error)
}

// Processor builds the canonical table of a raw data collection.
type Processor interface {
	Process(ctx context.Context, p *domain.Project, ref string, opts ingestion.ProcessOptions) (*ingestion.ProcessResult, error)
}

// Service runs joins inside one DuckDB session.
type Service struct {
	catalog   domain.Catalog
	store     Store
	sess      *engine.Session
	processor Processor
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. processor may be nil, which disables
// automatic processing of missing inputs.
func NewService(catalog domain.Catalog, store Store, sess *engine.Session, processor Processor, logger *slog.Logger) *Service {
	return &Service{
		catalog:   catalog,
		store:     store,
		sess:      sess,
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}
}

// lookup returns the named join of p.
func lookup(p *domain.Project, name string) (domain.JoinDefinition, error) {
	i := p.Join(name)
	if i < 0 {
		return domain.JoinDefinition{}, domain.ErrNotFound("join %q not found in project %s", name, p.Name)
	}
	return p.Joins[i], nil
}

// Definition loads the named project through the catalog and returns it with
// the named join.
func (s *Service) Definition(ctx context.Context, projectName, joinName string) (*domain.Project, domain.JoinDefinition, error) {
	p, err := s.catalog.ResolveProject(ctx, projectName)
	if err != nil {
		return nil, domain.JoinDefinition{}, err
	}
	def, err := lookup(p, joinName)
	if err != nil {
		return nil, domain.JoinDefinition{}, err
	}
	return p, def, nil
}
