// Package ingestion turns the raw files of a data collection into its
// canonical table: open lazily, reconcile schemas, materialize once, store.
package ingestion

import (
	"context"
	"log/slog"
	"time"

	"dclake/internal/domain"
	"dclake/internal/engine"
	"dclake/internal/tablestore"
)

// TableStore persists canonical tables.
type TableStore interface {
	Location(dcID string) string
	Exists(ctx context.Context, dcID string) (bool, error)
	Write(ctx context.Context, dcID string, tbl *engine.Table, opts tablestore.WriteOptions) (*tablestore.Manifest, error)
}

// ProcessOptions controls Process.
type ProcessOptions struct {
	// Overwrite replaces an existing canonical table.
	Overwrite bool
}

// ProcessResult summarises a processed data collection.
type ProcessResult struct {
	DataCollectionID string    `json:"dc_id"`
	Reference        string    `json:"reference"`
	Workflow         string    `json:"workflow,omitempty"`
	Files            int       `json:"files"`
	Rows             int64     `json:"rows"`
	Columns          int       `json:"columns"`
	SizeBytes        int64     `json:"size_bytes"`
	Location         string    `json:"location"`
	Version          int64     `json:"version"`
	AggregationTime  time.Time `json:"aggregation_time"`
	CoercedColumns   []string  `json:"coerced_columns,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// Service processes data collections into canonical tables.
type Service struct {
	catalog domain.Catalog
	store   TableStore
	reader  *Reader
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a Service. All relations live in sess.
func NewService(catalog domain.Catalog, store TableStore, sess *engine.Session, stager Stager, logger *slog.Logger) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		reader:  NewReader(sess, stager, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessReference resolves the named project through the catalog and processes ref.
func (s *Service) ProcessReference(ctx context.Context, projectName, ref string, opts ProcessOptions) (*ProcessResult, error) {
	p, err := s.catalog.ResolveProject(ctx, projectName)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, p, ref, opts)
}

// Process builds the canonical table of the collection ref resolves to in p.
func (s *Service) Process(ctx context.Context, p *domain.Project, ref string, opts ProcessOptions) (*ProcessResult, error) {
	res, ok := p.Resolve(ref)
	if !ok {
		return nil, domain.ErrNotFound("data collection %q not found in project %s", ref, p.Name)
	}
	dc := res.DataCollection
	if dc.IsJoined() {
		return nil, domain.ErrValidation("data collection %q is produced by a join; run the join instead", ref)
	}

	if !opts.Overwrite {
		exists, err := s.store.Exists(ctx, dc.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrConflict("canonical table for %s already exists at %s; set overwrite to replace it", dc.Ref(), s.store.Location(dc.ID))
		}
	}

	files, err := s.catalog.ListFiles(ctx, dc.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("processing data collection", "reference", dc.Ref(), "data_collection_id", dc.ID, "files", len(files))

	rels, err := s.reader.Open(ctx, files, dc.Config)
	if err != nil {
		return nil, err
	}
	rec, err := Reconcile(ctx, rels)
	if err != nil {
		return nil, err
	}
	if len(rec.Folded) > 0 {
		s.logger.Warn("column names differ only in case across files, merged", "reference", dc.Ref(), "columns", rec.Folded)
	}
	if len(rec.Coerced) > 0 {
		s.logger.Warn("column types disagree across files, coerced to text", "reference", dc.Ref(), "columns", rec.Coerced)
	}

	at := s.now().UTC()
	tbl, err := Materialize(ctx, rec, at)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tbl.Release(ctx); err != nil {
			s.logger.Warn("release materialized table", "error", err)
		}
	}()

	m, err := s.store.Write(ctx, dc.ID, tbl, tablestore.WriteOptions{Overwrite: opts.Overwrite})
	if err != nil {
		return nil, err
	}

	out := &ProcessResult{
		DataCollectionID: dc.ID,
		Reference:        dc.Ref(),
		Workflow:         res.Workflow,
		Files:            len(files),
		Rows:             m.Rows,
		Columns:          m.Columns,
		SizeBytes:        m.SizeBytes,
		Location:         s.store.Location(dc.ID),
		Version:          m.Version,
		AggregationTime:  at,
		CoercedColumns:   rec.Coerced,
	}
	if err := s.catalog.RegisterTableLocation(ctx, dc.ID, out.Location, m.SizeBytes, true); err != nil {
		w := &domain.ExternalSyncWarning{Step: "register table location", Err: err}
		s.logger.Warn("catalog registration failed", "data_collection_id", dc.ID, "error", err)
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out, nil
}
