package join

import (
	"context"
	"fmt"

	"dclake/internal/ddl"
	"dclake/internal/domain"
	"dclake/internal/tablestore"
)

// JoinTimeColumn holds the time a persisted join result was computed.
const JoinTimeColumn = "join_time"

// PersistOptions controls Persist.
type PersistOptions struct {
	Overwrite bool
}

// destinationID picks the result id: explicit id, then the previous result, then a new one.
func destinationID(def domain.JoinDefinition) string {
	if def.ID != "" {
		return def.ID
	}
	if def.Result != nil && def.Result.DataCollectionID != "" {
		return def.Result.DataCollectionID
	}
	return domain.NewID()
}

// Persist executes def and stores the result as the canonical table of a
// derived data collection. It returns an updated copy of p in which def
// carries its result metadata and the derived collection is registered.
// Project synchronisation and catalog registration run after the durable
// write; their failures are returned as warnings.
func (s *Service) Persist(ctx context.Context, p *domain.Project, def domain.JoinDefinition, opts PersistOptions) (*domain.JoinPersistResult, error) {
	id := destinationID(def)
	if !opts.Overwrite {
		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrConflict("result of join %s already exists at %s; set overwrite to replace it", def.Name, s.store.Location(id))
		}
	}

	exec, err := s.Execute(ctx, p, def)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := exec.Release(ctx); err != nil {
			s.logger.Warn("release join result", "join", def.Name, "error", err)
		}
	}()
	return s.persist(ctx, p, exec, id, opts)
}

func (s *Service) persist(ctx context.Context, p *domain.Project, exec *Execution, id string, opts PersistOptions) (*domain.JoinPersistResult, error) {
	def := exec.Definition
	at := s.now().UTC()

	stamped, err := exec.Table.WithColumn(ctx, JoinTimeColumn, ddl.TimestampLiteral(at))
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", def.Name, err)
	}
	tbl, err := stamped.Materialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", def.Name, err)
	}
	defer func() {
		if err := tbl.Release(ctx); err != nil {
			s.logger.Warn("release stamped join result", "join", def.Name, "error", err)
		}
	}()

	m, err := s.store.Write(ctx, id, tbl, tablestore.WriteOptions{Overwrite: opts.Overwrite})
	if err != nil {
		return nil, err
	}

	meta := domain.JoinResultMeta{
		DataCollectionID: id,
		Tag:              def.ResultTag(),
		Location:         s.store.Location(id),
		ExecutedAt:       at,
		Rows:             m.Rows,
		Columns:          m.Columns,
		SizeBytes:        m.SizeBytes,
	}
	updated := def.WithResult(meta)
	updated.ID = id

	out := &domain.JoinPersistResult{Definition: updated, Result: meta}
	warn := func(step string, err error) {
		w := &domain.ExternalSyncWarning{Step: step, Err: err}
		s.logger.Warn("join result synchronisation failed", "join", def.Name, "step", step, "error", err)
		out.Warnings = append(out.Warnings, w.Error())
	}

	np := p.Clone()
	if err := np.ReplaceJoin(updated); err != nil {
		np.Joins = append(np.Joins, updated)
	}
	derived := domain.DataCollection{
		ID:     id,
		Tag:    def.ResultTag(),
		Type:   "table",
		Source: domain.SourceJoined,
		Config: domain.FormatDescriptor{Format: domain.FormatParquet, Joined: true},
	}
	derived.Workflow = owningWorkflow(np, def, exec.leftDC.Workflow)
	if _, err := np.PutDerived(derived); err != nil {
		warn("add derived data collection", err)
	}
	out.Project = np

	if err := s.catalog.SyncProject(ctx, np, true); err != nil {
		warn("sync project", err)
	}
	if err := s.catalog.RegisterTableLocation(ctx, id, meta.Location, m.SizeBytes, true); err != nil {
		warn("register table location", err)
	}

	s.logger.Info("join persisted", "join", def.Name, "data_collection_id", id,
		"rows", meta.Rows, "columns", meta.Columns, "location", meta.Location)
	return out, nil
}

// owningWorkflow is the workflow that receives a join's derived collection:
// the join's own workflow, else the left side's, else the project default.
// Empty means project level.
func owningWorkflow(p *domain.Project, def domain.JoinDefinition, leftWorkflow string) string {
	for _, wf := range []string{def.WorkflowName, leftWorkflow, p.DefaultWorkflow} {
		if wf != "" && p.Workflow(wf) != nil {
			return wf
		}
	}
	return ""
}
