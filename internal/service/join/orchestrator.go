package join

import (
	"context"
	"fmt"
	"strings"

	"dclake/internal/domain"
	"dclake/internal/service/ingestion"
)

// RunOptions controls a batch run.
type RunOptions struct {
	// Join restricts the run to one join (plus, with AutoProcess, the joins
	// producing its inputs). Empty runs every join in the project.
	Join string
	// AutoProcess builds missing canonical tables of raw inputs before joining.
	AutoProcess bool
	// DryRun previews every join and persists nothing.
	DryRun bool
	// Overwrite replaces existing join results.
	Overwrite bool
	// SampleSize bounds preview samples; zero uses DefaultSampleSize.
	SampleSize int
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
)

// RunProject loads the named project through the catalog and runs its joins.
func (s *Service) RunProject(ctx context.Context, projectName string, opts RunOptions) (*domain.JoinBatchReport, error) {
	p, err := s.catalog.ResolveProject(ctx, projectName)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, p, opts)
}

// Run executes the joins of p in dependency order. A failing join is
// recorded under Errors and the batch continues; only a broken dependency
// graph or an unknown join name fails the whole run. Persisted results are
// visible to later joins in the same run.
func (s *Service) Run(ctx context.Context, p *domain.Project, opts RunOptions) (*domain.JoinBatchReport, error) {
	levels, err := ResolveJoinOrder(p)
	if err != nil {
		return nil, err
	}

	var selected map[string]bool
	if opts.Join != "" {
		if _, err := lookup(p, opts.Join); err != nil {
			return nil, err
		}
		selected = map[string]bool{opts.Join: true}
		if opts.AutoProcess {
			for name := range upstream(p, opts.Join) {
				selected[name] = true
			}
		}
	}

	report := &domain.JoinBatchReport{
		Processed: []domain.JoinBatchEntry{},
		Skipped:   []domain.JoinBatchEntry{},
		Errors:    []domain.JoinBatchEntry{},
	}
	cur := p
	for _, level := range levels {
		for _, name := range level {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if selected != nil && !selected[name] {
				continue
			}
			def, err := lookup(cur, name)
			if err != nil {
				return nil, err
			}
			if selected != nil && name != opts.Join {
				done, err := s.resultExists(ctx, def)
				if err != nil {
					s.logger.Warn("check join result, running it again", "join", name, "error", err)
				} else if done {
					continue
				}
			}

			next, entry, out, err := s.runOne(ctx, cur, def, opts)
			if err != nil {
				s.logger.Warn("join failed", "join", name, "error", err)
				entry.Message = err.Error()
				report.Errors = append(report.Errors, entry)
				continue
			}
			switch out {
			case outcomeProcessed:
				report.Processed = append(report.Processed, entry)
				cur = next
			case outcomeSkipped:
				report.Skipped = append(report.Skipped, entry)
			}
		}
	}

	report.Status = domain.BatchSuccess
	if len(report.Errors) > 0 {
		report.Status = domain.BatchPartial
	}
	s.logger.Info("join batch finished", "project", p.Name, "status", report.Status,
		"processed", len(report.Processed), "skipped", len(report.Skipped), "errors", len(report.Errors))
	return report, nil
}

// resultExists reports whether def has a stored result.
func (s *Service) resultExists(ctx context.Context, def domain.JoinDefinition) (bool, error) {
	if def.ID == "" && def.Result == nil {
		return false, nil
	}
	return s.store.Exists(ctx, destinationID(def))
}

func (s *Service) runOne(ctx context.Context, p *domain.Project, def domain.JoinDefinition, opts RunOptions) (*domain.Project, domain.JoinBatchEntry, outcome, error) {
	entry := domain.JoinBatchEntry{Name: def.Name}

	v, err := s.Validate(ctx, p, def)
	if err != nil {
		return nil, entry, 0, err
	}
	if !v.IsValid {
		return nil, entry, 0, domain.ErrValidation("%s", strings.Join(v.Errors, "; "))
	}
	if !v.BothProcessed() {
		if !opts.AutoProcess || s.processor == nil {
			return nil, entry, 0, domain.ErrNotProcessed("", "%s", strings.Join(v.Warnings, "; "))
		}
		for _, st := range []domain.SideStatus{v.Left, v.Right} {
			if st.Processed {
				continue
			}
			msg, err := s.processSide(ctx, p, st)
			if err != nil {
				return nil, entry, 0, err
			}
			entry.Warnings = append(entry.Warnings, msg)
		}
		if v, err = s.Validate(ctx, p, def); err != nil {
			return nil, entry, 0, err
		}
		if !v.IsValid {
			return nil, entry, 0, domain.ErrValidation("%s", strings.Join(v.Errors, "; "))
		}
		if !v.BothProcessed() {
			return nil, entry, 0, domain.ErrNotProcessed("", "%s", strings.Join(v.Warnings, "; "))
		}
	}

	persist := def.Persist && !opts.DryRun
	id := destinationID(def)
	if persist && !opts.Overwrite {
		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			return nil, entry, 0, err
		}
		if exists {
			return nil, entry, 0, domain.ErrConflict("result of join %s already exists at %s; set overwrite to replace it", def.Name, s.store.Location(id))
		}
	}

	exec, err := s.Execute(ctx, p, def)
	if err != nil {
		return nil, entry, 0, err
	}
	defer func() {
		if err := exec.Release(ctx); err != nil {
			s.logger.Warn("release join result", "join", def.Name, "error", err)
		}
	}()

	preview, err := s.preview(ctx, exec, opts.SampleSize)
	if err != nil {
		return nil, entry, 0, err
	}
	entry.Preview = preview
	entry.Warnings = append(entry.Warnings, exec.Metadata.Warnings...)
	entry.Warnings = append(entry.Warnings, preview.Warnings...)

	if !persist {
		entry.Message = "persist disabled, previewed only"
		if opts.DryRun {
			entry.Message = "dry run, previewed only"
		}
		return nil, entry, outcomeSkipped, nil
	}

	res, err := s.persist(ctx, p, exec, id, PersistOptions{Overwrite: opts.Overwrite})
	if err != nil {
		return nil, entry, 0, err
	}
	entry.Result = &res.Result
	entry.Warnings = append(entry.Warnings, res.Warnings...)
	entry.Message = fmt.Sprintf("persisted %d rows to %s", res.Result.Rows, res.Result.Location)
	return res.Project, entry, outcomeProcessed, nil
}

// processSide builds the canonical table of an unprocessed raw input.
func (s *Service) processSide(ctx context.Context, p *domain.Project, st domain.SideStatus) (string, error) {
	dc, ok := p.DataCollectionByID(st.DataCollectionID)
	if !ok {
		return "", domain.ErrNotFound("data collection %s not found", st.DataCollectionID)
	}
	if dc.IsJoined() {
		return "", domain.ErrNotProcessed(dc.ID, "derived data collection %s has no table; persist the join producing it first", dc.Ref())
	}
	res, err := s.processor.Process(ctx, p, dc.ID, ingestion.ProcessOptions{})
	if err != nil && !domain.IsConflict(err) {
		return "", fmt.Errorf("process %s: %w", dc.Ref(), err)
	}
	if res == nil {
		return fmt.Sprintf("%s was processed concurrently", dc.Ref()), nil
	}
	return fmt.Sprintf("processed %s (%d rows)", dc.Ref(), res.Rows), nil
}
