package join

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"dclake/internal/domain"
	"dclake/internal/engine"
	"dclake/internal/service/ingestion"
)

// Execution is a materialized join result together with the prepared inputs
// it was computed from. Callers must Release it.
type Execution struct {
	Definition  domain.JoinDefinition
	Table       *engine.Table
	Metadata    domain.JoinMetadata
	Left, Right *engine.Relation
	Validation  *domain.JoinValidationResult

	leftDC, rightDC *domain.DataCollection
}

// Release drops the materialized result.
func (e *Execution) Release(ctx context.Context) error {
	return e.Table.Release(ctx)
}

// Execute validates def and evaluates the join. An invalid join is a
// ValidationError; a valid join with an unprocessed side is a NotProcessedError.
func (s *Service) Execute(ctx context.Context, p *domain.Project, def domain.JoinDefinition) (*Execution, error) {
	v, err := s.validate(ctx, p, def)
	if err != nil {
		return nil, err
	}
	if !v.result.IsValid {
		return nil, domain.ErrValidation("join %s is invalid: %s", def.Name, strings.Join(v.result.Errors, "; "))
	}
	for _, sd := range []side{v.left, v.right} {
		if sd.snapshot == nil {
			return nil, domain.ErrNotProcessed(sd.dc.ID, "data collection %s has not been processed yet", sd.dc.Ref())
		}
	}

	left, right := v.left.snapshot.Relation, v.right.snapshot.Relation
	ls, err := left.Schema(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := right.Schema(ctx)
	if err != nil {
		return nil, err
	}

	meta := domain.JoinMetadata{
		LeftRows:     v.left.snapshot.Manifest.Rows,
		LeftColumns:  len(ls),
		RightRows:    v.right.snapshot.Manifest.Rows,
		RightColumns: len(rs),
		How:          v.how,
	}

	keys := slices.Clone(def.OnColumns)
	if ls.Has(ingestion.RunTagColumn) && rs.Has(ingestion.RunTagColumn) &&
		!v.left.dc.IsMetadata() && !v.right.dc.IsMetadata() && !slices.Contains(keys, ingestion.RunTagColumn) {
		keys = append(keys, ingestion.RunTagColumn)
	}
	meta.JoinColumns = keys

	for _, k := range keys {
		lc, _ := ls.Lookup(k)
		rc, _ := rs.Lookup(k)
		if lc.Type != rc.Type {
			meta.CastColumns = append(meta.CastColumns, k)
		}
	}
	if len(meta.CastColumns) > 0 {
		left = left.Cast(engine.TextType, meta.CastColumns...)
		right = right.Cast(engine.TextType, meta.CastColumns...)
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("join columns with differing types cast to text: %s", strings.Join(meta.CastColumns, ", ")))
	}

	if def.Granularity != nil {
		cfg, warnings := domain.ParseGranularity(*def.Granularity)
		meta.Warnings = append(meta.Warnings, warnings...)
		g, err := reconcileGranularity(ctx, left, right, keys, cfg)
		if err != nil {
			return nil, fmt.Errorf("join %s: granularity: %w", def.Name, err)
		}
		left, right = g.left, g.right
		meta.GranularityApplied = g.aggregated != ""
		meta.AggregatedSide = g.aggregated
		meta.Warnings = append(meta.Warnings, g.warnings...)
	}

	for _, c := range rs {
		if ls.Has(c.Name) && !slices.Contains(keys, c.Name) {
			meta.DroppedColumns = append(meta.DroppedColumns, c.Name)
		}
	}
	if right, err = right.Drop(ctx, meta.DroppedColumns...); err != nil {
		return nil, fmt.Errorf("join %s: %w", def.Name, err)
	}

	joined, err := engine.Join(ctx, def.Name, left, right, keys, engine.JoinKind(v.how.SQL()))
	if err != nil {
		return nil, err
	}
	tbl, err := joined.Materialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", def.Name, err)
	}
	meta.ResultRows = tbl.Rows
	meta.ResultColumns = len(tbl.Schema)

	s.logger.Info("join executed", "join", def.Name, "how", v.how, "keys", keys,
		"left_rows", meta.LeftRows, "right_rows", meta.RightRows, "result_rows", meta.ResultRows,
		"aggregated_side", meta.AggregatedSide)

	return &Execution{
		Definition: def,
		Table:      tbl,
		Metadata:   meta,
		Left:       left,
		Right:      right,
		Validation: v.result,
		leftDC:     v.left.dc,
		rightDC:    v.right.dc,
	}, nil
}
