package join

import (
	"context"
	"fmt"

	"dclake/internal/domain"
	"dclake/internal/engine"
)

// DefaultSampleSize is the number of joined rows returned by a preview.
const DefaultSampleSize = 10

// lowOverlapRatio is the share of the smaller side's keys below which a
// preview warns.
const lowOverlapRatio = 0.5

// Preview executes def and reports key overlap and a bounded sample without
// persisting anything. sampleSize <= 0 uses DefaultSampleSize.
func (s *Service) Preview(ctx context.Context, p *domain.Project, def domain.JoinDefinition, sampleSize int) (*domain.JoinPreviewResult, error) {
	exec, err := s.Execute(ctx, p, def)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := exec.Release(ctx); err != nil {
			s.logger.Warn("release join result", "join", def.Name, "error", err)
		}
	}()
	return s.preview(ctx, exec, sampleSize)
}

func (s *Service) preview(ctx context.Context, exec *Execution, sampleSize int) (*domain.JoinPreviewResult, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	keys := exec.Metadata.JoinColumns
	// NULL never matches in a join, so NULL keys are not counted.
	lk := exec.Left.NotNull(keys...).Distinct(keys...)
	rk := exec.Right.NotNull(keys...).Distinct(keys...)

	out := &domain.JoinPreviewResult{JoinName: exec.Definition.Name, Metadata: exec.Metadata}
	var err error
	if out.LeftDistinctKeys, err = lk.Count(ctx); err != nil {
		return nil, err
	}
	if out.RightDistinctKeys, err = rk.Count(ctx); err != nil {
		return nil, err
	}
	both, err := engine.Intersect(lk, rk)
	if err != nil {
		return nil, err
	}
	if out.OverlapKeys, err = both.Count(ctx); err != nil {
		return nil, err
	}

	smaller := min(out.LeftDistinctKeys, out.RightDistinctKeys)
	switch {
	case out.OverlapKeys == 0:
		out.Warnings = append(out.Warnings, "no join keys are shared by both sides")
	case float64(out.OverlapKeys) < lowOverlapRatio*float64(smaller):
		out.Warnings = append(out.Warnings, fmt.Sprintf("only %d of %d join keys (%.1f%%) of the smaller side match",
			out.OverlapKeys, smaller, 100*float64(out.OverlapKeys)/float64(smaller)))
	}

	cols, rows, err := exec.Table.Limit(sampleSize).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	out.Columns = cols
	out.Sample = rows
	if out.Sample == nil {
		out.Sample = []map[string]any{}
	}
	return out, nil
}
