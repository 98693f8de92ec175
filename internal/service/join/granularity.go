package join

import (
	"context"
	"fmt"

	"dclake/internal/ddl"
	"dclake/internal/domain"
	"dclake/internal/engine"
)

// Sides of a join, as reported in metadata.
const (
	sideLeft  = "left"
	sideRight = "right"
)

type granularityOutcome struct {
	left, right *engine.Relation
	// aggregated is sideLeft, sideRight, or empty when neither side changed.
	aggregated string
	warnings   []string
}

// meanRowsPerKey is the average number of rows sharing one key combination.
func meanRowsPerKey(ctx context.Context, rel *engine.Relation, keys []string) (float64, error) {
	counts := rel.GroupBy(keys, []engine.Projection{{Expr: "COUNT(*)", As: "_rows"}})
	return counts.Float(ctx, `AVG("_rows")`)
}

// reconcileGranularity aggregates the strictly finer side of a join to one
// row per key. A tie leaves both sides untouched.
func reconcileGranularity(ctx context.Context, left, right *engine.Relation, keys []string, cfg domain.GranularityConfig) (*granularityOutcome, error) {
	out := &granularityOutcome{left: left, right: right}
	lm, err := meanRowsPerKey(ctx, left, keys)
	if err != nil {
		return nil, err
	}
	rm, err := meanRowsPerKey(ctx, right, keys)
	if err != nil {
		return nil, err
	}

	switch {
	case lm > rm:
		out.aggregated = sideLeft
		out.left, out.warnings, err = aggregate(ctx, left, keys, cfg)
	case rm > lm:
		out.aggregated = sideRight
		out.right, out.warnings, err = aggregate(ctx, right, keys, cfg)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// aggregate collapses rel to one row per key, picking a function per column.
func aggregate(ctx context.Context, rel *engine.Relation, keys []string, cfg domain.GranularityConfig) (*engine.Relation, []string, error) {
	schema, err := rel.Schema(ctx)
	if err != nil {
		return nil, nil, err
	}
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	var warnings []string
	cols := make([]engine.Projection, 0, len(schema))
	for _, c := range schema {
		q := ddl.QuoteIdentifier(c.Name)
		if isKey[c.Name] {
			cols = append(cols, engine.Projection{Expr: q, As: c.Name})
			continue
		}
		numeric := engine.IsNumericType(c.Type)
		f := cfg.For(c.Name, numeric)
		if !numeric && f.NumericOnly() {
			warnings = append(warnings, fmt.Sprintf("column %q is %s, %s not applicable; using %s", c.Name, c.Type, f, domain.AggFirst))
			f = domain.AggFirst
		}
		cols = append(cols, engine.Projection{Expr: aggExpr(f, q), As: c.Name})
	}
	return rel.GroupBy(keys, cols), warnings, nil
}

func aggExpr(f domain.AggFunc, col string) string {
	switch f {
	case domain.AggMean:
		return "AVG(" + col + ")"
	case domain.AggSum:
		return "SUM(" + col + ")"
	case domain.AggMin:
		return "MIN(" + col + ")"
	case domain.AggMax:
		return "MAX(" + col + ")"
	case domain.AggLast:
		return "LAST(" + col + ")"
	case domain.AggCount:
		return "COUNT(" + col + ")"
	case domain.AggMedian:
		return "MEDIAN(" + col + ")"
	default:
		return "FIRST(" + col + ")"
	}
}
