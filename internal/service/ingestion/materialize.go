package ingestion

import (
	"context"
	"fmt"
	"time"

	"dclake/internal/ddl"
	"dclake/internal/engine"
)

// AggregationTimeColumn holds the timestamp at which a canonical table was built.
const AggregationTimeColumn = "aggregation_time"

// Materialize concatenates reconciled relations, stamps every row with at,
// and evaluates the plan exactly once into a session table.
func Materialize(ctx context.Context, rec *Reconciled, at time.Time) (*engine.Table, error) {
	union, err := engine.UnionAll("ingestion", rec.Relations...)
	if err != nil {
		return nil, err
	}
	stamped, err := union.WithColumn(ctx, AggregationTimeColumn, ddl.TimestampLiteral(at))
	if err != nil {
		return nil, fmt.Errorf("stamp aggregation time: %w", err)
	}
	tbl, err := stamped.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	return tbl, nil
}
