package engine

import (
	"context"
	"fmt"
	"strings"

	"dclake/internal/ddl"
)

// JoinKind is the SQL join keyword sequence used by Join.
type JoinKind string

// Join kinds.
const (
	InnerJoin JoinKind = "INNER JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
	RightJoin JoinKind = "RIGHT JOIN"
	FullJoin  JoinKind = "FULL OUTER JOIN"
)

// GroupBy collapses the relation to one row per distinct combination of keys.
// cols is the full output projection; every non-key column must be an aggregate.
func (r *Relation) GroupBy(keys []string, cols []Projection) *Relation {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Expr + " AS " + ddl.QuoteIdentifier(c.As)
	}
	return r.derive(fmt.Sprintf("SELECT %s FROM %s GROUP BY %s",
		strings.Join(parts, ", "), r.from(), ddl.QuoteIdentifiers(keys)))
}

// Distinct projects onto cols and removes duplicate rows.
func (r *Relation) Distinct(cols ...string) *Relation {
	return r.derive(fmt.Sprintf("SELECT DISTINCT %s FROM %s", ddl.QuoteIdentifiers(cols), r.from()))
}

// OrderBy sorts the relation ascending by cols.
func (r *Relation) OrderBy(cols ...string) *Relation {
	return r.derive(fmt.Sprintf("SELECT * FROM %s ORDER BY %s", r.from(), ddl.QuoteIdentifiers(cols)))
}

// Float evaluates a scalar aggregate expression over the relation. NULL yields 0.
func (r *Relation) Float(ctx context.Context, expr string) (float64, error) {
	f, err := r.s.queryFloat(ctx, "SELECT "+expr+" FROM "+r.from())
	if err != nil {
		return 0, fmt.Errorf("evaluate %s over %s: %w", expr, r.label, err)
	}
	return f, nil
}

// Intersect returns the set intersection of two relations with matching schemas.
func Intersect(a, b *Relation) (*Relation, error) {
	if a.s != b.s {
		return nil, fmt.Errorf("intersect across sessions: %s, %s", a.label, b.label)
	}
	return a.derive("(" + a.query + ") INTERSECT (" + b.query + ")"), nil
}

// Join combines left and right on equality of keys (SQL USING semantics).
// Key columns appear once, first, followed by the remaining left columns and
// then the remaining right columns. For right and full joins the key value is
// taken from whichever side matched. Non-key column names must not collide.
func Join(ctx context.Context, label string, left, right *Relation, keys []string, kind JoinKind) (*Relation, error) {
	if left.s != right.s {
		return nil, fmt.Errorf("join across sessions: %s, %s", left.label, right.label)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("join %s: no key columns", label)
	}
	ls, err := left.Schema(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := right.Schema(ctx)
	if err != nil {
		return nil, err
	}

	isKey := make(map[string]bool, len(keys))
	cols := make([]string, 0, len(ls)+len(rs))
	for _, k := range keys {
		isKey[k] = true
		q := ddl.QuoteIdentifier(k)
		switch kind {
		case RightJoin:
			cols = append(cols, "_r."+q+" AS "+q)
		case FullJoin:
			cols = append(cols, fmt.Sprintf("COALESCE(_l.%s, _r.%s) AS %s", q, q, q))
		default:
			cols = append(cols, "_l."+q+" AS "+q)
		}
	}
	for _, c := range ls {
		if !isKey[c.Name] {
			cols = append(cols, "_l."+ddl.QuoteIdentifier(c.Name))
		}
	}
	for _, c := range rs {
		if isKey[c.Name] {
			continue
		}
		if ls.Has(c.Name) {
			return nil, fmt.Errorf("join %s: column %q present on both sides", label, c.Name)
		}
		cols = append(cols, "_r."+ddl.QuoteIdentifier(c.Name))
	}

	query := fmt.Sprintf("SELECT %s FROM (%s) AS _l %s (%s) AS _r USING (%s)",
		strings.Join(cols, ", "), left.query, kind, right.query, ddl.QuoteIdentifiers(keys))
	return &Relation{s: left.s, label: label, query: query}, nil
}
