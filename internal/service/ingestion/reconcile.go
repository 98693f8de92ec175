package ingestion

import (
	"context"
	"slices"
	"strings"

	"dclake/internal/ddl"
	"dclake/internal/engine"
)

// Reconciled is a set of relations sharing one ordered schema.
type Reconciled struct {
	Relations []*engine.Relation
	Schema    engine.Schema
	// Coerced lists columns forced to text because their types disagreed.
	Coerced []string
	// Folded lists column spellings merged into an earlier spelling that
	// differs only in case.
	Folded []string
}

// Reconcile unifies the schemas of rels. The output schema is the union of
// column names in first-seen order. Names are compared case-insensitively and
// keep their first-seen spelling. A column whose type differs between
// relations becomes VARCHAR everywhere; a column missing from a relation is
// filled with a typed NULL. Reconciliation never fails on type conflicts.
func Reconcile(ctx context.Context, rels []*engine.Relation) (*Reconciled, error) {
	schemas := make([]engine.Schema, len(rels))
	var order []string
	types := map[string]string{}
	conflict := map[string]bool{}
	folded := map[string]bool{}
	out := &Reconciled{Relations: make([]*engine.Relation, len(rels))}
	for i, rel := range rels {
		s, err := rel.Schema(ctx)
		if err != nil {
			return nil, classifyReadError(rel.Label(), err)
		}
		schemas[i] = s
		for _, c := range s {
			key := strings.ToLower(c.Name)
			prev, seen := types[key]
			switch {
			case !seen:
				types[key] = c.Type
				order = append(order, c.Name)
			case prev != c.Type:
				conflict[key] = true
			}
			if seen && !folded[c.Name] && !slices.Contains(order, c.Name) {
				folded[c.Name] = true
				out.Folded = append(out.Folded, c.Name)
			}
		}
	}

	for _, name := range order {
		key := strings.ToLower(name)
		typ := types[key]
		if conflict[key] {
			typ = engine.TextType
			out.Coerced = append(out.Coerced, name)
		}
		out.Schema = append(out.Schema, engine.Column{Name: name, Type: typ})
	}

	for i, rel := range rels {
		if schemas[i].Equal(out.Schema) {
			out.Relations[i] = rel
			continue
		}
		proj := make([]engine.Projection, len(out.Schema))
		for j, col := range out.Schema {
			own, ok := schemas[i].LookupFold(col.Name)
			q := ddl.QuoteIdentifier(own.Name)
			switch {
			case !ok:
				proj[j] = engine.Projection{Expr: ddl.TypedNull(col.Type), As: col.Name}
			case own.Type != col.Type:
				proj[j] = engine.Projection{Expr: ddl.Cast(q, col.Type), As: col.Name}
			default:
				proj[j] = engine.Projection{Expr: q, As: col.Name}
			}
		}
		out.Relations[i] = rel.Select(proj)
	}
	return out, nil
}
