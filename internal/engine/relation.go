package engine

import (
	"context"
	"fmt"
	"strings"

	"dclake/internal/ddl"
)

// Relation is a lazily evaluated query plan bound to a session. Transformations
// return new relations; nothing is executed until Materialize, Count, Fetch,
// WriteParquet, or Schema (which only plans the query) is called.
type Relation struct {
	s      *Session
	label  string
	query  string
	schema Schema
}

// Projection is one output column of a Select.
type Projection struct {
	Expr string
	As   string
}

// Query wraps a SELECT statement as a relation. label names the relation in errors.
func (s *Session) Query(label, query string) *Relation {
	return &Relation{s: s, label: label, query: query}
}

// Label returns the human-readable origin of the relation.
func (r *Relation) Label() string { return r.label }

// SQL returns the relation's query text.
func (r *Relation) SQL() string { return r.query }

// Session returns the owning session.
func (r *Relation) Session() *Session { return r.s }

// Relabel returns the same plan under a different label.
func (r *Relation) Relabel(label string) *Relation {
	out := *r
	out.label = label
	return &out
}

func (r *Relation) derive(query string) *Relation {
	return &Relation{s: r.s, label: r.label, query: query}
}

func (r *Relation) from() string {
	return "(" + r.query + ") AS _src"
}

// Schema resolves the output columns of the plan without evaluating it.
func (r *Relation) Schema(ctx context.Context) (Schema, error) {
	if r.schema != nil {
		return r.schema, nil
	}
	rows, err := r.s.conn.QueryContext(ctx, "DESCRIBE "+r.query)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", r.label, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", r.label, err)
	}
	var schema Schema
	for rows.Next() {
		var name, typ string
		dest := make([]any, len(cols))
		dest[0], dest[1] = &name, &typ
		for i := 2; i < len(cols); i++ {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("describe %s: %w", r.label, err)
		}
		schema = append(schema, Column{Name: name, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("describe %s: %w", r.label, err)
	}
	r.schema = schema
	return schema, nil
}

// Select projects the relation onto the given expressions.
func (r *Relation) Select(cols []Projection) *Relation {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Expr + " AS " + ddl.QuoteIdentifier(c.As)
	}
	return r.derive("SELECT " + strings.Join(parts, ", ") + " FROM " + r.from())
}

// WithColumn adds a column computed from expr, replacing an existing column of
// the same name in place.
func (r *Relation) WithColumn(ctx context.Context, name, expr string) (*Relation, error) {
	schema, err := r.Schema(ctx)
	if err != nil {
		return nil, err
	}
	q := ddl.QuoteIdentifier(name)
	if schema.Has(name) {
		return r.derive(fmt.Sprintf("SELECT * REPLACE (%s AS %s) FROM %s", expr, q, r.from())), nil
	}
	return r.derive(fmt.Sprintf("SELECT *, %s AS %s FROM %s", expr, q, r.from())), nil
}

// Drop removes the named columns. Unknown names are ignored.
func (r *Relation) Drop(ctx context.Context, names ...string) (*Relation, error) {
	if len(names) == 0 {
		return r, nil
	}
	schema, err := r.Schema(ctx)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []Projection
	for _, c := range schema {
		if !drop[c.Name] {
			keep = append(keep, Projection{Expr: ddl.QuoteIdentifier(c.Name), As: c.Name})
		}
	}
	if len(keep) == len(schema) {
		return r, nil
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("%s: cannot drop every column", r.label)
	}
	return r.Select(keep), nil
}

// Cast converts the named columns to typ, keeping column order.
func (r *Relation) Cast(typ string, names ...string) *Relation {
	if len(names) == 0 {
		return r
	}
	parts := make([]string, len(names))
	for i, n := range names {
		q := ddl.QuoteIdentifier(n)
		parts[i] = ddl.Cast(q, typ) + " AS " + q
	}
	return r.derive(fmt.Sprintf("SELECT * REPLACE (%s) FROM %s", strings.Join(parts, ", "), r.from()))
}

// Where filters the relation by a SQL predicate.
func (r *Relation) Where(predicate string) *Relation {
	return r.derive("SELECT * FROM " + r.from() + " WHERE " + predicate)
}

// NotNull drops rows in which any of cols is NULL.
func (r *Relation) NotNull(cols ...string) *Relation {
	if len(cols) == 0 {
		return r
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = ddl.QuoteIdentifier(c) + " IS NOT NULL"
	}
	return r.Where(strings.Join(parts, " AND "))
}

// Limit bounds the number of rows.
func (r *Relation) Limit(n int) *Relation {
	return r.derive(fmt.Sprintf("SELECT * FROM %s LIMIT %d", r.from(), n))
}

// UnionAll concatenates relations positionally. Callers reconcile schemas first.
func UnionAll(label string, rels ...*Relation) (*Relation, error) {
	if len(rels) == 0 {
		return nil, fmt.Errorf("union of zero relations")
	}
	parts := make([]string, len(rels))
	for i, r := range rels {
		if r.s != rels[0].s {
			return nil, fmt.Errorf("union across sessions: %s", r.label)
		}
		parts[i] = "(" + r.query + ")"
	}
	return &Relation{s: rels[0].s, label: label, query: strings.Join(parts, " UNION ALL ")}, nil
}

// Count evaluates the plan and returns its row count.
func (r *Relation) Count(ctx context.Context) (int64, error) {
	n, err := r.s.queryInt(ctx, "SELECT COUNT(*) FROM "+r.from())
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return n, nil
}

// Fetch evaluates the plan and returns its rows keyed by column name.
// Intended for bounded samples; combine with Limit.
func (r *Relation) Fetch(ctx context.Context) ([]string, []map[string]any, error) {
	rows, err := r.s.conn.QueryContext(ctx, r.query)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", r.label, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", r.label, err)
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("fetch %s: %w", r.label, err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", r.label, err)
	}
	return cols, out, nil
}

// WriteParquet evaluates the plan into a local Parquet file.
func (r *Relation) WriteParquet(ctx context.Context, path string) error {
	stmt, err := ddl.CopyToParquet(r.query, path)
	if err != nil {
		return fmt.Errorf("export %s: %w", r.label, err)
	}
	if err := r.s.exec(ctx, stmt); err != nil {
		return fmt.Errorf("export %s: %w", r.label, err)
	}
	return nil
}

// Table is a materialized relation held in the session.
type Table struct {
	*Relation
	Name   string
	Rows   int64
	Schema Schema
}

// Materialize evaluates the plan exactly once into a session table.
func (r *Relation) Materialize(ctx context.Context) (*Table, error) {
	name := r.s.nextName("mat")
	stmt, err := ddl.CreateTableAs(name, r.query)
	if err != nil {
		return nil, err
	}
	if err := r.s.exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("materialize %s: %w", r.label, err)
	}
	return r.s.openTable(ctx, r.label, name)
}

func (s *Session) openTable(ctx context.Context, label, name string) (*Table, error) {
	rel := s.Query(label, "SELECT * FROM "+ddl.QuoteIdentifier(name))
	schema, err := rel.Schema(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := rel.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Table{Relation: rel, Name: name, Rows: rows, Schema: schema}, nil
}

// Release drops the session table backing t.
func (t *Table) Release(ctx context.Context) error {
	stmt, err := ddl.DropTable(t.Name)
	if err != nil {
		return err
	}
	return t.s.exec(ctx, stmt)
}
