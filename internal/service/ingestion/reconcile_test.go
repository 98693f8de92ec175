package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/engine"
)

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	rels := []*engine.Relation{
		sess.Query("a", "SELECT 1::BIGINT AS id, 1.5::DOUBLE AS score, 'x' AS name"),
		sess.Query("b", "SELECT 'two' AS id, 2.5::DOUBLE AS score"),
		sess.Query("c", "SELECT 2.0::DOUBLE AS score, 3::INTEGER AS extra"),
	}

	rec, err := Reconcile(ctx, rels)
	require.NoError(t, err)
	require.Len(t, rec.Relations, len(rels))
	assert.Equal(t, []string{"id"}, rec.Coerced)

	want := engine.Schema{
		{Name: "id", Type: "VARCHAR"},
		{Name: "score", Type: "DOUBLE"},
		{Name: "name", Type: "VARCHAR"},
		{Name: "extra", Type: "INTEGER"},
	}
	assert.Equal(t, want, rec.Schema)
	for _, r := range rec.Relations {
		s, err := r.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, s, r.Label())
	}

	_, rows, err := rec.Relations[2].Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, rows[0]["id"])
	assert.Nil(t, rows[0]["name"])
	assert.Equal(t, int32(3), rows[0]["extra"])

	_, rows, err = rec.Relations[0].Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", rows[0]["id"])
}

func TestReconcile_FoldsCaseVariants(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	rels := []*engine.Relation{
		sess.Query("a", `SELECT 1::BIGINT AS "Sample", 'x' AS v`),
		sess.Query("b", `SELECT 2::BIGINT AS "sample", 'y' AS v`),
		sess.Query("c", `SELECT 'three' AS "SAMPLE"`),
	}

	rec, err := Reconcile(ctx, rels)
	require.NoError(t, err)
	assert.Equal(t, []string{"sample", "SAMPLE"}, rec.Folded)
	assert.Equal(t, []string{"Sample"}, rec.Coerced)

	want := engine.Schema{
		{Name: "Sample", Type: "VARCHAR"},
		{Name: "v", Type: "VARCHAR"},
	}
	assert.Equal(t, want, rec.Schema)
	for _, r := range rec.Relations {
		s, err := r.Schema(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, s, r.Label())
	}

	_, rows, err := rec.Relations[1].Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", rows[0]["Sample"])
	_, rows, err = rec.Relations[2].Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "three", rows[0]["Sample"])
	assert.Nil(t, rows[0]["v"])
}

func TestReconcile_IdenticalSchemasUntouched(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	a := sess.Query("a", "SELECT 1 AS x")
	b := sess.Query("b", "SELECT 2 AS x")

	rec, err := Reconcile(ctx, []*engine.Relation{a, b})
	require.NoError(t, err)
	assert.Same(t, a, rec.Relations[0])
	assert.Same(t, b, rec.Relations[1])
	assert.Empty(t, rec.Coerced)
	assert.Empty(t, rec.Folded)
}

func TestMaterialize_StampsAggregationTime(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	rec, err := Reconcile(ctx, []*engine.Relation{
		sess.Query("a", "SELECT 1 AS x"),
		sess.Query("b", "SELECT 2 AS x UNION ALL SELECT 3"),
	})
	require.NoError(t, err)

	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	tbl, err := Materialize(ctx, rec, at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tbl.Rows)
	assert.Equal(t, []string{"x", AggregationTimeColumn}, tbl.Schema.Names())

	_, rows, err := tbl.Fetch(ctx)
	require.NoError(t, err)
	for _, r := range rows {
		ts, ok := r[AggregationTimeColumn].(time.Time)
		require.True(t, ok)
		assert.True(t, at.Equal(ts))
	}
}
