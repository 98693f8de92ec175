package join

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/domain"
)

func TestExecute_AggregatesFinerSide(t *testing.T) {
	ctx := context.Background()
	def := domain.JoinDefinition{
		Name: "j", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"},
		Granularity: &domain.GranularitySpec{NumericDefault: "mean"},
	}
	f := newFixture(t, twoSided(def), nil)
	f.put(t, "dc-left", "SELECT * FROM (VALUES (1, 10), (2, 20)) AS t(k, a)")
	f.put(t, "dc-right", "SELECT * FROM (VALUES (1, 100), (1, 200), (2, 300)) AS t(k, b)")

	exec, err := f.svc.Execute(ctx, f.project(t), def)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Release(ctx) })

	assert.True(t, exec.Metadata.GranularityApplied)
	assert.Equal(t, sideRight, exec.Metadata.AggregatedSide)
	assert.Equal(t, int64(2), exec.Metadata.LeftRows)
	assert.Equal(t, int64(3), exec.Metadata.RightRows)
	assert.Equal(t, int64(2), exec.Metadata.ResultRows)
	assert.Equal(t, 3, exec.Metadata.ResultColumns)

	rows := sortedRows(t, exec.Table.Relation, "k")
	require.Len(t, rows, 2)
	assert.Equal(t, int32(1), rows[0]["k"])
	assert.Equal(t, int32(10), rows[0]["a"])
	assert.InDelta(t, 150.0, rows[0]["b"], 1e-9)
	assert.Equal(t, int32(2), rows[1]["k"])
	assert.Equal(t, int32(20), rows[1]["a"])
	assert.InDelta(t, 300.0, rows[1]["b"], 1e-9)

	n, err := exec.Left.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "coarser side is left untouched")
	n, err = exec.Right.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "finer side has one row per key")
}

func TestExecute_GranularityTieLeavesBothSides(t *testing.T) {
	ctx := context.Background()
	def := domain.JoinDefinition{
		Name: "j", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"},
		Granularity: &domain.GranularitySpec{},
	}
	f := newFixture(t, twoSided(def), nil)
	f.put(t, "dc-left", "SELECT * FROM (VALUES (1, 10), (1, 11)) AS t(k, a)")
	f.put(t, "dc-right", "SELECT * FROM (VALUES (1, 100), (1, 200)) AS t(k, b)")

	exec, err := f.svc.Execute(ctx, f.project(t), def)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Release(ctx) })

	assert.False(t, exec.Metadata.GranularityApplied)
	assert.Empty(t, exec.Metadata.AggregatedSide)
	assert.Equal(t, int64(4), exec.Metadata.ResultRows)
}

func TestAggregate_FunctionSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoSided(), nil)
	rel := f.sess.Query("src", `SELECT * FROM (VALUES
		(1, 1.0::DOUBLE, 'x', 5),
		(1, 3.0, 'y', 7),
		(2, 4.0, 'z', 9)) AS t(k, v, label, n)`)

	cfg, warnings := domain.ParseGranularity(domain.GranularitySpec{
		NumericDefault: "sum",
		Overrides:      map[string]string{"label": "median", "n": "max"},
	})
	require.Empty(t, warnings)

	out, warnings, err := aggregate(ctx, rel, []string{"k"}, cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "label")

	schema, err := out.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v", "label", "n"}, schema.Names())

	rows := sortedRows(t, out, "k")
	require.Len(t, rows, 2)
	assert.InDelta(t, 4.0, rows[0]["v"], 1e-9)
	assert.Equal(t, int32(7), rows[0]["n"])
	assert.Contains(t, []any{"x", "y"}, rows[0]["label"])
	assert.Equal(t, "z", rows[1]["label"])
}

func TestAggExpr(t *testing.T) {
	tests := []struct {
		f    domain.AggFunc
		want string
	}{
		{domain.AggMean, `AVG("c")`},
		{domain.AggSum, `SUM("c")`},
		{domain.AggMin, `MIN("c")`},
		{domain.AggMax, `MAX("c")`},
		{domain.AggFirst, `FIRST("c")`},
		{domain.AggLast, `LAST("c")`},
		{domain.AggCount, `COUNT("c")`},
		{domain.AggMedian, `MEDIAN("c")`},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, aggExpr(tt.f, `"c"`))
		})
	}
}
