package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/ddl"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), Options{Threads: 1}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestReadCSV_SchemaAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	p := writeFile(t, t.TempDir(), "a.csv", "id,val,name\n1,10,x\n2,20,y\n")

	rel, err := s.ReadCSV("a.csv", p, ddl.CSVOptions{Delimiter: ",", Header: true})
	require.NoError(t, err)

	schema, err := rel.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "val", "name"}, schema.Names())
	col, ok := schema.Lookup("val")
	require.True(t, ok)
	assert.True(t, IsNumericType(col.Type), "val should be numeric, got %s", col.Type)

	n, err := rel.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestReadCSV_Options(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	p := writeFile(t, t.TempDir(), "b.tsv", "# comment line\nid\tcode\n1\tNA\n2\t007\n")

	rel, err := s.ReadCSV("b.tsv", p, ddl.CSVOptions{
		Delimiter:   "\t",
		Header:      true,
		SkipRows:    1,
		NullValues:  []string{"NA"},
		ColumnTypes: map[string]string{"code": "varchar"},
	})
	require.NoError(t, err)

	_, rows, err := rel.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0]["code"])
	assert.Equal(t, "007", rows[1]["code"])
}

func TestRelation_WithColumnDropCast(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	rel := s.Query("q", "SELECT 1 AS a, 2 AS b")

	added, err := rel.WithColumn(ctx, "tag", ddl.QuoteLiteral("run1"))
	require.NoError(t, err)
	schema, err := added.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "tag"}, schema.Names())

	replaced, err := added.WithColumn(ctx, "a", "a + 100")
	require.NoError(t, err)
	schema, err = replaced.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "tag"}, schema.Names(), "replacement keeps column position")

	dropped, err := replaced.Drop(ctx, "b", "unknown")
	require.NoError(t, err)
	casted := dropped.Cast(TextType, "a")

	schema, err = casted.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, Schema{{Name: "a", Type: "VARCHAR"}, {Name: "tag", Type: "VARCHAR"}}, schema)

	_, rows, err := casted.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "101", rows[0]["a"])
	assert.Equal(t, "run1", rows[0]["tag"])

	_, err = rel.Drop(ctx, "a", "b")
	require.Error(t, err)
}

func TestUnionAll(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	a := s.Query("a", "SELECT 1 AS x")
	b := s.Query("b", "SELECT 2 AS x")

	u, err := UnionAll("both", a, b)
	require.NoError(t, err)
	n, err := u.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = UnionAll("none")
	require.Error(t, err)

	other := newTestSession(t)
	_, err = UnionAll("mixed", a, other.Query("c", "SELECT 3 AS x"))
	require.Error(t, err)
}

func TestMaterialize_EvaluatesOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	rel := s.Query("q", "SELECT random() AS r FROM range(5)")

	tbl, err := rel.Materialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tbl.Rows)
	assert.Equal(t, []string{"r"}, tbl.Schema.Names())

	_, first, err := tbl.Fetch(ctx)
	require.NoError(t, err)
	_, second, err := tbl.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "materialized values are stable")

	require.NoError(t, tbl.Release(ctx))
	_, err = tbl.Count(ctx)
	require.Error(t, err)
}

func TestWriteParquet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	out := filepath.Join(t.TempDir(), "out.parquet")

	rel := s.Query("q", "SELECT * FROM (VALUES (1, 'a'), (2, 'b')) AS t(id, name)")
	require.NoError(t, rel.WriteParquet(ctx, out))

	back, err := s.ReadParquet("out", out)
	require.NoError(t, err)
	cols, rows, err := back.Where("id = 2").Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["name"])
}

func TestLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	n, err := s.Query("q", "SELECT * FROM range(100)").Limit(7).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestSchema_Helpers(t *testing.T) {
	s := Schema{{Name: "a", Type: "BIGINT"}, {Name: "b", Type: "VARCHAR"}}
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))
	assert.Equal(t, []string{"c"}, s.Missing([]string{"a", "c"}))
	assert.True(t, s.Equal(Schema{{Name: "a", Type: "BIGINT"}, {Name: "b", Type: "VARCHAR"}}))
	assert.False(t, s.Equal(Schema{{Name: "a", Type: "VARCHAR"}, {Name: "b", Type: "VARCHAR"}}))

	for _, typ := range []string{"BIGINT", "double", "DECIMAL(18,3)", "HUGEINT"} {
		assert.True(t, IsNumericType(typ), typ)
	}
	for _, typ := range []string{"VARCHAR", "DATE", "BOOLEAN", "TIMESTAMP"} {
		assert.False(t, IsNumericType(typ), typ)
	}
}

func TestOpen_ScratchDirLifecycle(t *testing.T) {
	s, err := Open(context.Background(), Options{MemoryLimit: "512MB"}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	dir := s.ScratchDir()
	assert.DirExists(t, dir)
	require.NoError(t, s.Close())
	assert.NoDirExists(t, dir)

	keep := filepath.Join(t.TempDir(), "scratch")
	s, err = Open(context.Background(), Options{ScratchDir: keep}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.DirExists(t, keep, "caller-provided scratch dir is kept")
}
