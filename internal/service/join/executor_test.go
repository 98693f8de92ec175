package join

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/domain"
)

func TestExecute_Keys(t *testing.T) {
	ctx := context.Background()
	def := domain.JoinDefinition{Name: "j", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"}}

	tests := []struct {
		name         string
		rightMeta    bool
		left, right  string
		wantKeys     []string
		wantCast     []string
		wantDropped  []string
		wantRows     int64
		wantColumns  []string
		wantWarnings int
	}{
		{
			name:        "run_tag joins automatically",
			left:        "SELECT * FROM (VALUES (1, 'r1', 10), (1, 'r2', 11)) AS t(k, run_tag, a)",
			right:       "SELECT * FROM (VALUES (1, 'r1', 100), (1, 'r2', 200)) AS t(k, run_tag, b)",
			wantKeys:    []string{"k", "run_tag"},
			wantRows:    2,
			wantColumns: []string{"k", "run_tag", "a", "b"},
		},
		{
			name:        "metadata side disables run_tag",
			rightMeta:   true,
			left:        "SELECT * FROM (VALUES (1, 'r1', 10), (1, 'r2', 11)) AS t(k, run_tag, a)",
			right:       "SELECT * FROM (VALUES (1, 'r1', 100), (1, 'r2', 200)) AS t(k, run_tag, b)",
			wantKeys:    []string{"k"},
			wantDropped: []string{"run_tag"},
			wantRows:    4,
			wantColumns: []string{"k", "run_tag", "a", "b"},
		},
		{
			name:         "mismatched key types cast to text",
			left:         "SELECT 1 AS k, 10 AS a",
			right:        "SELECT '1' AS k, 100 AS b",
			wantKeys:     []string{"k"},
			wantCast:     []string{"k"},
			wantRows:     1,
			wantColumns:  []string{"k", "a", "b"},
			wantWarnings: 1,
		},
		{
			name:        "colliding right columns dropped",
			left:        "SELECT 1 AS k, 'left' AS note",
			right:       "SELECT 1 AS k, 'right' AS note, 5 AS b",
			wantKeys:    []string{"k"},
			wantDropped: []string{"note"},
			wantRows:    1,
			wantColumns: []string{"k", "note", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := twoSided(def)
			if tt.rightMeta {
				p.Workflows[0].DataCollections[1] = metadataDC("dc-right", "right")
			}
			f := newFixture(t, p, nil)
			f.put(t, "dc-left", tt.left)
			f.put(t, "dc-right", tt.right)

			exec, err := f.svc.Execute(ctx, f.project(t), def)
			require.NoError(t, err)
			t.Cleanup(func() { _ = exec.Release(ctx) })

			md := exec.Metadata
			assert.Equal(t, tt.wantKeys, md.JoinColumns)
			assert.Equal(t, tt.wantCast, md.CastColumns)
			assert.Equal(t, tt.wantDropped, md.DroppedColumns)
			assert.Equal(t, tt.wantRows, md.ResultRows)
			assert.Equal(t, tt.wantColumns, exec.Table.Schema.Names())
			assert.Len(t, md.Warnings, tt.wantWarnings)
			assert.Equal(t, domain.JoinInner, md.How)
			assert.False(t, md.GranularityApplied)
		})
	}
}

func TestExecute_LeftWinsOnCollision(t *testing.T) {
	ctx := context.Background()
	def := domain.JoinDefinition{Name: "j", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"}, How: "left"}
	f := newFixture(t, twoSided(def), nil)
	f.put(t, "dc-left", "SELECT * FROM (VALUES (1, 'l1'), (2, 'l2')) AS t(k, note)")
	f.put(t, "dc-right", "SELECT * FROM (VALUES (1, 'r1')) AS t(k, note)")

	exec, err := f.svc.Execute(ctx, f.project(t), def)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Release(ctx) })

	rows := sortedRows(t, exec.Table.Relation, "k")
	require.Len(t, rows, 2)
	assert.Equal(t, "l1", rows[0]["note"])
	assert.Equal(t, "l2", rows[1]["note"])
	assert.Equal(t, domain.JoinLeft, exec.Metadata.How)
}

func TestExecute_Preconditions(t *testing.T) {
	ctx := context.Background()
	def := domain.JoinDefinition{Name: "j", LeftDC: "left", RightDC: "right", OnColumns: []string{"k"}}
	f := newFixture(t, twoSided(def), nil)
	f.put(t, "dc-left", "SELECT 1 AS k")
	p := f.project(t)

	_, err := f.svc.Execute(ctx, p, def)
	assert.True(t, domain.IsNotProcessed(err), "got %v", err)

	bad := def
	bad.RightDC = "missing"
	_, err = f.svc.Execute(ctx, p, bad)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}
