package declarative

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/domain"
)

// testdataDir returns the absolute path to testdata relative to this test file.
func testdataDir(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")
	return filepath.Join(filepath.Dir(filename), "testdata")
}

func TestLoadProject(t *testing.T) {
	p, err := LoadProject(filepath.Join(testdataDir(t), "project.yaml"), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "cytometry", p.Name)
	assert.Equal(t, "wf_main", p.DefaultWorkflow)

	t.Run("workflow collections bound", func(t *testing.T) {
		require.Len(t, p.Workflows, 1)
		dcs := p.Workflows[0].DataCollections
		require.Len(t, dcs, 2)
		assert.Equal(t, "wf_main", dcs[0].Workflow)
		assert.Equal(t, domain.FormatCSV, dcs[0].Config.Format)
		assert.Equal(t, []string{"NA"}, dcs[0].Config.ReadOptions.NullValues)
		assert.True(t, dcs[0].Config.ReadOptions.HasHeader())
		require.NotNil(t, dcs[0].Scan)
		assert.Equal(t, "run_([^/]+)/", dcs[0].Scan.RunTagRegex)
		assert.True(t, dcs[1].IsMetadata())
	})

	t.Run("project collections", func(t *testing.T) {
		require.Len(t, p.DataCollections, 1)
		assert.Empty(t, p.DataCollections[0].Workflow)
	})

	t.Run("joins", func(t *testing.T) {
		require.Len(t, p.Joins, 1)
		j := p.Joins[0]
		assert.Equal(t, []string{"sample"}, j.OnColumns)
		assert.True(t, j.Persist)
		require.NotNil(t, j.Granularity)
		assert.Equal(t, "last", j.Granularity.Overrides["label"])
	})

	assert.Empty(t, ValidateProject(p))
}

func TestLoadProject_Missing(t *testing.T) {
	_, err := LoadProject(filepath.Join(t.TempDir(), "nope.yaml"), LoadOptions{})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestParseProject_UnknownFields(t *testing.T) {
	data := []byte("name: p\nsurprise: 1\n")

	_, err := ParseProject(data, LoadOptions{})
	require.Error(t, err)

	p, err := ParseProject(data, LoadOptions{AllowUnknownFields: true})
	require.NoError(t, err)
	assert.Equal(t, "p", p.Name)
}

func TestSaveProject_RoundTrip(t *testing.T) {
	p, err := LoadProject(filepath.Join(testdataDir(t), "project.yaml"), LoadOptions{})
	require.NoError(t, err)

	executed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p.Joins[0] = p.Joins[0].WithResult(domain.JoinResultMeta{
		DataCollectionID: "dc-joined",
		Tag:              "measurements_with_runs",
		Location:         "/lake/dc-joined",
		ExecutedAt:       executed,
		Rows:             10,
		Columns:          4,
		SizeBytes:        512,
	})

	out := filepath.Join(t.TempDir(), "sub", "project.yaml")
	require.NoError(t, SaveProject(out, p))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	back, err := LoadProject(out, LoadOptions{})
	require.NoError(t, err)
	require.NotNil(t, back.Joins[0].Result)
	assert.Equal(t, "dc-joined", back.Joins[0].Result.DataCollectionID)
	assert.True(t, executed.Equal(back.Joins[0].Result.ExecutedAt))
	assert.Equal(t, p.Workflows[0].DataCollections[0].Scan, back.Workflows[0].DataCollections[0].Scan)
	assert.Equal(t, "wf_main", back.Workflows[0].DataCollections[0].Workflow)
}
