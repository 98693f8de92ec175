package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclake/internal/blob"
	internaldb "dclake/internal/db"
	"dclake/internal/db/repository"
	"dclake/internal/declarative"
	"dclake/internal/domain"
)

const testProject = `name: demo
default_workflow: wf
workflows:
  - name: wf
    data_collections:
      - id: dc-m
        tag: measurements
        config:
          format: csv
        scan:
          paths: ["raw/*/m.csv"]
          run_tag_regex: "raw/(?P<run>[^/]+)/m.csv"
      - id: dc-j
        tag: joined
        source: joined
        config:
          format: parquet
`

func setupCatalog(t *testing.T, opener BucketOpener) (*LocalCatalog, string) {
	t.Helper()
	dir := t.TempDir()
	projectPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(projectPath, []byte(testProject), 0o600))

	db := internaldb.OpenTestSQLite(t)
	c := NewLocalCatalog(projectPath,
		repository.NewFileRepo(db),
		repository.NewTableLocationRepo(db),
		opener,
		slog.New(slog.DiscardHandler))
	return c, dir
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0o600))
}

func TestLocalCatalog_ResolveProject(t *testing.T) {
	c, _ := setupCatalog(t, nil)
	ctx := context.Background()

	p, err := c.ResolveProject(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, "wf", p.Workflows[0].DataCollections[0].Workflow)

	_, err = c.ResolveProject(ctx, "other")
	assert.True(t, domain.IsNotFound(err))
}

func TestLocalCatalog_ResolveProject_Invalid(t *testing.T) {
	c, _ := setupCatalog(t, nil)
	require.NoError(t, os.WriteFile(c.ProjectPath(), []byte("name: x\ndefault_workflow: nope\n"), 0o600))

	_, err := c.ResolveProject(context.Background(), "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "nope")
}

func TestLocalCatalog_ListFiles_ScanAndRegistered(t *testing.T) {
	c, dir := setupCatalog(t, nil)
	ctx := context.Background()
	touch(t, filepath.Join(dir, "raw", "r2", "m.csv"))
	touch(t, filepath.Join(dir, "raw", "r1", "m.csv"))
	extra := filepath.Join(dir, "extra.csv")
	touch(t, extra)

	rf, err := c.RegisterFile(ctx, "measurements", domain.File{Location: "extra.csv", RunTag: "manual"})
	require.NoError(t, err)
	assert.Equal(t, extra, rf.Location, "relative paths resolve against the project directory")
	assert.Equal(t, domain.FormatCSV, rf.Format)

	// Registering a scanned file is reported once.
	_, err = c.RegisterFile(ctx, "wf.measurements", domain.File{Location: filepath.Join(dir, "raw", "r1", "m.csv"), RunTag: "r1"})
	require.NoError(t, err)

	files, err := c.ListFiles(ctx, "dc-m")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, extra, files[0].Location)
	assert.Equal(t, "manual", files[0].RunTag)
	assert.Equal(t, "r1", files[1].RunTag)
	assert.Equal(t, filepath.Join(dir, "raw", "r2", "m.csv"), files[2].Location)
	assert.Equal(t, "r2", files[2].RunTag)
	for _, f := range files {
		assert.Equal(t, domain.FormatCSV, f.Format)
	}
}

func TestLocalCatalog_ListFiles_UnknownCollection(t *testing.T) {
	c, _ := setupCatalog(t, nil)
	_, err := c.ListFiles(context.Background(), "nope")
	assert.True(t, domain.IsNotFound(err))
}

func TestLocalCatalog_RegisterFile_Rejections(t *testing.T) {
	c, _ := setupCatalog(t, nil)
	ctx := context.Background()

	_, err := c.RegisterFile(ctx, "missing", domain.File{Location: "/a.csv"})
	assert.True(t, domain.IsNotFound(err))

	_, err = c.RegisterFile(ctx, "joined", domain.File{Location: "/a.csv"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = c.RegisterFile(ctx, "measurements", domain.File{Location: "/a.json", Format: "json"})
	assert.ErrorAs(t, err, &verr)
}

func TestLocalCatalog_TableLocations(t *testing.T) {
	c, _ := setupCatalog(t, nil)
	ctx := context.Background()

	require.NoError(t, c.RegisterTableLocation(ctx, "dc-m", "/lake/dc-m", 100, false))
	err := c.RegisterTableLocation(ctx, "dc-m", "/lake/dc-m", 200, false)
	assert.True(t, domain.IsConflict(err))
	require.NoError(t, c.RegisterTableLocation(ctx, "dc-m", "/lake/dc-m", 200, true))

	loc, err := c.TableLocation(ctx, "dc-m")
	require.NoError(t, err)
	assert.Equal(t, int64(200), loc.SizeBytes)
}

func TestLocalCatalog_SyncProject(t *testing.T) {
	c, _ := setupCatalog(t, nil)
	ctx := context.Background()

	p, err := c.ResolveProject(ctx, "")
	require.NoError(t, err)
	p.Workflows[0].DataCollections[0].Description = "updated"

	err = c.SyncProject(ctx, p, false)
	assert.True(t, domain.IsConflict(err))

	require.NoError(t, c.SyncProject(ctx, p, true))
	back, err := declarative.LoadProject(c.ProjectPath(), declarative.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "updated", back.Workflows[0].DataCollections[0].Description)
}

// listBucket is a blob.Bucket with a fixed key listing.
type listBucket struct {
	blob.Bucket
	root string
	keys []string
}

func (b listBucket) URI(key string) string { return b.root + "/" + key }

func (b listBucket) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range b.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

type openerFunc func(ctx context.Context, uri string) (blob.Bucket, error)

func (f openerFunc) OpenURI(ctx context.Context, uri string) (blob.Bucket, error) { return f(ctx, uri) }

func TestLocalCatalog_GlobRemote(t *testing.T) {
	var opened string
	opener := openerFunc(func(_ context.Context, uri string) (blob.Bucket, error) {
		opened = uri
		return listBucket{root: uri, keys: []string{
			"run_a/m.csv", "run_b/m.csv", "run_b/other.txt", "nested/run_c/m.csv",
		}}, nil
	})
	c, _ := setupCatalog(t, opener)

	got, err := c.globRemote(context.Background(), "s3://bucket/raw/*/m.csv")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/raw", opened)
	assert.Equal(t, []string{"s3://bucket/raw/run_a/m.csv", "s3://bucket/raw/run_b/m.csv"}, got)

	literal, err := c.globRemote(context.Background(), "s3://bucket/raw/one.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://bucket/raw/one.csv"}, literal)

	noOpener, _ := setupCatalog(t, nil)
	_, err = noOpener.globRemote(context.Background(), "s3://bucket/raw/*.csv")
	require.Error(t, err)
}

func TestRunTag(t *testing.T) {
	assert.Empty(t, runTag(nil, "/a/b.csv"))
	assert.Equal(t, "42", runTag(mustRegexp(t, `run_(\d+)`), "/data/run_42/x.csv"))
	assert.Equal(t, "b", runTag(mustRegexp(t, `(x)/(?P<run>[a-z])/`), "x/b/c"))
	assert.Empty(t, runTag(mustRegexp(t, `run_(\d+)`), "/data/other.csv"))
}

func mustRegexp(t *testing.T, expr string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile(expr)
	require.NoError(t, err)
	return re
}
