package join

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dclake/internal/blob"
	"dclake/internal/domain"
	"dclake/internal/engine"
	"dclake/internal/tablestore"
	"dclake/internal/testutil"
)

type fixture struct {
	svc     *Service
	sess    *engine.Session
	store   *tablestore.Store
	catalog *testutil.MockCatalog
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// newFixture builds a join service over an in-memory session and a
// temp-dir table store. p is bound and served by the mock catalog.
func newFixture(t *testing.T, p *domain.Project, processor Processor) *fixture {
	t.Helper()
	sess, err := engine.Open(context.Background(), engine.Options{Threads: 1}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	p.Bind()
	store := tablestore.New(blob.NewLocalBucket(t.TempDir()), tablestore.Options{}, discardLogger())
	cat := &testutil.MockCatalog{Project: p}
	svc := NewService(cat, store, sess, processor, discardLogger())
	svc.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return &fixture{svc: svc, sess: sess, store: store, catalog: cat}
}

// put stores the result of query as the canonical table of dcID.
func (f *fixture) put(t *testing.T, dcID, query string) {
	t.Helper()
	ctx := context.Background()
	tbl, err := f.sess.Query(dcID, query).Materialize(ctx)
	require.NoError(t, err)
	defer func() { _ = tbl.Release(ctx) }()
	_, err = f.store.Write(ctx, dcID, tbl, tablestore.WriteOptions{Overwrite: true})
	require.NoError(t, err)
}

// project returns the catalog's current project.
func (f *fixture) project(t *testing.T) *domain.Project {
	t.Helper()
	p, err := f.catalog.ResolveProject(context.Background(), "demo")
	require.NoError(t, err)
	return p
}

func dc(id, tag string) domain.DataCollection {
	return domain.DataCollection{ID: id, Tag: tag, Type: "table", Config: domain.FormatDescriptor{Format: domain.FormatCSV}}
}

func metadataDC(id, tag string) domain.DataCollection {
	d := dc(id, tag)
	d.Config.Metatype = domain.MetatypeMetadata
	return d
}

// twoSided is a project with collections "left" and "right" in workflow wf
// and the given joins.
func twoSided(joins ...domain.JoinDefinition) *domain.Project {
	return &domain.Project{
		Name:            "demo",
		DefaultWorkflow: "wf",
		Workflows: []domain.Workflow{{
			Name:            "wf",
			DataCollections: []domain.DataCollection{dc("dc-left", "left"), dc("dc-right", "right")},
		}},
		Joins: joins,
	}
}

func sortedRows(t *testing.T, rel *engine.Relation, by ...string) []map[string]any {
	t.Helper()
	_, rows, err := rel.OrderBy(by...).Fetch(context.Background())
	require.NoError(t, err)
	return rows
}
