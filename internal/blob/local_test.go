package blob

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBucket_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBucket(t.TempDir())

	ok, err := b.Exists(ctx, "dc1/_manifest.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put(ctx, "dc1/_manifest.json", strings.NewReader(`{"version":1}`)))

	ok, err = b.Exists(ctx, "dc1/_manifest.json")
	require.NoError(t, err)
	assert.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, b.Get(ctx, "dc1/_manifest.json", &buf))
	assert.JSONEq(t, `{"version":1}`, buf.String())

	// Overwrite replaces content.
	require.NoError(t, b.Put(ctx, "dc1/_manifest.json", strings.NewReader(`{"version":2}`)))
	buf.Reset()
	require.NoError(t, b.Get(ctx, "dc1/_manifest.json", &buf))
	assert.JSONEq(t, `{"version":2}`, buf.String())

	require.NoError(t, b.Delete(ctx, "dc1/_manifest.json"))
	require.NoError(t, b.Delete(ctx, "dc1/_manifest.json"), "deleting twice is not an error")

	err = b.Get(ctx, "dc1/_manifest.json", &buf)
	require.ErrorIs(t, err, ErrNotExist)
}

func TestLocalBucket_List(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBucket(t.TempDir())

	for _, k := range []string{"dc1/v1.parquet", "dc1/v2.parquet", "dc2/v1.parquet"} {
		require.NoError(t, b.Put(ctx, k, strings.NewReader("x")))
	}

	keys, err := b.List(ctx, "dc1/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"dc1/v1.parquet", "dc1/v2.parquet"}, keys)

	missing := NewLocalBucket(filepath.Join(t.TempDir(), "nope"))
	keys, err = missing.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalBucket_PutLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewLocalBucket(dir)

	require.NoError(t, b.Put(ctx, "a/b.txt", strings.NewReader("hello")))

	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name())
}

func TestOpener_StageLocal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "raw.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o600))

	o := NewOpener(Config{})
	got, err := o.Stage(ctx, src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

// remoteOnly hides LocalPather so Download takes the copy path.
type remoteOnly struct{ Bucket }

func TestDownload_CopiesRemoteObjects(t *testing.T) {
	ctx := context.Background()
	src := NewLocalBucket(t.TempDir())
	require.NoError(t, src.Put(ctx, "in/data.parquet", strings.NewReader("PAR1")))

	scratch := t.TempDir()
	got, err := Download(ctx, remoteOnly{src}, "in/data.parquet", scratch)
	require.NoError(t, err)
	assert.Equal(t, scratch, filepath.Dir(got))
	assert.True(t, strings.HasSuffix(got, "-data.parquet"))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data))

	_, err = Download(ctx, remoteOnly{src}, "in/missing.parquet", scratch)
	require.ErrorIs(t, err, ErrNotExist)
}

func TestOpener_RemoteWithoutCredentials(t *testing.T) {
	o := NewOpener(Config{})
	_, err := o.OpenURI(context.Background(), "s3://bucket/prefix")
	require.Error(t, err)

	_, err = o.OpenURI(context.Background(), "az://container/prefix")
	require.Error(t, err)
}
