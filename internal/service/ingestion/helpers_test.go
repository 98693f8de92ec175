package ingestion

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dclake/internal/blob"
	"dclake/internal/engine"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newSession(t *testing.T) *engine.Session {
	t.Helper()
	s, err := engine.Open(context.Background(), engine.Options{Threads: 1}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newReader(t *testing.T, sess *engine.Session) *Reader {
	t.Helper()
	return NewReader(sess, blob.NewOpener(blob.Config{}), discardLogger())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}
