package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Stage makes the object at uri available as a local file. Local paths are
// returned as-is; remote objects are downloaded into dir, keyed by a hash of
// the URI so repeated stages of the same object reuse one file name.
func (o *Opener) Stage(ctx context.Context, uri, dir string) (string, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	if loc.IsLocal() {
		return loc.Key, nil
	}
	parent, name := loc.Split()
	b, err := o.Open(ctx, parent)
	if err != nil {
		return "", err
	}
	return Download(ctx, b, name, dir)
}

// Download copies key from b into dir and returns the local path. Buckets
// backed by local files are read in place.
func Download(ctx context.Context, b Bucket, key, dir string) (string, error) {
	if lp, ok := b.(LocalPather); ok {
		p := lp.LocalPath(key)
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("%s: %w", p, ErrNotExist)
			}
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
		return p, nil
	}

	sum := sha256.Sum256([]byte(b.URI(key)))
	dst := filepath.Join(dir, hex.EncodeToString(sum[:8])+"-"+filepath.Base(key))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	if err := b.Get(ctx, key, f); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(f.Name(), dst); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("stage %s: %w", b.URI(key), err)
	}
	return dst, nil
}
