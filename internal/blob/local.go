package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBucket stores objects as files under a root directory.
type LocalBucket struct {
	root string
}

var _ Bucket = (*LocalBucket)(nil)
var _ LocalPather = (*LocalBucket)(nil)

// NewLocalBucket returns a bucket rooted at dir. The directory is created lazily.
func NewLocalBucket(dir string) *LocalBucket {
	return &LocalBucket{root: dir}
}

// LocalPath returns the filesystem path of key.
func (b *LocalBucket) LocalPath(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

// URI implements Bucket.
func (b *LocalBucket) URI(key string) string { return b.LocalPath(key) }

// Exists implements Bucket.
func (b *LocalBucket) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(b.LocalPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", key, err)
}

// Get implements Bucket.
func (b *LocalBucket) Get(_ context.Context, key string, w io.Writer) error {
	f, err := os.Open(b.LocalPath(key)) //nolint:gosec // key is caller-controlled by design
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", b.LocalPath(key), ErrNotExist)
		}
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close() //nolint:errcheck
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return nil
}

// Put writes to a temporary sibling file and renames it into place.
func (b *LocalBucket) Put(_ context.Context, key string, r io.Reader) error {
	dst := b.LocalPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

// Delete implements Bucket. Deleting a missing object is not an error.
func (b *LocalBucket) Delete(_ context.Context, key string) error {
	if err := os.Remove(b.LocalPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// List implements Bucket.
func (b *LocalBucket) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}
