package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSBucket stores objects in a Google Cloud Storage bucket under a key prefix.
type GCSBucket struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Bucket = (*GCSBucket)(nil)

// NewGCSClient creates a GCS client. Without a key file the client falls back
// to application default credentials.
func NewGCSClient(ctx context.Context, cfg GCSConfig) (*storage.Client, error) {
	var opts []option.ClientOption
	if cfg.KeyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.KeyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return client, nil
}

// NewGCSBucket returns a bucket view rooted at prefix.
func NewGCSBucket(client *storage.Client, bucket, prefix string) *GCSBucket {
	return &GCSBucket{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *GCSBucket) object(key string) *storage.ObjectHandle {
	return b.client.Bucket(b.bucket).Object(joinKey(b.prefix, key))
}

// URI implements Bucket.
func (b *GCSBucket) URI(key string) string {
	return "gs://" + b.bucket + "/" + joinKey(b.prefix, key)
}

// Exists implements Bucket.
func (b *GCSBucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", b.URI(key), err)
}

// Get implements Bucket.
func (b *GCSBucket) Get(ctx context.Context, key string, w io.Writer) error {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%s: %w", b.URI(key), ErrNotExist)
		}
		return fmt.Errorf("open %s: %w", b.URI(key), err)
	}
	defer r.Close() //nolint:errcheck
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("read %s: %w", b.URI(key), err)
	}
	return nil
}

// Put implements Bucket. The object becomes visible only when the writer closes.
func (b *GCSBucket) Put(ctx context.Context, key string, r io.Reader) error {
	w := b.object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", b.URI(key), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", b.URI(key), err)
	}
	return nil
}

// Delete implements Bucket.
func (b *GCSBucket) Delete(ctx context.Context, key string) error {
	if err := b.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", b.URI(key), err)
	}
	return nil
}

// List implements Bucket.
func (b *GCSBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: joinKey(b.prefix, prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.URI(prefix), err)
		}
		keys = append(keys, trimKey(b.prefix, attrs.Name))
	}
	return keys, nil
}
