// Package blob provides a minimal object-storage abstraction over the local
// filesystem, S3-compatible storage, Google Cloud Storage and Azure Blob Storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned (wrapped) when an object does not exist.
var ErrNotExist = errors.New("object does not exist")

// Bucket is a key/value object store rooted at a prefix.
// Keys are slash-separated and relative to the root.
type Bucket interface {
	// URI returns the absolute location of key.
	URI(key string) string
	Exists(ctx context.Context, key string) (bool, error)
	// Get streams the object into w. Missing objects yield ErrNotExist.
	Get(ctx context.Context, key string, w io.Writer) error
	// Put stores r under key. Readers never observe a partially written object.
	Put(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	// List returns keys (relative to the root) that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalPather is implemented by buckets whose objects are plain local files.
type LocalPather interface {
	LocalPath(key string) string
}

// Supported location schemes.
const (
	SchemeFile  = "file"
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
	SchemeAzure = "az"
)

// Location is a parsed storage URI.
type Location struct {
	Scheme string
	// Bucket is the S3/GCS bucket or Azure container. Empty for local paths.
	Bucket string
	// Account is the Azure storage account when present in the URI.
	Account string
	// Key is the object key, or the absolute filesystem path for local locations.
	Key string
}

// ParseURI parses a storage URI. Plain paths and file:// URIs are local.
//
// Supported forms:
//
//	/data/file.csv, file:///data/file.csv
//	s3://bucket/key
//	gs://bucket/key
//	az://container/key
//	abfss://container@account.dfs.core.windows.net/key
//	https://account.blob.core.windows.net/container/key
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty storage location")
	}
	if !strings.Contains(uri, "://") {
		abs, err := filepath.Abs(uri)
		if err != nil {
			return Location{}, fmt.Errorf("resolve %q: %w", uri, err)
		}
		return Location{Scheme: SchemeFile, Key: abs}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parse storage location %q: %w", uri, err)
	}
	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "file":
		return Location{Scheme: SchemeFile, Key: filepath.FromSlash(u.Path)}, nil
	case "s3", "s3a":
		return Location{Scheme: SchemeS3, Bucket: u.Host, Key: key}, requireBucket(u.Host, uri)
	case "gs", "gcs":
		return Location{Scheme: SchemeGCS, Bucket: u.Host, Key: key}, requireBucket(u.Host, uri)
	case "az":
		return Location{Scheme: SchemeAzure, Bucket: u.Host, Key: key}, requireBucket(u.Host, uri)
	case "abfss":
		// Go's url.Parse treats "container" as userinfo and the account host as host.
		if u.User == nil {
			return Location{}, fmt.Errorf("abfss location %q missing container@account component", uri)
		}
		account, _, _ := strings.Cut(u.Host, ".")
		return Location{Scheme: SchemeAzure, Bucket: u.User.Username(), Account: account, Key: key}, nil
	case "https":
		if !strings.Contains(u.Host, ".blob.core.windows.net") {
			return Location{}, fmt.Errorf("unrecognized HTTPS storage host %q in %q", u.Host, uri)
		}
		account, _, _ := strings.Cut(u.Host, ".")
		container, rest, _ := strings.Cut(key, "/")
		return Location{Scheme: SchemeAzure, Bucket: container, Account: account, Key: rest}, requireBucket(container, uri)
	default:
		return Location{}, fmt.Errorf("unsupported storage scheme %q in %q", u.Scheme, uri)
	}
}

func requireBucket(bucket, uri string) error {
	if bucket == "" {
		return fmt.Errorf("missing bucket in storage location %q", uri)
	}
	return nil
}

// IsLocal reports whether the location is on the local filesystem.
func (l Location) IsLocal() bool { return l.Scheme == SchemeFile }

// Join returns a location with elems appended to the key.
func (l Location) Join(elem ...string) Location {
	if l.IsLocal() {
		l.Key = filepath.Join(append([]string{l.Key}, elem...)...)
		return l
	}
	l.Key = strings.TrimPrefix(path.Join(append([]string{l.Key}, elem...)...), "/")
	return l
}

// Split returns the parent location and the final key element.
func (l Location) Split() (Location, string) {
	if l.IsLocal() {
		dir, file := filepath.Split(l.Key)
		l.Key = filepath.Clean(dir)
		return l, file
	}
	dir, file := path.Split(l.Key)
	l.Key = strings.TrimSuffix(dir, "/")
	return l, file
}

func (l Location) String() string {
	switch l.Scheme {
	case SchemeFile:
		return l.Key
	default:
		if l.Key == "" {
			return l.Scheme + "://" + l.Bucket
		}
		return l.Scheme + "://" + l.Bucket + "/" + l.Key
	}
}

// joinKey joins a bucket prefix and a relative key with a slash.
func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	key = strings.TrimPrefix(key, "/")
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "/" + key
	}
}

// trimKey strips a bucket prefix from an absolute object key.
func trimKey(prefix, full string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return full
	}
	return strings.TrimPrefix(strings.TrimPrefix(full, prefix), "/")
}
