// Package tablestore persists canonical tables: one versioned Parquet snapshot
// per data collection, published through an atomically replaced manifest.
package tablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"dclake/internal/blob"
	"dclake/internal/domain"
	"dclake/internal/engine"
)

const (
	manifestKey    = "_manifest.json"
	defaultRetain  = 3
	snapshotSuffix = ".parquet"
)

// Manifest describes the current snapshot of a canonical table.
type Manifest struct {
	DataCollectionID string        `json:"data_collection_id"`
	Version          int64         `json:"version"`
	File             string        `json:"file"`
	Rows             int64         `json:"rows"`
	Columns          int           `json:"columns"`
	Schema           engine.Schema `json:"schema"`
	SizeBytes        int64         `json:"size_bytes"`
	WrittenAt        time.Time     `json:"written_at"`
}

// Snapshot is a canonical table opened for reading.
type Snapshot struct {
	Manifest Manifest
	Location string
	Relation *engine.Relation
}

// WriteOptions controls Write.
type WriteOptions struct {
	Overwrite bool
}

// Options configures a Store.
type Options struct {
	// Retain is the number of snapshot files kept per table, including the
	// current one. Zero means the default of 3.
	Retain int
}

// Store reads and writes canonical tables under a bucket root. Each data
// collection lives under the key prefix "{id}/".
type Store struct {
	bucket blob.Bucket
	retain int
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Store over bucket.
func New(bucket blob.Bucket, opts Options, logger *slog.Logger) *Store {
	retain := opts.Retain
	if retain <= 0 {
		retain = defaultRetain
	}
	return &Store{bucket: bucket, retain: retain, logger: logger, now: time.Now}
}

// Location returns the deterministic location of a data collection's table.
func (s *Store) Location(dcID string) string {
	return s.bucket.URI(dcID)
}

// Exists reports whether a table has been published for dcID.
func (s *Store) Exists(ctx context.Context, dcID string) (bool, error) {
	if err := validateID(dcID); err != nil {
		return false, err
	}
	ok, err := s.bucket.Exists(ctx, manifestPath(dcID))
	if err != nil {
		return false, fmt.Errorf("probe table %s: %w", dcID, err)
	}
	return ok, nil
}

// Manifest loads the current manifest. A missing table yields a NotFoundError.
func (s *Store) Manifest(ctx context.Context, dcID string) (*Manifest, error) {
	if err := validateID(dcID); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.bucket.Get(ctx, manifestPath(dcID), &buf); err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return nil, domain.ErrNotFound("no canonical table for data collection %q at %s", dcID, s.Location(dcID))
		}
		return nil, fmt.Errorf("read manifest for %s: %w", dcID, err)
	}
	var m Manifest
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		return nil, fmt.Errorf("decode manifest for %s: %w", dcID, err)
	}
	return &m, nil
}

// Read opens the current snapshot of dcID as a lazy relation in sess. A
// missing table yields a NotFoundError, which callers treat as "not yet
// processed" rather than a failure.
func (s *Store) Read(ctx context.Context, sess *engine.Session, dcID string) (*Snapshot, error) {
	m, err := s.Manifest(ctx, dcID)
	if err != nil {
		return nil, err
	}
	local, err := blob.Download(ctx, s.bucket, dcID+"/"+m.File, filepath.Join(sess.ScratchDir(), "tables"))
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return nil, fmt.Errorf("table %s: manifest references missing snapshot %s: %w", dcID, m.File, err)
		}
		return nil, fmt.Errorf("fetch table %s: %w", dcID, err)
	}
	rel, err := sess.ReadParquet(dcID, local)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Manifest: *m, Location: s.Location(dcID), Relation: rel}, nil
}

// Write publishes tbl as the new snapshot of dcID. When a table already
// exists and opts.Overwrite is false, a ConflictError is returned and
// nothing is written. The existence probe and the write are not atomic
// with respect to other writers.
func (s *Store) Write(ctx context.Context, dcID string, tbl *engine.Table, opts WriteOptions) (*Manifest, error) {
	if err := validateID(dcID); err != nil {
		return nil, err
	}
	prev, err := s.Manifest(ctx, dcID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	if prev != nil && !opts.Overwrite {
		return nil, domain.ErrConflict("canonical table for %q already exists at %s; set overwrite to replace it", dcID, s.Location(dcID))
	}

	now := s.now().UTC()
	file := fmt.Sprintf("v%d-%s%s", now.UnixNano(), domain.NewID(), snapshotSuffix)
	staged := filepath.Join(tbl.Session().ScratchDir(), "out-"+file)
	if err := tbl.WriteParquet(ctx, staged); err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(staged) }()

	size, err := s.upload(ctx, dcID+"/"+file, staged)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		DataCollectionID: dcID,
		Version:          1,
		File:             file,
		Rows:             tbl.Rows,
		Columns:          len(tbl.Schema),
		Schema:           tbl.Schema,
		SizeBytes:        size,
		WrittenAt:        now,
	}
	if prev != nil {
		m.Version = prev.Version + 1
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest for %s: %w", dcID, err)
	}
	if err := s.bucket.Put(ctx, manifestPath(dcID), bytes.NewReader(data)); err != nil {
		_ = s.bucket.Delete(ctx, dcID+"/"+file)
		return nil, fmt.Errorf("publish table %s: %w", dcID, err)
	}

	s.logger.Info("canonical table written",
		"data_collection_id", dcID, "version", m.Version, "rows", m.Rows,
		"columns", m.Columns, "size_bytes", m.SizeBytes, "location", s.Location(dcID))

	if err := s.prune(ctx, dcID, file); err != nil {
		s.logger.Warn("prune old snapshots", "data_collection_id", dcID, "error", err)
	}
	return m, nil
}

func (s *Store) upload(ctx context.Context, key, path string) (int64, error) {
	f, err := os.Open(path) //nolint:gosec // engine-owned scratch file
	if err != nil {
		return 0, fmt.Errorf("open staged snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat staged snapshot: %w", err)
	}
	if err := s.bucket.Put(ctx, key, f); err != nil {
		return 0, fmt.Errorf("upload snapshot: %w", err)
	}
	return info.Size(), nil
}

// prune deletes snapshot files beyond the retention count. The current file
// is always kept.
func (s *Store) prune(ctx context.Context, dcID, current string) error {
	keys, err := s.bucket.List(ctx, dcID+"/")
	if err != nil {
		return err
	}
	var files []string
	for _, k := range keys {
		name := strings.TrimPrefix(k, dcID+"/")
		if name == current || strings.Contains(name, "/") || !isSnapshotFile(name) {
			continue
		}
		files = append(files, name)
	}
	// Snapshot names start with a fixed-width nanosecond timestamp.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	keep := s.retain - 1
	if keep < 0 {
		keep = 0
	}
	if len(files) <= keep {
		return nil
	}
	var errs []error
	for _, name := range files[keep:] {
		if err := s.bucket.Delete(ctx, dcID+"/"+name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isSnapshotFile(name string) bool {
	return strings.HasPrefix(name, "v") && strings.HasSuffix(name, snapshotSuffix)
}

func manifestPath(dcID string) string {
	return dcID + "/" + manifestKey
}

func validateID(dcID string) error {
	if dcID == "" {
		return domain.ErrValidation("data collection id is required")
	}
	if strings.ContainsAny(dcID, `/\`) || dcID == "." || dcID == ".." {
		return domain.ErrValidation("invalid data collection id %q", dcID)
	}
	return nil
}
