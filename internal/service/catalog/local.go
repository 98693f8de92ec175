// Package catalog implements the local metadata catalog: a project YAML file
// plus a SQLite registry of raw files and canonical table locations.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"dclake/internal/blob"
	"dclake/internal/declarative"
	"dclake/internal/domain"
)

// BucketOpener opens remote storage for scan-pattern expansion.
type BucketOpener interface {
	OpenURI(ctx context.Context, uri string) (blob.Bucket, error)
}

var _ domain.Catalog = (*LocalCatalog)(nil)

// LocalCatalog implements domain.Catalog over a single project file.
type LocalCatalog struct {
	projectPath string
	files       domain.FileRepository
	locations   domain.TableLocationRepository
	opener      BucketOpener // optional, nil disables remote scan patterns
	logger      *slog.Logger
}

// NewLocalCatalog creates a LocalCatalog for the project file at projectPath.
func NewLocalCatalog(
	projectPath string,
	files domain.FileRepository,
	locations domain.TableLocationRepository,
	opener BucketOpener,
	logger *slog.Logger,
) *LocalCatalog {
	return &LocalCatalog{
		projectPath: projectPath,
		files:       files,
		locations:   locations,
		opener:      opener,
		logger:      logger,
	}
}

// ProjectPath returns the project file the catalog serves.
func (c *LocalCatalog) ProjectPath() string { return c.projectPath }

// ResolveProject loads and validates the project. A non-empty name must match
// the project's declared name.
func (c *LocalCatalog) ResolveProject(_ context.Context, name string) (*domain.Project, error) {
	p, err := declarative.LoadProject(c.projectPath, declarative.LoadOptions{})
	if err != nil {
		return nil, err
	}
	if name != "" && name != p.Name {
		return nil, domain.ErrNotFound("project %q not found (catalog serves %q)", name, p.Name)
	}
	if errs := declarative.ValidateProject(p); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, domain.ErrValidation("invalid project %s: %s", c.projectPath, strings.Join(msgs, "; "))
	}
	return p, nil
}

// SyncProject writes p back to the project file. Without update an existing
// file is left untouched and a ConflictError is returned.
func (c *LocalCatalog) SyncProject(_ context.Context, p *domain.Project, update bool) error {
	if !update {
		if _, err := os.Stat(c.projectPath); err == nil {
			return domain.ErrConflict("project file %s already exists", c.projectPath)
		}
	}
	if err := declarative.SaveProject(c.projectPath, p); err != nil {
		return err
	}
	c.logger.Info("project synced", "project", p.Name, "path", c.projectPath)
	return nil
}

// RegisterTableLocation implements domain.Catalog.
func (c *LocalCatalog) RegisterTableLocation(ctx context.Context, dcID, location string, sizeBytes int64, update bool) error {
	return c.locations.Upsert(ctx, domain.TableLocation{
		DataCollectionID: dcID,
		Location:         location,
		SizeBytes:        sizeBytes,
	}, update)
}

// TableLocation returns the registered location of a collection's table.
func (c *LocalCatalog) TableLocation(ctx context.Context, dcID string) (*domain.TableLocation, error) {
	return c.locations.Get(ctx, dcID)
}

// RegisterFile adds a raw file to a collection. An empty format inherits
// the collection's format.
func (c *LocalCatalog) RegisterFile(ctx context.Context, ref string, f domain.File) (*domain.RegisteredFile, error) {
	p, err := c.ResolveProject(ctx, "")
	if err != nil {
		return nil, err
	}
	res, ok := p.Resolve(ref)
	if !ok {
		return nil, domain.ErrNotFound("data collection %q not found in project %s", ref, p.Name)
	}
	dc := res.DataCollection
	if dc.IsJoined() {
		return nil, domain.ErrValidation("data collection %q is produced by a join and takes no raw files", ref)
	}
	if f.Format == "" {
		f.Format = dc.Config.Format
	}
	format, err := domain.ParseFormat(string(f.Format))
	if err != nil {
		return nil, domain.ErrValidation("file %s: %v", f.Location, err)
	}
	f.Format = format
	if f.Location == "" {
		return nil, domain.ErrValidation("file location is required")
	}
	if !strings.Contains(f.Location, "://") && !filepath.IsAbs(f.Location) {
		f.Location = filepath.Join(filepath.Dir(c.projectPath), f.Location)
	}
	return c.files.Register(ctx, dc.ID, f)
}

// ListFiles returns the registered files of a collection followed by the
// files its scan spec matches, without duplicates.
func (c *LocalCatalog) ListFiles(ctx context.Context, dcID string) ([]domain.File, error) {
	p, err := c.ResolveProject(ctx, "")
	if err != nil {
		return nil, err
	}
	dc, ok := p.DataCollectionByID(dcID)
	if !ok {
		return nil, domain.ErrNotFound("data collection %q not found in project %s", dcID, p.Name)
	}

	registered, err := c.files.ListByDataCollection(ctx, dcID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(registered))
	out := make([]domain.File, 0, len(registered))
	for _, rf := range registered {
		f := rf.File
		if f.Format == "" {
			f.Format = dc.Config.Format
		}
		if !seen[f.Location] {
			seen[f.Location] = true
			out = append(out, f)
		}
	}

	if dc.Scan != nil {
		scanned, err := c.expandScan(ctx, dc)
		if err != nil {
			return nil, err
		}
		for _, f := range scanned {
			if !seen[f.Location] {
				seen[f.Location] = true
				out = append(out, f)
			}
		}
	}
	c.logger.Debug("files listed", "data_collection_id", dcID, "count", len(out))
	return out, nil
}

func (c *LocalCatalog) expandScan(ctx context.Context, dc *domain.DataCollection) ([]domain.File, error) {
	var re *regexp.Regexp
	if dc.Scan.RunTagRegex != "" {
		var err error
		if re, err = regexp.Compile(dc.Scan.RunTagRegex); err != nil {
			return nil, domain.ErrValidation("data collection %s: invalid run_tag_regex: %v", dc.Ref(), err)
		}
	}

	var out []domain.File
	for _, pattern := range dc.Scan.Paths {
		var matches []string
		var err error
		if isRemote(pattern) {
			matches, err = c.globRemote(ctx, pattern)
		} else {
			pattern = strings.TrimPrefix(pattern, "file://")
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(filepath.Dir(c.projectPath), pattern)
			}
			matches, err = filepath.Glob(pattern)
		}
		if err != nil {
			return nil, fmt.Errorf("expand scan pattern %q for %s: %w", pattern, dc.Ref(), err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			out = append(out, domain.File{
				Location: m,
				RunTag:   runTag(re, m),
				Format:   dc.Config.Format,
			})
		}
	}
	return out, nil
}

// globRemote lists objects under the literal prefix of pattern and keeps
// those whose key matches it segment by segment.
func (c *LocalCatalog) globRemote(ctx context.Context, pattern string) ([]string, error) {
	loc, err := blob.ParseURI(pattern)
	if err != nil {
		return nil, err
	}
	segments := strings.Split(loc.Key, "/")
	wild := -1
	for i, s := range segments {
		if strings.ContainsAny(s, "*?[") {
			wild = i
			break
		}
	}
	if wild < 0 {
		return []string{pattern}, nil
	}
	if c.opener == nil {
		return nil, fmt.Errorf("remote scan patterns require storage credentials")
	}

	root := loc
	root.Key = strings.Join(segments[:wild], "/")
	b, err := c.opener.OpenURI(ctx, root.String())
	if err != nil {
		return nil, err
	}
	keys, err := b.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		full := k
		if root.Key != "" {
			full = root.Key + "/" + k
		}
		if ok, err := path.Match(loc.Key, full); err != nil {
			return nil, err
		} else if ok {
			out = append(out, b.URI(k))
		}
	}
	return out, nil
}

func isRemote(p string) bool {
	return strings.Contains(p, "://") && !strings.HasPrefix(p, "file://")
}

// runTag extracts the run tag from a location: the group named "run" when
// present, otherwise the first capture group.
func runTag(re *regexp.Regexp, location string) string {
	if re == nil {
		return ""
	}
	m := re.FindStringSubmatch(filepath.ToSlash(location))
	if m == nil {
		return ""
	}
	if i := re.SubexpIndex("run"); i > 0 {
		return m[i]
	}
	if len(m) > 1 {
		return m[1]
	}
	return ""
}
