package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"dclake/internal/ddl"
	"dclake/internal/domain"
	"dclake/internal/engine"
)

// RunTagColumn is the provenance column added to files that carry a run tag.
const RunTagColumn = "run_tag"

// Stager makes a file location readable as a local path.
type Stager interface {
	Stage(ctx context.Context, uri, dir string) (string, error)
}

// Reader opens raw files as lazy relations.
type Reader struct {
	sess   *engine.Session
	stager Stager
	logger *slog.Logger
}

// NewReader creates a Reader bound to a DuckDB session.
func NewReader(sess *engine.Session, stager Stager, logger *slog.Logger) *Reader {
	return &Reader{sess: sess, stager: stager, logger: logger}
}

// stageLimit bounds concurrent downloads of remote files.
const stageLimit = 8

// Open returns one lazy relation per file, in input order. Files without
// their own format use desc.Format. Remote files are staged concurrently;
// relations are then opened one at a time on the session. The first
// unreadable or unsupported file in input order aborts with a
// SchemaMismatchError naming it.
func (r *Reader) Open(ctx context.Context, files []domain.File, desc domain.FormatDescriptor) ([]*engine.Relation, error) {
	if len(files) == 0 {
		return nil, domain.ErrSchemaMismatch("", "no files resolved for ingestion")
	}
	staged, err := r.stage(ctx, files, desc)
	if err != nil {
		return nil, err
	}
	rels := make([]*engine.Relation, 0, len(files))
	for i, f := range files {
		rel, err := r.openFile(ctx, f, staged[i], desc)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

type stagedFile struct {
	format domain.Format
	local  string
}

// stage resolves each file's format and makes it available locally.
func (r *Reader) stage(ctx context.Context, files []domain.File, desc domain.FormatDescriptor) ([]stagedFile, error) {
	out := make([]stagedFile, len(files))
	errs := make([]error, len(files))
	dir := filepath.Join(r.sess.ScratchDir(), "raw")

	var g errgroup.Group
	g.SetLimit(stageLimit)
	for i, f := range files {
		raw := f.Format
		if raw == "" {
			raw = desc.Format
		}
		format, err := domain.ParseFormat(string(raw))
		if err != nil {
			errs[i] = domain.ErrSchemaMismatch(f.Location, "%s", err.Error())
			continue
		}
		out[i].format = format
		g.Go(func() error {
			local, err := r.stager.Stage(ctx, f.Location, dir)
			if err != nil {
				errs[i] = domain.ErrSchemaMismatch(f.Location, "cannot stage file: %v", err)
				return nil
			}
			out[i].local = local
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Reader) openFile(ctx context.Context, f domain.File, st stagedFile, desc domain.FormatDescriptor) (*engine.Relation, error) {
	format, local := st.format, st.local
	opts := desc.ReadOptions
	label := f.Location
	var (
		rel *engine.Relation
		err error
	)
	switch format {
	case domain.FormatCSV, domain.FormatTSV:
		delim := opts.Delimiter
		if delim == "" {
			delim = ","
			if format == domain.FormatTSV {
				delim = "\t"
			}
		}
		rel, err = r.sess.ReadCSV(label, local, ddl.CSVOptions{
			Delimiter:   delim,
			Header:      opts.HasHeader(),
			SkipRows:    opts.SkipRows,
			NullValues:  opts.NullValues,
			ColumnTypes: opts.ColumnTypes,
		})
	case domain.FormatParquet:
		rel, err = r.sess.ReadParquet(label, local)
	case domain.FormatFeather:
		rel, err = r.sess.LoadArrowIPC(label, local)
	case domain.FormatXLSX:
		rel, err = r.sess.LoadSpreadsheet(ctx, label, local, engine.SheetOptions{
			Sheet:      opts.Sheet,
			Header:     opts.HasHeader(),
			SkipRows:   opts.SkipRows,
			NullValues: opts.NullValues,
		})
	}
	if err != nil {
		return nil, classifyReadError(f.Location, err)
	}

	// Planning the schema opens the file, so unreadable input fails here
	// rather than at materialization.
	if _, err := rel.Schema(ctx); err != nil {
		return nil, classifyReadError(f.Location, err)
	}

	if f.RunTag != "" {
		rel, err = rel.WithColumn(ctx, RunTagColumn, ddl.QuoteLiteral(f.RunTag))
		if err != nil {
			return nil, classifyReadError(f.Location, err)
		}
	}
	r.logger.Debug("file opened", "file", f.Location, "format", format, "run_tag", f.RunTag)
	return rel, nil
}

// classifyReadError maps reader failures into a SchemaMismatchError naming the file.
func classifyReadError(file string, err error) error {
	var sm *domain.SchemaMismatchError
	if errors.As(err, &sm) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "No files found"), strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "no such file"):
		return domain.ErrSchemaMismatch(file, "file not found: %s", msg)
	default:
		return domain.ErrSchemaMismatch(file, "unreadable file: %s", msg)
	}
}
