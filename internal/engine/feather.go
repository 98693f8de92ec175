package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// LoadArrowIPC decodes a Feather v2 / Arrow IPC file eagerly, converts it to a
// Parquet file in the scratch directory, and returns a lazy relation over it.
func (s *Session) LoadArrowIPC(label, path string) (*Relation, error) {
	in, err := os.Open(path) //nolint:gosec // path comes from the file catalog
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = in.Close() }()

	rdr, err := ipc.NewFileReader(in, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("read arrow file %s: %w", path, err)
	}
	defer func() { _ = rdr.Close() }()

	outPath := filepath.Join(s.scratch, s.nextName("ipc")+".parquet")
	out, err := os.Create(outPath) //nolint:gosec // scratch path is engine-owned
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", outPath, err)
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Zstd))
	w, err := pqarrow.NewFileWriter(rdr.Schema(), out, props, pqarrow.DefaultWriterProps())
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	for i := 0; i < rdr.NumRecords(); i++ {
		rec, err := rdr.RecordAt(i)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("read record batch %d of %s: %w", i, path, err)
		}
		err = w.Write(rec)
		rec.Release()
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("convert record batch %d of %s: %w", i, path, err)
		}
	}
	if err := w.Close(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("finish %s: %w", outPath, err)
	}
	_ = out.Close()
	return s.ReadParquet(label, outPath)
}
