package engine

import (
	"fmt"

	"dclake/internal/ddl"
)

// ReadCSV opens a delimited text file lazily.
func (s *Session) ReadCSV(label, path string, opts ddl.CSVOptions) (*Relation, error) {
	q, err := ddl.ReadCSV(path, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return s.Query(label, q), nil
}

// ReadParquet opens one or more Parquet files lazily.
func (s *Session) ReadParquet(label string, paths ...string) (*Relation, error) {
	q, err := ddl.ReadParquet(paths...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return s.Query(label, q), nil
}
