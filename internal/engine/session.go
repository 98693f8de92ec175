// Package engine wraps an embedded DuckDB session and exposes lazy relations:
// query plans that accumulate transformation steps and are evaluated only on
// an explicit Materialize, Count, Fetch or export.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/duckdb/duckdb-go/v2"

	"dclake/internal/ddl"
)

// Options configures a DuckDB session.
type Options struct {
	// Path is the DuckDB database file; empty opens an in-memory database.
	Path string
	// Threads caps DuckDB worker threads; zero keeps the DuckDB default.
	Threads int
	// MemoryLimit is a DuckDB size string such as "4GB"; empty keeps the default.
	MemoryLimit string
	// ScratchDir holds staged and converted files. A temporary directory is
	// created (and removed on Close) when empty.
	ScratchDir string
}

// Session is a single pinned DuckDB connection. All relations created from a
// session share its tables, so a session must not be used concurrently.
type Session struct {
	db           *sql.DB
	conn         *sql.Conn
	logger       *slog.Logger
	scratch      string
	ownedScratch bool
	seq          int
}

// Open starts a DuckDB session.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}

	s := &Session{db: db, conn: conn, logger: logger, scratch: opts.ScratchDir}
	if s.scratch == "" {
		dir, err := os.MkdirTemp("", "dclake-*")
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		s.scratch = dir
		s.ownedScratch = true
	} else if err := os.MkdirAll(s.scratch, 0o750); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	if opts.Threads > 0 {
		if err := s.exec(ctx, fmt.Sprintf("SET threads = %d", opts.Threads)); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if opts.MemoryLimit != "" {
		if err := s.exec(ctx, "SET memory_limit = "+ddl.QuoteLiteral(opts.MemoryLimit)); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the connection and removes an owned scratch directory.
func (s *Session) Close() error {
	var firstErr error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.ownedScratch {
		if err := os.RemoveAll(s.scratch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ScratchDir returns the directory used for staged and converted files.
func (s *Session) ScratchDir() string {
	return s.scratch
}

// nextName returns a fresh engine-owned table name.
func (s *Session) nextName(prefix string) string {
	s.seq++
	return fmt.Sprintf("_%s_%d", prefix, s.seq)
}

func (s *Session) exec(ctx context.Context, q string) error {
	if _, err := s.conn.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("duckdb exec: %w", err)
	}
	return nil
}

func (s *Session) queryInt(ctx context.Context, q string) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb query: %w", err)
	}
	return n, nil
}

func (s *Session) queryFloat(ctx context.Context, q string) (float64, error) {
	var f sql.NullFloat64
	if err := s.conn.QueryRowContext(ctx, q).Scan(&f); err != nil {
		return 0, fmt.Errorf("duckdb query: %w", err)
	}
	return f.Float64, nil
}
