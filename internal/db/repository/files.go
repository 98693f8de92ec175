package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dclake/internal/domain"
)

var _ domain.FileRepository = (*FileRepo)(nil)

// FileRepo stores explicit raw-file registrations.
type FileRepo struct {
	db *sql.DB
}

// NewFileRepo creates a new FileRepo.
func NewFileRepo(db *sql.DB) *FileRepo {
	return &FileRepo{db: db}
}

// Register adds a file to a data collection. Registering the same location
// twice for one collection yields a ConflictError.
func (r *FileRepo) Register(ctx context.Context, dcID string, f domain.File) (*domain.RegisteredFile, error) {
	rf := &domain.RegisteredFile{
		ID:               domain.NewID(),
		DataCollectionID: dcID,
		File:             f,
		CreatedAt:        time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (id, data_collection_id, location, run_tag, format, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rf.ID, dcID, f.Location, f.RunTag, string(f.Format), formatTime(rf.CreatedAt))
	if err != nil {
		if err := mapDBError(err); domain.IsConflict(err) {
			return nil, domain.ErrConflict("file %s is already registered to %s", f.Location, dcID)
		}
		return nil, fmt.Errorf("register file: %w", err)
	}
	return rf, nil
}

// ListByDataCollection returns registrations in registration order.
func (r *FileRepo) ListByDataCollection(ctx context.Context, dcID string) ([]domain.RegisteredFile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data_collection_id, location, run_tag, format, created_at
		 FROM files WHERE data_collection_id = ?
		 ORDER BY created_at, rowid`, dcID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.RegisteredFile
	for rows.Next() {
		var rf domain.RegisteredFile
		var format, created string
		if err := rows.Scan(&rf.ID, &rf.DataCollectionID, &rf.Location, &rf.RunTag, &format, &created); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		rf.Format = domain.Format(format)
		rf.CreatedAt = parseTime(created)
		out = append(out, rf)
	}
	return out, rows.Err()
}

// Delete removes a registration by location.
func (r *FileRepo) Delete(ctx context.Context, dcID, location string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM files WHERE data_collection_id = ? AND location = ?`, dcID, location)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("file %s is not registered to %s", location, dcID)
	}
	return nil
}
