package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dclake/internal/domain"
)

var _ domain.TableLocationRepository = (*TableLocationRepo)(nil)

// TableLocationRepo records where canonical tables are stored.
type TableLocationRepo struct {
	db *sql.DB
}

// NewTableLocationRepo creates a new TableLocationRepo.
func NewTableLocationRepo(db *sql.DB) *TableLocationRepo {
	return &TableLocationRepo{db: db}
}

// Upsert records a location. With update=false an existing record yields a
// ConflictError.
func (r *TableLocationRepo) Upsert(ctx context.Context, loc domain.TableLocation, update bool) error {
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = time.Now()
	}
	q := `INSERT INTO table_locations (data_collection_id, location, size_bytes, updated_at)
	      VALUES (?, ?, ?, ?)`
	if update {
		q += ` ON CONFLICT (data_collection_id) DO UPDATE SET
		       location = excluded.location,
		       size_bytes = excluded.size_bytes,
		       updated_at = excluded.updated_at`
	}
	_, err := r.db.ExecContext(ctx, q, loc.DataCollectionID, loc.Location, loc.SizeBytes, formatTime(loc.UpdatedAt))
	if err != nil {
		if err := mapDBError(err); domain.IsConflict(err) {
			return domain.ErrConflict("table location for %s is already registered", loc.DataCollectionID)
		}
		return fmt.Errorf("register table location: %w", err)
	}
	return nil
}

// Get returns the recorded location of a data collection's table.
func (r *TableLocationRepo) Get(ctx context.Context, dcID string) (*domain.TableLocation, error) {
	var loc domain.TableLocation
	var updated string
	err := r.db.QueryRowContext(ctx,
		`SELECT data_collection_id, location, size_bytes, updated_at
		 FROM table_locations WHERE data_collection_id = ?`, dcID).
		Scan(&loc.DataCollectionID, &loc.Location, &loc.SizeBytes, &updated)
	if err != nil {
		err = mapDBError(err)
		if domain.IsNotFound(err) {
			return nil, domain.ErrNotFound("no table location registered for %s", dcID)
		}
		return nil, fmt.Errorf("get table location: %w", err)
	}
	loc.UpdatedAt = parseTime(updated)
	return &loc, nil
}
