package domain

import (
	"context"
	"time"
)

// RegisteredFile is a raw file explicitly registered to a data collection.
type RegisteredFile struct {
	ID               string
	DataCollectionID string
	File
	CreatedAt time.Time
}

// TableLocation records where a data collection's canonical table lives.
type TableLocation struct {
	DataCollectionID string
	Location         string
	SizeBytes        int64
	UpdatedAt        time.Time
}

// FileRepository stores explicit raw-file registrations.
type FileRepository interface {
	Register(ctx context.Context, dcID string, f File) (*RegisteredFile, error)
	ListByDataCollection(ctx context.Context, dcID string) ([]RegisteredFile, error)
	Delete(ctx context.Context, dcID, location string) error
}

// TableLocationRepository records canonical table locations.
type TableLocationRepository interface {
	Upsert(ctx context.Context, loc TableLocation, update bool) error
	Get(ctx context.Context, dcID string) (*TableLocation, error)
}
