package domain

import "context"

// Catalog is the metadata service that tracks projects, files and table locations.
type Catalog interface {
	// ListFiles returns the validated raw files of a data collection in a stable order.
	ListFiles(ctx context.Context, dcID string) ([]File, error)
	// ResolveProject loads the named project with workflows, collections and joins.
	ResolveProject(ctx context.Context, name string) (*Project, error)
	// RegisterTableLocation records where a collection's canonical table lives.
	RegisterTableLocation(ctx context.Context, dcID, location string, sizeBytes int64, update bool) error
	// SyncProject persists the project configuration.
	SyncProject(ctx context.Context, p *Project, update bool) error
}
