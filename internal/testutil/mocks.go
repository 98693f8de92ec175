// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"dclake/internal/domain"
)

// === Catalog Mock ===

// MockCatalog implements domain.Catalog for testing. Each method calls its Fn
// field when set; otherwise it serves Project and Files and records writes.
type MockCatalog struct {
	ListFilesFn             func(ctx context.Context, dcID string) ([]domain.File, error)
	ResolveProjectFn        func(ctx context.Context, name string) (*domain.Project, error)
	RegisterTableLocationFn func(ctx context.Context, dcID, location string, sizeBytes int64, update bool) error
	SyncProjectFn           func(ctx context.Context, p *domain.Project, update bool) error

	mu        sync.Mutex
	Project   *domain.Project
	Files     map[string][]domain.File
	Locations map[string]string // recorded RegisterTableLocation calls
	Synced    []*domain.Project // recorded SyncProject calls
}

// ListFiles implements the interface method for testing.
func (m *MockCatalog) ListFiles(ctx context.Context, dcID string) ([]domain.File, error) {
	if m.ListFilesFn != nil {
		return m.ListFilesFn(ctx, dcID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.File(nil), m.Files[dcID]...), nil
}

// ResolveProject implements the interface method for testing.
func (m *MockCatalog) ResolveProject(ctx context.Context, name string) (*domain.Project, error) {
	if m.ResolveProjectFn != nil {
		return m.ResolveProjectFn(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Project == nil {
		return nil, domain.ErrNotFound("project %q not found", name)
	}
	p := m.Project.Clone()
	p.Bind()
	return p, nil
}

// RegisterTableLocation implements the interface method for testing.
func (m *MockCatalog) RegisterTableLocation(ctx context.Context, dcID, location string, sizeBytes int64, update bool) error {
	if m.RegisterTableLocationFn != nil {
		if err := m.RegisterTableLocationFn(ctx, dcID, location, sizeBytes, update); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Locations == nil {
		m.Locations = map[string]string{}
	}
	m.Locations[dcID] = location
	return nil
}

// SyncProject implements the interface method for testing.
func (m *MockCatalog) SyncProject(ctx context.Context, p *domain.Project, update bool) error {
	if m.SyncProjectFn != nil {
		if err := m.SyncProjectFn(ctx, p, update); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Project = p.Clone()
	m.Synced = append(m.Synced, m.Project)
	return nil
}

// LastSynced returns the most recently synced project, or nil.
func (m *MockCatalog) LastSynced() *domain.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Synced) == 0 {
		return nil
	}
	return m.Synced[len(m.Synced)-1]
}

var _ domain.Catalog = (*MockCatalog)(nil)

// === File Repository Mock ===

// MockFileRepo implements domain.FileRepository for testing.
type MockFileRepo struct {
	RegisterFn             func(ctx context.Context, dcID string, f domain.File) (*domain.RegisteredFile, error)
	ListByDataCollectionFn func(ctx context.Context, dcID string) ([]domain.RegisteredFile, error)
	DeleteFn               func(ctx context.Context, dcID, location string) error
}

// Register implements the interface method for testing.
func (m *MockFileRepo) Register(ctx context.Context, dcID string, f domain.File) (*domain.RegisteredFile, error) {
	if m.RegisterFn != nil {
		return m.RegisterFn(ctx, dcID, f)
	}
	panic("unexpected call to MockFileRepo.Register")
}

// ListByDataCollection implements the interface method for testing.
func (m *MockFileRepo) ListByDataCollection(ctx context.Context, dcID string) ([]domain.RegisteredFile, error) {
	if m.ListByDataCollectionFn != nil {
		return m.ListByDataCollectionFn(ctx, dcID)
	}
	panic("unexpected call to MockFileRepo.ListByDataCollection")
}

// Delete implements the interface method for testing.
func (m *MockFileRepo) Delete(ctx context.Context, dcID, location string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, dcID, location)
	}
	panic("unexpected call to MockFileRepo.Delete")
}

var _ domain.FileRepository = (*MockFileRepo)(nil)

// === Table Location Repository Mock ===

// MockTableLocationRepo implements domain.TableLocationRepository for testing.
type MockTableLocationRepo struct {
	UpsertFn func(ctx context.Context, loc domain.TableLocation, update bool) error
	GetFn    func(ctx context.Context, dcID string) (*domain.TableLocation, error)
}

// Upsert implements the interface method for testing.
func (m *MockTableLocationRepo) Upsert(ctx context.Context, loc domain.TableLocation, update bool) error {
	if m.UpsertFn != nil {
		return m.UpsertFn(ctx, loc, update)
	}
	panic("unexpected call to MockTableLocationRepo.Upsert")
}

// Get implements the interface method for testing.
func (m *MockTableLocationRepo) Get(ctx context.Context, dcID string) (*domain.TableLocation, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, dcID)
	}
	panic("unexpected call to MockTableLocationRepo.Get")
}

var _ domain.TableLocationRepository = (*MockTableLocationRepo)(nil)
