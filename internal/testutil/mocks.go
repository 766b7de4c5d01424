// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"tablesheet/internal/domain"
)

// === Table Repository Mock ===

// MockTableRepo implements domain.TableRepository for testing.
type MockTableRepo struct {
	CreateFn             func(ctx context.Context, ownerID, name string, columns []domain.Column) (*domain.Table, error)
	ListFn               func(ctx context.Context, ownerID string) ([]domain.Table, error)
	GetFn                func(ctx context.Context, ownerID, tableID string) (*domain.Table, error)
	AppendCustomColumnFn func(ctx context.Context, ownerID, tableID string, column domain.Column) (*domain.Table, error)
	ExistsByNameFn       func(ctx context.Context, ownerID, name string) (bool, error)
	ListAllFn            func(ctx context.Context) ([]domain.Table, error)
}

// Create implements the interface method for testing.
func (m *MockTableRepo) Create(ctx context.Context, ownerID, name string, columns []domain.Column) (*domain.Table, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, ownerID, name, columns)
	}
	panic("unexpected call to MockTableRepo.Create")
}

// List implements the interface method for testing.
func (m *MockTableRepo) List(ctx context.Context, ownerID string) ([]domain.Table, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, ownerID)
	}
	panic("unexpected call to MockTableRepo.List")
}

// Get implements the interface method for testing.
func (m *MockTableRepo) Get(ctx context.Context, ownerID, tableID string) (*domain.Table, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, ownerID, tableID)
	}
	panic("unexpected call to MockTableRepo.Get")
}

// AppendCustomColumn implements the interface method for testing.
func (m *MockTableRepo) AppendCustomColumn(ctx context.Context, ownerID, tableID string, column domain.Column) (*domain.Table, error) {
	if m.AppendCustomColumnFn != nil {
		return m.AppendCustomColumnFn(ctx, ownerID, tableID, column)
	}
	panic("unexpected call to MockTableRepo.AppendCustomColumn")
}

// ExistsByName implements the interface method for testing.
func (m *MockTableRepo) ExistsByName(ctx context.Context, ownerID, name string) (bool, error) {
	if m.ExistsByNameFn != nil {
		return m.ExistsByNameFn(ctx, ownerID, name)
	}
	panic("unexpected call to MockTableRepo.ExistsByName")
}

// ListAll implements the interface method for testing.
func (m *MockTableRepo) ListAll(ctx context.Context) ([]domain.Table, error) {
	if m.ListAllFn != nil {
		return m.ListAllFn(ctx)
	}
	panic("unexpected call to MockTableRepo.ListAll")
}

var _ domain.TableRepository = (*MockTableRepo)(nil)

// === Row Source Mock ===

// MockRowSource implements domain.RowSource for testing.
type MockRowSource struct {
	FetchRowsFn func(ctx context.Context) ([]domain.Record, error)

	mu    sync.Mutex
	calls int
}

// FetchRows implements the interface method for testing.
func (m *MockRowSource) FetchRows(ctx context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.FetchRowsFn != nil {
		return m.FetchRowsFn(ctx)
	}
	panic("unexpected call to MockRowSource.FetchRows")
}

// Calls returns how many times FetchRows was called.
func (m *MockRowSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ domain.RowSource = (*MockRowSource)(nil)

// === Snapshot Publisher Mock ===

// Published is one snapshot captured by MockPublisher.
type Published struct {
	TableID string
	Rows    []domain.Row
}

// MockPublisher implements domain.SnapshotPublisher for testing. Subscribed
// lists the table IDs that report subscribers; nil means every table does.
type MockPublisher struct {
	Subscribed map[string]bool

	mu        sync.Mutex
	published []Published
}

// Publish records the snapshot.
func (m *MockPublisher) Publish(tableID string, rows []domain.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, Published{TableID: tableID, Rows: rows})
}

// HasSubscribers implements the interface method for testing.
func (m *MockPublisher) HasSubscribers(tableID string) bool {
	if m.Subscribed == nil {
		return true
	}
	return m.Subscribed[tableID]
}

// All returns a copy of the captured snapshots.
func (m *MockPublisher) All() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.published...)
}

var _ domain.SnapshotPublisher = (*MockPublisher)(nil)

// StaticRecords returns a FetchRows func that always yields records.
func StaticRecords(records ...domain.Record) func(context.Context) ([]domain.Record, error) {
	return func(context.Context) ([]domain.Record, error) {
		return records, nil
	}
}
