package domain

import "context"

// TableRepository persists table definitions. Every owner-facing lookup is
// filtered by owner so foreign tables are indistinguishable from missing ones.
type TableRepository interface {
	Create(ctx context.Context, ownerID, name string, columns []Column) (*Table, error)
	List(ctx context.Context, ownerID string) ([]Table, error)
	Get(ctx context.Context, ownerID, tableID string) (*Table, error)
	AppendCustomColumn(ctx context.Context, ownerID, tableID string, column Column) (*Table, error)
	ExistsByName(ctx context.Context, ownerID, name string) (bool, error)
	ListAll(ctx context.Context) ([]Table, error)
}

// RowSource fetches the full ordered record sequence from the external provider.
type RowSource interface {
	FetchRows(ctx context.Context) ([]Record, error)
}

// SnapshotPublisher delivers a table's refreshed projection to its viewers.
type SnapshotPublisher interface {
	Publish(tableID string, rows []Row)
	HasSubscribers(tableID string) bool
}
