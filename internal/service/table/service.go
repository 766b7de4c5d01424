// Package table implements table management and data projection.
package table

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tablesheet/internal/domain"
	"tablesheet/internal/mapper"
)

// Policy toggles the optional validation checks. The zero value accepts
// colliding column names and repeated table names.
type Policy struct {
	RejectColumnCollisions    bool
	RejectDuplicateTableNames bool
	DatePolicy                mapper.DatePolicy
}

// DefaultPublishTimeout bounds the background re-projection after a column add.
const DefaultPublishTimeout = time.Minute

// Deps holds dependencies for Service.
type Deps struct {
	Repo           domain.TableRepository
	Source         domain.RowSource
	Publisher      domain.SnapshotPublisher // optional
	Policy         Policy
	PublishTimeout time.Duration // 0 selects DefaultPublishTimeout
	Logger         *slog.Logger
}

// Service provides table operations scoped to an owner.
type Service struct {
	repo           domain.TableRepository
	source         domain.RowSource
	publisher      domain.SnapshotPublisher
	policy         Policy
	publishTimeout time.Duration
	logger         *slog.Logger

	wg  sync.WaitGroup
	mu  sync.Mutex
	gen map[string]uint64 // table ID → latest scheduled publish
}

// NewService creates a new Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Service{
		repo:           deps.Repo,
		source:         deps.Source,
		publisher:      deps.Publisher,
		policy:         deps.Policy,
		publishTimeout: timeout,
		logger:         logger,
		gen:            make(map[string]uint64),
	}
}

// Wait blocks until background publishes started by AddColumn have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// CreateTable validates and persists a new table owned by owner.
func (s *Service) CreateTable(ctx context.Context, owner string, req domain.CreateTableRequest) (*domain.Table, error) {
	if owner == "" {
		return nil, domain.ErrUnauthorized("owner is required")
	}
	name, cols, err := req.Validate()
	if err != nil {
		return nil, err
	}

	if s.policy.RejectDuplicateTableNames {
		exists, err := s.repo.ExistsByName(ctx, owner, name)
		if err != nil {
			return nil, fmt.Errorf("check table name: %w", err)
		}
		if exists {
			return nil, domain.ErrConflict("table %q already exists", name)
		}
	}

	t, err := s.repo.Create(ctx, owner, name, cols)
	if err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	s.logger.InfoContext(ctx, "table created", "table_id", t.ID, "owner", owner, "columns", len(cols))
	return t, nil
}

// ListTables returns the owner's tables in insertion order.
func (s *Service) ListTables(ctx context.Context, owner string) ([]domain.Table, error) {
	if owner == "" {
		return nil, domain.ErrUnauthorized("owner is required")
	}
	return s.repo.List(ctx, owner)
}

// GetTable returns one of the owner's tables.
func (s *Service) GetTable(ctx context.Context, owner, tableID string) (*domain.Table, error) {
	if owner == "" {
		return nil, domain.ErrUnauthorized("owner is required")
	}
	return s.repo.Get(ctx, owner, tableID)
}

// GetTableData fetches the current source rows and projects them onto the
// table's columns. Nothing is cached.
func (s *Service) GetTableData(ctx context.Context, owner, tableID string) ([]domain.Row, error) {
	t, err := s.GetTable(ctx, owner, tableID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(ctx, t)
}

// Snapshot re-projects t against the source without an ownership lookup.
func (s *Service) Snapshot(ctx context.Context, t *domain.Table) ([]domain.Row, error) {
	records, err := s.source.FetchRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rows for table %s: %w", t.ID, err)
	}
	return s.project(ctx, t, records)
}

// Project projects already-fetched records onto t. The refresher uses it to
// share one fetch across tables.
func (s *Service) Project(ctx context.Context, t *domain.Table, records []domain.Record) ([]domain.Row, error) {
	return s.project(ctx, t, records)
}

func (s *Service) project(ctx context.Context, t *domain.Table, records []domain.Record) ([]domain.Row, error) {
	rows, stats, err := mapper.Project(records, t.Columns(), s.policy.DatePolicy)
	if err != nil {
		return nil, err
	}
	if stats.InvalidDates > 0 {
		s.logger.WarnContext(ctx, "unparsable date values nulled",
			"table_id", t.ID, "count", stats.InvalidDates)
	}
	return rows, nil
}

// AddColumn appends a custom column to one of the owner's tables. The
// refreshed projection is published to the table's subscribers in the
// background; the source fetch never delays the response, and a failed
// re-projection is only logged.
func (s *Service) AddColumn(ctx context.Context, owner, tableID string, req domain.AddColumnRequest) (*domain.Table, error) {
	if owner == "" {
		return nil, domain.ErrUnauthorized("owner is required")
	}
	col, err := req.Column.ToColumn()
	if err != nil {
		return nil, err
	}

	if s.policy.RejectColumnCollisions {
		current, err := s.repo.Get(ctx, owner, tableID)
		if err != nil {
			return nil, err
		}
		if current.HasColumn(col.Name) {
			return nil, domain.ErrConflict("column %q already exists on table %q", col.Name, current.Name)
		}
	}

	t, err := s.repo.AppendCustomColumn(ctx, owner, tableID, col)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "column added", "table_id", t.ID, "column", col.Name, "type", string(col.Type))

	s.publish(ctx, t)
	return t, nil
}

func (s *Service) publish(ctx context.Context, t *domain.Table) {
	if s.publisher == nil || !s.publisher.HasSubscribers(t.ID) {
		return
	}

	s.mu.Lock()
	s.gen[t.ID]++
	gen := s.gen[t.ID]
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		rows, err := s.Snapshot(ctx, t)
		if !s.latest(t.ID, gen) {
			// A later column add owns the publish for this table.
			return
		}
		if err != nil {
			s.logger.WarnContext(ctx, "snapshot after column add failed", "table_id", t.ID, "error", err)
			return
		}
		s.publisher.Publish(t.ID, rows)
	}()
}

// latest reports whether gen is the newest publish scheduled for tableID.
func (s *Service) latest(tableID string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[tableID] == gen
}
