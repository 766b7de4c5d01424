package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tablesheet/internal/domain"
)

const tableColumns = `id, owner_id, name, columns, custom_columns, created_at`

// TableRepo implements domain.TableRepository using SQLite. Each table is a
// single row, so every mutation is a single-row write.
//
// Writes and read-your-write lookups go through writeDB; listing and plain
// lookups use the read pool.
type TableRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
	now     func() time.Time
}

// NewTableRepo creates a new TableRepo. In single-pool setups pass the same
// *sql.DB twice.
func NewTableRepo(writeDB, readDB *sql.DB) *TableRepo {
	return &TableRepo{writeDB: writeDB, readDB: readDB, now: time.Now}
}

var _ domain.TableRepository = (*TableRepo)(nil)

// Create persists a new table with empty custom columns.
func (r *TableRepo) Create(ctx context.Context, ownerID, name string, columns []domain.Column) (*domain.Table, error) {
	if name == "" {
		return nil, domain.ErrValidation("table name is required")
	}
	if len(columns) == 0 {
		return nil, domain.ErrValidation("at least one column is required")
	}
	colsJSON, err := encodeColumns(columns)
	if err != nil {
		return nil, err
	}

	id := domain.NewID()
	createdAt := r.now().UTC()
	_, err = r.writeDB.ExecContext(ctx,
		`INSERT INTO tables (id, owner_id, name, columns, custom_columns, created_at)
		 VALUES (?, ?, ?, ?, '[]', ?)`,
		id, ownerID, name, colsJSON, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert table: %w", mapDBError(err))
	}

	return r.get(ctx, r.writeDB, ownerID, id)
}

// List returns the owner's tables in insertion order.
func (r *TableRepo) List(ctx context.Context, ownerID string) ([]domain.Table, error) {
	return r.query(ctx, `SELECT `+tableColumns+` FROM tables WHERE owner_id = ? ORDER BY rowid`, ownerID)
}

// ListAll returns every table in insertion order.
func (r *TableRepo) ListAll(ctx context.Context) ([]domain.Table, error) {
	return r.query(ctx, `SELECT `+tableColumns+` FROM tables ORDER BY rowid`)
}

// Get returns the table only if ownerID owns it.
func (r *TableRepo) Get(ctx context.Context, ownerID, tableID string) (*domain.Table, error) {
	return r.get(ctx, r.readDB, ownerID, tableID)
}

// AppendCustomColumn appends column to the table's custom columns in one
// UPDATE statement.
func (r *TableRepo) AppendCustomColumn(ctx context.Context, ownerID, tableID string, column domain.Column) (*domain.Table, error) {
	colJSON, err := json.Marshal(columnDoc{Name: column.Name, Type: string(column.Type)})
	if err != nil {
		return nil, fmt.Errorf("encode column: %w", err)
	}
	res, err := r.writeDB.ExecContext(ctx,
		`UPDATE tables
		 SET custom_columns = json_insert(custom_columns, '$[#]', json(?))
		 WHERE id = ? AND owner_id = ?`,
		string(colJSON), tableID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("append column: %w", mapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("append column: %w", err)
	}
	if n == 0 {
		return nil, domain.ErrNotFound("table %q not found", tableID)
	}
	return r.get(ctx, r.writeDB, ownerID, tableID)
}

// ExistsByName reports whether the owner already has a table named name.
func (r *TableRepo) ExistsByName(ctx context.Context, ownerID, name string) (bool, error) {
	var n int
	err := r.readDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tables WHERE owner_id = ? AND name = ?`, ownerID, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count tables: %w", err)
	}
	return n > 0, nil
}

func (r *TableRepo) get(ctx context.Context, db *sql.DB, ownerID, tableID string) (*domain.Table, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+tableColumns+` FROM tables WHERE id = ? AND owner_id = ?`, tableID, ownerID)
	t, err := scanTable(row)
	if err != nil {
		if _, ok := mapDBError(err).(*domain.NotFoundError); ok {
			return nil, domain.ErrNotFound("table %q not found", tableID)
		}
		return nil, err
	}
	return t, nil
}

func (r *TableRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Table, error) {
	rows, err := r.readDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTable(s scanner) (*domain.Table, error) {
	var (
		t                   domain.Table
		cols, custom, tsRaw string
	)
	if err := s.Scan(&t.ID, &t.OwnerID, &t.Name, &cols, &custom, &tsRaw); err != nil {
		return nil, err
	}
	var err error
	if t.BaseColumns, err = decodeColumns(cols); err != nil {
		return nil, err
	}
	if t.CustomColumns, err = decodeColumns(custom); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, tsRaw); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &t, nil
}
