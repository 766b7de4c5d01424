package api

import (
	"time"

	"tablesheet/internal/domain"
)

// Column is the wire form of a column definition.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is the wire form of a table. ID is also exposed as _id.
type Table struct {
	UnderscoreID  string    `json:"_id"`
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"ownerId"`
	Columns       []Column  `json:"columns"`
	CustomColumns []Column  `json:"customColumns"`
	CreatedAt     time.Time `json:"createdAt"`
}

// CreateTableRequest is the body of POST /v1/tables.
type CreateTableRequest struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// AddColumnRequest is the body of POST /v1/tables/{tableId}/columns.
type AddColumnRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func columnsToAPI(cols []domain.Column) []Column {
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Column{Name: c.Name, Type: string(c.Type)}
	}
	return out
}

func tableToAPI(t *domain.Table) Table {
	return Table{
		UnderscoreID:  t.ID,
		ID:            t.ID,
		Name:          t.Name,
		OwnerID:       t.OwnerID,
		Columns:       columnsToAPI(t.BaseColumns),
		CustomColumns: columnsToAPI(t.CustomColumns),
		CreatedAt:     t.CreatedAt.UTC(),
	}
}

func (r CreateTableRequest) toDomain() domain.CreateTableRequest {
	in := make([]domain.ColumnInput, len(r.Columns))
	for i, c := range r.Columns {
		in[i] = domain.ColumnInput{Name: c.Name, Type: c.Type}
	}
	return domain.CreateTableRequest{Name: r.Name, Columns: in}
}
