package domain

import (
	"strings"
	"time"
)

// ColumnType is the closed set of value types a column can declare.
type ColumnType string

// Supported column types.
const (
	ColumnText ColumnType = "text"
	ColumnDate ColumnType = "date"
)

// ParseColumnType parses a column type name. An empty name defaults to text.
func ParseColumnType(s string) (ColumnType, error) {
	switch ColumnType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ColumnText:
		return ColumnText, nil
	case ColumnDate:
		return ColumnDate, nil
	default:
		return "", ErrValidation("unsupported column type %q: must be %q or %q", s, ColumnText, ColumnDate)
	}
}

// Column is a typed, named projection slot.
type Column struct {
	Name string
	Type ColumnType
}

// Table is an owner-scoped column set over the external row source.
// BaseColumns are fixed at creation; CustomColumns only ever grow.
type Table struct {
	ID            string
	Name          string
	OwnerID       string
	BaseColumns   []Column
	CustomColumns []Column
	CreatedAt     time.Time
}

// Columns returns base columns followed by custom columns.
func (t *Table) Columns() []Column {
	out := make([]Column, 0, len(t.BaseColumns)+len(t.CustomColumns))
	out = append(out, t.BaseColumns...)
	return append(out, t.CustomColumns...)
}

// HasColumn reports whether a base or custom column is named name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns() {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Record is one raw row from the external source, keyed by header name.
type Record map[string]string

// Cell is one projected value. A nil Value is the null representation.
type Cell struct {
	Column string
	Type   ColumnType
	Value  *string
}

// Row is a projected record. Cells follow the table's column order.
type Row struct {
	Cells []Cell
}

// Get returns the cell for the named column.
func (r Row) Get(column string) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Column == column {
			return c, true
		}
	}
	return Cell{}, false
}

// CreateTableRequest holds the fields for creating a table.
type CreateTableRequest struct {
	Name    string
	Columns []ColumnInput
}

// AddColumnRequest holds the fields for appending a custom column.
type AddColumnRequest struct {
	Column ColumnInput
}

// ColumnInput is an unvalidated column definition as received from a caller.
type ColumnInput struct {
	Name string
	Type string
}

// ToColumn validates the input and returns the normalized column.
func (in ColumnInput) ToColumn() (Column, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Column{}, ErrValidation("column name is required")
	}
	typ, err := ParseColumnType(in.Type)
	if err != nil {
		return Column{}, err
	}
	return Column{Name: name, Type: typ}, nil
}

// Validate checks the request and returns the normalized table name and
// base columns. Column names must be unique within the request.
func (r CreateTableRequest) Validate() (string, []Column, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return "", nil, ErrValidation("table name is required")
	}
	if len(r.Columns) == 0 {
		return "", nil, ErrValidation("at least one column is required")
	}
	cols := make([]Column, 0, len(r.Columns))
	seen := make(map[string]bool, len(r.Columns))
	for i, in := range r.Columns {
		c, err := in.ToColumn()
		if err != nil {
			return "", nil, ErrValidation("column %d: %s", i, err.Error())
		}
		if seen[c.Name] {
			return "", nil, ErrValidation("duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
		cols = append(cols, c)
	}
	return name, cols, nil
}
