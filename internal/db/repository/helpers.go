// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tablesheet/internal/domain"
)

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: "resource already exists"}
	}
	return err
}

// columnDoc is the stored JSON shape of a column.
type columnDoc struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func encodeColumns(cols []domain.Column) (string, error) {
	docs := make([]columnDoc, len(cols))
	for i, c := range cols {
		docs[i] = columnDoc{Name: c.Name, Type: string(c.Type)}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("encode columns: %w", err)
	}
	return string(b), nil
}

func decodeColumns(s string) ([]domain.Column, error) {
	var docs []columnDoc
	if err := json.Unmarshal([]byte(s), &docs); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	cols := make([]domain.Column, len(docs))
	for i, d := range docs {
		cols[i] = domain.Column{Name: d.Name, Type: domain.ColumnType(d.Type)}
	}
	return cols, nil
}
