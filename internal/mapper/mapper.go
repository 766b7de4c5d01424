// Package mapper projects raw source records onto a table's declared columns.
package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"tablesheet/internal/domain"
)

// DatePolicy controls how values of date columns are treated.
type DatePolicy string

// Date policies.
const (
	// DatePassthrough carries date values through unvalidated.
	DatePassthrough DatePolicy = "passthrough"
	// DateStrict nulls date values that do not parse under DateLayouts.
	DateStrict DatePolicy = "strict"
)

// DateLayouts are the layouts accepted for date values under DateStrict.
var DateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
}

// ParseDatePolicy parses a policy name. Empty means passthrough.
func ParseDatePolicy(s string) (DatePolicy, error) {
	switch DatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DatePassthrough:
		return DatePassthrough, nil
	case DateStrict:
		return DateStrict, nil
	default:
		return "", domain.ErrValidation("unknown date policy %q", s)
	}
}

// Stats summarizes one projection.
type Stats struct {
	Rows         int
	InvalidDates int
}

// Project builds one row per record, in record order. Each row carries one
// cell per distinct column name, in order of first appearance. When a name
// is declared more than once the last declaration sets the cell's type, so a
// custom column overrides a base column of the same name. A field missing
// from the record gets the empty representation of its type: "" for text
// and null for date.
func Project(records []domain.Record, columns []domain.Column, policy DatePolicy) ([]domain.Row, Stats, error) {
	if policy == "" {
		policy = DatePassthrough
	}
	if policy != DatePassthrough && policy != DateStrict {
		return nil, Stats{}, domain.ErrValidation("unknown date policy %q", policy)
	}

	columns = distinctColumns(columns)
	rows := make([]domain.Row, 0, len(records))
	var stats Stats
	for _, rec := range records {
		cells := make([]domain.Cell, len(columns))
		for i, col := range columns {
			cells[i] = domain.Cell{Column: col.Name, Type: col.Type}
			v, ok := rec[col.Name]
			switch col.Type {
			case domain.ColumnDate:
				if !ok || v == "" {
					continue
				}
				if policy == DateStrict && !validDate(v) {
					stats.InvalidDates++
					continue
				}
				cells[i].Value = &v
			default:
				cells[i].Value = &v
			}
		}
		rows = append(rows, domain.Row{Cells: cells})
	}
	stats.Rows = len(rows)
	return rows, stats, nil
}

func distinctColumns(columns []domain.Column) []domain.Column {
	index := make(map[string]int, len(columns))
	out := make([]domain.Column, 0, len(columns))
	for _, c := range columns {
		if i, ok := index[c.Name]; ok {
			out[i].Type = c.Type
			continue
		}
		index[c.Name] = len(out)
		out = append(out, c)
	}
	return out
}

func validDate(v string) bool {
	v = strings.TrimSpace(v)
	for _, layout := range DateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// Fingerprint returns a stable digest of a projection. Equal projections
// have equal fingerprints.
func Fingerprint(rows []domain.Row) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
