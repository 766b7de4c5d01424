package rowsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sync"

	"tablesheet/internal/domain"
)

// StaticSource serves an in-memory record set. It backs development mode
// (optionally seeded from a CSV file) and tests.
type StaticSource struct {
	mu      sync.RWMutex
	records []domain.Record
}

var _ domain.RowSource = (*StaticSource)(nil)

// NewStaticSource creates a source that returns records.
func NewStaticSource(records []domain.Record) *StaticSource {
	s := &StaticSource{}
	s.Set(records)
	return s
}

// Set replaces the served records.
func (s *StaticSource) Set(records []domain.Record) {
	cp := cloneRecords(records)
	s.mu.Lock()
	s.records = cp
	s.mu.Unlock()
}

// FetchRows returns a copy of the current records.
func (s *StaticSource) FetchRows(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(s.records), nil
}

// LoadCSVFile reads records from a CSV file whose first line is the header.
func LoadCSVFile(path string) ([]domain.Record, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f)
}

// ReadCSV reads records from CSV with the same header rules as RecordsFromGrid.
func ReadCSV(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	lines, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	grid := make([][]interface{}, len(lines))
	for i, line := range lines {
		row := make([]interface{}, len(line))
		for j, v := range line {
			row[j] = v
		}
		grid[i] = row
	}
	return RecordsFromGrid(grid)
}

func cloneRecords(in []domain.Record) []domain.Record {
	out := make([]domain.Record, len(in))
	for i, rec := range in {
		cp := make(domain.Record, len(rec))
		for k, v := range rec {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
