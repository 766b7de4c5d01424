// Package rowsource provides domain.RowSource implementations: a Google
// Sheets reader, a static/CSV source, and a retrying decorator.
package rowsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"tablesheet/internal/domain"
)

// SheetsConfig identifies the sheet range to read and how to authenticate.
type SheetsConfig struct {
	SpreadsheetID   string
	Range           string // A1 notation; the first row is the header
	CredentialsFile string // service-account key file
	APIKey          string
}

// SheetsSource reads records from a Google Sheets value range.
type SheetsSource struct {
	svc           *sheets.Service
	spreadsheetID string
	readRange     string
}

var _ domain.RowSource = (*SheetsSource)(nil)

// NewSheetsSource creates a Sheets client. Extra options are appended after
// the credential options (tests use them to point at a fake endpoint).
func NewSheetsSource(ctx context.Context, cfg SheetsConfig, extra ...option.ClientOption) (*SheetsSource, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.Range == "" {
		cfg.Range = "Sheet1"
	}

	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsReadonlyScope)}
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	opts = append(opts, extra...)

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsSource{svc: svc, spreadsheetID: cfg.SpreadsheetID, readRange: cfg.Range}, nil
}

// FetchRows reads the whole range and keys each data row by the header row.
func (s *SheetsSource) FetchRows(ctx context.Context) ([]domain.Record, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifySheetsError(err, s.spreadsheetID)
	}
	records, err := RecordsFromGrid(resp.Values)
	if err != nil {
		return nil, &domain.SourceUnavailableError{
			Message:   fmt.Sprintf("sheet %s range %s", s.spreadsheetID, s.readRange),
			Err:       err,
			Permanent: true,
		}
	}
	return records, nil
}

// RecordsFromGrid converts a row-major grid whose first row is the header into
// records. Blank header cells are skipped, the first occurrence of a repeated
// header wins, and short rows simply lack the trailing fields.
func RecordsFromGrid(grid [][]interface{}) ([]domain.Record, error) {
	if len(grid) == 0 {
		return []domain.Record{}, nil
	}
	header := make([]string, len(grid[0]))
	seen := make(map[string]bool, len(grid[0]))
	for i, cell := range grid[0] {
		name := strings.TrimSpace(cellString(cell))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		header[i] = name
	}
	if len(seen) == 0 {
		return nil, errors.New("header row has no column names")
	}

	records := make([]domain.Record, 0, len(grid)-1)
	for _, row := range grid[1:] {
		rec := make(domain.Record, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec[header[i]] = cellString(cell)
		}
		records = append(records, rec)
	}
	return records, nil
}

func cellString(v interface{}) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}

func classifySheetsError(err error, spreadsheetID string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	su := domain.ErrSourceUnavailable(err, "fetch sheet %s", spreadsheetID)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
		case gerr.Code >= 400:
			su.Permanent = true
		}
	}
	return su
}
