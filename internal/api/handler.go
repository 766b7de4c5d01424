// Package api provides the HTTP handlers for the table manager REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tablesheet/internal/domain"
)

const maxBodyBytes = 1 << 20

// TableService is the set of table operations exposed over HTTP.
type TableService interface {
	CreateTable(ctx context.Context, owner string, req domain.CreateTableRequest) (*domain.Table, error)
	ListTables(ctx context.Context, owner string) ([]domain.Table, error)
	GetTable(ctx context.Context, owner, tableID string) (*domain.Table, error)
	GetTableData(ctx context.Context, owner, tableID string) ([]domain.Row, error)
	AddColumn(ctx context.Context, owner, tableID string, req domain.AddColumnRequest) (*domain.Table, error)
}

// Handler serves the /v1/tables routes.
type Handler struct {
	tables TableService
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(tables TableService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{tables: tables, logger: logger}
}

// Mount registers the table routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/tables", h.CreateTable)
	r.Get("/tables", h.ListTables)
	r.Get("/tables/{tableId}", h.GetTable)
	r.Get("/tables/{tableId}/data", h.GetTableData)
	r.Post("/tables/{tableId}/columns", h.AddColumn)
}

// CreateTable handles POST /tables.
func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var body CreateTableRequest
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.tables.CreateTable(r.Context(), owner, body.toDomain())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tableToAPI(t))
}

// ListTables handles GET /tables.
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	tables, err := h.tables.ListTables(r.Context(), owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]Table, len(tables))
	for i := range tables {
		out[i] = tableToAPI(&tables[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTable handles GET /tables/{tableId}.
func (h *Handler) GetTable(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	t, err := h.tables.GetTable(r.Context(), owner, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(t))
}

// GetTableData handles GET /tables/{tableId}/data.
func (h *Handler) GetTableData(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	rows, err := h.tables.GetTableData(r.Context(), owner, chi.URLParam(r, "tableId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// AddColumn handles POST /tables/{tableId}/columns.
func (h *Handler) AddColumn(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var body AddColumnRequest
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.tables.AddColumn(r.Context(), owner, chi.URLParam(r, "tableId"), domain.AddColumnRequest{
		Column: domain.ColumnInput{Name: body.Name, Type: body.Type},
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToAPI(t))
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	o, ok := domain.OwnerFromContext(r.Context())
	if !ok {
		h.fail(w, r, domain.ErrUnauthorized("unauthorized: authentication required"))
		return "", false
	}
	return o.ID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// WriteError exposes the error encoding for handlers mounted outside Handler.
func (h *Handler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	h.fail(w, r, err)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrValidation("request body is required")
		}
		return domain.ErrValidation("invalid JSON body: %s", err.Error())
	}
	return nil
}
