package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"tablesheet/internal/domain"
)

// EventSheetUpdate is the event name carried by every stream message.
const EventSheetUpdate = "sheetUpdate"

const (
	writeWait  = 10 * time.Second
	pongDelay  = 60 * time.Second
	pingPeriod = (pongDelay * 9) / 10
	readLimit  = 1024
)

// Message is the JSON payload written to stream clients.
type Message struct {
	Event   string       `json:"event"`
	TableID string       `json:"tableId"`
	Rows    []domain.Row `json:"rows"`
}

// TableReader is the subset of the table service the stream needs.
type TableReader interface {
	GetTable(ctx context.Context, owner, tableID string) (*domain.Table, error)
	Snapshot(ctx context.Context, t *domain.Table) ([]domain.Row, error)
}

// StreamHandler upgrades authenticated requests to a websocket and forwards
// the table's snapshots until the client goes away.
type StreamHandler struct {
	hub      *Hub
	tables   TableReader
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// OnError writes a non-upgrade error response. Defaults to a plain
	// http.Error.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// NewStreamHandler creates a StreamHandler. checkOrigin may be nil to allow
// any origin.
func NewStreamHandler(hub *Hub, tables TableReader, checkOrigin func(*http.Request) bool, logger *slog.Logger) *StreamHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamHandler{
		hub:      hub,
		tables:   tables,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// ServeHTTP implements http.Handler.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner, ok := domain.OwnerFromContext(r.Context())
	if !ok {
		h.fail(w, r, domain.ErrUnauthorized("authentication required"))
		return
	}
	tableID := chi.URLParam(r, "tableId")

	t, err := h.tables.GetTable(r.Context(), owner.ID, tableID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "table_id", tableID, "error", err)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(t.ID)
	defer h.hub.Unsubscribe(sub)

	h.logger.Info("stream opened", "table_id", t.ID, "owner", owner.ID)

	// Initial snapshot so the client does not wait for the next change.
	if rows, err := h.tables.Snapshot(r.Context(), t); err == nil {
		if err := writeMessage(conn, Message{Event: EventSheetUpdate, TableID: t.ID, Rows: rows}); err != nil {
			return
		}
	} else {
		h.logger.Warn("initial snapshot failed", "table_id", t.ID, "error", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongDelay))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongDelay))
	})
	gone := receiveClose(conn)
	err = h.writeLoop(r.Context(), conn, sub, gone)
	h.logger.Info("stream closed", "table_id", t.ID, "dropped", sub.Dropped(), "reason", err)
}

func (h *StreamHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber, gone <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gone:
			return errors.New("client disconnected")
		case <-sub.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return errors.New("unsubscribed")
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-sub.Ready():
			for {
				snap, ok := sub.Next()
				if !ok {
					break
				}
				msg := Message{Event: EventSheetUpdate, TableID: snap.TableID, Rows: snap.Rows}
				if err := writeMessage(conn, msg); err != nil {
					return err
				}
			}
		}
	}
}

func (h *StreamHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.OnError != nil {
		h.OnError(w, r, err)
		return
	}
	var nf *domain.NotFoundError
	var ue *domain.UnauthorizedError
	switch {
	case errors.As(err, &ue):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.As(err, &nf):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	if msg.Rows == nil {
		msg.Rows = []domain.Row{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// receiveClose drains client frames so control frames are processed and
// returns a channel closed once the connection fails or is closed.
func receiveClose(conn *websocket.Conn) <-chan struct{} {
	gone := make(chan struct{})
	conn.SetReadLimit(readLimit)
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	return gone
}
