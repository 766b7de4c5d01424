// Package notify broadcasts table snapshots to connected viewers.
package notify

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/juju/pubsub/v2"

	"tablesheet/internal/domain"
)

// DefaultQueueSize is the per-subscriber queue length used when none is given.
const DefaultQueueSize = 16

// Snapshot is one published projection of a table.
type Snapshot struct {
	TableID string
	Rows    []domain.Row
}

// Subscriber receives snapshots for a single table. Pending snapshots are
// held in a bounded queue; when it is full the oldest entry is dropped.
type Subscriber struct {
	tableID string
	size    int

	mu     sync.Mutex
	queue  []Snapshot
	closed bool

	ready   chan struct{}
	done    chan struct{}
	dropped atomic.Int64
	unsub   func()
}

func newSubscriber(tableID string, size int) *Subscriber {
	return &Subscriber{
		tableID: tableID,
		size:    size,
		queue:   make([]Snapshot, 0, size),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// TableID returns the table the subscriber listens to.
func (s *Subscriber) TableID() string { return s.tableID }

// Ready is signalled whenever the queue becomes non-empty.
func (s *Subscriber) Ready() <-chan struct{} { return s.ready }

// Done is closed once the subscriber is unsubscribed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Dropped returns how many snapshots were discarded because the queue was full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Next pops the oldest pending snapshot.
func (s *Subscriber) Next() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Snapshot{}, false
	}
	snap := s.queue[0]
	s.queue[0] = Snapshot{}
	s.queue = s.queue[1:]
	return snap, true
}

func (s *Subscriber) push(snap Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.size {
		s.queue[0] = Snapshot{}
		s.queue = s.queue[1:]
		s.dropped.Add(1)
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Subscriber) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.queue = nil
	close(s.done)
	return true
}

// Hub fans snapshots out to the subscribers of each table. Publish never
// blocks on a subscriber. Delivery is at most once and ordered per
// subscriber; nothing is replayed to late subscribers.
type Hub struct {
	hub       *pubsub.SimpleHub
	queueSize int
	logger    *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*Subscriber]struct{}
	closed bool
}

// NewHub creates a Hub. queueSize <= 0 selects DefaultQueueSize.
func NewHub(queueSize int, logger *slog.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		hub:       pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{}),
		queueSize: queueSize,
		logger:    logger,
		subs:      make(map[string]map[*Subscriber]struct{}),
	}
}

func topic(tableID string) string { return "table." + tableID }

// Subscribe registers a new subscriber for tableID. After Close the returned
// subscriber is already done.
func (h *Hub) Subscribe(tableID string) *Subscriber {
	sub := newSubscriber(tableID, h.queueSize)
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		sub.close()
		return sub
	}
	sub.unsub = h.hub.Subscribe(topic(tableID), func(_ string, data interface{}) {
		snap, ok := data.(Snapshot)
		if !ok {
			return
		}
		sub.push(snap)
	})

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.unsub()
		sub.close()
		return sub
	}
	set, ok := h.subs[tableID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[tableID] = set
	}
	set[sub] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "table_id", tableID, "subscribers", n)
	return sub
}

// Unsubscribe removes sub. Calling it more than once is harmless.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if !sub.close() {
		return
	}
	if sub.unsub != nil {
		sub.unsub()
	}

	h.mu.Lock()
	if set, ok := h.subs[sub.tableID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.tableID)
		}
	}
	h.mu.Unlock()

	if d := sub.Dropped(); d > 0 {
		h.logger.Info("subscriber removed", "table_id", sub.tableID, "dropped", d)
	}
}

// Publish delivers rows to every current subscriber of tableID.
func (h *Hub) Publish(tableID string, rows []domain.Row) {
	if !h.HasSubscribers(tableID) {
		return
	}
	_ = h.hub.Publish(topic(tableID), Snapshot{TableID: tableID, Rows: rows})
}

// HasSubscribers reports whether tableID has at least one subscriber.
func (h *Hub) HasSubscribers(tableID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tableID]) > 0
}

// Close ends every subscription so open streams shut down. Later calls to
// Subscribe return subscribers that are already done.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var subs []*Subscriber
	for _, set := range h.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.Unsubscribe(sub)
	}
	h.logger.Info("hub closed", "subscribers", len(subs))
}

// Tables returns the IDs of tables that currently have subscribers.
func (h *Hub) Tables() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.subs))
	for id := range h.subs {
		out = append(out, id)
	}
	return out
}

var _ domain.SnapshotPublisher = (*Hub)(nil)
