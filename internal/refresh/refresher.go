// Package refresh periodically re-projects watched tables and publishes
// snapshots whose content changed since the previous pass.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tablesheet/internal/domain"
	"tablesheet/internal/mapper"
)

// DefaultSchedule is used when Config.Schedule is empty and not disabled.
const DefaultSchedule = "@every 30s"

// Projector projects fetched records onto a table.
type Projector interface {
	Project(ctx context.Context, t *domain.Table, records []domain.Record) ([]domain.Row, error)
}

// Subscriptions reports which tables are watched and delivers snapshots.
type Subscriptions interface {
	Tables() []string
	Publish(tableID string, rows []domain.Row)
}

// Config holds dependencies for Refresher.
type Config struct {
	Schedule    string
	Tables      domain.TableRepository
	Source      domain.RowSource
	Projector   Projector
	Subs        Subscriptions
	TickTimeout time.Duration
	Logger      *slog.Logger
}

// Refresher runs a cron job that detects source changes for watched tables.
type Refresher struct {
	cron        *cron.Cron
	schedule    string
	tables      domain.TableRepository
	source      domain.RowSource
	projector   Projector
	subs        Subscriptions
	tickTimeout time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	last map[string]string // table ID → fingerprint of last seen projection
}

// New creates a Refresher. It does not start until Start is called.
func New(cfg Config) *Refresher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	timeout := cfg.TickTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Refresher{
		cron:        cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule:    schedule,
		tables:      cfg.Tables,
		source:      cfg.Source,
		projector:   cfg.Projector,
		subs:        cfg.Subs,
		tickTimeout: timeout,
		logger:      logger,
		last:        make(map[string]string),
	}
}

// Start registers the refresh job and starts the cron scheduler.
func (r *Refresher) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.tickTimeout)
		defer cancel()
		if err := r.Tick(ctx); err != nil {
			r.logger.Warn("refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("refresher started", "schedule", r.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("refresher stopped")
}

// Tick runs one refresh pass. The source is fetched once and shared by all
// watched tables. A table seen for the first time only records a baseline.
func (r *Refresher) Tick(ctx context.Context) error {
	watched := make(map[string]bool)
	for _, id := range r.subs.Tables() {
		watched[id] = true
	}
	r.forgetUnwatched(watched)
	if len(watched) == 0 {
		return nil
	}

	all, err := r.tables.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	records, err := r.source.FetchRows(ctx)
	if err != nil {
		return fmt.Errorf("fetch rows: %w", err)
	}

	for i := range all {
		t := &all[i]
		if !watched[t.ID] {
			continue
		}
		rows, err := r.projector.Project(ctx, t, records)
		if err != nil {
			r.logger.Warn("refresh projection failed", "table_id", t.ID, "error", err)
			continue
		}
		fp, err := mapper.Fingerprint(rows)
		if err != nil {
			r.logger.Warn("refresh fingerprint failed", "table_id", t.ID, "error", err)
			continue
		}
		if r.changed(t.ID, fp) {
			r.logger.Debug("table data changed", "table_id", t.ID, "rows", len(rows))
			r.subs.Publish(t.ID, rows)
		}
	}
	return nil
}

func (r *Refresher) changed(tableID, fp string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, seen := r.last[tableID]
	r.last[tableID] = fp
	return seen && prev != fp
}

func (r *Refresher) forgetUnwatched(watched map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.last {
		if !watched[id] {
			delete(r.last, id)
		}
	}
}
