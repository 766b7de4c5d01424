package rowsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"tablesheet/internal/domain"
)

// RetryConfig bounds the retry loop around a RowSource.
type RetryConfig struct {
	Attempts       int           // total calls, including the first
	Delay          time.Duration // wait after the first failure; doubles each time
	MaxDelay       time.Duration
	AttemptTimeout time.Duration // per-call deadline; 0 means none
}

// RetryingSource retries transient SourceUnavailableErrors with exponential
// backoff. Permanent failures and any other error are returned immediately.
type RetryingSource struct {
	inner  domain.RowSource
	cfg    RetryConfig
	clock  clock.Clock
	logger *slog.Logger
}

var _ domain.RowSource = (*RetryingSource)(nil)

// NewRetryingSource wraps inner. A nil clk uses the wall clock and a nil
// logger discards output.
func NewRetryingSource(inner domain.RowSource, cfg RetryConfig, clk clock.Clock, logger *slog.Logger) *RetryingSource {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 100 * time.Millisecond
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RetryingSource{inner: inner, cfg: cfg, clock: clk, logger: logger}
}

// FetchRows calls the wrapped source until it succeeds, fails permanently,
// runs out of attempts, or ctx is done.
func (s *RetryingSource) FetchRows(ctx context.Context) ([]domain.Record, error) {
	var (
		records []domain.Record
		lastErr error
	)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			records, lastErr = s.fetchOnce(ctx)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			var su *domain.SourceUnavailableError
			return !errors.As(err, &su) || su.Permanent
		},
		NotifyFunc: func(err error, attempt int) {
			s.logger.Warn("row source fetch failed, retrying", "attempt", attempt, "error", err)
		},
		Attempts:    s.cfg.Attempts,
		Delay:       s.cfg.Delay,
		MaxDelay:    s.cfg.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.clock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return records, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("fetch rows: %w", ctxErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("fetch rows: %w", err)
}

func (s *RetryingSource) fetchOnce(ctx context.Context) ([]domain.Record, error) {
	if s.cfg.AttemptTimeout <= 0 {
		return s.inner.FetchRows(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()
	records, err := s.inner.FetchRows(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		var su *domain.SourceUnavailableError
		if !errors.As(err, &su) {
			err = domain.ErrSourceUnavailable(err, "row source timed out after %s", s.cfg.AttemptTimeout)
		}
	}
	return records, err
}
