package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tidemark.app/feed/common/logger"
	"tidemark.app/feed/internal/buffer"
	"tidemark.app/feed/internal/service"
)

type Config struct {
	// Interval between sweep cycles. Must be shorter than the idle
	// threshold or idle groups linger a full extra cycle.
	Interval time.Duration

	Thresholds buffer.CloseThresholds

	// BatchSize bounds how many group keys one cycle pulls.
	BatchSize int

	// Workers bounds concurrent group closes within a cycle.
	Workers int
}

// Sweeper periodically closes buffer groups that crossed a threshold and
// rescues groups whose claims lapsed. It is the only component that
// closes idle groups; size and age closes also happen inline on the
// write path, so a sweep finding nothing is the common case.
type Sweeper struct {
	buf    buffer.Buffer
	closer service.GroupCloser
	cfg    Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(buf buffer.Buffer, closer service.GroupCloser, cfg Config) *Sweeper {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		buf:       buf,
		closer:    closer,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the sweep loop. Blocks until Stop() is called.
func (s *Sweeper) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "feed.sweeper",
	})

	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "sweeper started",
		"interval", s.cfg.Interval,
		"idle_after", s.cfg.Thresholds.IdleAfter,
		"max_age", s.cfg.Thresholds.MaxAge,
		"max_events", s.cfg.Thresholds.MaxEvents)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// Stop signals the sweeper to stop gracefully.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

// sweepOnce performs one sweep cycle: expired claims first, since those
// groups are invisible to readers until rescued, then threshold closes.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	expired, err := s.buf.ExpiredClaims(ctx, s.cfg.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "listing expired claims failed", "error", err)
	} else if len(expired) > 0 {
		slog.InfoContext(ctx, "rescuing lapsed claims", "count", len(expired))
		s.closeAll(ctx, expired)
	}

	due, err := s.buf.PeekOpenGroups(ctx, s.cfg.Thresholds, s.cfg.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "listing closable groups failed", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	slog.DebugContext(ctx, "closing groups", "count", len(due))
	s.closeAll(ctx, due)
}

// closeAll fans group closes across the worker pool. A failed close is
// logged and retried by a later cycle; it never aborts the batch.
func (s *Sweeper) closeAll(ctx context.Context, groupKeys []string) {
	sem := make(chan struct{}, s.cfg.Workers)
	var wg sync.WaitGroup

	for _, groupKey := range groupKeys {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(groupKey string) {
			defer wg.Done()
			defer func() { <-sem }()

			closeCtx := logger.WithLogFields(ctx, logger.LogFields{
				GroupKey: logger.Ptr(groupKey),
			})
			if err := s.closer.CloseGroup(closeCtx, groupKey); err != nil {
				slog.ErrorContext(closeCtx, "group close failed", "error", err)
			}
		}(groupKey)
	}

	wg.Wait()
}
