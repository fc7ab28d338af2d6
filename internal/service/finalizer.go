package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tidemark.app/feed/common/id"
	"tidemark.app/feed/common/logger"
	"tidemark.app/feed/core/db"
	"tidemark.app/feed/internal/buffer"
	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/store"
)

// ErrStranded is returned when a group could not be persisted within the
// configured attempt budget. The group is released back to open so a
// later close can retry it.
var ErrStranded = errors.New("group stranded after finalize attempts")

// StoreProvider exposes the stores a finalization transaction touches.
type StoreProvider interface {
	Activities() store.ActivityStore
	DailySummaries() store.DailySummaryStore
}

// TxRunner executes fn within one database transaction. Both writes in a
// finalization commit or neither does.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(p StoreProvider) error) error
}

// StrandedReporter is notified when a group exhausts its finalize
// attempts. Implementations page, count, or log.
type StrandedReporter interface {
	ReportStranded(ctx context.Context, group *model.BufferGroup, err error)
}

// Finalizer drains claimed buffer groups into immutable activities,
// exactly once per group generation.
type Finalizer struct {
	buf         buffer.Buffer
	tx          TxRunner
	reporter    StrandedReporter
	maxAttempts int
	baseBackoff time.Duration
	newID       func() int64
}

func NewFinalizer(buf buffer.Buffer, tx TxRunner, reporter StrandedReporter, maxAttempts int, baseBackoff time.Duration) *Finalizer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Finalizer{
		buf:         buf,
		tx:          tx,
		reporter:    reporter,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		newID:       id.New,
	}
}

// CloseGroup claims the group and persists it. Losing the claim race or
// finding the group already finalized is not an error: some other closer
// owns it and this call's obligation is discharged.
func (f *Finalizer) CloseGroup(ctx context.Context, groupKey string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{GroupKey: logger.Ptr(groupKey)})

	group, err := f.buf.TryClaim(ctx, groupKey)
	if err != nil {
		if errors.Is(err, buffer.ErrGroupClaimed) || errors.Is(err, buffer.ErrGroupNotFound) {
			slog.DebugContext(ctx, "group not claimable, skipping", "reason", err)
			return nil
		}
		return fmt.Errorf("claiming group: %w", err)
	}

	activity := f.materialize(group)

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		lastErr = f.persist(ctx, group, activity)
		if lastErr == nil {
			if err := f.buf.Release(ctx, groupKey, true); err != nil {
				// The activity row is committed and idempotent. A failed
				// release means a redundant retry later, not a double count.
				slog.WarnContext(ctx, "releasing finalized group failed", "error", err)
			}
			slog.InfoContext(ctx, "group finalized",
				"activity_id", activity.ID,
				"event_count", activity.EventCount,
			)
			return nil
		}

		slog.WarnContext(ctx, "finalize attempt failed",
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < f.maxAttempts {
			if err := sleepCtx(ctx, f.backoff(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}

	if err := f.buf.Release(ctx, groupKey, false); err != nil {
		slog.ErrorContext(ctx, "releasing stranded group failed", "error", err)
	}
	if f.reporter != nil {
		f.reporter.ReportStranded(ctx, group, lastErr)
	}
	return fmt.Errorf("%w: %w", ErrStranded, lastErr)
}

func (f *Finalizer) materialize(group *model.BufferGroup) *model.Activity {
	return &model.Activity{
		ID:             f.newID(),
		AggregationKey: group.Key,
		ActorID:        group.ActorID,
		Verb:           group.Verb,
		ObjectType:     group.ObjectType,
		ContainerID:    group.ContainerID,
		EventCount:     group.EventCount,
		FirstEventAt:   group.FirstEventAt,
		LastEventAt:    group.LastEventAt,
		Summary:        BuildSummary(group),
	}
}

func (f *Finalizer) persist(ctx context.Context, group *model.BufferGroup, activity *model.Activity) error {
	return f.tx.WithTx(ctx, func(p StoreProvider) error {
		inserted, err := p.Activities().Put(ctx, activity)
		if err != nil {
			return err
		}
		if !inserted {
			// A replayed finalization. The counts were applied when the
			// original insert committed.
			slog.InfoContext(ctx, "activity already persisted, replay absorbed")
			return nil
		}
		return p.DailySummaries().Increment(ctx, group.FirstEventAt, group.ContainerID, group.ActorID, group.EventCount)
	})
}

func (f *Finalizer) backoff(attempt int) time.Duration {
	return f.baseBackoff << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// dbTxRunner adapts core/db transactions to the finalizer's StoreProvider.
type dbTxRunner struct {
	db *db.DB
}

func NewDBTxRunner(database *db.DB) TxRunner {
	return &dbTxRunner{db: database}
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(p StoreProvider) error) error {
	return r.db.WithTx(ctx, func(q db.Querier) error {
		return fn(store.NewStores(q))
	})
}

// LogStrandedReporter surfaces stranded groups through the structured log.
type LogStrandedReporter struct{}

func (LogStrandedReporter) ReportStranded(ctx context.Context, group *model.BufferGroup, err error) {
	slog.ErrorContext(ctx, "group stranded",
		"group_key", group.Key,
		"generation", group.Generation,
		"event_count", group.EventCount,
		"error", err,
	)
}
