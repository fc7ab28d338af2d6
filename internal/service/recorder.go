package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tidemark.app/feed/common/logger"
	"tidemark.app/feed/core/config"
	"tidemark.app/feed/internal/buffer"
	"tidemark.app/feed/internal/model"
)

// GroupCloser finalizes one buffer group into a persisted activity.
type GroupCloser interface {
	CloseGroup(ctx context.Context, groupKey string) error
}

// RecordResult reports how an accepted event landed in the buffer.
type RecordResult struct {
	EventID  string
	GroupKey string
	Merged   bool
}

// Recorder is the write path: it normalizes producer events, routes them
// into the shared buffer, and closes groups that hit a size or age
// threshold without waiting for the sweeper.
type Recorder struct {
	normalizer *Normalizer
	buf        buffer.Buffer
	closer     GroupCloser
	cfg        config.AggregationConfig
	enabled    map[model.Category]bool
	now        func() time.Time
}

func NewRecorder(normalizer *Normalizer, buf buffer.Buffer, closer GroupCloser, cfg config.AggregationConfig) *Recorder {
	var enabled map[model.Category]bool
	if len(cfg.EnabledCategories) > 0 {
		enabled = make(map[model.Category]bool, len(cfg.EnabledCategories))
		for _, c := range cfg.EnabledCategories {
			enabled[model.Category(c)] = true
		}
	}

	return &Recorder{
		normalizer: normalizer,
		buf:        buf,
		closer:     closer,
		cfg:        cfg,
		enabled:    enabled,
		now:        time.Now,
	}
}

// Record accepts a producer event. Events in a disabled category are
// validated and then dropped: the producer sees success either way so
// category toggles never bounce writes.
func (r *Recorder) Record(ctx context.Context, pe ProducerEvent) (*RecordResult, error) {
	ev, err := r.normalizer.Normalize(pe)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:     logger.Ptr(ev.ID),
		ActorID:     logger.Ptr(ev.ActorID),
		ContainerID: logger.Ptr(ev.ContainerID),
		Verb:        logger.Ptr(string(ev.Verb)),
	})

	if !r.categoryEnabled(ev.ObjectType) {
		slog.DebugContext(ctx, "event category disabled, dropping")
		return &RecordResult{EventID: ev.ID}, nil
	}

	key := buffer.DeriveKey(ev, r.cfg.Bucket)
	result, err := r.buf.Append(ctx, key, ev)
	if err != nil {
		return nil, fmt.Errorf("appending event to buffer: %w", err)
	}

	if r.shouldClose(result) {
		r.triggerClose(ctx, result.GroupKey)
	}

	return &RecordResult{
		EventID:  ev.ID,
		GroupKey: result.GroupKey,
		Merged:   result.Outcome == buffer.OutcomeAppended,
	}, nil
}

func (r *Recorder) categoryEnabled(objectType string) bool {
	if r.enabled == nil {
		return true
	}
	category := model.CategoryForObjectType(objectType)
	if category == "" {
		return true
	}
	return r.enabled[category]
}

// shouldClose checks the inline thresholds. Idle closure is the sweeper's
// job; size and age are cheap to check on the hot path and keep groups
// from growing unbounded between sweeps.
func (r *Recorder) shouldClose(result buffer.AppendResult) bool {
	if result.EventCount >= r.cfg.MaxEvents {
		return true
	}
	return r.now().Sub(result.FirstEventAt) >= r.cfg.MaxAge
}

func (r *Recorder) triggerClose(ctx context.Context, groupKey string) {
	if r.closer == nil {
		return
	}

	fields := logger.GetLogFields(ctx)
	go func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		closeCtx = logger.WithLogFields(closeCtx, fields)
		closeCtx = logger.WithLogFields(closeCtx, logger.LogFields{GroupKey: logger.Ptr(groupKey)})

		if err := r.closer.CloseGroup(closeCtx, groupKey); err != nil {
			slog.ErrorContext(closeCtx, "inline group close failed", "error", err)
		}
	}()
}
