package store

import (
	"context"
	"errors"
	"time"

	"tidemark.app/feed/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ActivityStore persists finalized activities and serves the feed read path.
type ActivityStore interface {
	// Put inserts the activity. A replay carrying the same idempotency key
	// (aggregation key plus first/last event timestamps) is a no-op and
	// returns inserted=false.
	Put(ctx context.Context, activity *model.Activity) (inserted bool, err error)

	GetByID(ctx context.Context, id int64) (*model.Activity, error)

	// QueryByContainer returns activities for one container ordered by
	// (last_event_at DESC, id DESC), strictly before the (before, beforeID)
	// keyset position.
	QueryByContainer(ctx context.Context, containerID int64, before time.Time, beforeID int64, limit int32) ([]model.Activity, error)
}

// DailySummaryStore maintains per-actor daily event counts for the heatmap.
type DailySummaryStore interface {
	// Increment adds delta to the counter cell for (date, container, actor),
	// creating it if absent.
	Increment(ctx context.Context, date time.Time, containerID, actorID int64, delta int) error

	// Range returns counts for a container between from and to inclusive.
	Range(ctx context.Context, containerID int64, from, to time.Time) ([]model.DailyCount, error)
}

// MembershipStore resolves a principal's capabilities within a container.
type MembershipStore interface {
	// GetCapabilities returns the capability names granted to the principal.
	// Returns ErrNotFound when the principal is not a member.
	GetCapabilities(ctx context.Context, principalID, containerID int64) ([]string, error)
}
