package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/store"
)

// ErrForbidden is returned when the viewer lacks access to the container.
var ErrForbidden = errors.New("viewer lacks access to container")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// FeedPage is one page of visible activities. NextCursor is empty when
// the feed is exhausted.
type FeedPage struct {
	Items      []model.Activity `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Feed serves the read path: keyset-paginated, ACL-filtered container
// timelines and the daily activity heatmap.
type Feed struct {
	activities store.ActivityStore
	daily      store.DailySummaryStore
	access     *AccessEvaluator
}

func NewFeed(activities store.ActivityStore, daily store.DailySummaryStore, access *AccessEvaluator) *Feed {
	return &Feed{activities: activities, daily: daily, access: access}
}

// GetFeed returns up to limit visible activities strictly after the
// cursor position. Items the viewer cannot see are filtered out and the
// page is refilled, so a page is short only when the feed is exhausted.
// The cursor always tracks the last item scanned, not the last returned,
// so filtered items are never rescanned.
func (f *Feed) GetFeed(ctx context.Context, viewerID, containerID int64, cursorStr string, limit int32) (*FeedPage, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	visibility, err := f.access.FeedVisibility(ctx, viewerID, containerID)
	if err != nil {
		return nil, fmt.Errorf("resolving feed access: %w", err)
	}
	if !visibility.CanRead {
		return nil, ErrForbidden
	}

	pos := cursor{LastEventAt: maxKeysetTime, ID: math.MaxInt64}
	if cursorStr != "" {
		pos, err = decodeCursor(cursorStr)
		if err != nil {
			return nil, err
		}
	}

	page := &FeedPage{}
	for int32(len(page.Items)) < limit {
		batch, err := f.activities.QueryByContainer(ctx, containerID, pos.LastEventAt, pos.ID, limit)
		if err != nil {
			return nil, fmt.Errorf("querying feed: %w", err)
		}
		if len(batch) == 0 {
			return page, nil
		}

		for i := range batch {
			item := &batch[i]
			pos = cursor{LastEventAt: item.LastEventAt, ID: item.ID}
			if !visibility.CanSee(item) {
				continue
			}
			page.Items = append(page.Items, *item)
			if int32(len(page.Items)) == limit {
				page.NextCursor = encodeCursor(pos)
				return page, nil
			}
		}

		if int32(len(batch)) < limit {
			return page, nil
		}
	}

	return page, nil
}

// Heatmap returns per-actor daily event counts for a container over the
// given date range, gated by feed read access.
func (f *Feed) Heatmap(ctx context.Context, viewerID, containerID int64, from, to time.Time) ([]model.DailyCount, error) {
	ok, err := f.access.CanViewFeed(ctx, viewerID, containerID)
	if err != nil {
		return nil, fmt.Errorf("resolving feed access: %w", err)
	}
	if !ok {
		return nil, ErrForbidden
	}

	counts, err := f.daily.Range(ctx, containerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying heatmap: %w", err)
	}
	return counts, nil
}

// maxKeysetTime is the initial keyset position for the first page. Far
// enough out that no real event timestamp exceeds it, near enough to
// survive a round trip through UnixNano.
var maxKeysetTime = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
