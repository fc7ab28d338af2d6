package store

import (
	"context"
	"fmt"
	"time"

	"tidemark.app/feed/core/db"
	"tidemark.app/feed/internal/model"
)

type dailySummaryStore struct {
	q db.Querier
}

func newDailySummaryStore(q db.Querier) *dailySummaryStore {
	return &dailySummaryStore{q: q}
}

const incrementDailySQL = `
INSERT INTO daily_activity_summaries (activity_date, container_id, actor_id, event_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (activity_date, container_id, actor_id)
DO UPDATE SET event_count = daily_activity_summaries.event_count + EXCLUDED.event_count`

func (s *dailySummaryStore) Increment(ctx context.Context, date time.Time, containerID, actorID int64, delta int) error {
	day := date.UTC().Truncate(24 * time.Hour)
	if _, err := s.q.Exec(ctx, incrementDailySQL, day, containerID, actorID, delta); err != nil {
		return fmt.Errorf("incrementing daily summary: %w", err)
	}
	return nil
}

func (s *dailySummaryStore) Range(ctx context.Context, containerID int64, from, to time.Time) ([]model.DailyCount, error) {
	rows, err := s.q.Query(ctx, `
SELECT activity_date, actor_id, event_count
FROM daily_activity_summaries
WHERE container_id = $1 AND activity_date BETWEEN $2 AND $3
ORDER BY activity_date, actor_id`,
		containerID, from.UTC().Truncate(24*time.Hour), to.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("querying daily summaries: %w", err)
	}
	defer rows.Close()

	var counts []model.DailyCount
	for rows.Next() {
		var count model.DailyCount
		if err := rows.Scan(&count.Date, &count.ActorID, &count.EventCount); err != nil {
			return nil, fmt.Errorf("scanning daily summary: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily summaries: %w", err)
	}

	return counts, nil
}
