package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tidemark.app/feed/core/db"
	"tidemark.app/feed/internal/model"
)

type activityStore struct {
	q db.Querier
}

func newActivityStore(q db.Querier) *activityStore {
	return &activityStore{q: q}
}

const insertActivitySQL = `
INSERT INTO activities (
	id, aggregation_key, actor_id, verb, object_type, container_id,
	event_count, first_event_at, last_event_at, summary, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now()
)
ON CONFLICT (aggregation_key, first_event_at, last_event_at) DO NOTHING`

func (s *activityStore) Put(ctx context.Context, activity *model.Activity) (bool, error) {
	summary, err := json.Marshal(activity.Summary)
	if err != nil {
		return false, fmt.Errorf("marshaling summary: %w", err)
	}

	tag, err := s.q.Exec(ctx, insertActivitySQL,
		activity.ID,
		activity.AggregationKey,
		activity.ActorID,
		string(activity.Verb),
		activity.ObjectType,
		activity.ContainerID,
		activity.EventCount,
		activity.FirstEventAt,
		activity.LastEventAt,
		summary,
	)
	if err != nil {
		return false, fmt.Errorf("inserting activity: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

const selectActivitySQL = `
SELECT id, aggregation_key, actor_id, verb, object_type, container_id,
	event_count, first_event_at, last_event_at, summary, created_at
FROM activities`

func (s *activityStore) GetByID(ctx context.Context, id int64) (*model.Activity, error) {
	row := s.q.QueryRow(ctx, selectActivitySQL+` WHERE id = $1`, id)

	activity, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	return activity, nil
}

func (s *activityStore) QueryByContainer(ctx context.Context, containerID int64, before time.Time, beforeID int64, limit int32) ([]model.Activity, error) {
	rows, err := s.q.Query(ctx, selectActivitySQL+`
WHERE container_id = $1 AND (last_event_at, id) < ($2, $3)
ORDER BY last_event_at DESC, id DESC
LIMIT $4`,
		containerID, before, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activities: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		activities = append(activities, *activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activities: %w", err)
	}

	return activities, nil
}

func scanActivity(row pgx.Row) (*model.Activity, error) {
	var (
		activity model.Activity
		verb     string
		summary  []byte
	)
	err := row.Scan(
		&activity.ID,
		&activity.AggregationKey,
		&activity.ActorID,
		&verb,
		&activity.ObjectType,
		&activity.ContainerID,
		&activity.EventCount,
		&activity.FirstEventAt,
		&activity.LastEventAt,
		&summary,
		&activity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	activity.Verb = model.Verb(verb)
	if err := json.Unmarshal(summary, &activity.Summary); err != nil {
		return nil, fmt.Errorf("unmarshaling summary: %w", err)
	}
	return &activity, nil
}
