package model

import "time"

// SummaryItem is one sampled object referenced by an activity summary.
type SummaryItem struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name,omitempty"`
}

// SummaryPayload is the derived human-facing representation of an activity:
// a short title, the sampled objects, and how many more fell outside the
// sample cap.
type SummaryPayload struct {
	Title     string        `json:"title"`
	Items     []SummaryItem `json:"items,omitempty"`
	Remaining int           `json:"remaining,omitempty"`
}

// Activity is a finalized, immutable timeline entry covering one or more
// merged raw events. Visibility is resolved at read time against the
// container's ACL, never baked into the row.
type Activity struct {
	ID             int64          `json:"id"`
	AggregationKey string         `json:"aggregation_key"`
	ActorID        int64          `json:"actor_id"`
	Verb           Verb           `json:"verb"`
	ObjectType     string         `json:"object_type"`
	ContainerID    int64          `json:"container_id"`
	EventCount     int            `json:"event_count"`
	FirstEventAt   time.Time      `json:"first_event_at"`
	LastEventAt    time.Time      `json:"last_event_at"`
	Summary        SummaryPayload `json:"summary"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DailyCount is one cell of the per-container activity heatmap.
type DailyCount struct {
	Date       time.Time `json:"date"`
	ActorID    int64     `json:"actor_id"`
	EventCount int       `json:"event_count"`
}
