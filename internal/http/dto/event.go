package dto

import "time"

type RecordEventRequest struct {
	ActorID     int64             `json:"actor_id" binding:"required"`
	Verb        string            `json:"verb" binding:"required"`
	ObjectType  string            `json:"object_type" binding:"required"`
	ObjectID    string            `json:"object_id" binding:"required"`
	ContainerID int64             `json:"container_id" binding:"required"`
	OccurredAt  *time.Time        `json:"occurred_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type RecordEventResponse struct {
	EventID  string `json:"event_id"`
	GroupKey string `json:"group_key,omitempty"`
	Merged   bool   `json:"merged"`
}
