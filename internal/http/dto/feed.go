package dto

import (
	"time"

	"tidemark.app/feed/internal/model"
)

type SummaryItem struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name,omitempty"`
}

type FeedItem struct {
	ID           int64         `json:"id"`
	ActorID      int64         `json:"actor_id"`
	Verb         string        `json:"verb"`
	ObjectType   string        `json:"object_type"`
	EventCount   int           `json:"event_count"`
	FirstEventAt time.Time     `json:"first_event_at"`
	LastEventAt  time.Time     `json:"last_event_at"`
	Title        string        `json:"title"`
	Items        []SummaryItem `json:"items,omitempty"`
	Remaining    int           `json:"remaining,omitempty"`
}

type FeedResponse struct {
	Items      []FeedItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func FeedItemFromActivity(activity *model.Activity) FeedItem {
	item := FeedItem{
		ID:           activity.ID,
		ActorID:      activity.ActorID,
		Verb:         string(activity.Verb),
		ObjectType:   activity.ObjectType,
		EventCount:   activity.EventCount,
		FirstEventAt: activity.FirstEventAt,
		LastEventAt:  activity.LastEventAt,
		Title:        activity.Summary.Title,
		Remaining:    activity.Summary.Remaining,
	}
	for _, s := range activity.Summary.Items {
		item.Items = append(item.Items, SummaryItem{ObjectID: s.ObjectID, Name: s.Name})
	}
	return item
}

type HeatmapCell struct {
	Date       string `json:"date"`
	ActorID    int64  `json:"actor_id"`
	EventCount int    `json:"event_count"`
}

type HeatmapResponse struct {
	Cells []HeatmapCell `json:"cells"`
}
