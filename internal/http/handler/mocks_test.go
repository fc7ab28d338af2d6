package handler_test

import (
	"context"
	"time"

	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/service"
)

type mockRecorder struct {
	recordFn func(ctx context.Context, pe service.ProducerEvent) (*service.RecordResult, error)
}

func (m *mockRecorder) Record(ctx context.Context, pe service.ProducerEvent) (*service.RecordResult, error) {
	if m.recordFn != nil {
		return m.recordFn(ctx, pe)
	}
	return &service.RecordResult{EventID: "ev-1"}, nil
}

type mockFeedReader struct {
	getFeedFn func(ctx context.Context, viewerID, containerID int64, cursor string, limit int32) (*service.FeedPage, error)
	heatmapFn func(ctx context.Context, viewerID, containerID int64, from, to time.Time) ([]model.DailyCount, error)
}

func (m *mockFeedReader) GetFeed(ctx context.Context, viewerID, containerID int64, cursor string, limit int32) (*service.FeedPage, error) {
	if m.getFeedFn != nil {
		return m.getFeedFn(ctx, viewerID, containerID, cursor, limit)
	}
	return &service.FeedPage{}, nil
}

func (m *mockFeedReader) Heatmap(ctx context.Context, viewerID, containerID int64, from, to time.Time) ([]model.DailyCount, error) {
	if m.heatmapFn != nil {
		return m.heatmapFn(ctx, viewerID, containerID, from, to)
	}
	return nil, nil
}
