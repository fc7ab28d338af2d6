package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tidemark.app/feed/internal/http/dto"
	"tidemark.app/feed/internal/http/middleware"
	"tidemark.app/feed/internal/model"
	"tidemark.app/feed/internal/service"
)

// FeedReader is the slice of the feed service the handler needs.
type FeedReader interface {
	GetFeed(ctx context.Context, viewerID, containerID int64, cursor string, limit int32) (*service.FeedPage, error)
	Heatmap(ctx context.Context, viewerID, containerID int64, from, to time.Time) ([]model.DailyCount, error)
}

type FeedHandler struct {
	feed FeedReader
}

func NewFeedHandler(feed FeedReader) *FeedHandler {
	return &FeedHandler{feed: feed}
}

func (h *FeedHandler) GetFeed(c *gin.Context) {
	ctx := c.Request.Context()

	containerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || containerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid container id"})
		return
	}

	var limit int32
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = int32(parsed)
	}

	page, err := h.feed.GetFeed(ctx, middleware.ViewerID(c), containerID, c.Query("cursor"), limit)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		case errors.Is(err, service.ErrCursorInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		default:
			slog.ErrorContext(ctx, "failed to read feed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read feed"})
		}
		return
	}

	resp := dto.FeedResponse{
		Items:      make([]dto.FeedItem, 0, len(page.Items)),
		NextCursor: page.NextCursor,
	}
	for i := range page.Items {
		resp.Items = append(resp.Items, dto.FeedItemFromActivity(&page.Items[i]))
	}

	c.JSON(http.StatusOK, resp)
}

func (h *FeedHandler) GetHeatmap(c *gin.Context) {
	ctx := c.Request.Context()

	containerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || containerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid container id"})
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	if raw := c.Query("from"); raw != "" {
		from, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		to, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to precedes from"})
		return
	}

	counts, err := h.feed.Heatmap(ctx, middleware.ViewerID(c), containerID, from, to)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		slog.ErrorContext(ctx, "failed to read heatmap", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read heatmap"})
		return
	}

	resp := dto.HeatmapResponse{Cells: make([]dto.HeatmapCell, 0, len(counts))}
	for _, count := range counts {
		resp.Cells = append(resp.Cells, dto.HeatmapCell{
			Date:       count.Date.Format(time.DateOnly),
			ActorID:    count.ActorID,
			EventCount: count.EventCount,
		})
	}

	c.JSON(http.StatusOK, resp)
}
