package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tidemark.app/feed/internal/http/dto"
	"tidemark.app/feed/internal/service"
)

// EventRecorder is the slice of the recorder the handler needs.
type EventRecorder interface {
	Record(ctx context.Context, pe service.ProducerEvent) (*service.RecordResult, error)
}

type EventHandler struct {
	recorder EventRecorder
}

func NewEventHandler(recorder EventRecorder) *EventHandler {
	return &EventHandler{recorder: recorder}
}

func (h *EventHandler) Record(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RecordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid record request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.recorder.Record(ctx, service.ProducerEvent{
		ActorID:     req.ActorID,
		Verb:        req.Verb,
		ObjectType:  req.ObjectType,
		ObjectID:    req.ObjectID,
		ContainerID: req.ContainerID,
		OccurredAt:  req.OccurredAt,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to record event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record event"})
		return
	}

	c.JSON(http.StatusAccepted, dto.RecordEventResponse{
		EventID:  result.EventID,
		GroupKey: result.GroupKey,
		Merged:   result.Merged,
	})
}
