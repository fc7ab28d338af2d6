package router

import (
	"github.com/gin-gonic/gin"

	"tidemark.app/feed/internal/http/handler"
)

func FeedRouter(g *gin.RouterGroup, h *handler.FeedHandler) {
	g.GET("/:id/feed", h.GetFeed)
	g.GET("/:id/heatmap", h.GetHeatmap)
}
