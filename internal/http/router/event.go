package router

import (
	"github.com/gin-gonic/gin"

	"tidemark.app/feed/internal/http/handler"
)

func EventRouter(g *gin.RouterGroup, h *handler.EventHandler) {
	g.POST("", h.Record)
}
