package router

import (
	"github.com/gin-gonic/gin"

	"tidemark.app/feed/internal/http/handler"
	"tidemark.app/feed/internal/http/middleware"
)

func SetupRoutes(router *gin.Engine, eventHandler *handler.EventHandler, feedHandler *handler.FeedHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		EventRouter(v1.Group("/events"), eventHandler)

		containers := v1.Group("/containers", middleware.RequireViewer())
		FeedRouter(containers, feedHandler)
	}
}
