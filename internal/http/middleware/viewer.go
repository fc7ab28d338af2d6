package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const viewerIDKey = "viewer_id"

// RequireViewer extracts the authenticated principal from the X-Viewer-Id
// header set by the upstream gateway. Requests without one are rejected.
func RequireViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Viewer-Id")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing viewer identity"})
			return
		}

		viewerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || viewerID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid viewer identity"})
			return
		}

		c.Set(viewerIDKey, viewerID)
		c.Next()
	}
}

// ViewerID returns the principal set by RequireViewer.
func ViewerID(c *gin.Context) int64 {
	return c.GetInt64(viewerIDKey)
}
