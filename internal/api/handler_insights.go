package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// GetInsights handles GET /api/insights by serving the currently published
// insights document verbatim. Publishing replaces the file atomically, so
// a response is always one complete document.
func (h *Handler) GetInsights(c *gin.Context) {
	data, err := os.ReadFile(h.insights.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no insights published yet"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to read insights document"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
