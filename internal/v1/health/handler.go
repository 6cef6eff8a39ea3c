// Package health exposes the liveness probe.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler manages the health check endpoint.
type Handler struct {
	started time.Time
}

// NewHandler creates a health handler anchored at process start.
func NewHandler() *Handler {
	return &Handler{started: time.Now()}
}

// Response is the liveness probe body.
type Response struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// Liveness handles GET /health. It reports process liveness only and must
// stay fast regardless of room or peer counts.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Uptime: time.Since(h.started).Seconds(),
	})
}
