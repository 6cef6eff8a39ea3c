// Package station serves the read-only station configuration document
// consumed by browser clients, possibly from a different origin.
package station

import (
	"net/http"

	"github.com/airshift/studio/internal/v1/config"
	"github.com/gin-gonic/gin"
)

// Document is the public station description. It mirrors the manifest minus
// the sink block, which carries credentials and never leaves the process.
type Document struct {
	StationID   string            `json:"stationId"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Public      bool              `json:"public"`
	Signaling   config.Signaling  `json:"signaling"`
	ICE         config.ICEServers `json:"ice"`
}

// Handler serves GET /api/station.
type Handler struct {
	doc Document
}

// NewHandler builds the response document once; the manifest is immutable
// after startup.
func NewHandler(st *config.Station) *Handler {
	return &Handler{
		doc: Document{
			StationID:   st.StationID,
			Name:        st.Name,
			Description: st.Description,
			Public:      st.Public,
			Signaling:   st.Signaling,
			ICE:         st.ICE,
		},
	}
}

// GetStation handles GET /api/station. Cross-origin headers are applied by
// the router-level CORS middleware, which allows any origin.
func (h *Handler) GetStation(c *gin.Context) {
	c.JSON(http.StatusOK, h.doc)
}
