package roomhandler

import (
	"net/http"

	"collabhub/internal/hub"

	"github.com/gin-gonic/gin"
)

// Hub is the read-only view the handlers need.
type Hub interface {
	Room(roomID string) hub.RoomSummary
	Stats() hub.Stats
}

type Handler struct {
	hub Hub
}

func New(h Hub) *Handler { return &Handler{hub: h} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.health)
	r.GET("/stats", h.stats)
	r.GET("/rooms/:id", h.room)
}

// @Summary		Liveness probe
// @Tags			Ops
// @Success		200	{object}	HealthResponse
// @Router			/healthz [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// @Summary		Process statistics
// @Description	Number of non-empty rooms and live connections.
// @Tags			Ops
// @Success		200	{object}	hub.Stats
// @Router			/stats [get]
func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// @Summary		Get room presence
// @Description	Returns the distinct users and the connection count of a room. Unknown rooms are empty.
// @Tags			Rooms
// @Param			id	path		string	true	"Room ID"	default(room123)
// @Success		200	{object}	hub.RoomSummary
// @Failure		400	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) room(c *gin.Context) {
	var p RoomPath
	if err := c.ShouldBindUri(&p); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	summary := h.hub.Room(p.ID)
	if summary.Users == nil {
		summary.Users = []string{}
	}
	c.JSON(http.StatusOK, summary)
}
