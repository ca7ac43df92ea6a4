package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"meal-photo-backend/internal/middleware"
	"meal-photo-backend/internal/realtime"
)

const pingInterval = 25 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RealtimeHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, logger: logger}
}

// Events godoc
// @Summary     Realtime event stream
// @Description Upgrades to a websocket that receives photo_updated, meal_updated and
// @Description cancelled events for the caller. Browsers may pass the token as the
// @Description access_token query parameter.
// @Tags        realtime
// @Security    Bearer
// @Success     101
// @Failure     401 {object} models.ErrorResponse
// @Router      /ws [get]
func (h *RealtimeHandler) Events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.DebugContext(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	client := realtime.NewClient(middleware.UserID(c), conn)
	h.hub.Register(client)

	done := make(chan struct{})
	defer close(done)

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := client.Ping(); err != nil {
					h.hub.Unregister(client)
					return
				}
			}
		}
	}()

	// read loop ends on client close/error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unregister(client)
			return
		}
	}
}
