package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"signaldrop/internal/auth"
	"signaldrop/internal/notify"
)

// StreamHandler serves the live push channel as server-sent events.
// Delivery here is best-effort; clients that miss events recover by
// polling the active list.
type StreamHandler struct {
	Hub    *notify.Hub
	Auth   *auth.Middleware
	Logger *zap.Logger
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stream", h.Auth.RequireUser(), h.stream)
}

// @Summary Live signal events for the calling user
// @Tags stream
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /api/v1/stream [get]
func (h *StreamHandler) stream(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusInternalServerError, "stream unavailable", nil)
		return
	}
	user := auth.UserFromContext(c.Request.Context())
	events, cancel := h.Hub.Subscribe(user.ID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Heartbeats keep idle connections from being reaped by proxies.
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	if h.Logger != nil {
		h.Logger.Debug("stream opened", zap.String("user_id", user.ID))
	}
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Event, ev.Payload)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	if h.Logger != nil {
		h.Logger.Debug("stream closed", zap.String("user_id", user.ID))
	}
}
