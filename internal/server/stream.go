package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	IDs       []string `json:"ids,omitempty"`
	Timestamp string   `json:"timestamp"`
	Source    string   `json:"source"`
}

// handleEventStream relays catalog change messages as server-sent events and
// emits a heartbeat when the stream is idle.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.SSEvent(realtimeEventHeartbeat, h.eventPayload(nil, h.clock()))
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, h.eventPayload(message.IDs, message.Timestamp))
			return true
		case now := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, h.eventPayload(nil, now))
			return true
		}
	})
}

func (h *httpHandler) eventPayload(ids []string, at time.Time) realtimeEventPayload {
	return realtimeEventPayload{
		IDs:       ids,
		Timestamp: at.UTC().Format(time.RFC3339),
		Source:    realtimeSourceBackend,
	}
}
