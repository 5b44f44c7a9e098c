package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santaspot/backend/internal/realtime"
	"go.uber.org/zap"
)

// keepAliveInterval keeps idle SSE connections open through proxies
const keepAliveInterval = 25 * time.Second

// Subscriber streams messages from a pub/sub channel until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RealtimeHandler exposes pot and stats changes as server-sent events
type RealtimeHandler struct {
	hub Subscriber
	log *zap.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(hub Subscriber, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, log: log}
}

// PotStream streams pot total changes
func (h *RealtimeHandler) PotStream(c *gin.Context) {
	h.stream(c, realtime.ChannelPot, "pot")
}

// StatsStream streams the caller's stats changes
func (h *RealtimeHandler) StatsStream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.stream(c, realtime.UserStatsChannel(userID), "stats")
}

func (h *RealtimeHandler) stream(c *gin.Context, channel, event string) {
	ctx := c.Request.Context()
	messages, err := h.hub.Subscribe(ctx, channel)
	if err != nil {
		h.log.Error("realtime subscribe failed", zap.String("channel", channel), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime unavailable"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.SSEvent(event, string(msg))
		case <-ticker.C:
			_, _ = io.WriteString(c.Writer, ": keep-alive\n\n")
		}
		c.Writer.Flush()
	}
}
