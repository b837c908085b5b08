package api

import (
	"io"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/metrics"
	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/notify"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const defaultKeepAliveInterval = 25 * time.Second

// streamEventBuffer bounds the per-stream event queue. Events beyond it are
// dropped; the client's reconciliation refetch covers the gap.
const streamEventBuffer = 16

// StreamOrders serves the live sync channel for the orders topic
func (h *Handler) StreamOrders(c *gin.Context) {
	h.stream(c, notify.TopicOrderCreated)
}

// StreamNotes serves the live sync channel for the notes topic
func (h *Handler) StreamNotes(c *gin.Context) {
	h.stream(c, notify.TopicNoteChanged)
}

// stream runs one server-to-client event stream. All state (the keep-alive
// ticker, the event channel, the hub subscription) is per-connection and is
// released on every disconnect path: client close, write failure, or abrupt
// transport termination.
func (h *Handler) stream(c *gin.Context, topic notify.Topic) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// Immediate acknowledgement so the client can transition to live
	if err := sse.Encode(c.Writer, sse.Event{Event: "connected", Data: "{}"}); err != nil {
		return
	}
	c.Writer.Flush()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	events := make(chan interface{}, streamEventBuffer)
	unsubscribe := h.hub.Subscribe(topic, func(payload interface{}) {
		// Never block the publisher; a slow client just misses the event
		select {
		case events <- payload:
		default:
		}
	})
	defer unsubscribe()

	interval := h.keepAliveInterval
	if interval <= 0 {
		interval = defaultKeepAliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-events:
			if err := sse.Encode(c.Writer, sse.Event{Event: string(topic), Data: payload}); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ticker.C:
			// Comment-only line: keeps intermediaries from timing the
			// connection out, never parsed as a named event by clients
			if err := writeKeepAlive(c.Writer); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeKeepAlive(w io.Writer) error {
	_, err := io.WriteString(w, ": keep-alive\n\n")
	return err
}
