package realtime

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	eventNotification = "notification"
	eventHeartbeat    = "heartbeat"
	eventReady        = "ready"
)

type subscriber struct {
	ch chan *models.Notification
}

// Hub fans notifications out to connected clients, keyed by role and user id.
// A user may hold several connections; each gets its own buffered channel.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[models.Recipient]map[*subscriber]struct{}
	bufferSize  int
	heartbeat   time.Duration
	logger      *logrus.Logger
	closed      bool
}

// NewHub creates an empty hub
func NewHub(cfg *config.RealtimeConfig, logger *logrus.Logger) *Hub {
	bufferSize := cfg.BufferSize
	if bufferSize < 1 {
		bufferSize = 1
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Hub{
		subscribers: make(map[models.Recipient]map[*subscriber]struct{}),
		bufferSize:  bufferSize,
		heartbeat:   heartbeat,
		logger:      logger,
	}
}

// Subscribe registers a connection for the recipient.
// The returned cancel func must be called when the connection closes.
func (h *Hub) Subscribe(recipient models.Recipient) (<-chan *models.Notification, func()) {
	sub := &subscriber{ch: make(chan *models.Notification, h.bufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subscribers[recipient] == nil {
		h.subscribers[recipient] = make(map[*subscriber]struct{})
	}
	h.subscribers[recipient][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers[recipient], sub)
			if len(h.subscribers[recipient]) == 0 {
				delete(h.subscribers, recipient)
			}
			h.mu.Unlock()
		})
	}
}

// SendToUser delivers n to every open connection of the recipient without blocking.
// Connections whose buffer is full miss the message; the notification stays in the database.
func (h *Hub) SendToUser(recipient models.Recipient, n *models.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[recipient] {
		select {
		case sub.ch <- n:
		default:
			h.logger.WithFields(logrus.Fields{
				"recipient_role":  recipient.Role,
				"recipient_id":    recipient.UserID,
				"notification_id": n.ID,
			}).Warn("Realtime buffer full, dropping notification")
		}
	}
	return nil
}

// Close ends every open stream and refuses new ones. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	open := 0
	for recipient, subs := range h.subscribers {
		for sub := range subs {
			close(sub.ch)
			open++
		}
		delete(h.subscribers, recipient)
	}
	h.logger.WithField("streams", open).Info("Realtime hub closed")
}

// Connections returns how many streams the recipient has open
func (h *Hub) Connections(recipient models.Recipient) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[recipient])
}

// Stream serves an SSE connection until the client goes away
func (h *Hub) Stream(c *gin.Context, recipient models.Recipient) {
	ch, cancel := h.Subscribe(recipient)
	defer cancel()

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	logger := h.logger.WithFields(logrus.Fields{
		"recipient_role": recipient.Role,
		"recipient_id":   recipient.UserID,
	})
	logger.Info("Realtime stream opened")

	if err := sse.Encode(c.Writer, sse.Event{Event: eventReady, Data: gin.H{"role": recipient.Role, "user_id": recipient.UserID}}); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-ch:
			if !ok {
				return false
			}
			return sse.Encode(w, sse.Event{
				Id:    strconv.FormatInt(n.ID, 10),
				Event: eventNotification,
				Data:  n,
			}) == nil
		case t := <-ticker.C:
			return sse.Encode(w, sse.Event{Event: eventHeartbeat, Data: t.UTC().Format(time.RFC3339)}) == nil
		}
	})

	logger.Info("Realtime stream closed")
}
