package handlers

import (
	"context"
	"net/http"

	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NotificationAPI is the notification inbox as seen by HTTP
type NotificationAPI interface {
	List(ctx context.Context, recipient models.Recipient, filter models.NotificationFilter) (*models.NotificationPage, error)
	MarkAsRead(ctx context.Context, id int64, recipient models.Recipient) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, recipient models.Recipient) (int64, error)
}

// NotificationStreamer pushes notifications to a connected client until it goes away
type NotificationStreamer interface {
	Stream(c *gin.Context, recipient models.Recipient)
}

// NotificationHandler handles notification inbox requests
type NotificationHandler struct {
	notifications NotificationAPI
	streamer      NotificationStreamer
	logger        *logrus.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifications NotificationAPI, streamer NotificationStreamer, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		streamer:      streamer,
		logger:        logger,
	}
}

// ListNotifications handles GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	var filter models.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", domain.CodeInvalidInput, "Invalid query parameters: "+err.Error())
		return
	}

	page, err := h.notifications.List(c.Request.Context(), userCtx.Recipient(), filter)
	if err != nil {
		respondDomainError(c, h.logger, err, "list notifications")
		return
	}

	c.JSON(http.StatusOK, page)
}

// MarkAsRead handles PATCH /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "notification")
	if !ok {
		return
	}

	notification, err := h.notifications.MarkAsRead(c.Request.Context(), id, userCtx.Recipient())
	if err != nil {
		respondDomainError(c, h.logger, err, "mark notification as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"notification": notification})
}

// MarkAllAsRead handles PATCH /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	updated, err := h.notifications.MarkAllAsRead(c.Request.Context(), userCtx.Recipient())
	if err != nil {
		respondDomainError(c, h.logger, err, "mark notifications as read")
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Stream handles GET /api/v1/notifications/stream (server-sent events)
func (h *NotificationHandler) Stream(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	h.streamer.Stream(c, userCtx.Recipient())
}
