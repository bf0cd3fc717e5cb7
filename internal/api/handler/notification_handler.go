package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qtbui/notification-dispatch/internal/api/dto"
	"github.com/qtbui/notification-dispatch/internal/delivery"
	"github.com/qtbui/notification-dispatch/internal/dispatch"
	"github.com/qtbui/notification-dispatch/internal/domain"
	"github.com/qtbui/notification-dispatch/internal/notification"
)

// SendEmail handles POST /api/v1/notifications/email
// Renders the named template and queues one delivery job per recipient
func (h *NotificationHandler) SendEmail(c *gin.Context) {
	var req dto.SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	recipients := make([]delivery.Recipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		recipients = append(recipients, delivery.Recipient{
			Name:  r.Name,
			Email: r.Email,
		})
	}

	n, err := h.dispatcher.QueueEmail(c.Request.Context(), dispatch.SendRequest{
		TemplateName:     req.TemplateName,
		Data:             req.Data,
		Recipients:       recipients,
		Provider:         req.Provider,
		SourceEmail:      req.SourceEmail,
		ReplyToAddresses: req.ReplyToAddresses,
		Delay:            time.Duration(req.DelaySeconds) * time.Second,
		ScheduledAt:      req.ScheduledAt,
		Priority:         req.Priority,
		CreatedByType:    domain.CreatedByUser,
		CreatedBy:        c.GetHeader("X-User-ID"),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTemplateNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Template not found",
			})
		case errors.Is(err, domain.ErrNoRecipients), errors.Is(err, delivery.ErrMissingRecipient):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		default:
			h.logger.Error("Failed to queue notification", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to queue notification",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, toNotificationDTO(n))
}

// GetNotification handles GET /api/v1/notifications/:notification_id
func (h *NotificationHandler) GetNotification(c *gin.Context) {
	id := c.Param("notification_id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "notification_id must be a valid UUID",
		})
		return
	}

	n, err := h.notifications.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Notification not found",
			})
			return
		}
		h.logger.Error("Failed to get notification", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get notification",
		})
		return
	}

	c.JSON(http.StatusOK, toNotificationDTO(n))
}

// ListNotifications handles GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var req dto.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	notifications, err := h.notifications.List(c.Request.Context(), notification.ListFilter{
		Status:    req.Status,
		Channel:   domain.Channel(req.Channel),
		Recipient: req.Recipient,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		h.logger.Error("Failed to list notifications", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list notifications",
		})
		return
	}

	response := make([]dto.NotificationDTO, len(notifications))
	for i := range notifications {
		response[i] = toNotificationDTO(&notifications[i])
	}

	c.JSON(http.StatusOK, dto.ListNotificationsResponse{
		Notifications: response,
	})
}

// DeleteNotification handles DELETE /api/v1/notifications/:notification_id
func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	id := c.Param("notification_id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "notification_id must be a valid UUID",
		})
		return
	}

	if err := h.notifications.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Notification not found",
			})
			return
		}
		h.logger.Error("Failed to delete notification", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete notification",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

func toNotificationDTO(n *domain.Notification) dto.NotificationDTO {
	recipients := make([]dto.RecipientDTO, len(n.Recipients))
	for i, r := range n.Recipients {
		recipients[i] = dto.RecipientDTO{
			Email:  r.Email,
			Status: r.Status,
		}
		if r.SentAt != nil {
			recipients[i].SentAt = r.SentAt.Format(time.RFC3339)
		}
	}

	return dto.NotificationDTO{
		NotificationID: n.ID,
		Title:          n.Title,
		Content:        n.Content,
		Channel:        string(n.Channel),
		Status:         n.Status,
		ScheduledAt:    n.ScheduledAt.Format(time.RFC3339),
		CreatedByType:  n.CreatedByType,
		CreatedBy:      n.CreatedBy,
		TemplateID:     n.TemplateID,
		Recipients:     recipients,
		CreatedAt:      n.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      n.UpdatedAt.Format(time.RFC3339),
	}
}
