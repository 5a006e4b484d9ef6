package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/propagentic/maintenance-service/internal/api/dto"
	"github.com/propagentic/maintenance-service/internal/repository"
	"github.com/propagentic/maintenance-service/internal/service"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// NotificationsHandler serves the in-app inbox and push registration.
type NotificationsHandler struct {
	notifications *service.NotificationService
	pushTokens    repository.PushTokenRepository
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService, pushTokens repository.PushTokenRepository) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, pushTokens: pushTokens}
}

// ListNotifications GET /notifications.
func (h *NotificationsHandler) ListNotifications(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)

	notifications, err := h.notifications.ListForUser(c.UserContext(), user.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		items = append(items, dto.NotificationResponse{
			ID:        notification.ID,
			Type:      notification.Type,
			Title:     notification.Title,
			Message:   notification.Message,
			Data:      notification.Data,
			Read:      notification.Read,
			CreatedAt: notification.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// RegisterPushToken POST /push-tokens.
func (h *NotificationsHandler) RegisterPushToken(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.RegisterPushTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	if strings.TrimSpace(req.Token) == "" {
		return apperrors.NewInvalidArgument("token required", nil)
	}
	if err := h.pushTokens.Add(c.UserContext(), user.ID, req.Token); err != nil {
		return apperrors.MapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}
