package dto

import (
	"time"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// NotificationResponse is one in-app notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Data      map[string]any          `json:"data,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// RegisterPushTokenRequest registers a device token for the caller.
type RegisterPushTokenRequest struct {
	Token string `json:"token"`
}
