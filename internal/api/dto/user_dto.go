package dto

import (
	"time"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// RegisterRequest is the self-registration payload.
type RegisterRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    *string         `json:"phone,omitempty"`
	Password string          `json:"password"`
	Role     domain.UserRole `json:"role"`
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the external user representation.
type UserResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  domain.UserRole `json:"role"`
}

// AuthResponse bundles the issued token with its user.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}
