package dto

import (
	"time"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// CreateTicketRequest is the tenant submission payload.
type CreateTicketRequest struct {
	PropertyID  string `json:"property_id"`
	Description string `json:"description"`
}

// AssignTicketRequest names the contractor to assign.
type AssignTicketRequest struct {
	ContractorID string `json:"contractor_id"`
}

// RejectTicketRequest carries the contractor's rejection reason.
type RejectTicketRequest struct {
	Reason string `json:"reason"`
}

// CancelTicketRequest carries an optional cancellation comment.
type CancelTicketRequest struct {
	Comment string `json:"comment"`
}

// EscalateTicketRequest carries the manual escalation reason.
type EscalateTicketRequest struct {
	Reason string `json:"reason"`
}

// TicketResponse is the external ticket representation.
type TicketResponse struct {
	ID                     string                 `json:"id"`
	Description            string                 `json:"description"`
	Category               *domain.TicketCategory `json:"category,omitempty"`
	Urgency                *int                   `json:"urgency,omitempty"`
	Status                 domain.TicketStatus    `json:"status"`
	PropertyID             string                 `json:"property_id"`
	SubmittedBy            string                 `json:"submitted_by"`
	AssignedTo             *string                `json:"assigned_to,omitempty"`
	RecommendedContractors []string               `json:"recommended_contractors,omitempty"`
	Escalated              bool                   `json:"escalated"`
	EscalationReason       *string                `json:"escalation_reason,omitempty"`
	RejectionCount         int                    `json:"rejection_count"`
	CreatedAt              time.Time              `json:"created_at"`
	UpdatedAt              time.Time              `json:"updated_at"`
	ClassifiedAt           *time.Time             `json:"classified_at,omitempty"`
	AssignedAt             *time.Time             `json:"assigned_at,omitempty"`
	AcceptedAt             *time.Time             `json:"accepted_at,omitempty"`
	CompletedAt            *time.Time             `json:"completed_at,omitempty"`
}

// RejectTicketResponse reports how a rejection was resolved.
type RejectTicketResponse struct {
	Status             string  `json:"status"`
	FallbackContractor *string `json:"fallback_contractor,omitempty"`
}

// TicketHistoryResponse is one audit trail entry.
type TicketHistoryResponse struct {
	ID         string                   `json:"id"`
	ChangeType domain.HistoryChangeType `json:"change_type"`
	ActorID    *string                  `json:"actor_id,omitempty"`
	ActorRole  *domain.UserRole         `json:"actor_role,omitempty"`
	OldValue   map[string]any           `json:"old_value,omitempty"`
	NewValue   map[string]any           `json:"new_value,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
}

// SweepResponse summarizes a manually triggered escalation pass.
type SweepResponse struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
}
