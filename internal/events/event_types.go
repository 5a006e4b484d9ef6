package events

import (
	"time"

	"github.com/propagentic/maintenance-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated          EventType = "ticket_created"
	EventTicketClassified       EventType = "ticket_classified"
	EventContractorsMatched     EventType = "contractors_matched"
	EventTicketAssigned         EventType = "ticket_assigned"
	EventTicketAccepted         EventType = "ticket_accepted"
	EventTicketRejected         EventType = "ticket_rejected"
	EventManualAssignmentNeeded EventType = "manual_assignment_needed"
	EventTicketsEscalated       EventType = "tickets_escalated"
	EventTicketStatusChanged    EventType = "ticket_status_changed"
	EventTicketCompleted        EventType = "ticket_completed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   *string          `json:"id,omitempty"`
	Role *domain.UserRole `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	PropertyID  string `json:"property_id"`
	TenantID    string `json:"tenant_id"`
	Description string `json:"description"`
}

// TicketClassifiedPayload payload.
type TicketClassifiedPayload struct {
	Category   domain.TicketCategory `json:"category"`
	Urgency    int                   `json:"urgency"`
	PropertyID string                `json:"property_id"`
	TenantID   string                `json:"tenant_id"`
	LandlordID string                `json:"landlord_id"`
}

// ContractorsMatchedPayload payload.
type ContractorsMatchedPayload struct {
	Category      domain.TicketCategory `json:"category"`
	ContractorIDs []string              `json:"contractor_ids"`
	LandlordID    string                `json:"landlord_id"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	ContractorID string                `json:"contractor_id"`
	Category     domain.TicketCategory `json:"category"`
	Fallback     bool                  `json:"fallback"`
}

// TicketAcceptedPayload payload.
type TicketAcceptedPayload struct {
	ContractorID string `json:"contractor_id"`
	TenantID     string `json:"tenant_id"`
	LandlordID   string `json:"landlord_id"`
}

// TicketRejectedPayload payload.
type TicketRejectedPayload struct {
	ContractorID   string  `json:"contractor_id"`
	Reason         string  `json:"reason,omitempty"`
	RejectionCount int     `json:"rejection_count"`
	FallbackTo     *string `json:"fallback_to,omitempty"`
}

// ManualAssignmentNeededPayload payload.
type ManualAssignmentNeededPayload struct {
	LandlordID string `json:"landlord_id"`
	Reason     string `json:"reason,omitempty"`
}

// EscalatedTicket describes one ticket flagged during a sweep.
type EscalatedTicket struct {
	TicketID       string `json:"ticket_id"`
	LandlordID     string `json:"landlord_id"`
	Urgency        int    `json:"urgency"`
	ElapsedMinutes int    `json:"elapsed_minutes"`
	Reason         string `json:"reason"`
}

// TicketsEscalatedPayload carries every escalation committed in one sweep.
type TicketsEscalatedPayload struct {
	Escalations []EscalatedTicket `json:"escalations"`
	Manual      bool              `json:"manual"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus  domain.TicketStatus `json:"old_status"`
	NewStatus  domain.TicketStatus `json:"new_status"`
	TenantID   string              `json:"tenant_id"`
	LandlordID string              `json:"landlord_id,omitempty"`
	Comment    string              `json:"comment,omitempty"`
}

// TicketCompletedPayload payload.
type TicketCompletedPayload struct {
	ContractorID string `json:"contractor_id"`
	TenantID     string `json:"tenant_id"`
	LandlordID   string `json:"landlord_id"`
}
