package domain

import "time"

// TicketStatus enumerates lifecycle states for maintenance tickets.
type TicketStatus string

const (
	TicketStatusPendingClassification TicketStatus = "PENDING_CLASSIFICATION"
	TicketStatusReadyToDispatch       TicketStatus = "READY_TO_DISPATCH"
	TicketStatusReadyToAssign         TicketStatus = "READY_TO_ASSIGN"
	TicketStatusPendingAcceptance     TicketStatus = "PENDING_ACCEPTANCE"
	TicketStatusAssigned              TicketStatus = "ASSIGNED"
	TicketStatusInProgress            TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted             TicketStatus = "COMPLETED"
	TicketStatusNeedsManualAssignment TicketStatus = "NEEDS_MANUAL_ASSIGNMENT"
	TicketStatusCancelled             TicketStatus = "CANCELLED"
)

// Terminal reports whether no further engine-owned transition can occur.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

// TicketCategory enumerates maintenance trades assigned by classification.
type TicketCategory string

const (
	CategoryPlumbing   TicketCategory = "plumbing"
	CategoryElectrical TicketCategory = "electrical"
	CategoryHVAC       TicketCategory = "hvac"
	CategoryCarpentry  TicketCategory = "carpentry"
	CategoryAppliance  TicketCategory = "appliance"
	CategoryGeneral    TicketCategory = "general"
)

// KnownCategories lists the categories the classifier may return.
var KnownCategories = []TicketCategory{
	CategoryPlumbing,
	CategoryElectrical,
	CategoryHVAC,
	CategoryCarpentry,
	CategoryAppliance,
	CategoryGeneral,
}

// ValidCategory reports whether c is a recognized trade.
func ValidCategory(c TicketCategory) bool {
	for _, known := range KnownCategories {
		if known == c {
			return true
		}
	}
	return false
}

// TicketMeta carries rejection and escalation bookkeeping for a ticket.
type TicketMeta struct {
	RejectionCount           int
	PreviouslyRejectedBy     []string
	LastRejectedBy           *string
	LastRejectionReason      *string
	EscalationReason         *string
	EscalatedAt              *time.Time
	FallbackAssignedAt       *time.Time
	ManualAssignmentNeededAt *time.Time
}

// RejectedBy reports whether the contractor already rejected this ticket.
func (m TicketMeta) RejectedBy(contractorID string) bool {
	for _, id := range m.PreviouslyRejectedBy {
		if id == contractorID {
			return true
		}
	}
	return false
}

// Ticket is the aggregate for maintenance requests.
type Ticket struct {
	ID                     string
	Description            string
	Category               *TicketCategory
	Urgency                *int
	Status                 TicketStatus
	PropertyID             string
	SubmittedBy            string
	AssignedTo             *string
	RecommendedContractors []string
	Escalated              bool
	Meta                   TicketMeta
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ClassifiedAt           *time.Time
	AssignedAt             *time.Time
	AcceptedAt             *time.Time
	CompletedAt            *time.Time
}

// UrgencyValue returns the classified urgency, zero when unclassified.
func (t *Ticket) UrgencyValue() int {
	if t.Urgency == nil {
		return 0
	}
	return *t.Urgency
}

// ClampUrgency bounds a classifier-provided urgency to the 1..5 scale.
func ClampUrgency(urgency int) int {
	if urgency < 1 {
		return 1
	}
	if urgency > 5 {
		return 5
	}
	return urgency
}
