package domain

import "time"

// HistoryChangeType categorizes audit entries.
type HistoryChangeType string

const (
	ChangeTypeStatus         HistoryChangeType = "STATUS"
	ChangeTypeClassification HistoryChangeType = "CLASSIFICATION"
	ChangeTypeAssignment     HistoryChangeType = "ASSIGNMENT"
	ChangeTypeRejection      HistoryChangeType = "REJECTION"
	ChangeTypeEscalation     HistoryChangeType = "ESCALATION"
	ChangeTypeMatch          HistoryChangeType = "MATCH"
)

// TicketHistory is an immutable lifecycle audit entry.
type TicketHistory struct {
	ID          string
	TicketID    string
	ActorID     *string
	ActorRole   *UserRole
	ChangeType  HistoryChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}

// EscalationLogEntry records one SLA breach or manual escalation for a ticket.
type EscalationLogEntry struct {
	ID             string
	TicketID       string
	Reason         string
	Urgency        int
	ElapsedMinutes int
	Manual         bool
	CreatedAt      time.Time
}
