package domain

import "time"

// NotificationType tags the lifecycle event a notification describes.
type NotificationType string

const (
	NotificationTypeClassified             NotificationType = "ticket_classified"
	NotificationTypeHighUrgency            NotificationType = "high_urgency"
	NotificationTypeAssignment             NotificationType = "assignment"
	NotificationTypeStatusChange           NotificationType = "status_change"
	NotificationTypeEscalation             NotificationType = "escalation"
	NotificationTypeCompletion             NotificationType = "completion"
	NotificationTypeManualAssignmentNeeded NotificationType = "manual_assignment_needed"
)

// Notification is a single logical message to one recipient. It is immutable
// to the engine after creation; read/archive/delete housekeeping mutates it.
type Notification struct {
	ID        string
	UserID    string
	UserRole  UserRole
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]any
	Read      bool
	Archived  bool
	DeletedAt *time.Time
	CreatedAt time.Time
}

// Channel identifies a delivery channel for a notification.
type Channel string

const (
	ChannelInApp Channel = "inApp"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// ChannelStatus is the per-channel delivery outcome.
type ChannelStatus string

const (
	ChannelStatusPending   ChannelStatus = "pending"
	ChannelStatusDelivered ChannelStatus = "delivered"
	ChannelStatusFailed    ChannelStatus = "failed"
	ChannelStatusSkipped   ChannelStatus = "skipped"
)

// ChannelResult records the terminal state of one channel attempt.
// Detail carries the failure error or the skip reason.
type ChannelResult struct {
	Status    ChannelStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Detail    string        `json:"detail,omitempty"`
}

// DeliveryRecord tracks per-channel delivery for exactly one notification.
type DeliveryRecord struct {
	NotificationID string
	UserID         string
	Channels       map[Channel]ChannelResult
	Completed      bool
	Failed         bool
	Error          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
