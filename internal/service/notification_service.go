package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// highUrgencyThreshold marks classifications that warrant an extra
// heads-up to the landlord.
const highUrgencyThreshold = 4

// NotificationService translates lifecycle events into per-recipient
// notifications and hands each one to the delivery coordinator.
type NotificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	delivery      *DeliveryService
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	UserRepo         repository.UserRepository
	Delivery         *DeliveryService
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	return &NotificationService{
		notifications: deps.NotificationRepo,
		users:         deps.UserRepo,
		delivery:      deps.Delivery,
		dispatcher:    deps.Dispatcher,
		logger:        deps.Logger,
	}
}

// RegisterHandlers subscribes to every lifecycle event that produces
// recipient-facing notifications.
func (s *NotificationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketClassified, s.handleTicketClassified)
	s.dispatcher.Subscribe(events.EventTicketAssigned, s.handleTicketAssigned)
	s.dispatcher.Subscribe(events.EventTicketAccepted, s.handleTicketAccepted)
	s.dispatcher.Subscribe(events.EventManualAssignmentNeeded, s.handleManualAssignmentNeeded)
	s.dispatcher.Subscribe(events.EventTicketsEscalated, s.handleTicketsEscalated)
	s.dispatcher.Subscribe(events.EventTicketStatusChanged, s.handleStatusChanged)
	s.dispatcher.Subscribe(events.EventTicketCompleted, s.handleTicketCompleted)
}

// ListForUser returns the recipient's active notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]domain.Notification, error) {
	result, err := s.notifications.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

func (s *NotificationService) handleTicketClassified(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClassifiedPayload)
	if !ok {
		return nil
	}
	title := "Maintenance request classified"
	message := fmt.Sprintf("Your request was classified as %s with urgency %d.",
		payload.Category, payload.Urgency)
	data := map[string]any{
		"ticket_id": event.TicketID,
		"category":  payload.Category,
		"urgency":   payload.Urgency,
	}

	s.notify(ctx, payload.TenantID, domain.UserRoleTenant, domain.NotificationTypeClassified, title, message, data)
	if payload.LandlordID != "" {
		landlordMessage := fmt.Sprintf("A %s request at your property was classified with urgency %d.",
			payload.Category, payload.Urgency)
		s.notify(ctx, payload.LandlordID, domain.UserRoleLandlord, domain.NotificationTypeClassified, title, landlordMessage, data)
		if payload.Urgency >= highUrgencyThreshold {
			s.notify(ctx, payload.LandlordID, domain.UserRoleLandlord, domain.NotificationTypeHighUrgency,
				"High urgency maintenance request",
				fmt.Sprintf("An urgency %d %s request needs prompt attention.", payload.Urgency, payload.Category),
				data)
		}
	}
	return nil
}

func (s *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return nil
	}
	title := "New job assignment"
	message := fmt.Sprintf("You have been assigned a %s job. Please accept or reject it.", payload.Category)
	if payload.Fallback {
		message = fmt.Sprintf("A %s job was reassigned to you after a rejection. Please accept or reject it.", payload.Category)
	}
	s.notify(ctx, payload.ContractorID, domain.UserRoleContractor, domain.NotificationTypeAssignment, title, message, map[string]any{
		"ticket_id": event.TicketID,
		"category":  payload.Category,
		"fallback":  payload.Fallback,
	})
	return nil
}

func (s *NotificationService) handleTicketAccepted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAcceptedPayload)
	if !ok {
		return nil
	}
	data := map[string]any{
		"ticket_id":     event.TicketID,
		"contractor_id": payload.ContractorID,
	}
	s.notify(ctx, payload.TenantID, domain.UserRoleTenant, domain.NotificationTypeStatusChange,
		"Contractor accepted your request",
		"A contractor accepted your maintenance request and will be in touch.", data)
	if payload.LandlordID != "" {
		s.notify(ctx, payload.LandlordID, domain.UserRoleLandlord, domain.NotificationTypeStatusChange,
			"Contractor accepted a job",
			"The assigned contractor accepted a maintenance job at your property.", data)
	}
	return nil
}

func (s *NotificationService) handleManualAssignmentNeeded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ManualAssignmentNeededPayload)
	if !ok {
		return nil
	}
	if payload.LandlordID == "" {
		s.logger.Warn("manual assignment notification has no landlord",
			zap.String("ticket_id", event.TicketID))
		return nil
	}
	message := "A maintenance ticket needs you to pick a contractor manually."
	if payload.Reason != "" {
		message = fmt.Sprintf("A maintenance ticket needs manual assignment: %s.", payload.Reason)
	}
	s.notify(ctx, payload.LandlordID, domain.UserRoleLandlord, domain.NotificationTypeManualAssignmentNeeded,
		"Manual assignment needed", message, map[string]any{
			"ticket_id": event.TicketID,
			"reason":    payload.Reason,
		})
	return nil
}

// handleTicketsEscalated groups a sweep's escalations so each landlord
// gets one digest for their tickets and each admin one for the whole batch.
func (s *NotificationService) handleTicketsEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketsEscalatedPayload)
	if !ok || len(payload.Escalations) == 0 {
		return nil
	}

	byLandlord := make(map[string][]events.EscalatedTicket)
	for _, escalation := range payload.Escalations {
		if escalation.LandlordID == "" {
			continue
		}
		byLandlord[escalation.LandlordID] = append(byLandlord[escalation.LandlordID], escalation)
	}

	for landlordID, escalations := range byLandlord {
		s.notify(ctx, landlordID, domain.UserRoleLandlord, domain.NotificationTypeEscalation,
			"Maintenance tickets escalated",
			escalationDigest(len(escalations), payload.Manual),
			map[string]any{"tickets": ticketIDs(escalations), "manual": payload.Manual})
	}

	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		s.logger.Error("list admins for escalation digest", zap.Error(err))
		return nil
	}
	for _, admin := range admins {
		s.notify(ctx, admin.ID, domain.UserRoleAdmin, domain.NotificationTypeEscalation,
			"Maintenance tickets escalated",
			escalationDigest(len(payload.Escalations), payload.Manual),
			map[string]any{"tickets": ticketIDs(payload.Escalations), "manual": payload.Manual})
	}
	return nil
}

func (s *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return nil
	}
	message := fmt.Sprintf("Your maintenance request moved from %s to %s.", payload.OldStatus, payload.NewStatus)
	if payload.Comment != "" {
		message += " " + payload.Comment
	}
	data := map[string]any{
		"ticket_id":  event.TicketID,
		"old_status": payload.OldStatus,
		"new_status": payload.NewStatus,
	}
	s.notify(ctx, payload.TenantID, domain.UserRoleTenant, domain.NotificationTypeStatusChange,
		"Request status updated", message, data)
	if payload.LandlordID != "" {
		s.notify(ctx, payload.LandlordID, domain.UserRoleLandlord, domain.NotificationTypeStatusChange,
			"Ticket status updated",
			fmt.Sprintf("A ticket at your property moved from %s to %s.", payload.OldStatus, payload.NewStatus),
			data)
	}
	return nil
}

func (s *NotificationService) handleTicketCompleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCompletedPayload)
	if !ok {
		return nil
	}
	data := map[string]any{
		"ticket_id":     event.TicketID,
		"contractor_id": payload.ContractorID,
	}
	s.notify(ctx, payload.TenantID, domain.UserRoleTenant, domain.NotificationTypeCompletion,
		"Maintenance request completed",
		"The contractor marked your maintenance request as completed.", data)
	if payload.LandlordID != "" {
		s.notify(ctx, payload.LandlordID, domain.UserRoleLandlord, domain.NotificationTypeCompletion,
			"Maintenance job completed",
			"A maintenance job at your property was completed.", data)
	}
	return nil
}

// notify persists the notification and triggers delivery. Failures are
// logged rather than propagated so one bad recipient never blocks the
// lifecycle transition that caused the event.
func (s *NotificationService) notify(ctx context.Context, userID string, role domain.UserRole, notificationType domain.NotificationType, title, message string, data map[string]any) {
	notification := &domain.Notification{
		UserID:   userID,
		UserRole: role,
		Type:     notificationType,
		Title:    title,
		Message:  message,
		Data:     data,
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		s.logger.Error("create notification",
			zap.String("user_id", userID), zap.String("type", string(notificationType)), zap.Error(err))
		return
	}
	if s.delivery == nil {
		return
	}
	if _, err := s.delivery.Deliver(ctx, notification); err != nil {
		s.logger.Error("deliver notification",
			zap.String("notification_id", notification.ID), zap.Error(err))
	}
}

func escalationDigest(count int, manual bool) string {
	if manual {
		return "A maintenance ticket was manually escalated and needs attention."
	}
	if count == 1 {
		return "1 maintenance ticket breached its response time limit."
	}
	return fmt.Sprintf("%d maintenance tickets breached their response time limits.", count)
}

func ticketIDs(escalations []events.EscalatedTicket) []string {
	ids := make([]string, 0, len(escalations))
	for _, escalation := range escalations {
		ids = append(ids, escalation.TicketID)
	}
	return ids
}
