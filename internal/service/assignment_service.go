package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/observability"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// maxRejections caps the automatic fallback search depth: the rejection
// that brings the count past this limit forces manual assignment.
const maxRejections = 2

const fallbackCandidateCap = 5

// AssignmentService owns the ticket status field and the legal transitions
// between statuses, including rejection fallback re-assignment.
type AssignmentService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	properties repository.PropertyRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	PropertyRepo repository.PropertyRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		properties: deps.PropertyRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// RejectionOutcome reports how a rejection was resolved.
type RejectionOutcome struct {
	Status             string  `json:"status"`
	FallbackContractor *string `json:"fallback_contractor,omitempty"`
}

var assignableStatuses = map[domain.TicketStatus]struct{}{
	domain.TicketStatusReadyToDispatch:       {},
	domain.TicketStatusReadyToAssign:         {},
	domain.TicketStatusNeedsManualAssignment: {},
}

// AssignTicket assigns a contractor on behalf of the landlord (or admin)
// and moves the ticket to PENDING_ACCEPTANCE.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.User, ticketID, contractorID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLandlordOrAdmin(ctx, actor, ticket); err != nil {
		return nil, err
	}
	if _, ok := assignableStatuses[ticket.Status]; !ok {
		return nil, apperrors.NewFailedPrecondition("ticket cannot be assigned in current status",
			map[string]any{"status": ticket.Status})
	}

	contractor, err := s.users.GetByID(ctx, contractorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("contractor", map[string]any{"contractor_id": contractorID})
		}
		return nil, apperrors.MapError(err)
	}
	if contractor.Role != domain.UserRoleContractor {
		return nil, apperrors.NewInvalidArgument("assignee is not a contractor", nil)
	}

	now := time.Now()
	oldStatus := ticket.Status
	ticket.AssignedTo = &contractor.ID
	ticket.Status = domain.TicketStatusPendingAcceptance
	ticket.AssignedAt = &now
	ticket.Meta.ManualAssignmentNeededAt = nil

	if err := s.casUpdate(ctx, ticket, repository.ExpectedTicketState{
		Status:        oldStatus,
		AssignedTo:    nil,
		CheckAssignee: true,
	}); err != nil {
		return nil, err
	}

	s.metrics.RecordAssignment()
	s.recordTransition(ctx, actor, ticket.ID, domain.ChangeTypeAssignment, map[string]any{
		"status": oldStatus,
	}, map[string]any{
		"status":      ticket.Status,
		"assigned_to": contractor.ID,
	})
	s.publishEvent(ctx, actorEvent(actor, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Payload: events.TicketAssignedPayload{
			ContractorID: contractor.ID,
			Category:     categoryOf(ticket),
		},
	}))
	return ticket, nil
}

// AcceptTicket lets the currently assigned contractor accept the job.
func (s *AssignmentService) AcceptTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireAssignee(actor, ticket); err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPendingAcceptance {
		return nil, apperrors.NewFailedPrecondition("ticket is not awaiting acceptance",
			map[string]any{"status": ticket.Status})
	}

	now := time.Now()
	ticket.Status = domain.TicketStatusAssigned
	ticket.AcceptedAt = &now

	if err := s.casUpdate(ctx, ticket, repository.ExpectedTicketState{
		Status:        domain.TicketStatusPendingAcceptance,
		AssignedTo:    &actor.ID,
		CheckAssignee: true,
	}); err != nil {
		return nil, err
	}

	landlordID := s.resolveLandlord(ctx, ticket)
	s.recordTransition(ctx, actor, ticket.ID, domain.ChangeTypeStatus, map[string]any{
		"status": domain.TicketStatusPendingAcceptance,
	}, map[string]any{
		"status": domain.TicketStatusAssigned,
	})
	s.publishEvent(ctx, actorEvent(actor, events.Event{
		Type:     events.EventTicketAccepted,
		TicketID: ticket.ID,
		Payload: events.TicketAcceptedPayload{
			ContractorID: actor.ID,
			TenantID:     ticket.SubmittedBy,
			LandlordID:   landlordID,
		},
	}))
	return ticket, nil
}

// RejectTicket handles a contractor rejection and resolves the fallback:
// either the next eligible contractor takes over in PENDING_ACCEPTANCE, or
// the ticket lands in NEEDS_MANUAL_ASSIGNMENT for the landlord. The read
// and conditional write are keyed on the prior status, assignee and
// rejection count so a concurrent accept or reject loses cleanly.
func (s *AssignmentService) RejectTicket(ctx context.Context, actor *domain.User, ticketID, reason string) (*RejectionOutcome, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireAssignee(actor, ticket); err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusPendingAcceptance {
		return nil, apperrors.NewFailedPrecondition("ticket is not awaiting acceptance",
			map[string]any{"status": ticket.Status})
	}

	priorCount := ticket.Meta.RejectionCount
	rejecterID := actor.ID
	now := time.Now()

	ticket.Meta.RejectionCount = priorCount + 1
	ticket.Meta.LastRejectedBy = &rejecterID
	ticket.Meta.LastRejectionReason = &reason
	if !ticket.Meta.RejectedBy(rejecterID) {
		ticket.Meta.PreviouslyRejectedBy = append(ticket.Meta.PreviouslyRejectedBy, rejecterID)
	}

	expect := repository.ExpectedTicketState{
		Status:         domain.TicketStatusPendingAcceptance,
		AssignedTo:     &rejecterID,
		CheckAssignee:  true,
		RejectionCount: &priorCount,
	}

	var fallback *domain.Contractor
	if priorCount < maxRejections {
		fallback, err = s.findFallback(ctx, ticket, rejecterID)
		if err != nil {
			return nil, err
		}
	}

	outcome := &RejectionOutcome{}
	if fallback != nil {
		ticket.AssignedTo = &fallback.ID
		ticket.Status = domain.TicketStatusPendingAcceptance
		ticket.AssignedAt = &now
		ticket.Meta.FallbackAssignedAt = &now
		outcome.Status = "reassigned"
		outcome.FallbackContractor = &fallback.ID
	} else {
		ticket.AssignedTo = nil
		ticket.Status = domain.TicketStatusNeedsManualAssignment
		ticket.Meta.ManualAssignmentNeededAt = &now
		outcome.Status = "needs_manual_assignment"
	}

	if err := s.casUpdate(ctx, ticket, expect); err != nil {
		return nil, err
	}

	s.metrics.RecordRejection()
	s.recordTransition(ctx, actor, ticket.ID, domain.ChangeTypeRejection, map[string]any{
		"status":          domain.TicketStatusPendingAcceptance,
		"assigned_to":     rejecterID,
		"rejection_count": priorCount,
	}, map[string]any{
		"status":          ticket.Status,
		"assigned_to":     ticket.AssignedTo,
		"rejection_count": ticket.Meta.RejectionCount,
		"reason":          reason,
	})

	s.publishEvent(ctx, actorEvent(actor, events.Event{
		Type:     events.EventTicketRejected,
		TicketID: ticket.ID,
		Payload: events.TicketRejectedPayload{
			ContractorID:   rejecterID,
			Reason:         reason,
			RejectionCount: ticket.Meta.RejectionCount,
			FallbackTo:     outcome.FallbackContractor,
		},
	}))
	if fallback != nil {
		s.publishEvent(ctx, actorEvent(actor, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Payload: events.TicketAssignedPayload{
				ContractorID: fallback.ID,
				Category:     categoryOf(ticket),
				Fallback:     true,
			},
		}))
	} else {
		s.publishEvent(ctx, actorEvent(actor, events.Event{
			Type:     events.EventManualAssignmentNeeded,
			TicketID: ticket.ID,
			Payload: events.ManualAssignmentNeededPayload{
				LandlordID: s.resolveLandlord(ctx, ticket),
				Reason:     reason,
			},
		}))
	}
	return outcome, nil
}

// StartWork moves an accepted ticket into IN_PROGRESS.
func (s *AssignmentService) StartWork(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.contractorTransition(ctx, actor, ticketID,
		domain.TicketStatusAssigned, domain.TicketStatusInProgress, events.EventTicketStatusChanged)
}

// CompleteTicket finishes an in-progress ticket.
func (s *AssignmentService) CompleteTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	return s.contractorTransition(ctx, actor, ticketID,
		domain.TicketStatusInProgress, domain.TicketStatusCompleted, events.EventTicketCompleted)
}

func (s *AssignmentService) contractorTransition(ctx context.Context, actor *domain.User, ticketID string, from, to domain.TicketStatus, eventType events.EventType) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := requireAssignee(actor, ticket); err != nil {
		return nil, err
	}
	if ticket.Status != from {
		return nil, apperrors.NewFailedPrecondition("invalid status transition",
			map[string]any{"status": ticket.Status, "target": to})
	}

	ticket.Status = to
	if to == domain.TicketStatusCompleted {
		now := time.Now()
		ticket.CompletedAt = &now
	}

	if err := s.casUpdate(ctx, ticket, repository.ExpectedTicketState{
		Status:        from,
		AssignedTo:    &actor.ID,
		CheckAssignee: true,
	}); err != nil {
		return nil, err
	}

	landlordID := s.resolveLandlord(ctx, ticket)
	s.recordTransition(ctx, actor, ticket.ID, domain.ChangeTypeStatus, map[string]any{
		"status": from,
	}, map[string]any{
		"status": to,
	})

	if eventType == events.EventTicketCompleted {
		s.publishEvent(ctx, actorEvent(actor, events.Event{
			Type:     eventType,
			TicketID: ticket.ID,
			Payload: events.TicketCompletedPayload{
				ContractorID: actor.ID,
				TenantID:     ticket.SubmittedBy,
				LandlordID:   landlordID,
			},
		}))
	} else {
		s.publishEvent(ctx, actorEvent(actor, events.Event{
			Type:     eventType,
			TicketID: ticket.ID,
			Payload: events.TicketStatusChangedPayload{
				OldStatus:  from,
				NewStatus:  to,
				TenantID:   ticket.SubmittedBy,
				LandlordID: landlordID,
			},
		}))
	}
	return ticket, nil
}

// CancelTicket cancels a non-terminal ticket on behalf of the tenant who
// submitted it, the owning landlord, or an admin.
func (s *AssignmentService) CancelTicket(ctx context.Context, actor *domain.User, ticketID, comment string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewFailedPrecondition("ticket already closed",
			map[string]any{"status": ticket.Status})
	}
	if actor.Role != domain.UserRoleAdmin && actor.ID != ticket.SubmittedBy {
		if err := s.requireLandlordOrAdmin(ctx, actor, ticket); err != nil {
			return nil, err
		}
	}

	oldStatus := ticket.Status
	oldAssignee := ticket.AssignedTo
	ticket.Status = domain.TicketStatusCancelled
	ticket.AssignedTo = nil

	if err := s.casUpdate(ctx, ticket, repository.ExpectedTicketState{
		Status:        oldStatus,
		AssignedTo:    oldAssignee,
		CheckAssignee: true,
	}); err != nil {
		return nil, err
	}

	s.recordTransition(ctx, actor, ticket.ID, domain.ChangeTypeStatus, map[string]any{
		"status": oldStatus,
	}, map[string]any{
		"status":  domain.TicketStatusCancelled,
		"comment": comment,
	})
	s.publishEvent(ctx, actorEvent(actor, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Payload: events.TicketStatusChangedPayload{
			OldStatus:  oldStatus,
			NewStatus:  domain.TicketStatusCancelled,
			TenantID:   ticket.SubmittedBy,
			LandlordID: s.resolveLandlord(ctx, ticket),
			Comment:    comment,
		},
	}))
	return ticket, nil
}

// findFallback selects the next eligible contractor: category match,
// available, excluding everyone who already rejected this ticket plus the
// current rejecter; best rating first, contractor ID as the tie-break.
func (s *AssignmentService) findFallback(ctx context.Context, ticket *domain.Ticket, rejecterID string) (*domain.Contractor, error) {
	if ticket.Category == nil {
		return nil, nil
	}
	excluding := append([]string{}, ticket.Meta.PreviouslyRejectedBy...)
	if !ticket.Meta.RejectedBy(rejecterID) {
		excluding = append(excluding, rejecterID)
	}
	candidates, err := s.users.FindContractors(ctx, *ticket.Category, excluding, true, fallbackCandidateCap)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

func (s *AssignmentService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if ticketID == "" {
		return nil, apperrors.NewInvalidArgument("ticket_id required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *AssignmentService) casUpdate(ctx context.Context, ticket *domain.Ticket, expect repository.ExpectedTicketState) error {
	if err := s.tickets.UpdateConditional(ctx, ticket, expect); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewFailedPrecondition("ticket state changed concurrently",
				map[string]any{"ticket_id": ticket.ID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *AssignmentService) requireLandlordOrAdmin(ctx context.Context, actor *domain.User, ticket *domain.Ticket) error {
	if actor.Role == domain.UserRoleAdmin {
		return nil
	}
	if actor.Role != domain.UserRoleLandlord {
		return apperrors.NewPermissionDenied("landlord or admin required")
	}
	landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if landlordID != actor.ID {
		return apperrors.NewPermissionDenied("ticket belongs to another landlord")
	}
	return nil
}

func (s *AssignmentService) resolveLandlord(ctx context.Context, ticket *domain.Ticket) string {
	landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
	if err != nil {
		s.logger.Error("resolve landlord",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return ""
	}
	return landlordID
}

func requireAssignee(actor *domain.User, ticket *domain.Ticket) error {
	if ticket.AssignedTo == nil || *ticket.AssignedTo != actor.ID {
		return apperrors.NewPermissionDenied("ticket is not assigned to caller")
	}
	return nil
}

func categoryOf(ticket *domain.Ticket) domain.TicketCategory {
	if ticket.Category == nil {
		return ""
	}
	return *ticket.Category
}

func (s *AssignmentService) recordTransition(ctx context.Context, actor *domain.User, ticketID string, changeType domain.HistoryChangeType, oldValue, newValue map[string]any) {
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: changeType,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if actor != nil {
		entry.ActorID = &actor.ID
		role := actor.Role
		entry.ActorRole = &role
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record ticket history", zap.Error(err))
	}
}

func actorEvent(actor *domain.User, event events.Event) events.Event {
	if actor != nil {
		role := actor.Role
		event.Actor = events.Actor{ID: &actor.ID, Role: &role}
	}
	return event
}

func (s *AssignmentService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Error("publish event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
