package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

const maxDescriptionLength = 4000

// TicketService handles ticket intake and read access.
type TicketService struct {
	tickets    repository.TicketRepository
	properties repository.PropertyRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// TicketDependencies bundles collaborators.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	PropertyRepo repository.PropertyRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewTicketService creates the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		properties: deps.PropertyRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// SubmitTicket creates a ticket in PENDING_CLASSIFICATION for the tenant
// and kicks off the lifecycle by publishing the creation event.
func (s *TicketService) SubmitTicket(ctx context.Context, actor *domain.User, propertyID, description string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	if actor.Role != domain.UserRoleTenant && actor.Role != domain.UserRoleAdmin {
		return nil, apperrors.NewPermissionDenied("only tenants can submit maintenance requests")
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.NewInvalidArgument("description required", nil)
	}
	if len(description) > maxDescriptionLength {
		return nil, apperrors.NewInvalidArgument("description too long",
			map[string]any{"max_length": maxDescriptionLength})
	}
	if propertyID == "" {
		return nil, apperrors.NewInvalidArgument("property_id required", nil)
	}
	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("property", map[string]any{"property_id": propertyID})
		}
		return nil, apperrors.MapError(err)
	}

	ticket := &domain.Ticket{
		Description: description,
		Status:      domain.TicketStatusPendingClassification,
		PropertyID:  propertyID,
		SubmittedBy: actor.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.recordCreation(ctx, actor, ticket)
	s.publishEvent(ctx, actorEvent(actor, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Payload: events.TicketCreatedPayload{
			PropertyID:  ticket.PropertyID,
			TenantID:    ticket.SubmittedBy,
			Description: ticket.Description,
		},
	}))
	return ticket, nil
}

// GetTicket fetches one ticket, restricted to its participants.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if err := s.authorizeRead(ctx, actor, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// ListTickets returns tickets scoped by the caller's role: tenants see
// their own submissions, contractors their assignments, landlords their
// properties' tickets, admins everything.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("caller identity required")
	}
	filter := repository.TicketFilter{
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	}
	switch actor.Role {
	case domain.UserRoleTenant:
		filter.SubmittedBy = &actor.ID
	case domain.UserRoleContractor:
		filter.AssignedTo = &actor.ID
	case domain.UserRoleLandlord:
		filter.LandlordID = &actor.ID
	case domain.UserRoleAdmin:
	default:
		return nil, apperrors.NewPermissionDenied("unknown role")
	}

	result, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// GetHistory lists the ticket's audit trail for its participants.
func (s *TicketService) GetHistory(ctx context.Context, actor *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) authorizeRead(ctx context.Context, actor *domain.User, ticket *domain.Ticket) error {
	switch actor.Role {
	case domain.UserRoleAdmin:
		return nil
	case domain.UserRoleTenant:
		if actor.ID == ticket.SubmittedBy {
			return nil
		}
	case domain.UserRoleContractor:
		if ticket.AssignedTo != nil && *ticket.AssignedTo == actor.ID {
			return nil
		}
		for _, id := range ticket.RecommendedContractors {
			if id == actor.ID {
				return nil
			}
		}
	case domain.UserRoleLandlord:
		landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
		if err != nil {
			return apperrors.MapError(err)
		}
		if landlordID == actor.ID {
			return nil
		}
	}
	return apperrors.NewPermissionDenied("not a participant on this ticket")
}

func (s *TicketService) recordCreation(ctx context.Context, actor *domain.User, ticket *domain.Ticket) {
	entry := &domain.TicketHistory{
		TicketID:   ticket.ID,
		ActorID:    &actor.ID,
		ChangeType: domain.ChangeTypeStatus,
		NewValue: map[string]any{
			"status":      ticket.Status,
			"property_id": ticket.PropertyID,
		},
	}
	role := actor.Role
	entry.ActorRole = &role
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record ticket creation", zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
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
