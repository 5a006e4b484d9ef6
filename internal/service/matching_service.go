package service

import (
	"context"
	"errors"
	"sort"
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

const (
	matcherCandidateCap = 5
	maxRecommended      = 3
)

// MatchingService selects ranked candidate contractors for classified tickets.
type MatchingService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	properties repository.PropertyRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// MatchingDependencies bundles collaborators.
type MatchingDependencies struct {
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	PropertyRepo repository.PropertyRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewMatchingService creates the service.
func NewMatchingService(deps MatchingDependencies) *MatchingService {
	return &MatchingService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		properties: deps.PropertyRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// RegisterHandlers subscribes the matcher to classification completions.
func (s *MatchingService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketClassified, s.handleTicketClassified)
}

func (s *MatchingService) handleTicketClassified(ctx context.Context, event events.Event) error {
	if err := s.MatchTicket(ctx, event.TicketID); err != nil {
		s.logger.Error("matcher failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}
	return nil
}

// MatchTicket queries eligible contractors for a classified ticket and
// writes up to three ranked recommendations onto it. With zero candidates
// the ticket stays in READY_TO_DISPATCH and the landlord is told to assign
// manually rather than letting the ticket stall silently.
func (s *MatchingService) MatchTicket(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	if ticket.Status != domain.TicketStatusReadyToDispatch {
		return nil
	}
	if ticket.Category == nil {
		return apperrors.NewFailedPrecondition("ticket not classified", map[string]any{"ticket_id": ticketID})
	}

	landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("property", map[string]any{"property_id": ticket.PropertyID})
		}
		return apperrors.MapError(err)
	}

	candidates, err := s.users.FindContractors(ctx, *ticket.Category, nil, true, matcherCandidateCap)
	if err != nil {
		return apperrors.MapError(err)
	}
	if len(candidates) == 0 {
		s.logger.Warn("no contractors available for category",
			zap.String("ticket_id", ticket.ID), zap.String("category", string(*ticket.Category)))
		s.publishEvent(ctx, events.Event{
			Type:     events.EventManualAssignmentNeeded,
			TicketID: ticket.ID,
			Payload: events.ManualAssignmentNeededPayload{
				LandlordID: landlordID,
				Reason:     "no matching contractors available",
			},
		})
		return nil
	}

	rolodex, err := s.users.ListRolodex(ctx, landlordID)
	if err != nil {
		return apperrors.MapError(err)
	}
	ranked := RankContractors(candidates, rolodex)

	recommended := make([]string, 0, maxRecommended)
	for _, contractor := range ranked {
		recommended = append(recommended, contractor.ID)
		if len(recommended) == maxRecommended {
			break
		}
	}

	ticket.RecommendedContractors = recommended
	ticket.Status = domain.TicketStatusReadyToAssign
	err = s.tickets.UpdateConditional(ctx, ticket, repository.ExpectedTicketState{
		Status: domain.TicketStatusReadyToDispatch,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperrors.MapError(err)
	}

	s.metrics.RecordMatch()
	s.recordMatch(ctx, ticket.ID, recommended)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventContractorsMatched,
		TicketID: ticket.ID,
		Payload: events.ContractorsMatchedPayload{
			Category:      *ticket.Category,
			ContractorIDs: recommended,
			LandlordID:    landlordID,
		},
	})
	return nil
}

// RankContractors orders candidates for recommendation: contractors on the
// landlord's rolodex first, then rating descending, then ID ascending as a
// deterministic final tie-break.
func RankContractors(candidates []domain.Contractor, rolodex []string) []domain.Contractor {
	preferred := make(map[string]struct{}, len(rolodex))
	for _, id := range rolodex {
		preferred[id] = struct{}{}
	}

	ranked := append([]domain.Contractor{}, candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		_, iPreferred := preferred[ranked[i].ID]
		_, jPreferred := preferred[ranked[j].ID]
		if iPreferred != jPreferred {
			return iPreferred
		}
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		return ranked[i].ID < ranked[j].ID
	})
	return ranked
}

func (s *MatchingService) recordMatch(ctx context.Context, ticketID string, recommended []string) {
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: domain.ChangeTypeMatch,
		OldValue: map[string]any{
			"status": domain.TicketStatusReadyToDispatch,
		},
		NewValue: map[string]any{
			"status":                  domain.TicketStatusReadyToAssign,
			"recommended_contractors": recommended,
		},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record match history", zap.Error(err))
	}
}

func (s *MatchingService) publishEvent(ctx context.Context, event events.Event) {
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
