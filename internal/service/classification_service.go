package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/classify"
	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/events"
	"github.com/propagentic/maintenance-service/internal/observability"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// ClassificationService reacts to newly created tickets by invoking the
// external classifier and advancing them to READY_TO_DISPATCH.
type ClassificationService struct {
	tickets     repository.TicketRepository
	properties  repository.PropertyRepository
	history     repository.TicketHistoryRepository
	classifier  classify.Classifier
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	maxAttempts int
	backoff     time.Duration
}

// ClassificationDependencies bundles collaborators.
type ClassificationDependencies struct {
	TicketRepo   repository.TicketRepository
	PropertyRepo repository.PropertyRepository
	HistoryRepo  repository.TicketHistoryRepository
	Classifier   classify.Classifier
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	MaxAttempts  int
}

// NewClassificationService creates the service.
func NewClassificationService(deps ClassificationDependencies) *ClassificationService {
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &ClassificationService{
		tickets:     deps.TicketRepo,
		properties:  deps.PropertyRepo,
		history:     deps.HistoryRepo,
		classifier:  deps.Classifier,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		maxAttempts: maxAttempts,
		backoff:     500 * time.Millisecond,
	}
}

// RegisterHandlers subscribes the classification trigger.
func (s *ClassificationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketCreated, s.handleTicketCreated)
}

func (s *ClassificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	if err := s.ClassifyTicket(ctx, event.TicketID); err != nil {
		s.logger.Error("classification trigger failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}
	return nil
}

// ClassifyTicket classifies a pending ticket. On provider failure the
// ticket keeps its PENDING_CLASSIFICATION status so a later attempt can
// pick it up; the degradation is visible, never a silent wrong answer.
func (s *ClassificationService) ClassifyTicket(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	if ticket.Status != domain.TicketStatusPendingClassification {
		// Already classified by a concurrent attempt.
		return nil
	}
	if s.classifier == nil {
		return apperrors.NewClassificationError(errors.New("classifier not configured"))
	}

	result, err := s.classifyWithRetry(ctx, ticket.Description)
	if err != nil {
		s.metrics.RecordClassification(false)
		s.recordClassificationFailure(ctx, ticket.ID, err)
		return err
	}

	now := time.Now()
	urgency := domain.ClampUrgency(result.Urgency)
	ticket.Category = &result.Category
	ticket.Urgency = &urgency
	ticket.Status = domain.TicketStatusReadyToDispatch
	ticket.ClassifiedAt = &now

	err = s.tickets.UpdateConditional(ctx, ticket, repository.ExpectedTicketState{
		Status: domain.TicketStatusPendingClassification,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race to another classification attempt; nothing to do.
			return nil
		}
		return apperrors.MapError(err)
	}

	s.metrics.RecordClassification(true)
	s.recordClassification(ctx, ticket.ID, result.Category, urgency)

	landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
	if err != nil {
		s.logger.Error("resolve landlord for classified ticket",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClassified,
		TicketID: ticket.ID,
		Payload: events.TicketClassifiedPayload{
			Category:   result.Category,
			Urgency:    urgency,
			PropertyID: ticket.PropertyID,
			TenantID:   ticket.SubmittedBy,
			LandlordID: landlordID,
		},
	})
	return nil
}

func (s *ClassificationService) classifyWithRetry(ctx context.Context, description string) (*classify.Result, error) {
	var lastErr error
	backoff := s.backoff
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err := s.classifier.Classify(ctx, description)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !apperrors.IsRetryable(err) || attempt == s.maxAttempts {
			break
		}
		s.logger.Warn("classifier attempt failed; retrying",
			zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, apperrors.NewClassificationError(ctx.Err())
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (s *ClassificationService) recordClassification(ctx context.Context, ticketID string, category domain.TicketCategory, urgency int) {
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: domain.ChangeTypeClassification,
		OldValue: map[string]any{
			"status": domain.TicketStatusPendingClassification,
		},
		NewValue: map[string]any{
			"status":   domain.TicketStatusReadyToDispatch,
			"category": category,
			"urgency":  urgency,
		},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record classification history", zap.Error(err))
	}
}

func (s *ClassificationService) recordClassificationFailure(ctx context.Context, ticketID string, cause error) {
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangeType: domain.ChangeTypeClassification,
		NewValue: map[string]any{
			"error": cause.Error(),
		},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record classification failure", zap.Error(err))
	}
}

func (s *ClassificationService) publishEvent(ctx context.Context, event events.Event) {
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
