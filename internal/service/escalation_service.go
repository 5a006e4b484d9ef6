package service

import (
	"context"
	"errors"
	"fmt"
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

// slaThresholds maps urgency to the maximum time a ticket may wait before
// the sweep escalates it. Urgencies below 3 are never auto-escalated.
var slaThresholds = map[int]time.Duration{
	5: 30 * time.Minute,
	4: 60 * time.Minute,
	3: 180 * time.Minute,
}

const minEscalationUrgency = 3

var sweepStatuses = []domain.TicketStatus{
	domain.TicketStatusReadyToDispatch,
	domain.TicketStatusPendingAcceptance,
}

// EscalationService runs the SLA sweep over waiting tickets and handles
// manual escalation requests.
type EscalationService struct {
	tickets    repository.TicketRepository
	properties repository.PropertyRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// EscalationDependencies bundles collaborators.
type EscalationDependencies struct {
	TicketRepo   repository.TicketRepository
	PropertyRepo repository.PropertyRepository
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// Now overrides the clock, nil means time.Now.
	Now func() time.Time
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &EscalationService{
		tickets:    deps.TicketRepo,
		properties: deps.PropertyRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        now,
	}
}

// SweepResult summarizes one escalation pass.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
}

// Sweep scans un-escalated waiting tickets against their SLA thresholds
// and flags the breached ones in a single batch. The escalated flag makes
// the pass idempotent: a ticket breaches at most once, however many sweeps
// observe it. Notification failures are logged but never undo the flags.
func (s *EscalationService) Sweep(ctx context.Context) (*SweepResult, error) {
	candidates, err := s.tickets.ListEscalationCandidates(ctx, sweepStatuses, minEscalationUrgency)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	result := &SweepResult{Scanned: len(candidates)}
	now := s.now()

	var updates []repository.EscalationUpdate
	var breached []escalationCandidate
	for i := range candidates {
		ticket := &candidates[i]
		urgency := ticket.UrgencyValue()
		threshold, ok := slaThresholds[urgency]
		if !ok {
			result.Skipped++
			continue
		}
		reference := escalationReference(ticket)
		if reference == nil {
			// A ticket in a waiting status without its reference timestamp
			// is a data anomaly; surface it and move on.
			s.logger.Warn("escalation candidate missing reference timestamp",
				zap.String("ticket_id", ticket.ID), zap.String("status", string(ticket.Status)))
			result.Skipped++
			continue
		}
		elapsed := now.Sub(*reference)
		if elapsed < threshold {
			continue
		}
		reason := fmt.Sprintf("urgency %d ticket waiting in %s for %d minutes (limit %d)",
			urgency, ticket.Status, int(elapsed.Minutes()), int(threshold.Minutes()))
		updates = append(updates, repository.EscalationUpdate{TicketID: ticket.ID, Reason: reason})
		breached = append(breached, escalationCandidate{
			ticket:         ticket,
			reason:         reason,
			elapsedMinutes: int(elapsed.Minutes()),
		})
	}

	if len(updates) == 0 {
		return result, nil
	}

	flagged, err := s.tickets.CommitEscalations(ctx, updates)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	result.Escalated = flagged
	s.metrics.RecordEscalations(flagged)

	escalations := make([]events.EscalatedTicket, 0, len(breached))
	for _, candidate := range breached {
		s.recordEscalation(ctx, candidate.ticket, candidate.reason, candidate.elapsedMinutes, false)
		escalations = append(escalations, events.EscalatedTicket{
			TicketID:       candidate.ticket.ID,
			LandlordID:     s.landlordFor(ctx, candidate.ticket),
			Urgency:        candidate.ticket.UrgencyValue(),
			ElapsedMinutes: candidate.elapsedMinutes,
			Reason:         candidate.reason,
		})
	}

	s.publishEvent(ctx, events.Event{
		Type: events.EventTicketsEscalated,
		Payload: events.TicketsEscalatedPayload{
			Escalations: escalations,
		},
	})
	return result, nil
}

// ManuallyEscalate flags a single ticket at the landlord's or an admin's
// request, outside the SLA timers.
func (s *EscalationService) ManuallyEscalate(ctx context.Context, actor *domain.User, ticketID, reason string) (*domain.Ticket, error) {
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

	landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if actor.Role != domain.UserRoleAdmin && actor.ID != landlordID {
		return nil, apperrors.NewPermissionDenied("landlord or admin required")
	}
	if ticket.Escalated {
		return nil, apperrors.NewFailedPrecondition("ticket already escalated", nil)
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewFailedPrecondition("ticket already closed",
			map[string]any{"status": ticket.Status})
	}
	if reason == "" {
		reason = "manually escalated"
	}

	flagged, err := s.tickets.CommitEscalations(ctx, []repository.EscalationUpdate{
		{TicketID: ticket.ID, Reason: reason},
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if flagged == 0 {
		return nil, apperrors.NewFailedPrecondition("ticket already escalated", nil)
	}

	now := s.now()
	ticket.Escalated = true
	ticket.Meta.EscalationReason = &reason
	ticket.Meta.EscalatedAt = &now

	s.metrics.RecordEscalations(1)
	s.recordEscalation(ctx, ticket, reason, int(now.Sub(ticket.CreatedAt).Minutes()), true)
	s.publishEvent(ctx, actorEvent(actor, events.Event{
		Type: events.EventTicketsEscalated,
		Payload: events.TicketsEscalatedPayload{
			Escalations: []events.EscalatedTicket{{
				TicketID:       ticket.ID,
				LandlordID:     landlordID,
				Urgency:        ticket.UrgencyValue(),
				ElapsedMinutes: int(now.Sub(ticket.CreatedAt).Minutes()),
				Reason:         reason,
			}},
			Manual: true,
		},
	}))
	return ticket, nil
}

type escalationCandidate struct {
	ticket         *domain.Ticket
	reason         string
	elapsedMinutes int
}

// escalationReference picks the timestamp the SLA clock runs from: the
// classification time for tickets awaiting dispatch, the assignment time
// for tickets awaiting acceptance.
func escalationReference(ticket *domain.Ticket) *time.Time {
	switch ticket.Status {
	case domain.TicketStatusReadyToDispatch:
		if ticket.ClassifiedAt != nil {
			return ticket.ClassifiedAt
		}
		return &ticket.CreatedAt
	case domain.TicketStatusPendingAcceptance:
		return ticket.AssignedAt
	default:
		return nil
	}
}

func (s *EscalationService) landlordFor(ctx context.Context, ticket *domain.Ticket) string {
	landlordID, err := s.properties.ResolveLandlord(ctx, ticket.PropertyID)
	if err != nil {
		s.logger.Error("resolve landlord for escalation",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return ""
	}
	return landlordID
}

func (s *EscalationService) recordEscalation(ctx context.Context, ticket *domain.Ticket, reason string, elapsedMinutes int, manual bool) {
	entry := &domain.EscalationLogEntry{
		TicketID:       ticket.ID,
		Reason:         reason,
		Urgency:        ticket.UrgencyValue(),
		ElapsedMinutes: elapsedMinutes,
		Manual:         manual,
	}
	if err := s.history.CreateEscalationEntry(ctx, entry); err != nil {
		s.logger.Error("record escalation log entry",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	history := &domain.TicketHistory{
		TicketID:   ticket.ID,
		ChangeType: domain.ChangeTypeEscalation,
		NewValue: map[string]any{
			"reason": reason,
			"manual": manual,
		},
	}
	if err := s.history.Create(ctx, history); err != nil {
		s.logger.Error("record escalation history",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *EscalationService) publishEvent(ctx context.Context, event events.Event) {
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
