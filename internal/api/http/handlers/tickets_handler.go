package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/propagentic/maintenance-service/internal/api/dto"
	"github.com/propagentic/maintenance-service/internal/auth"
	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/service"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
	escalations *service.EscalationService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignments *service.AssignmentService, escalations *service.EscalationService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignments: assignments, escalations: escalations}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}

	ticket, err := h.tickets.SubmitTicket(c.UserContext(), user, req.PropertyID, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var statuses []domain.TicketStatus
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)

	tickets, err := h.tickets.ListTickets(c.UserContext(), user, statuses, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetHistory GET /tickets/:id/history.
func (h *TicketsHandler) GetHistory(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.GetHistory(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ActorID:    entry.ActorID,
			ActorRole:  entry.ActorRole,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	if req.ContractorID == "" {
		return apperrors.NewInvalidArgument("contractor_id required", nil)
	}
	ticket, err := h.assignments.AssignTicket(c.UserContext(), user, c.Params("id"), req.ContractorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AcceptTicket POST /tickets/:id/accept.
func (h *TicketsHandler) AcceptTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.AcceptTicket(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// RejectTicket POST /tickets/:id/reject.
func (h *TicketsHandler) RejectTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.RejectTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	outcome, err := h.assignments.RejectTicket(c.UserContext(), user, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RejectTicketResponse{
		Status:             outcome.Status,
		FallbackContractor: outcome.FallbackContractor,
	}})
}

// StartWork POST /tickets/:id/start.
func (h *TicketsHandler) StartWork(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.StartWork(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CompleteTicket POST /tickets/:id/complete.
func (h *TicketsHandler) CompleteTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignments.CompleteTicket(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CancelTicket POST /tickets/:id/cancel.
func (h *TicketsHandler) CancelTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.CancelTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	ticket, err := h.assignments.CancelTicket(c.UserContext(), user, c.Params("id"), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// EscalateTicket POST /tickets/:id/escalate.
func (h *TicketsHandler) EscalateTicket(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.EscalateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewInvalidArgument("invalid payload", nil)
	}
	ticket, err := h.escalations.ManuallyEscalate(c.UserContext(), user, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthenticated("user required")
	}
	return principal.User, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                     ticket.ID,
		Description:            ticket.Description,
		Category:               ticket.Category,
		Urgency:                ticket.Urgency,
		Status:                 ticket.Status,
		PropertyID:             ticket.PropertyID,
		SubmittedBy:            ticket.SubmittedBy,
		AssignedTo:             ticket.AssignedTo,
		RecommendedContractors: ticket.RecommendedContractors,
		Escalated:              ticket.Escalated,
		EscalationReason:       ticket.Meta.EscalationReason,
		RejectionCount:         ticket.Meta.RejectionCount,
		CreatedAt:              ticket.CreatedAt,
		UpdatedAt:              ticket.UpdatedAt,
		ClassifiedAt:           ticket.ClassifiedAt,
		AssignedAt:             ticket.AssignedAt,
		AcceptedAt:             ticket.AcceptedAt,
		CompletedAt:            ticket.CompletedAt,
	}
}
