package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/propagentic/maintenance-service/internal/api/dto"
	"github.com/propagentic/maintenance-service/internal/observability"
	"github.com/propagentic/maintenance-service/internal/service"
)

// AdminHandler exposes operational endpoints for administrators.
type AdminHandler struct {
	escalations *service.EscalationService
	metrics     *observability.Metrics
}

// NewAdminHandler constructs handler.
func NewAdminHandler(escalations *service.EscalationService, metrics *observability.Metrics) *AdminHandler {
	return &AdminHandler{escalations: escalations, metrics: metrics}
}

// TriggerSweep POST /admin/escalation-sweep.
func (h *AdminHandler) TriggerSweep(c *fiber.Ctx) error {
	result, err := h.escalations.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Scanned:   result.Scanned,
		Escalated: result.Escalated,
		Skipped:   result.Skipped,
	}})
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
