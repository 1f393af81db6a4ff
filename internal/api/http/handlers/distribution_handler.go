package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-engine/internal/api/dto"
	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/service"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// DistributionHandler exposes queue and rule administration.
type DistributionHandler struct {
	service *service.DistributionAdminService
}

// NewDistributionHandler constructs handler.
func NewDistributionHandler(adminService *service.DistributionAdminService) *DistributionHandler {
	return &DistributionHandler{service: adminService}
}

// ListQueues GET /queues.
func (h *DistributionHandler) ListQueues(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active_only", false)
	queues, err := h.service.ListQueues(c.UserContext(), activeOnly)
	if err != nil {
		return err
	}
	items := make([]dto.QueueResponse, 0, len(queues))
	for i := range queues {
		items = append(items, queueResponse(&queues[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetRule GET /queues/:id/distribution-rule.
func (h *DistributionHandler) GetRule(c *fiber.Ctx) error {
	rule, err := h.service.GetRule(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

// SaveRule PUT /queues/:id/distribution-rule.
func (h *DistributionHandler) SaveRule(c *fiber.Ctx) error {
	var req dto.SaveDistributionRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	rule, err := h.service.SaveRule(c.UserContext(), c.Params("id"), service.RuleInput{
		Enabled:              req.Enabled,
		Type:                 req.Type,
		ConsiderCapacity:     req.ConsiderCapacity,
		ConsiderOnlineStatus: req.ConsiderOnlineStatus,
		AutoAssign:           req.AutoAssign,
		WorkingHoursOnly:     req.WorkingHoursOnly,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ruleResponse(rule)})
}

func queueResponse(queue *domain.Queue) dto.QueueResponse {
	return dto.QueueResponse{
		ID:        queue.ID,
		Name:      queue.Name,
		Role:      queue.Role,
		Active:    queue.Active,
		CreatedAt: queue.CreatedAt,
	}
}

func ruleResponse(rule *domain.DistributionRule) dto.DistributionRuleResponse {
	sequence := rule.AgentSequence
	if sequence == nil {
		sequence = []string{}
	}
	return dto.DistributionRuleResponse{
		ID:                   rule.ID,
		QueueID:              rule.QueueID,
		Enabled:              rule.Enabled,
		Type:                 rule.Type,
		ConsiderCapacity:     rule.ConsiderCapacity,
		ConsiderOnlineStatus: rule.ConsiderOnlineStatus,
		AutoAssign:           rule.AutoAssign,
		WorkingHoursOnly:     rule.WorkingHoursOnly,
		AgentSequence:        sequence,
		LastAssignedAgentID:  rule.LastAssignedAgentID,
		UpdatedAt:            rule.UpdatedAt,
	}
}
