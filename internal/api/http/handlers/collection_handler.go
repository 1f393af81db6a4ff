package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-engine/internal/api/dto"
	"github.com/spec-kit/crm-engine/internal/auth"
	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/service"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// CollectionHandler exposes the collection workflow endpoints.
type CollectionHandler struct {
	service *service.CollectionService
}

// NewCollectionHandler constructs handler.
func NewCollectionHandler(collectionService *service.CollectionService) *CollectionHandler {
	return &CollectionHandler{service: collectionService}
}

// RegisterAction POST /tickets/:id/collection/actions.
func (h *CollectionHandler) RegisterAction(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.RegisterActionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	action := domain.CollectionAction{
		Type:           req.Type,
		Result:         req.Result,
		Notes:          req.Notes,
		PromisedFor:    req.PromisedFor,
		PromisedAmount: req.PromisedAmount,
	}
	ticket, err := h.service.RegisterAction(c.UserContext(), principal.Agent.ID, c.Params("id"), action)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// RegisterAgreement POST /tickets/:id/collection/agreement.
func (h *CollectionHandler) RegisterAgreement(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.RegisterAgreementRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	agreement := domain.Agreement{
		Value:         req.Value,
		Installments:  req.Installments,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Date != nil {
		agreement.Date = *req.Date
	}
	ticket, err := h.service.RegisterAgreement(c.UserContext(), principal.Agent.ID, c.Params("id"), agreement)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// EffectivateAgreement POST /tickets/:id/collection/effectivate.
func (h *CollectionHandler) EffectivateAgreement(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	ticket, err := h.service.EffectivateAgreement(c.UserContext(), principal.Agent.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}
