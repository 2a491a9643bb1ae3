package http

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// SequenceAdmin administración de rangos autorizados (lo implementa *sequence.Allocator).
type SequenceAdmin interface {
	Counters(ctx context.Context) ([]*entity.FiscalSequenceCounter, error)
	RegisterRange(ctx context.Context, c *entity.FiscalSequenceCounter) error
	ExtendRange(ctx context.Context, typeCode ecf.DocumentType, upperBound int64) error
}

// SequenceHandler maneja los rangos de e-NCF (protegido).
type SequenceHandler struct {
	admin SequenceAdmin
}

// NewSequenceHandler construye el handler.
func NewSequenceHandler(admin SequenceAdmin) *SequenceHandler {
	return &SequenceHandler{admin: admin}
}

// List estado de los rangos.
// GET /api/sequences
func (h *SequenceHandler) List(c *fiber.Ctx) error {
	counters, err := h.admin.Counters(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(lo.Map(counters, func(sc *entity.FiscalSequenceCounter, _ int) dto.SequenceCounterResponse {
		return dto.NewSequenceCounterResponse(sc)
	}))
}

// Register alta de un rango autorizado por la DGII.
// POST /api/sequences
func (h *SequenceHandler) Register(c *fiber.Ctx) error {
	var in dto.RegisterRangeRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	t := ecf.DocumentType(in.TypeCode)
	if !t.Valid() || in.UpperBound <= 0 || in.LastIssued < 0 || in.LastIssued > in.UpperBound {
		return respondError(c, fmt.Errorf("%w: tipo o límites del rango", domain.ErrInvalidInput))
	}
	counter := &entity.FiscalSequenceCounter{
		TypeCode:   t,
		LastIssued: in.LastIssued,
		UpperBound: in.UpperBound,
		ValidUntil: in.ValidUntil,
	}
	if err := h.admin.RegisterRange(c.Context(), counter); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewSequenceCounterResponse(counter))
}

// Extend amplía el límite superior de un tipo.
// PATCH /api/sequences/:type
func (h *SequenceHandler) Extend(c *fiber.Ctx) error {
	var in dto.ExtendRangeRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	t := ecf.DocumentType(c.Params("type"))
	if !t.Valid() {
		return respondError(c, fmt.Errorf("%w: tipo de comprobante %q", domain.ErrInvalidInput, t))
	}
	if err := h.admin.ExtendRange(c.Context(), t, in.UpperBound); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
