package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// ArtifactIssuer emisión y consulta de artefactos firmados (lo implementa *documents.Service).
type ArtifactIssuer interface {
	IssueApproval(ctx context.Context, companyID string, a *entity.CommercialApproval) (*entity.SignedArtifact, error)
	IssueAcknowledgment(ctx context.Context, companyID string, a *entity.ReceiptAcknowledgment) (*entity.SignedArtifact, error)
	CancelNumbers(ctx context.Context, companyID, issuerRNC string, ncfs []string) (*entity.SignedArtifact, error)
	IssueDailySummary(ctx context.Context, companyID, issuerRNC string, day time.Time) (*entity.SignedArtifact, error)
	Artifacts(ctx context.Context, companyID, kind string, limit int) ([]*entity.SignedArtifact, error)
	Artifact(ctx context.Context, companyID, id string) (*entity.SignedArtifact, error)
}

// Presigner URL temporal de un objeto del espejo (lo implementa *storage.S3Mirror).
type Presigner interface {
	PresignURL(ctx context.Context, key string) (string, error)
}

// ArtifactHandler maneja aprobaciones, acuses, anulaciones y resúmenes (protegido).
type ArtifactHandler struct {
	issuer  ArtifactIssuer
	presign Presigner
}

// NewArtifactHandler construye el handler. presign puede ser nil.
func NewArtifactHandler(issuer ArtifactIssuer, presign Presigner) *ArtifactHandler {
	return &ArtifactHandler{issuer: issuer, presign: presign}
}

// Approve firma una aprobación o rechazo comercial.
// POST /api/artifacts/approvals
func (h *ArtifactHandler) Approve(c *fiber.Ctx) error {
	var in dto.ApprovalRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	a, err := h.issuer.IssueApproval(c.Context(), GetCompanyID(c), in.ToEntity())
	return h.created(c, a, err)
}

// Acknowledge firma un acuse de recibo.
// POST /api/artifacts/acknowledgments
func (h *ArtifactHandler) Acknowledge(c *fiber.Ctx) error {
	var in dto.AcknowledgmentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	a, err := h.issuer.IssueAcknowledgment(c.Context(), GetCompanyID(c), in.ToEntity())
	return h.created(c, a, err)
}

// Cancel firma un lote de anulación de e-NCF sin uso.
// POST /api/artifacts/cancellations
func (h *ArtifactHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancellationRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	a, err := h.issuer.CancelNumbers(c.Context(), GetCompanyID(c), in.IssuerRNC, in.NCFs)
	return h.created(c, a, err)
}

// Summarize firma el resumen diario de facturas de consumo.
// POST /api/artifacts/summaries
func (h *ArtifactHandler) Summarize(c *fiber.Ctx) error {
	var in dto.SummaryRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	day, err := time.ParseInLocation("2006-01-02", in.Date, ecf.Location)
	if err != nil {
		return respondError(c, fmt.Errorf("%w: date debe tener formato yyyy-mm-dd", domain.ErrInvalidInput))
	}
	a, err := h.issuer.IssueDailySummary(c.Context(), GetCompanyID(c), in.IssuerRNC, day)
	return h.created(c, a, err)
}

// List artefactos de la empresa; ?kind=ACECF&limit=20.
// GET /api/artifacts
func (h *ArtifactHandler) List(c *fiber.Ctx) error {
	page := dto.PageRequest{Limit: c.QueryInt("limit", 20)}
	page.DefaultPage()
	items, err := h.issuer.Artifacts(c.Context(), GetCompanyID(c), c.Query("kind"), page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"items": lo.Map(items, func(a *entity.SignedArtifact, _ int) dto.ArtifactResponse { return dto.NewArtifactResponse(a) }),
		"page":  dto.PageResponse{Limit: page.Limit, Total: len(items)},
	})
}

// Get metadatos del artefacto.
// GET /api/artifacts/:id
func (h *ArtifactHandler) Get(c *fiber.Ctx) error {
	a, err := h.issuer.Artifact(c.Context(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewArtifactResponse(a))
}

// XML descarga el XML firmado.
// GET /api/artifacts/:id/xml
func (h *ArtifactHandler) XML(c *fiber.Ctx) error {
	a, err := h.issuer.Artifact(c.Context(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	name := a.ReferenceNCF
	if name == "" {
		name = a.Kind + "-" + a.ID
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`.xml"`)
	return c.Send(a.SignedXML)
}

// URL enlace temporal de descarga desde el almacenamiento externo.
// GET /api/artifacts/:id/url
func (h *ArtifactHandler) URL(c *fiber.Ctx) error {
	a, err := h.issuer.Artifact(c.Context(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	if h.presign == nil || a.StorageKey == "" {
		return respondError(c, fmt.Errorf("%w: el artefacto no está en almacenamiento externo", domain.ErrNotFound))
	}
	url, err := h.presign.PresignURL(c.Context(), a.StorageKey)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

func (h *ArtifactHandler) created(c *fiber.Ctx, a *entity.SignedArtifact, err error) error {
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewArtifactResponse(a))
}
