package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/application/lifecycle"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
)

// DocumentLifecycle operaciones del ciclo e-CF (lo implementa *lifecycle.Coordinator).
type DocumentLifecycle interface {
	Register(ctx context.Context, doc *entity.FiscalDocument) (*entity.FiscalDocument, error)
	ReplaceSnapshot(ctx context.Context, id string, snap *entity.FiscalDocument) (*entity.FiscalDocument, error)
	Finalize(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Build(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Sign(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Submit(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Track(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Retry(ctx context.Context, id string) (*entity.FiscalDocument, error)
	Abort(ctx context.Context, id, reason string) (*entity.FiscalDocument, error)
	Get(ctx context.Context, id string) (*entity.FiscalDocument, error)
	LatestArtifact(ctx context.Context, id string) (*entity.SignedArtifact, error)
	TrackingOf(ctx context.Context, id string) (*entity.TrackingRecord, error)
	PollPending(ctx context.Context) (lifecycle.PollReport, error)
}

// Representation QR y PDF de documentos firmados (lo implementa *documents.Service).
type Representation interface {
	QR(ctx context.Context, companyID, documentID string) (fiscal.QRPayload, error)
	PDF(ctx context.Context, companyID, documentID string) ([]byte, string, error)
}

// DocumentHandler maneja el ciclo de vida de los e-CF (protegido).
type DocumentHandler struct {
	lc  DocumentLifecycle
	rep Representation
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(lc DocumentLifecycle, rep Representation) *DocumentHandler {
	return &DocumentHandler{lc: lc, rep: rep}
}

// Register recibe el snapshot del sistema contable.
// POST /api/documents
func (h *DocumentHandler) Register(c *fiber.Ctx) error {
	var in dto.DocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	doc, err := h.lc.Register(c.Context(), in.ToEntity(GetCompanyID(c)))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewDocumentResponse(doc))
}

// Get estado actual del documento.
// GET /api/documents/:id
func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	doc, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Replace reemplaza el snapshot mientras no se haya generado el XML.
// PUT /api/documents/:id
func (h *DocumentHandler) Replace(c *fiber.Ctx) error {
	doc, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	var in dto.DocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	updated, err := h.lc.ReplaceSnapshot(c.Context(), doc.ID, in.ToEntity(doc.CompanyID))
	if err != nil {
		return respondOperationError(c, updated, err)
	}
	return c.JSON(dto.NewDocumentResponse(updated))
}

// Finalize asigna el e-NCF.
// POST /api/documents/:id/finalize
func (h *DocumentHandler) Finalize(c *fiber.Ctx) error { return h.step(c, h.lc.Finalize) }

// Build genera el XML sin firmar.
// POST /api/documents/:id/build
func (h *DocumentHandler) Build(c *fiber.Ctx) error { return h.step(c, h.lc.Build) }

// Sign firma el documento.
// POST /api/documents/:id/sign
func (h *DocumentHandler) Sign(c *fiber.Ctx) error { return h.step(c, h.lc.Sign) }

// Submit ejecuta los pasos pendientes y envía a la DGII.
// POST /api/documents/:id/submit
func (h *DocumentHandler) Submit(c *fiber.Ctx) error { return h.step(c, h.lc.Submit) }

// Track consulta el resultado en la DGII.
// POST /api/documents/:id/track
func (h *DocumentHandler) Track(c *fiber.Ctx) error { return h.step(c, h.lc.Track) }

// Retry reanuda un documento en ERROR.
// POST /api/documents/:id/retry
func (h *DocumentHandler) Retry(c *fiber.Ctx) error { return h.step(c, h.lc.Retry) }

// Abort cancela un documento que no ha salido hacia la DGII.
// POST /api/documents/:id/abort
func (h *DocumentHandler) Abort(c *fiber.Ctx) error {
	var in dto.AbortRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	return h.step(c, func(ctx context.Context, id string) (*entity.FiscalDocument, error) {
		return h.lc.Abort(ctx, id, in.Reason)
	})
}

// SignedXML descarga el último XML firmado.
// GET /api/documents/:id/xml
func (h *DocumentHandler) SignedXML(c *fiber.Ctx) error {
	doc, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	a, err := h.lc.LatestArtifact(c.Context(), doc.ID)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+doc.Issuer.RNC+doc.NCF+`.xml"`)
	return c.Send(a.SignedXML)
}

// Tracking último seguimiento del documento.
// GET /api/documents/:id/tracking
func (h *DocumentHandler) Tracking(c *fiber.Ctx) error {
	doc, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	rec, err := h.lc.TrackingOf(c.Context(), doc.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewTrackingResponse(rec))
}

// QR carga útil del código QR.
// GET /api/documents/:id/qr
func (h *DocumentHandler) QR(c *fiber.Ctx) error {
	qr, err := h.rep.QR(c.Context(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payload": qr, "content": qr.String()})
}

// PDF representación impresa.
// GET /api/documents/:id/pdf
func (h *DocumentHandler) PDF(c *fiber.Ctx) error {
	out, name, err := h.rep.PDF(c.Context(), GetCompanyID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+name+`"`)
	return c.Send(out)
}

// Poll resuelve un lote de documentos en PROCESSING.
// POST /api/tracking/poll
func (h *DocumentHandler) Poll(c *fiber.Ctx) error {
	report, err := h.lc.PollPending(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// step ejecuta una operación del ciclo sobre un documento de la empresa del token.
func (h *DocumentHandler) step(c *fiber.Ctx, op func(ctx context.Context, id string) (*entity.FiscalDocument, error)) error {
	doc, err := h.owned(c)
	if err != nil {
		return respondError(c, err)
	}
	updated, err := op(c.Context(), doc.ID)
	if err != nil {
		return respondOperationError(c, updated, err)
	}
	return c.JSON(dto.NewDocumentResponse(updated))
}

// owned carga el documento de :id y verifica que pertenezca a la empresa del token.
func (h *DocumentHandler) owned(c *fiber.Ctx) (*entity.FiscalDocument, error) {
	doc, err := h.lc.Get(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if doc.CompanyID != GetCompanyID(c) {
		return nil, domain.ErrForbidden
	}
	return doc, nil
}
