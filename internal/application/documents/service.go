// Package documents emite los artefactos que no siguen el ciclo de un e-CF
// propio (aprobación comercial, acuse de recibo, anulación de secuencias y
// resumen de consumo) y la representación impresa de los documentos firmados.
package documents

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// Deps dependencias del servicio. Mirror y PDF pueden ser nil.
type Deps struct {
	Documents repository.DocumentRepository
	Artifacts repository.ArtifactRepository
	Builder   XMLRenderer
	Signer    dgii.XMLSigner
	Mirror    Mirror
	PDF       PDFRenderer
	Logger    zerolog.Logger
}

// Service emite artefactos firmados y representaciones.
type Service struct {
	docs      repository.DocumentRepository
	artifacts repository.ArtifactRepository
	builder   XMLRenderer
	signer    dgii.XMLSigner
	mirror    Mirror
	pdf       PDFRenderer
	log       zerolog.Logger
	now       func() time.Time
}

// NewService construye el servicio.
func NewService(d Deps) *Service {
	return &Service{
		docs:      d.Documents,
		artifacts: d.Artifacts,
		builder:   d.Builder,
		signer:    d.Signer,
		mirror:    d.Mirror,
		pdf:       d.PDF,
		log:       d.Logger.With().Str("component", "documents").Logger(),
		now:       time.Now,
	}
}

// ── Emisión ──────────────────────────────────────────────────────────────────

// IssueApproval firma una aprobación o rechazo comercial de un e-CF recibido.
func (s *Service) IssueApproval(ctx context.Context, companyID string, a *entity.CommercialApproval) (*entity.SignedArtifact, error) {
	if a != nil && a.At.IsZero() {
		a.At = s.now()
	}
	ref := ""
	if a != nil {
		ref = a.NCF
	}
	return s.issue(ctx, companyID, ref, dgii.Payload{Kind: entity.ArtifactApproval, Approval: a})
}

// IssueAcknowledgment firma un acuse de recibo.
func (s *Service) IssueAcknowledgment(ctx context.Context, companyID string, a *entity.ReceiptAcknowledgment) (*entity.SignedArtifact, error) {
	if a != nil && a.At.IsZero() {
		a.At = s.now()
	}
	ref := ""
	if a != nil {
		ref = a.NCF
	}
	return s.issue(ctx, companyID, ref, dgii.Payload{Kind: entity.ArtifactAcknowledgment, Acknowledgment: a})
}

// IssueCancellation firma un lote de anulación con rangos ya armados.
func (s *Service) IssueCancellation(ctx context.Context, companyID string, b *entity.CancellationBatch) (*entity.SignedArtifact, error) {
	if b != nil && b.GeneratedAt.IsZero() {
		b.GeneratedAt = s.now()
	}
	return s.issue(ctx, companyID, "", dgii.Payload{Kind: entity.ArtifactCancellation, Cancellation: b})
}

// CancelNumbers agrupa e-NCF sueltos en rangos continuos por tipo y firma el lote.
func (s *Service) CancelNumbers(ctx context.Context, companyID, issuerRNC string, ncfs []string) (*entity.SignedArtifact, error) {
	ranges, err := GroupRanges(ncfs)
	if err != nil {
		return nil, err
	}
	return s.IssueCancellation(ctx, companyID, &entity.CancellationBatch{
		IssuerRNC:   issuerRNC,
		GeneratedAt: s.now(),
		Ranges:      ranges,
	})
}

// IssueDailySummary resume las facturas de consumo emitidas en el día (hora de
// Santo Domingo). Los documentos cancelados o rechazados no se incluyen.
func (s *Service) IssueDailySummary(ctx context.Context, companyID, issuerRNC string, day time.Time) (*entity.SignedArtifact, error) {
	docs, err := s.docs.ListIssuedOn(ctx, companyID, ecf.TypeConsumo, day)
	if err != nil {
		return nil, err
	}
	docs = lo.Filter(docs, func(d *entity.FiscalDocument, _ int) bool {
		return d.HasNCF() && d.Status != entity.StatusCancelled && d.Status != entity.StatusRejected
	})
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no hay facturas de consumo emitidas el %s", domain.ErrInvalidInput, ecf.FormatDate(day))
	}
	entries := lo.Map(docs, func(d *entity.FiscalDocument, _ int) entity.SummaryEntry {
		t := fiscal.ComputeTotals(d.Lines)
		return entity.SummaryEntry{NCF: d.NCF, Untaxed: t.Untaxed, Tax: t.Tax, Total: t.Total}
	})
	return s.issue(ctx, companyID, "", dgii.Payload{
		Kind:    entity.ArtifactSummary,
		Summary: &entity.ConsumerSummary{IssuerRNC: issuerRNC, Date: day, Entries: entries},
	})
}

// issue construye, firma y guarda. Cada llamada produce un artefacto nuevo.
func (s *Service) issue(ctx context.Context, companyID, ref string, p dgii.Payload) (*entity.SignedArtifact, error) {
	if companyID == "" {
		return nil, fmt.Errorf("%w: company_id requerido", domain.ErrInvalidInput)
	}
	if s.signer == nil {
		return nil, domain.NewError(domain.ErrInvalidCredential, fiscal.StepSign, "", fmt.Errorf("no hay certificado configurado"))
	}
	raw, err := s.builder.BuildBytes(p)
	if err != nil {
		return nil, err
	}
	res, err := s.signer.Sign(raw)
	if err != nil {
		return nil, err
	}
	a := &entity.SignedArtifact{
		CompanyID:      companyID,
		Kind:           p.Kind,
		ReferenceNCF:   ref,
		RawXML:         raw,
		SignedXML:      res.SignedXML,
		SignatureValue: res.SignatureValue,
		SecurityCode:   res.SecurityCode,
		CreatedAt:      s.now().UTC(),
	}
	if s.mirror != nil {
		if key, err := s.mirror.Put(ctx, a); err != nil {
			s.log.Warn().Err(err).Str("kind", a.Kind).Msg("no se pudo copiar el XML firmado al almacenamiento externo")
		} else {
			a.StorageKey = key
		}
	}
	if err := s.artifacts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("artifact_id", a.ID).
		Str("kind", a.Kind).
		Str("ncf", ref).
		Str("security_code", a.SecurityCode).
		Msg("artefacto firmado")
	return a, nil
}

// GroupRanges ordena y agrupa e-NCF en rangos continuos del mismo tipo.
// Los repetidos se ignoran.
func GroupRanges(ncfs []string) ([]entity.CancelledRange, error) {
	type parsed struct {
		t ecf.DocumentType
		n int64
	}
	var items []parsed
	for _, raw := range lo.Uniq(ncfs) {
		t, n, err := ecf.ParseNCF(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		items = append(items, parsed{t, n})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no hay e-NCF para anular", domain.ErrInvalidInput)
	}

	byType := lo.GroupBy(items, func(p parsed) ecf.DocumentType { return p.t })
	types := lo.Keys(byType)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var out []entity.CancelledRange
	for _, t := range types {
		nums := lo.Map(byType[t], func(p parsed, _ int) int64 { return p.n })
		sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
		start := nums[0]
		for i := 1; i <= len(nums); i++ {
			if i < len(nums) && nums[i] == nums[i-1]+1 {
				continue
			}
			end := nums[i-1]
			from, _ := ecf.FormatNCF(t, start)
			to, _ := ecf.FormatNCF(t, end)
			out = append(out, entity.CancelledRange{TypeCode: t, From: from, To: to, Count: int(end - start + 1)})
			if i < len(nums) {
				start = nums[i]
			}
		}
	}
	return out, nil
}

// ── Consultas y representación ───────────────────────────────────────────────

// Artifacts lista los artefactos de la empresa, los más recientes primero.
func (s *Service) Artifacts(ctx context.Context, companyID, kind string, limit int) ([]*entity.SignedArtifact, error) {
	return s.artifacts.ListByCompany(ctx, companyID, kind, limit)
}

// Artifact devuelve un artefacto de la empresa.
func (s *Service) Artifact(ctx context.Context, companyID, id string) (*entity.SignedArtifact, error) {
	a, err := s.artifacts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.ErrNotFound
	}
	if a.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	return a, nil
}

// QR carga útil del código QR de un documento firmado.
func (s *Service) QR(ctx context.Context, companyID, documentID string) (fiscal.QRPayload, error) {
	doc, err := s.signedDocument(ctx, companyID, documentID)
	if err != nil {
		return fiscal.QRPayload{}, err
	}
	return fiscal.NewQRPayload(doc), nil
}

// PDF genera la representación impresa y el nombre de archivo sugerido.
func (s *Service) PDF(ctx context.Context, companyID, documentID string) ([]byte, string, error) {
	if s.pdf == nil {
		return nil, "", fmt.Errorf("pdf: generador no configurado")
	}
	doc, err := s.signedDocument(ctx, companyID, documentID)
	if err != nil {
		return nil, "", err
	}
	out, err := s.pdf.Render(doc, fiscal.NewQRPayload(doc))
	if err != nil {
		return nil, "", fmt.Errorf("pdf: generación fallida: %w", err)
	}
	return out, fmt.Sprintf("%s%s.pdf", doc.Issuer.RNC, doc.NCF), nil
}

// signedDocument solo hay representación después de la firma.
func (s *Service) signedDocument(ctx context.Context, companyID, id string) (*entity.FiscalDocument, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	if doc.CompanyID != companyID {
		return nil, domain.ErrForbidden
	}
	if doc.SecurityCode == "" {
		return nil, fmt.Errorf("%w: el documento está en %s, espere a que sea firmado", domain.ErrInvalidInput, doc.Status)
	}
	return doc, nil
}
