// Package lifecycle orquesta el ciclo de vida de un e-CF:
//
//	Draft → SequenceAssigned → Built → Signed → Submitted → Processing → Accepted | Rejected
//
// con Error alcanzable desde cualquier paso y Cancelled solo antes del envío.
// Cada operación sobre un documento corre bajo su lock; ninguna llamada de red
// ocurre mientras se reserva un e-NCF.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
)

// Deps dependencias del coordinador. Mirror, Auth y Submitter pueden ser nil:
// sin Auth/Submitter el envío y la consulta devuelven ErrInvalidCredential.
type Deps struct {
	Documents repository.DocumentRepository
	Artifacts repository.ArtifactRepository
	Tracking  repository.TrackingRepository
	Tx        TxRunner
	Allocator SequenceAllocator
	Builder   XMLRenderer
	Signer    dgii.XMLSigner
	Auth      Authenticator
	Submitter Submitter
	Mirror    ArtifactMirror
	Metrics   *metrics.Collectors
	Logger    zerolog.Logger
}

// PollConfig límites del sondeo por lotes.
type PollConfig struct {
	Concurrency int
	BatchSize   int
}

// Coordinator es el único que modifica FiscalDocument.
type Coordinator struct {
	docs      repository.DocumentRepository
	artifacts repository.ArtifactRepository
	tracking  repository.TrackingRepository
	tx        TxRunner
	allocator SequenceAllocator
	builder   XMLRenderer
	signer    dgii.XMLSigner
	auth      Authenticator
	submitter Submitter
	mirror    ArtifactMirror
	metrics   *metrics.Collectors
	log       zerolog.Logger
	locks     *keyedMutex
	poll      PollConfig
	now       func() time.Time
}

// NewCoordinator construye el coordinador.
func NewCoordinator(d Deps, poll PollConfig) *Coordinator {
	if poll.Concurrency < 1 {
		poll.Concurrency = 4
	}
	if poll.BatchSize < 1 {
		poll.BatchSize = 50
	}
	return &Coordinator{
		docs:      d.Documents,
		artifacts: d.Artifacts,
		tracking:  d.Tracking,
		tx:        d.Tx,
		allocator: d.Allocator,
		builder:   d.Builder,
		signer:    d.Signer,
		auth:      d.Auth,
		submitter: d.Submitter,
		mirror:    d.Mirror,
		metrics:   d.Metrics,
		log:       d.Logger.With().Str("component", "lifecycle").Logger(),
		locks:     newKeyedMutex(),
		poll:      poll,
		now:       time.Now,
	}
}

// rank orden de los estados previos al resultado; -1 para el resto.
func rank(s entity.DocumentStatus) int {
	switch s {
	case entity.StatusDraft:
		return 0
	case entity.StatusSequenceAssigned:
		return 1
	case entity.StatusBuilt:
		return 2
	case entity.StatusSigned:
		return 3
	case entity.StatusSubmitted:
		return 4
	case entity.StatusProcessing:
		return 5
	}
	return -1
}

// ── Registro ─────────────────────────────────────────────────────────────────

// Register guarda el snapshot recibido como Draft. Los totales se recalculan
// a partir de las líneas.
func (c *Coordinator) Register(ctx context.Context, doc *entity.FiscalDocument) (*entity.FiscalDocument, error) {
	if err := validateSnapshot(doc); err != nil {
		return nil, err
	}
	if doc.ExternalRef != "" {
		existing, err := c.docs.GetByExternalRef(ctx, doc.CompanyID, doc.ExternalRef)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, fmt.Errorf("%w: %s ya registrado como %s", domain.ErrDuplicate, doc.ExternalRef, existing.ID)
		}
	}
	doc.ID = ""
	doc.NCF = ""
	doc.Status = entity.StatusDraft
	doc.Totals = fiscal.ComputeTotals(doc.Lines)
	if doc.EmissionAt.IsZero() {
		doc.EmissionAt = c.now()
	}
	if err := c.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	c.metrics.Transition(string(doc.Status))
	c.log.Info().Str("document_id", doc.ID).Str("type", string(doc.TypeCode)).Str("external_ref", doc.ExternalRef).Msg("documento registrado")
	return doc, nil
}

// ReplaceSnapshot reemplaza los datos de negocio antes de construir el XML.
// Si ya hay e-NCF asignado el tipo no puede cambiar.
func (c *Coordinator) ReplaceSnapshot(ctx context.Context, id string, snap *entity.FiscalDocument) (*entity.FiscalDocument, error) {
	if err := validateSnapshot(snap); err != nil {
		return nil, err
	}
	return c.withDocument(ctx, id, func(doc *entity.FiscalDocument) error {
		editable := doc.Status == entity.StatusDraft || doc.Status == entity.StatusSequenceAssigned ||
			(doc.Status == entity.StatusError && rank(doc.ResumeStatus) >= 0 && rank(doc.ResumeStatus) <= 1)
		if !editable {
			return fmt.Errorf("%w: no se puede modificar un documento en %s", domain.ErrInvalidTransition, doc.Status)
		}
		if doc.HasNCF() && snap.TypeCode != doc.TypeCode {
			return fmt.Errorf("%w: el tipo no cambia con e-NCF %s asignado", domain.ErrInvalidInput, doc.NCF)
		}
		doc.TypeCode = snap.TypeCode
		doc.ReferenceNCF = snap.ReferenceNCF
		doc.Issuer = snap.Issuer
		doc.Counterparty = snap.Counterparty
		doc.Lines = snap.Lines
		doc.Totals = fiscal.ComputeTotals(snap.Lines)
		doc.PaymentTerm = snap.PaymentTerm
		doc.DueDate = snap.DueDate
		doc.Notes = snap.Notes
		if !snap.EmissionAt.IsZero() {
			doc.EmissionAt = snap.EmissionAt
		}
		if doc.Status == entity.StatusError {
			if err := fiscal.Transition(doc, doc.ResumeStatus); err != nil {
				return err
			}
		}
		return c.save(ctx, doc, "snapshot reemplazado")
	})
}

func validateSnapshot(doc *entity.FiscalDocument) error {
	switch {
	case doc == nil:
		return fmt.Errorf("%w: documento nulo", domain.ErrInvalidInput)
	case !doc.TypeCode.Valid():
		return fmt.Errorf("%w: tipo de comprobante %q", domain.ErrInvalidInput, doc.TypeCode)
	case doc.CompanyID == "":
		return fmt.Errorf("%w: company_id requerido", domain.ErrInvalidInput)
	case len(doc.Lines) == 0:
		return fmt.Errorf("%w: el documento no tiene líneas", domain.ErrInvalidInput)
	}
	return nil
}

// ── Pasos previos al envío ───────────────────────────────────────────────────

// Finalize asigna el e-NCF (Draft → SequenceAssigned).
func (c *Coordinator) Finalize(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	return c.advanceTo(ctx, id, entity.StatusSequenceAssigned)
}

// Build genera el XML sin firmar, asignando e-NCF si falta.
func (c *Coordinator) Build(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	return c.advanceTo(ctx, id, entity.StatusBuilt)
}

// Sign firma y guarda un artefacto nuevo, ejecutando los pasos pendientes.
func (c *Coordinator) Sign(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	return c.advanceTo(ctx, id, entity.StatusSigned)
}

func (c *Coordinator) advanceTo(ctx context.Context, id string, target entity.DocumentStatus) (*entity.FiscalDocument, error) {
	return c.withDocument(ctx, id, func(doc *entity.FiscalDocument) error {
		if rank(doc.Status) < 0 {
			return fmt.Errorf("%w: documento en %s", domain.ErrInvalidTransition, doc.Status)
		}
		return c.runPreSubmission(ctx, doc, target)
	})
}

// runPreSubmission ejecuta los pasos pendientes hasta target (como máximo Signed).
func (c *Coordinator) runPreSubmission(ctx context.Context, doc *entity.FiscalDocument, target entity.DocumentStatus) error {
	for rank(doc.Status) < rank(target) {
		var err error
		switch doc.Status {
		case entity.StatusDraft:
			err = c.allocate(ctx, doc)
		case entity.StatusSequenceAssigned:
			err = c.build(ctx, doc)
		case entity.StatusBuilt:
			err = c.sign(ctx, doc)
		default:
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) allocate(ctx context.Context, doc *entity.FiscalDocument) error {
	issue, err := c.allocator.AllocateFor(ctx, doc.TypeCode, doc.ID)
	if err != nil {
		return c.fail(ctx, doc, fiscal.StepAllocate, err)
	}
	doc.NCF = issue.NCF
	if err := fiscal.Transition(doc, entity.StatusSequenceAssigned); err != nil {
		return err
	}
	if err := c.save(ctx, doc, "e-NCF asignado"); err != nil {
		// el número ya está consumido; queda trazado en fiscal_sequence_issues con owner_ref
		c.log.Error().Err(err).Str("document_id", doc.ID).Str("ncf", issue.NCF).
			Msg("e-NCF reservado pero el documento no se guardó: debe anularse")
		return err
	}
	return nil
}

func (c *Coordinator) build(ctx context.Context, doc *entity.FiscalDocument) error {
	xml, err := c.builder.BuildBytes(dgii.Payload{Kind: entity.ArtifactECF, Document: doc})
	if err != nil {
		return c.fail(ctx, doc, fiscal.StepBuild, err)
	}
	doc.UnsignedXML = xml
	if err := fiscal.Transition(doc, entity.StatusBuilt); err != nil {
		return err
	}
	return c.save(ctx, doc, "XML generado")
}

func (c *Coordinator) sign(ctx context.Context, doc *entity.FiscalDocument) error {
	if c.signer == nil {
		return c.fail(ctx, doc, fiscal.StepSign, domain.NewError(domain.ErrInvalidCredential, fiscal.StepSign, "", errors.New("no hay certificado configurado")))
	}
	res, err := c.signer.Sign(doc.UnsignedXML)
	if err != nil {
		return c.fail(ctx, doc, fiscal.StepSign, err)
	}
	now := c.now().UTC()
	artifact := &entity.SignedArtifact{
		DocumentID:     doc.ID,
		CompanyID:      doc.CompanyID,
		Kind:           entity.ArtifactECF,
		ReferenceNCF:   doc.NCF,
		RawXML:         doc.UnsignedXML,
		SignedXML:      res.SignedXML,
		SignatureValue: res.SignatureValue,
		SecurityCode:   res.SecurityCode,
		CreatedAt:      now,
	}
	c.mirrorArtifact(ctx, artifact)

	from := doc.Status
	err = c.tx.Run(ctx, func(docs repository.DocumentRepository, artifacts repository.ArtifactRepository, _ repository.TrackingRepository) error {
		if err := artifacts.Create(ctx, artifact); err != nil {
			return err
		}
		doc.SecurityCode = res.SecurityCode
		doc.SignedAt = &now
		if err := fiscal.Transition(doc, entity.StatusSigned); err != nil {
			return err
		}
		return docs.Save(ctx, doc)
	})
	if err != nil {
		return err
	}
	c.logTransition(doc, from, "documento firmado")
	return nil
}

func (c *Coordinator) mirrorArtifact(ctx context.Context, a *entity.SignedArtifact) {
	if c.mirror == nil {
		return
	}
	key, err := c.mirror.Put(ctx, a)
	if err != nil {
		c.log.Warn().Err(err).Str("ncf", a.ReferenceNCF).Msg("no se pudo copiar el XML firmado al almacenamiento externo")
		return
	}
	a.StorageKey = key
}

// ── Envío ────────────────────────────────────────────────────────────────────

// Submit completa los pasos pendientes, abre sesión y envía. Un documento ya
// enviado devuelve ErrAlreadySubmitted sin tocar la secuencia.
func (c *Coordinator) Submit(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	return c.withDocument(ctx, id, func(doc *entity.FiscalDocument) error {
		if fiscal.IsSubmitted(doc.Status) {
			c.metrics.Submission(domain.ErrAlreadySubmitted)
			return domain.NewError(domain.ErrAlreadySubmitted, fiscal.StepSubmit, "",
				fmt.Errorf("documento %s en %s con e-NCF %s", doc.ID, doc.Status, doc.NCF))
		}
		if !fiscal.IsPreSubmission(doc.Status) {
			return fmt.Errorf("%w: documento en %s (usar Retry)", domain.ErrInvalidTransition, doc.Status)
		}
		return c.submitPipeline(ctx, doc)
	})
}

func (c *Coordinator) submitPipeline(ctx context.Context, doc *entity.FiscalDocument) error {
	if err := c.runPreSubmission(ctx, doc, entity.StatusSigned); err != nil {
		return err
	}
	if c.auth == nil || c.submitter == nil {
		return c.fail(ctx, doc, fiscal.StepAuth, domain.NewError(domain.ErrInvalidCredential, fiscal.StepAuth, "", errors.New("credenciales DGII no configuradas")))
	}
	session, err := c.auth.Authenticate(ctx)
	if err != nil {
		return c.fail(ctx, doc, fiscal.StepAuth, err)
	}
	return c.submit(ctx, doc, session)
}

func (c *Coordinator) submit(ctx context.Context, doc *entity.FiscalDocument, session *entity.AuthSession) error {
	artifact, err := c.artifacts.GetLatestByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	if artifact == nil {
		return c.fail(ctx, doc, fiscal.StepSubmit, fmt.Errorf("documento %s firmado sin artefacto", doc.ID))
	}

	// Submitted se persiste antes de salir a la red: un segundo Submit concurrente
	// de otro proceso choca con la versión o ve el estado.
	if err := fiscal.Transition(doc, entity.StatusSubmitted); err != nil {
		return err
	}
	if err := c.save(ctx, doc, "enviando a la DGII"); err != nil {
		return err
	}

	trackID, err := c.submitter.Submit(ctx, artifact.SignedXML, fileName(doc), session)
	c.metrics.Submission(err)
	if err != nil {
		return c.fail(ctx, doc, fiscal.StepSubmit, err)
	}

	from := doc.Status
	err = c.tx.Run(ctx, func(docs repository.DocumentRepository, _ repository.ArtifactRepository, tracking repository.TrackingRepository) error {
		if err := tracking.Upsert(ctx, &entity.TrackingRecord{
			TrackID:      trackID,
			DocumentID:   doc.ID,
			AuthTokenRef: session.Fingerprint(),
			LastState:    entity.TrackingPending,
		}); err != nil {
			return err
		}
		doc.TrackID = trackID
		if err := fiscal.Transition(doc, entity.StatusProcessing); err != nil {
			return err
		}
		return docs.Save(ctx, doc)
	})
	if err != nil {
		c.log.Error().Err(err).Str("document_id", doc.ID).Str("track_id", trackID).Msg("envío aceptado pero no se guardó el TrackID")
		return err
	}
	c.logTransition(doc, from, "recibido por la DGII")
	return nil
}

// fileName nombre del archivo enviado: RNC emisor + e-NCF.
func fileName(doc *entity.FiscalDocument) string {
	return doc.Issuer.RNC + doc.NCF + ".xml"
}

// ── Reintento y aborto ───────────────────────────────────────────────────────

// Retry reanuda un documento en Error desde el último paso completado y
// continúa hasta el envío (o la consulta si ya estaba en Processing).
// Nunca vuelve a asignar un e-NCF ya asignado.
func (c *Coordinator) Retry(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	var track bool
	doc, err := c.withDocument(ctx, id, func(doc *entity.FiscalDocument) error {
		if doc.Status != entity.StatusError {
			return fmt.Errorf("%w: solo se reintenta desde ERROR (estado %s)", domain.ErrInvalidTransition, doc.Status)
		}
		resume := doc.ResumeStatus
		if resume == "" {
			resume = entity.StatusDraft
		}
		if resume == entity.StatusDraft && doc.HasNCF() {
			resume = entity.StatusSequenceAssigned
		}
		c.log.Info().Str("document_id", doc.ID).Str("resume", string(resume)).Str("failed_step", doc.FailedStep).Msg("reintento")
		if err := fiscal.Transition(doc, resume); err != nil {
			return err
		}
		if err := c.save(ctx, doc, "reanudado"); err != nil {
			return err
		}
		if doc.Status == entity.StatusProcessing {
			track = true
			return nil
		}
		return c.submitPipeline(ctx, doc)
	})
	if err != nil || !track {
		return doc, err
	}
	return c.Track(ctx, id)
}

// Abort cancela un documento que no ha salido hacia la DGII. Si tenía e-NCF,
// el número debe reportarse luego en un lote de anulación.
func (c *Coordinator) Abort(ctx context.Context, id, reason string) (*entity.FiscalDocument, error) {
	return c.withDocument(ctx, id, func(doc *entity.FiscalDocument) error {
		abortable := fiscal.IsPreSubmission(doc.Status) ||
			(doc.Status == entity.StatusError && doc.FailedStep != fiscal.StepSubmit && fiscal.IsPreSubmission(doc.ResumeStatus))
		if !abortable {
			return fmt.Errorf("%w: no se puede abortar un documento en %s", domain.ErrInvalidTransition, doc.Status)
		}
		if err := fiscal.Transition(doc, entity.StatusCancelled); err != nil {
			return err
		}
		doc.LastError = reason
		if err := c.save(ctx, doc, "documento cancelado"); err != nil {
			return err
		}
		if doc.HasNCF() {
			c.log.Warn().Str("document_id", doc.ID).Str("ncf", doc.NCF).Msg("e-NCF sin uso: incluir en la próxima anulación")
		}
		return nil
	})
}

// ── Consultas ────────────────────────────────────────────────────────────────

// Get devuelve el documento o ErrNotFound.
func (c *Coordinator) Get(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	doc, err := c.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: documento %s", domain.ErrNotFound, id)
	}
	return doc, nil
}

// LatestArtifact artefacto firmado vigente del documento.
func (c *Coordinator) LatestArtifact(ctx context.Context, id string) (*entity.SignedArtifact, error) {
	a, err := c.artifacts.GetLatestByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: el documento %s no tiene XML firmado", domain.ErrNotFound, id)
	}
	return a, nil
}

// TrackingOf último seguimiento del documento.
func (c *Coordinator) TrackingOf(ctx context.Context, id string) (*entity.TrackingRecord, error) {
	rec, err := c.tracking.GetLatestByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: el documento %s no tiene seguimiento", domain.ErrNotFound, id)
	}
	return rec, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

// withDocument carga el documento bajo su lock y ejecuta fn. Devuelve el
// documento en su último estado aunque fn falle.
func (c *Coordinator) withDocument(ctx context.Context, id string, fn func(doc *entity.FiscalDocument) error) (*entity.FiscalDocument, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	doc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (c *Coordinator) save(ctx context.Context, doc *entity.FiscalDocument, msg string) error {
	if err := c.docs.Save(ctx, doc); err != nil {
		return fmt.Errorf("guardar documento %s: %w", doc.ID, err)
	}
	c.logTransition(doc, "", msg)
	return nil
}

// logTransition from vacío cuando el estado previo ya no se conoce.
func (c *Coordinator) logTransition(doc *entity.FiscalDocument, from entity.DocumentStatus, msg string) {
	c.metrics.Transition(string(doc.Status))
	ev := c.log.Info().
		Str("document_id", doc.ID).
		Str("ncf", doc.NCF).
		Str("status", string(doc.Status))
	if from != "" {
		ev = ev.Str("from", string(from))
	}
	ev.Msg(msg)
}

// fail registra el error en el documento y lo devuelve al llamador.
func (c *Coordinator) fail(ctx context.Context, doc *entity.FiscalDocument, step string, cause error) error {
	from := doc.Status
	fiscal.Fail(doc, step, cause)
	if err := c.docs.Save(ctx, doc); err != nil {
		c.log.Error().Err(err).Str("document_id", doc.ID).Str("step", step).Msg("no se pudo registrar el error del documento")
		return errors.Join(cause, err)
	}
	c.metrics.Transition(string(doc.Status))
	c.log.Warn().
		Err(cause).
		Str("document_id", doc.ID).
		Str("ncf", doc.NCF).
		Str("from", string(from)).
		Str("step", step).
		Str("authority_text", domain.RawMessage(cause)).
		Msg("paso fallido")
	return cause
}
