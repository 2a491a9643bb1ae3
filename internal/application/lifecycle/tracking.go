package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
)

// PollReport resultado de un lote de consultas.
type PollReport struct {
	Polled   int `json:"polled"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
	Failed   int `json:"failed"`
}

// sessionMargin antelación con la que se renueva un token por vencer.
const sessionMargin = 30 * time.Second

// Track consulta el resultado de un documento en Processing con una sesión nueva.
// En documentos ya resueltos devuelve el estado guardado sin llamar a la DGII.
func (c *Coordinator) Track(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status.Terminal() {
		return doc, nil
	}
	if doc.Status != entity.StatusProcessing {
		return doc, fmt.Errorf("%w: documento en %s sin TrackID", domain.ErrInvalidTransition, doc.Status)
	}
	session, err := c.session(ctx)
	if err != nil {
		return doc, err
	}
	doc, _, err = c.trackWithSession(ctx, id, session)
	return doc, err
}

// PollPending consulta un lote de documentos en Processing con una sesión
// compartida, concurrencia acotada y el límite de frecuencia del cliente. El
// lote toma los seguimientos consultados hace más tiempo, así que los
// documentos que siguen pendientes rotan entre lotes.
func (c *Coordinator) PollPending(ctx context.Context) (PollReport, error) {
	var report PollReport
	due, err := c.tracking.ListDue(ctx, c.poll.BatchSize)
	if err != nil {
		return report, err
	}
	if len(due) == 0 {
		return report, nil
	}
	sessions := &batchSession{c: c}
	if _, err := sessions.get(ctx); err != nil {
		return report, err
	}

	p := pool.NewWithResults[entity.TrackingState]().WithMaxGoroutines(c.poll.Concurrency)
	for _, rec := range due {
		id := rec.DocumentID
		p.Go(func() entity.TrackingState {
			session, err := sessions.get(ctx)
			if err != nil {
				c.log.Warn().Err(err).Str("document_id", id).Msg("renovación de sesión fallida")
				return ""
			}
			_, state, err := c.trackWithSession(ctx, id, session)
			if err != nil {
				c.log.Warn().Err(err).Str("document_id", id).Msg("consulta de estado fallida")
				return ""
			}
			return state
		})
	}
	for _, state := range p.Wait() {
		report.Polled++
		switch state {
		case entity.TrackingAccepted:
			report.Accepted++
		case entity.TrackingRejected:
			report.Rejected++
		case entity.TrackingPending:
			report.Pending++
		default:
			report.Failed++
		}
	}
	c.log.Info().
		Int("polled", report.Polled).
		Int("accepted", report.Accepted).
		Int("rejected", report.Rejected).
		Int("pending", report.Pending).
		Int("failed", report.Failed).
		Msg("lote de consultas terminado")
	return report, nil
}

// batchSession sesión compartida por un lote; se renueva cuando está por vencer.
type batchSession struct {
	mu  sync.Mutex
	c   *Coordinator
	cur *entity.AuthSession
}

func (b *batchSession) get(ctx context.Context) (*entity.AuthSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur != nil && !b.cur.Expired(b.c.now().Add(sessionMargin)) {
		return b.cur, nil
	}
	s, err := b.c.session(ctx)
	if err != nil {
		return nil, err
	}
	if b.cur != nil {
		b.c.log.Info().Str("token_ref", s.Fingerprint()).Msg("sesión DGII renovada durante el lote")
	}
	b.cur = s
	return s, nil
}

// RunPoller ejecuta PollPending cada interval hasta que ctx se cancele.
func (c *Coordinator) RunPoller(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.PollPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error().Err(err).Msg("sondeo de documentos pendientes")
			}
		}
	}
}

func (c *Coordinator) session(ctx context.Context) (*entity.AuthSession, error) {
	if c.auth == nil || c.submitter == nil {
		return nil, domain.NewError(domain.ErrInvalidCredential, fiscal.StepAuth, "", errors.New("credenciales DGII no configuradas"))
	}
	return c.auth.Authenticate(ctx)
}

// trackWithSession consulta bajo el lock del documento. Un resultado pendiente
// solo actualiza el TrackingRecord; el documento cambia únicamente con un
// resultado final. Un fallo de consulta queda en LastError del TrackingRecord
// y el documento sigue en Processing para el siguiente lote.
func (c *Coordinator) trackWithSession(ctx context.Context, id string, session *entity.AuthSession) (*entity.FiscalDocument, entity.TrackingState, error) {
	var state entity.TrackingState
	doc, err := c.withDocument(ctx, id, func(doc *entity.FiscalDocument) error {
		if doc.Status != entity.StatusProcessing {
			state = trackingStateOf(doc.Status)
			return nil
		}
		rec, err := c.tracking.GetByTrackID(ctx, doc.TrackID)
		if err != nil {
			return err
		}
		if rec == nil {
			rec = &entity.TrackingRecord{TrackID: doc.TrackID, DocumentID: doc.ID, LastState: entity.TrackingPending}
		}

		rec.AuthTokenRef = session.Fingerprint()
		rec.PollCount++

		result, err := c.submitter.Track(ctx, doc.TrackID, session)
		if err != nil {
			return c.recordTrackFailure(ctx, rec, err)
		}
		state = result.State

		rec.LastState = result.State
		rec.AuthorityState = result.AuthorityState
		rec.Messages = result.Messages

		if !result.State.Terminal() {
			return c.tracking.Upsert(ctx, rec)
		}

		from := doc.Status
		err = c.tx.Run(ctx, func(docs repository.DocumentRepository, _ repository.ArtifactRepository, tracking repository.TrackingRepository) error {
			if err := tracking.Upsert(ctx, rec); err != nil {
				return err
			}
			doc.AuthorityState = result.AuthorityState
			if result.State == entity.TrackingRejected {
				doc.RejectionReason = result.Reason()
			}
			if err := fiscal.Transition(doc, fiscal.StatusForTracking(result.State)); err != nil {
				return err
			}
			return docs.Save(ctx, doc)
		})
		if err != nil {
			return err
		}
		c.logTransition(doc, from, "resultado de la DGII")
		return nil
	})
	return doc, state, err
}

// recordTrackFailure guarda el fallo en el TrackingRecord y devuelve err.
func (c *Coordinator) recordTrackFailure(ctx context.Context, rec *entity.TrackingRecord, err error) error {
	msg := domain.RawMessage(err)
	if msg == "" {
		msg = err.Error()
	}
	at := c.now().UTC()
	rec.LastError = msg
	rec.LastErrorAt = &at
	if uerr := c.tracking.Upsert(ctx, rec); uerr != nil {
		return errors.Join(err, fmt.Errorf("guardar fallo de consulta: %w", uerr))
	}
	return err
}

func trackingStateOf(s entity.DocumentStatus) entity.TrackingState {
	switch s {
	case entity.StatusAccepted:
		return entity.TrackingAccepted
	case entity.StatusRejected:
		return entity.TrackingRejected
	}
	return entity.TrackingPending
}
