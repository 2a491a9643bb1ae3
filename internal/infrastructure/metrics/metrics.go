// Package metrics expone los contadores Prometheus del ciclo e-CF.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/ecf-dgii/internal/domain"
)

// Collectors agrupa las métricas. Todos los métodos aceptan receptor nil.
type Collectors struct {
	allocations   *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	trackingPolls *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	authority     *prometheus.HistogramVec
}

// New crea y registra las métricas en reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecf_sequence_allocations_total",
			Help: "e-NCF allocations by document type and result.",
		}, []string{"type", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecf_submissions_total",
			Help: "Document submissions to the tax authority by result.",
		}, []string{"result"}),
		trackingPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecf_tracking_polls_total",
			Help: "Tracking polls by mapped state.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecf_document_transitions_total",
			Help: "Lifecycle transitions by target status.",
		}, []string{"status"}),
		authority: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecf_authority_request_duration_seconds",
			Help:    "Latency of tax authority calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(c.allocations, c.submissions, c.trackingPolls, c.transitions, c.authority)
	return c
}

// Handler expone el registro por defecto.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Allocation registra una asignación de e-NCF.
func (c *Collectors) Allocation(typeCode string, err error) {
	if c == nil {
		return
	}
	c.allocations.WithLabelValues(typeCode, Result(err)).Inc()
}

// Submission registra un envío.
func (c *Collectors) Submission(err error) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(Result(err)).Inc()
}

// TrackingPoll registra una consulta de estado ya mapeada.
func (c *Collectors) TrackingPoll(state string) {
	if c == nil {
		return
	}
	c.trackingPolls.WithLabelValues(state).Inc()
}

// Transition registra la llegada a un estado.
func (c *Collectors) Transition(status string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(status).Inc()
}

// Authority mide una llamada a la DGII iniciada en start.
func (c *Collectors) Authority(operation string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.authority.WithLabelValues(operation, Result(err)).Observe(time.Since(start).Seconds())
}

// Result etiqueta corta de la clase de error.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSequenceExhausted):
		return "sequence_exhausted"
	case errors.Is(err, domain.ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, domain.ErrAuthUnavailable):
		return "auth_unavailable"
	case errors.Is(err, domain.ErrSubmissionRejected):
		return "submission_rejected"
	case errors.Is(err, domain.ErrCredentialRejected):
		return "credential_rejected"
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
