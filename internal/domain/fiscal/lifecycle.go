package fiscal

import (
	"fmt"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// Pasos del ciclo (se registran en FailedStep).
const (
	StepAllocate = "allocate"
	StepBuild    = "build"
	StepSign     = "sign"
	StepAuth     = "auth"
	StepSubmit   = "submit"
	StepTrack    = "track"
)

var transitions = map[entity.DocumentStatus][]entity.DocumentStatus{
	entity.StatusDraft:            {entity.StatusSequenceAssigned, entity.StatusError, entity.StatusCancelled},
	entity.StatusSequenceAssigned: {entity.StatusBuilt, entity.StatusError, entity.StatusCancelled},
	entity.StatusBuilt:            {entity.StatusSigned, entity.StatusError, entity.StatusCancelled},
	entity.StatusSigned:           {entity.StatusSubmitted, entity.StatusError, entity.StatusCancelled},
	entity.StatusSubmitted:        {entity.StatusProcessing, entity.StatusError},
	entity.StatusProcessing:       {entity.StatusAccepted, entity.StatusRejected, entity.StatusError},
	entity.StatusError: {
		entity.StatusDraft, entity.StatusSequenceAssigned, entity.StatusBuilt,
		entity.StatusSigned, entity.StatusProcessing, entity.StatusCancelled,
	},
}

// CanTransition indica si from → to es una arista válida.
func CanTransition(from, to entity.DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition aplica to sobre el documento o devuelve ErrInvalidTransition.
func Transition(doc *entity.FiscalDocument, to entity.DocumentStatus) error {
	if !CanTransition(doc.Status, to) {
		return fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, doc.Status, to)
	}
	if to != entity.StatusError {
		doc.FailedStep = ""
		doc.LastError = ""
		doc.ResumeStatus = ""
	}
	doc.Status = to
	return nil
}

// Fail lleva el documento a Error conservando el último estado completado.
func Fail(doc *entity.FiscalDocument, step string, err error) {
	if doc.Status != entity.StatusError {
		doc.ResumeStatus = lastCompleted(doc.Status)
	}
	doc.Status = entity.StatusError
	doc.FailedStep = step
	if raw := domain.RawMessage(err); raw != "" {
		doc.LastError = raw
	} else if err != nil {
		doc.LastError = err.Error()
	}
}

// un envío interrumpido vuelve al último estado estable: Signed.
func lastCompleted(s entity.DocumentStatus) entity.DocumentStatus {
	if s == entity.StatusSubmitted {
		return entity.StatusSigned
	}
	return s
}

// IsPreSubmission indica si el estado aún admite aborto local.
func IsPreSubmission(s entity.DocumentStatus) bool {
	switch s {
	case entity.StatusDraft, entity.StatusSequenceAssigned, entity.StatusBuilt, entity.StatusSigned:
		return true
	}
	return false
}

// IsSubmitted indica que ya hubo un envío aceptado por el canal (con o sin resultado).
func IsSubmitted(s entity.DocumentStatus) bool {
	switch s {
	case entity.StatusSubmitted, entity.StatusProcessing, entity.StatusAccepted, entity.StatusRejected:
		return true
	}
	return false
}

// StatusForTracking traduce el estado de seguimiento al estado del documento.
func StatusForTracking(s entity.TrackingState) entity.DocumentStatus {
	switch s {
	case entity.TrackingAccepted:
		return entity.StatusAccepted
	case entity.TrackingRejected:
		return entity.StatusRejected
	default:
		return entity.StatusProcessing
	}
}
