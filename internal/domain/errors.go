package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrDuplicate    = errors.New("recurso duplicado")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrConflict     = errors.New("conflicto con el estado actual")
)

// Taxonomía de fallos del ciclo de vida e-CF.
var (
	ErrSequenceExhausted  = errors.New("secuencia de e-NCF agotada")
	ErrSchemaViolation    = errors.New("documento no cumple el esquema e-CF")
	ErrInvalidCredential  = errors.New("certificado o llave privada inválidos")
	ErrAuthUnavailable    = errors.New("servicio de autenticación DGII no disponible")
	ErrSubmissionRejected = errors.New("envío rechazado por la DGII")
	ErrCredentialRejected = errors.New("credencial rechazada por la DGII")
	ErrAlreadySubmitted   = errors.New("el documento ya fue enviado")
	ErrTransient          = errors.New("fallo transitorio de red")
	ErrInvalidTransition  = errors.New("transición de estado no permitida")
)

// Error lleva la clase de fallo, el paso donde ocurrió y el texto crudo de la DGII.
type Error struct {
	Kind error  // uno de los Err* de la taxonomía
	Step string // paso del ciclo: allocate, build, sign, auth, submit, track
	Raw  string // respuesta textual de la autoridad, si la hubo
	Err  error  // causa de bajo nivel
}

// NewError construye un *Error.
func NewError(kind error, step, raw string, cause error) *Error {
	return &Error{Kind: kind, Step: step, Raw: raw, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Step != "" {
		msg = e.Step + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" (respuesta: %s)", e.Raw)
	}
	return msg
}

// Unwrap permite errors.Is tanto contra la clase como contra la causa.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RawMessage devuelve el texto de la autoridad contenido en err, si existe.
func RawMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Raw
	}
	return ""
}

// StepOf devuelve el paso registrado en err, si existe.
func StepOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Step
	}
	return ""
}

// IsRecoverable indica si un reintento externo desde el último paso completado tiene sentido.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAuthUnavailable) ||
		errors.Is(err, ErrSubmissionRejected) ||
		errors.Is(err, ErrTransient)
}
