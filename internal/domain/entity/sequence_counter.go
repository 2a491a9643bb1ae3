package entity

import (
	"time"

	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// FiscalSequenceCounter rango autorizado de e-NCF por tipo de comprobante.
// LastIssued solo crece de uno en uno y nunca supera UpperBound. Pasado
// ValidUntil el rango deja de asignar números.
type FiscalSequenceCounter struct {
	TypeCode   ecf.DocumentType
	LastIssued int64
	UpperBound int64
	ValidUntil *time.Time // vencimiento de la autorización; nil = sin vencimiento
	UpdatedAt  time.Time
}

// Remaining cantidad de números aún disponibles.
func (c *FiscalSequenceCounter) Remaining() int64 {
	if c.UpperBound <= c.LastIssued {
		return 0
	}
	return c.UpperBound - c.LastIssued
}

// SequenceIssue bitácora de cada número emitido.
type SequenceIssue struct {
	NCF      string
	TypeCode ecf.DocumentType
	Number   int64
	OwnerRef string // documento que recibió el número
	IssuedAt time.Time
}
