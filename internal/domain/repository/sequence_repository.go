package repository

import (
	"context"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// SequenceRepository define el puerto de persistencia de los contadores de e-NCF.
type SequenceRepository interface {
	// Allocate reserva el siguiente número del tipo dentro de una transacción con
	// bloqueo de fila. El número solo se devuelve después del COMMIT.
	Allocate(ctx context.Context, typeCode ecf.DocumentType, ownerRef string) (*entity.SequenceIssue, error)

	Get(ctx context.Context, typeCode ecf.DocumentType) (*entity.FiscalSequenceCounter, error)
	List(ctx context.Context) ([]*entity.FiscalSequenceCounter, error)

	// Create registra un rango autorizado nuevo.
	Create(ctx context.Context, c *entity.FiscalSequenceCounter) error

	// ExtendUpperBound amplía el rango autorizado; nunca lo reduce.
	ExtendUpperBound(ctx context.Context, typeCode ecf.DocumentType, upperBound int64) error
}
