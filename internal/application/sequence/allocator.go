// Package sequence asigna números fiscales (e-NCF) por tipo de comprobante.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// Allocator entrega e-NCF únicos y consecutivos. La exclusión mutua y la
// durabilidad las garantiza el repositorio (transacción con bloqueo de fila);
// el número solo sale de aquí después del COMMIT.
type Allocator struct {
	repo    repository.SequenceRepository
	metrics *metrics.Collectors
	log     zerolog.Logger
}

// NewAllocator construye el caso de uso.
func NewAllocator(repo repository.SequenceRepository, m *metrics.Collectors, log zerolog.Logger) *Allocator {
	return &Allocator{repo: repo, metrics: m, log: log.With().Str("component", "sequence").Logger()}
}

// AllocateNext reserva el siguiente e-NCF del tipo sin documento dueño.
func (a *Allocator) AllocateNext(ctx context.Context, typeCode ecf.DocumentType) (string, error) {
	issue, err := a.AllocateFor(ctx, typeCode, "")
	if err != nil {
		return "", err
	}
	return issue.NCF, nil
}

// AllocateFor reserva el siguiente e-NCF y lo asocia a ownerRef en la bitácora de emisión.
func (a *Allocator) AllocateFor(ctx context.Context, typeCode ecf.DocumentType, ownerRef string) (*entity.SequenceIssue, error) {
	if !typeCode.Valid() {
		return nil, fmt.Errorf("%w: tipo de comprobante %q", domain.ErrInvalidInput, typeCode)
	}
	issue, err := a.repo.Allocate(ctx, typeCode, ownerRef)
	a.metrics.Allocation(string(typeCode), err)
	if err != nil {
		if errors.Is(err, domain.ErrSequenceExhausted) {
			a.log.Error().Str("type", string(typeCode)).Msg("secuencia agotada: ampliar el rango autorizado")
			return nil, err
		}
		return nil, fmt.Errorf("asignar e-NCF tipo %s: %w", typeCode, err)
	}
	a.log.Info().Str("type", string(typeCode)).Str("ncf", issue.NCF).Str("owner", ownerRef).Msg("e-NCF asignado")
	return issue, nil
}

// Counters estado de todos los rangos autorizados.
func (a *Allocator) Counters(ctx context.Context) ([]*entity.FiscalSequenceCounter, error) {
	return a.repo.List(ctx)
}

// RegisterRange alta de un rango autorizado por la DGII.
func (a *Allocator) RegisterRange(ctx context.Context, c *entity.FiscalSequenceCounter) error {
	if err := a.repo.Create(ctx, c); err != nil {
		return err
	}
	a.log.Info().Str("type", string(c.TypeCode)).Int64("upper_bound", c.UpperBound).Msg("rango de secuencia registrado")
	return nil
}

// ExtendRange amplía el límite superior de un tipo.
func (a *Allocator) ExtendRange(ctx context.Context, typeCode ecf.DocumentType, upperBound int64) error {
	if err := a.repo.ExtendUpperBound(ctx, typeCode, upperBound); err != nil {
		return err
	}
	a.log.Info().Str("type", string(typeCode)).Int64("upper_bound", upperBound).Msg("rango de secuencia ampliado")
	return nil
}
