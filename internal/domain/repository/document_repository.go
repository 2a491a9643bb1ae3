package repository

import (
	"context"
	"time"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// DocumentRepository define el puerto de persistencia de FiscalDocument.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.FiscalDocument) error
	GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error)
	GetByExternalRef(ctx context.Context, companyID, externalRef string) (*entity.FiscalDocument, error)

	// Save persiste el documento solo si Version coincide con la almacenada
	// (concurrencia optimista). Devuelve domain.ErrConflict en caso contrario
	// e incrementa doc.Version al guardar.
	Save(ctx context.Context, doc *entity.FiscalDocument) error

	// ListIssuedOn devuelve los documentos del tipo emitidos en el día indicado.
	ListIssuedOn(ctx context.Context, companyID string, typeCode ecf.DocumentType, day time.Time) ([]*entity.FiscalDocument, error)
}
