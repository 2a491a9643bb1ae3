package documents

import (
	"context"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
)

// XMLRenderer construye el XML sin firmar de cualquier Payload.
type XMLRenderer interface {
	BuildBytes(p dgii.Payload) ([]byte, error)
}

// PDFRenderer genera la representación impresa (lo implementa pdf.MarotoPDFGenerator).
type PDFRenderer interface {
	Render(doc *entity.FiscalDocument, qr fiscal.QRPayload) ([]byte, error)
}

// Mirror copia opcional del XML firmado (lo implementa storage.S3Mirror).
type Mirror interface {
	Put(ctx context.Context, a *entity.SignedArtifact) (key string, err error)
}
