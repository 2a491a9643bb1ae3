package lifecycle

import (
	"context"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// TxRunner ejecuta fn en una transacción con repositorios atados a ella.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		docs repository.DocumentRepository,
		artifacts repository.ArtifactRepository,
		tracking repository.TrackingRepository,
	) error) error
}

// SequenceAllocator reserva e-NCF (lo implementa *sequence.Allocator).
type SequenceAllocator interface {
	AllocateFor(ctx context.Context, typeCode ecf.DocumentType, ownerRef string) (*entity.SequenceIssue, error)
}

// XMLRenderer construye el XML sin firmar (lo implementa *dgii.XMLBuilder).
type XMLRenderer interface {
	BuildBytes(p dgii.Payload) ([]byte, error)
}

// Authenticator abre una sesión con la DGII (lo implementa *dgii.AuthClient).
type Authenticator interface {
	Authenticate(ctx context.Context) (*entity.AuthSession, error)
}

// Submitter envía y consulta (lo implementa *dgii.SubmissionClient).
type Submitter interface {
	Submit(ctx context.Context, signedXML []byte, fileName string, session *entity.AuthSession) (string, error)
	Track(ctx context.Context, trackID string, session *entity.AuthSession) (entity.TrackingResult, error)
}

// ArtifactMirror copia opcional del XML firmado en almacenamiento externo.
type ArtifactMirror interface {
	Put(ctx context.Context, a *entity.SignedArtifact) (key string, err error)
}
