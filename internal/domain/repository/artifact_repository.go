package repository

import (
	"context"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// ArtifactRepository persiste artefactos firmados. No existe Update: son inmutables.
type ArtifactRepository interface {
	Create(ctx context.Context, a *entity.SignedArtifact) error
	GetByID(ctx context.Context, id string) (*entity.SignedArtifact, error)
	// GetLatestByDocument devuelve el artefacto más reciente del documento (nil si no hay).
	GetLatestByDocument(ctx context.Context, documentID string) (*entity.SignedArtifact, error)
	ListByCompany(ctx context.Context, companyID, kind string, limit int) ([]*entity.SignedArtifact, error)
}
