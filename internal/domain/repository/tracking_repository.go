package repository

import (
	"context"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

// TrackingRepository persiste los registros de seguimiento por TrackID.
type TrackingRepository interface {
	Upsert(ctx context.Context, rec *entity.TrackingRecord) error
	GetByTrackID(ctx context.Context, trackID string) (*entity.TrackingRecord, error)
	GetLatestByDocument(ctx context.Context, documentID string) (*entity.TrackingRecord, error)

	// ListDue devuelve hasta limit registros pendientes de documentos en
	// Processing, los consultados hace más tiempo primero.
	ListDue(ctx context.Context, limit int) ([]*entity.TrackingRecord, error)
}
