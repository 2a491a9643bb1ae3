package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
)

var _ repository.ArtifactRepository = (*ArtifactRepo)(nil)

// ArtifactRepo persiste artefactos firmados; solo INSERT y SELECT.
type ArtifactRepo struct {
	q Querier
}

// NewArtifactRepository construye el adaptador. Pasar pool o tx (Querier).
func NewArtifactRepository(q Querier) *ArtifactRepo {
	return &ArtifactRepo{q: q}
}

const artifactColumns = `
	id, document_id, company_id, kind, reference_ncf, raw_xml, signed_xml,
	signature_value, security_code, storage_key, created_at`

func (r *ArtifactRepo) Create(ctx context.Context, a *entity.SignedArtifact) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, `INSERT INTO signed_artifacts (`+artifactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, nullIfEmpty(a.DocumentID), a.CompanyID, a.Kind, nullIfEmpty(a.ReferenceNCF),
		a.RawXML, a.SignedXML, a.SignatureValue, a.SecurityCode, nullIfEmpty(a.StorageKey), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signed_artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepo) GetByID(ctx context.Context, id string) (*entity.SignedArtifact, error) {
	a, err := scanArtifact(r.q.QueryRow(ctx, `SELECT `+artifactColumns+` FROM signed_artifacts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get signed_artifact: %w", err)
	}
	return a, nil
}

func (r *ArtifactRepo) GetLatestByDocument(ctx context.Context, documentID string) (*entity.SignedArtifact, error) {
	a, err := scanArtifact(r.q.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM signed_artifacts
		 WHERE document_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest signed_artifact: %w", err)
	}
	return a, nil
}

// ListByCompany kind vacío devuelve todos los tipos.
func (r *ArtifactRepo) ListByCompany(ctx context.Context, companyID, kind string, limit int) ([]*entity.SignedArtifact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx,
		`SELECT `+artifactColumns+` FROM signed_artifacts
		 WHERE company_id = $1 AND ($2 = '' OR kind = $2)
		 ORDER BY created_at DESC LIMIT $3`, companyID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("list signed_artifacts: %w", err)
	}
	defer rows.Close()
	var out []*entity.SignedArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signed_artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArtifact(row pgx.Row) (*entity.SignedArtifact, error) {
	var (
		a                         entity.SignedArtifact
		docID, refNCF, storageKey *string
	)
	if err := row.Scan(&a.ID, &docID, &a.CompanyID, &a.Kind, &refNCF, &a.RawXML, &a.SignedXML,
		&a.SignatureValue, &a.SecurityCode, &storageKey, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.DocumentID = derefStr(docID)
	a.ReferenceNCF = derefStr(refNCF)
	a.StorageKey = derefStr(storageKey)
	return &a, nil
}
