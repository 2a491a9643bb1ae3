package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
)

var _ repository.TrackingRepository = (*TrackingRepo)(nil)

// TrackingRepo registros de seguimiento por TrackID.
type TrackingRepo struct {
	q Querier
}

// NewTrackingRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTrackingRepository(q Querier) *TrackingRepo {
	return &TrackingRepo{q: q}
}

const trackingColumns = `
	track_id, document_id, auth_token_ref, last_state, authority_state, messages,
	poll_count, last_error, last_error_at, created_at, updated_at`

// Upsert inserta o actualiza por track_id. Un registro terminal no se modifica.
func (r *TrackingRepo) Upsert(ctx context.Context, rec *entity.TrackingRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	msgs, err := json.Marshal(rec.Messages)
	if err != nil {
		return fmt.Errorf("marshal tracking messages: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO tracking_records (`+trackingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (track_id) DO UPDATE
		SET auth_token_ref  = EXCLUDED.auth_token_ref,
		    last_state      = EXCLUDED.last_state,
		    authority_state = EXCLUDED.authority_state,
		    messages        = EXCLUDED.messages,
		    poll_count      = EXCLUDED.poll_count,
		    last_error      = EXCLUDED.last_error,
		    last_error_at   = EXCLUDED.last_error_at,
		    updated_at      = EXCLUDED.updated_at
		WHERE tracking_records.last_state = 'pending'`,
		rec.TrackID, rec.DocumentID, rec.AuthTokenRef, string(rec.LastState), nullIfEmpty(rec.AuthorityState), msgs,
		rec.PollCount, nullIfEmpty(rec.LastError), rec.LastErrorAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert tracking_record: %w", err)
	}
	return nil
}

func (r *TrackingRepo) GetByTrackID(ctx context.Context, trackID string) (*entity.TrackingRecord, error) {
	rec, err := scanTracking(r.q.QueryRow(ctx, `SELECT `+trackingColumns+` FROM tracking_records WHERE track_id = $1`, trackID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tracking_record: %w", err)
	}
	return rec, nil
}

func (r *TrackingRepo) GetLatestByDocument(ctx context.Context, documentID string) (*entity.TrackingRecord, error) {
	rec, err := scanTracking(r.q.QueryRow(ctx,
		`SELECT `+trackingColumns+` FROM tracking_records
		 WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest tracking_record: %w", err)
	}
	return rec, nil
}

// ListDue rota el sondeo: cada consulta mueve updated_at, así que ningún
// documento queda fuera de los lotes siguientes.
func (r *TrackingRepo) ListDue(ctx context.Context, limit int) ([]*entity.TrackingRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT t.track_id, t.document_id, t.auth_token_ref, t.last_state, t.authority_state, t.messages,
		       t.poll_count, t.last_error, t.last_error_at, t.created_at, t.updated_at
		FROM tracking_records t
		JOIN fiscal_documents d ON d.id = t.document_id AND d.track_id = t.track_id
		WHERE t.last_state = 'pending' AND d.status = $1
		ORDER BY t.updated_at ASC, t.track_id
		LIMIT $2`,
		string(entity.StatusProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("list due tracking_records: %w", err)
	}
	defer rows.Close()
	var out []*entity.TrackingRecord
	for rows.Next() {
		rec, err := scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracking_record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanTracking(row pgx.Row) (*entity.TrackingRecord, error) {
	var (
		rec       entity.TrackingRecord
		state     string
		authState *string
		lastError *string
		msgs      []byte
	)
	if err := row.Scan(&rec.TrackID, &rec.DocumentID, &rec.AuthTokenRef, &state, &authState, &msgs,
		&rec.PollCount, &lastError, &rec.LastErrorAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.LastState = entity.TrackingState(state)
	rec.AuthorityState = derefStr(authState)
	rec.LastError = derefStr(lastError)
	if len(msgs) > 0 {
		if err := json.Unmarshal(msgs, &rec.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal tracking messages: %w", err)
		}
	}
	return &rec, nil
}
