package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

var _ repository.SequenceRepository = (*SequenceStore)(nil)

// SequenceStore guarda los contadores de e-NCF. Cada asignación es una
// transacción corta con SELECT ... FOR UPDATE sobre la fila del tipo, así
// que tipos distintos no compiten entre sí.
type SequenceStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSequenceStore construye el store sobre un *sql.DB (driver pgx).
func NewSequenceStore(db *sql.DB) *SequenceStore {
	return &SequenceStore{db: db, now: time.Now}
}

// NewSequenceStoreFromPool comparte las conexiones del pool de pgx.
func NewSequenceStoreFromPool(pool *pgxpool.Pool) *SequenceStore {
	return NewSequenceStore(stdlib.OpenDBFromPool(pool))
}

// Allocate reserva el siguiente número. Si el COMMIT falla no se devuelve número.
// Una autorización vencida (valid_until pasado) se trata como rango agotado.
func (s *SequenceStore) Allocate(ctx context.Context, typeCode ecf.DocumentType, ownerRef string) (*entity.SequenceIssue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		last, upper int64
		until       sql.NullTime
	)
	err = tx.QueryRowContext(ctx, `
		SELECT last_issued, upper_bound, valid_until
		FROM fiscal_sequences
		WHERE type_code = $1
		FOR UPDATE`, string(typeCode)).Scan(&last, &upper, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.ErrSequenceExhausted, "allocate", "", fmt.Errorf("no hay rango autorizado para el tipo %s", typeCode))
	}
	if err != nil {
		return nil, fmt.Errorf("lock fiscal_sequence: %w", err)
	}

	now := s.now().UTC()
	if until.Valid && now.After(until.Time) {
		return nil, domain.NewError(domain.ErrSequenceExhausted, "allocate", "",
			fmt.Errorf("tipo %s: autorización vencida el %s", typeCode, until.Time.In(ecf.Location).Format("2006-01-02")))
	}

	next := last + 1
	if next > upper || next > ecf.MaxCounter {
		return nil, domain.NewError(domain.ErrSequenceExhausted, "allocate", "", fmt.Errorf("tipo %s: %d > %d", typeCode, next, upper))
	}
	ncf, err := ecf.FormatNCF(typeCode, next)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE fiscal_sequences SET last_issued = $2, updated_at = $3
		WHERE type_code = $1`, string(typeCode), next, now); err != nil {
		return nil, fmt.Errorf("update fiscal_sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fiscal_sequence_issues (ncf, type_code, number, owner_ref, issued_at)
		VALUES ($1, $2, $3, $4, $5)`, ncf, string(typeCode), next, nullIfEmpty(ownerRef), now); err != nil {
		return nil, fmt.Errorf("insert fiscal_sequence_issue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocate: %w", err)
	}
	return &entity.SequenceIssue{NCF: ncf, TypeCode: typeCode, Number: next, OwnerRef: ownerRef, IssuedAt: now}, nil
}

// Get devuelve el contador del tipo o nil si no existe.
func (s *SequenceStore) Get(ctx context.Context, typeCode ecf.DocumentType) (*entity.FiscalSequenceCounter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT type_code, last_issued, upper_bound, valid_until, updated_at
		FROM fiscal_sequences WHERE type_code = $1`, string(typeCode))
	c, err := scanCounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fiscal_sequence: %w", err)
	}
	return c, nil
}

func (s *SequenceStore) List(ctx context.Context) ([]*entity.FiscalSequenceCounter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type_code, last_issued, upper_bound, valid_until, updated_at
		FROM fiscal_sequences ORDER BY type_code`)
	if err != nil {
		return nil, fmt.Errorf("list fiscal_sequences: %w", err)
	}
	defer rows.Close()
	var out []*entity.FiscalSequenceCounter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fiscal_sequence: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Create registra el rango inicial de un tipo.
func (s *SequenceStore) Create(ctx context.Context, c *entity.FiscalSequenceCounter) error {
	if !c.TypeCode.Valid() || c.UpperBound < c.LastIssued || c.LastIssued < 0 {
		return fmt.Errorf("%w: rango de secuencia inválido", domain.ErrInvalidInput)
	}
	c.UpdatedAt = s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fiscal_sequences (type_code, last_issued, upper_bound, valid_until, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(c.TypeCode), c.LastIssued, c.UpperBound, c.ValidUntil, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: ya existe secuencia para el tipo %s", domain.ErrDuplicate, c.TypeCode)
		}
		return fmt.Errorf("insert fiscal_sequence: %w", err)
	}
	return nil
}

// ExtendUpperBound solo amplía el rango; un límite menor o igual es ErrInvalidInput.
func (s *SequenceStore) ExtendUpperBound(ctx context.Context, typeCode ecf.DocumentType, upperBound int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fiscal_sequences SET upper_bound = $2, updated_at = $3
		WHERE type_code = $1 AND upper_bound < $2`, string(typeCode), upperBound, s.now().UTC())
	if err != nil {
		return fmt.Errorf("extend fiscal_sequence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend fiscal_sequence: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: el tipo %s no existe o el límite no amplía el rango", domain.ErrInvalidInput, typeCode)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounter(row rowScanner) (*entity.FiscalSequenceCounter, error) {
	var (
		c     entity.FiscalSequenceCounter
		code  string
		until sql.NullTime
	)
	if err := row.Scan(&code, &c.LastIssued, &c.UpperBound, &until, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.TypeCode = ecf.DocumentType(code)
	if until.Valid {
		t := until.Time
		c.ValidUntil = &t
	}
	return &c, nil
}
