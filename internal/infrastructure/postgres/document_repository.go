package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
// Emisor, comprador y líneas se guardan como JSONB: son el snapshot recibido y no se consultan por campo.
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `
	id, company_id, external_ref, type_code, ncf, reference_ncf,
	issuer, counterparty, lines, untaxed_amount, tax_amount, total_amount,
	payment_term, due_date, notes, emission_at,
	status, resume_status, failed_step, last_error, authority_state, rejection_reason,
	track_id, security_code, signed_at, unsigned_xml,
	version, created_at, updated_at`

// Create inserta el documento con Version 1.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.FiscalDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.Version = 1

	issuer, counterparty, lines, err := marshalSnapshot(doc)
	if err != nil {
		return err
	}
	query := `INSERT INTO fiscal_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`
	_, err = r.q.Exec(ctx, query,
		doc.ID, doc.CompanyID, nullIfEmpty(doc.ExternalRef), string(doc.TypeCode), nullIfEmpty(doc.NCF), nullIfEmpty(doc.ReferenceNCF),
		issuer, counterparty, lines, doc.Totals.Untaxed, doc.Totals.Tax, doc.Totals.Total,
		nullIfEmpty(doc.PaymentTerm), doc.DueDate, nullIfEmpty(doc.Notes), doc.EmissionAt,
		string(doc.Status), nullIfEmpty(string(doc.ResumeStatus)), nullIfEmpty(doc.FailedStep), nullIfEmpty(doc.LastError),
		nullIfEmpty(doc.AuthorityState), nullIfEmpty(doc.RejectionReason),
		nullIfEmpty(doc.TrackID), nullIfEmpty(doc.SecurityCode), doc.SignedAt, doc.UnsignedXML,
		doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: documento %q ya registrado", domain.ErrDuplicate, doc.ExternalRef)
		}
		return fmt.Errorf("insert fiscal_document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.FiscalDocument, error) {
	doc, err := scanDocument(r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM fiscal_documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal_document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepo) GetByExternalRef(ctx context.Context, companyID, externalRef string) (*entity.FiscalDocument, error) {
	doc, err := scanDocument(r.q.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM fiscal_documents WHERE company_id = $1 AND external_ref = $2`,
		companyID, externalRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get fiscal_document by external_ref: %w", err)
	}
	return doc, nil
}

// Save actualiza con control de versión optimista.
func (r *DocumentRepo) Save(ctx context.Context, doc *entity.FiscalDocument) error {
	issuer, counterparty, lines, err := marshalSnapshot(doc)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC()
	query := `
		UPDATE fiscal_documents
		SET ncf              = $3,
		    reference_ncf    = $4,
		    issuer           = $5,
		    counterparty     = $6,
		    lines            = $7,
		    untaxed_amount   = $8,
		    tax_amount       = $9,
		    total_amount     = $10,
		    payment_term     = $11,
		    due_date         = $12,
		    notes            = $13,
		    emission_at      = $14,
		    status           = $15,
		    resume_status    = $16,
		    failed_step      = $17,
		    last_error       = $18,
		    authority_state  = $19,
		    rejection_reason = $20,
		    track_id         = $21,
		    security_code    = $22,
		    signed_at        = $23,
		    unsigned_xml     = $24,
		    version          = version + 1,
		    updated_at       = $25
		WHERE id = $1 AND version = $2`
	tag, err := r.q.Exec(ctx, query,
		doc.ID, doc.Version,
		nullIfEmpty(doc.NCF), nullIfEmpty(doc.ReferenceNCF),
		issuer, counterparty, lines, doc.Totals.Untaxed, doc.Totals.Tax, doc.Totals.Total,
		nullIfEmpty(doc.PaymentTerm), doc.DueDate, nullIfEmpty(doc.Notes), doc.EmissionAt,
		string(doc.Status), nullIfEmpty(string(doc.ResumeStatus)), nullIfEmpty(doc.FailedStep), nullIfEmpty(doc.LastError),
		nullIfEmpty(doc.AuthorityState), nullIfEmpty(doc.RejectionReason),
		nullIfEmpty(doc.TrackID), nullIfEmpty(doc.SecurityCode), doc.SignedAt, doc.UnsignedXML,
		updatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: e-NCF %s ya pertenece a otro documento", domain.ErrDuplicate, doc.NCF)
		}
		return fmt.Errorf("update fiscal_document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: documento %s modificado por otro proceso (versión %d)", domain.ErrConflict, doc.ID, doc.Version)
	}
	doc.Version++
	doc.UpdatedAt = updatedAt
	return nil
}

// ListIssuedOn filtra por día de emisión en hora de República Dominicana.
func (r *DocumentRepo) ListIssuedOn(ctx context.Context, companyID string, typeCode ecf.DocumentType, day time.Time) ([]*entity.FiscalDocument, error) {
	local := day.In(ecf.Location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, ecf.Location)
	to := from.AddDate(0, 0, 1)
	rows, err := r.q.Query(ctx,
		`SELECT `+documentColumns+` FROM fiscal_documents
		 WHERE company_id = $1 AND type_code = $2 AND ncf IS NOT NULL
		   AND emission_at >= $3 AND emission_at < $4
		 ORDER BY ncf`,
		companyID, string(typeCode), from, to)
	if err != nil {
		return nil, fmt.Errorf("list fiscal_documents issued on: %w", err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]*entity.FiscalDocument, error) {
	defer rows.Close()
	var out []*entity.FiscalDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fiscal_document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func marshalSnapshot(doc *entity.FiscalDocument) (issuer, counterparty, lines []byte, err error) {
	if issuer, err = json.Marshal(doc.Issuer); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal issuer: %w", err)
	}
	if counterparty, err = json.Marshal(doc.Counterparty); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal counterparty: %w", err)
	}
	if lines, err = json.Marshal(doc.Lines); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal lines: %w", err)
	}
	return issuer, counterparty, lines, nil
}

func scanDocument(row pgx.Row) (*entity.FiscalDocument, error) {
	var (
		d                                            entity.FiscalDocument
		typeCode, status                             string
		externalRef, ncf, refNCF, paymentTerm, notes *string
		resume, failedStep, lastError, authState     *string
		rejection, trackID, securityCode             *string
		issuer, counterparty, lines                  []byte
	)
	err := row.Scan(
		&d.ID, &d.CompanyID, &externalRef, &typeCode, &ncf, &refNCF,
		&issuer, &counterparty, &lines, &d.Totals.Untaxed, &d.Totals.Tax, &d.Totals.Total,
		&paymentTerm, &d.DueDate, &notes, &d.EmissionAt,
		&status, &resume, &failedStep, &lastError, &authState, &rejection,
		&trackID, &securityCode, &d.SignedAt, &d.UnsignedXML,
		&d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.TypeCode = ecf.DocumentType(typeCode)
	d.Status = entity.DocumentStatus(status)
	d.ResumeStatus = entity.DocumentStatus(derefStr(resume))
	d.ExternalRef = derefStr(externalRef)
	d.NCF = derefStr(ncf)
	d.ReferenceNCF = derefStr(refNCF)
	d.PaymentTerm = derefStr(paymentTerm)
	d.Notes = derefStr(notes)
	d.FailedStep = derefStr(failedStep)
	d.LastError = derefStr(lastError)
	d.AuthorityState = derefStr(authState)
	d.RejectionReason = derefStr(rejection)
	d.TrackID = derefStr(trackID)
	d.SecurityCode = derefStr(securityCode)

	if err := json.Unmarshal(issuer, &d.Issuer); err != nil {
		return nil, fmt.Errorf("unmarshal issuer: %w", err)
	}
	if err := json.Unmarshal(counterparty, &d.Counterparty); err != nil {
		return nil, fmt.Errorf("unmarshal counterparty: %w", err)
	}
	if err := json.Unmarshal(lines, &d.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal lines: %w", err)
	}
	return &d, nil
}
