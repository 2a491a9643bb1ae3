package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// DocumentRequest snapshot del documento tal como lo entrega el sistema contable.
type DocumentRequest struct {
	ExternalRef  string                `json:"external_ref"`
	TypeCode     string                `json:"type_code"`
	ReferenceNCF string                `json:"reference_ncf,omitempty"`
	Issuer       entity.IssuerIdentity `json:"issuer"`
	Buyer        entity.Party          `json:"buyer"`
	Lines        []entity.LineItem     `json:"lines"`
	PaymentTerm  string                `json:"payment_term,omitempty"`
	DueDate      *time.Time            `json:"due_date,omitempty"`
	Notes        string                `json:"notes,omitempty"`
	EmissionAt   time.Time             `json:"emission_at"`
}

// ToEntity arma el snapshot para la empresa indicada.
func (r DocumentRequest) ToEntity(companyID string) *entity.FiscalDocument {
	return &entity.FiscalDocument{
		CompanyID:    companyID,
		ExternalRef:  r.ExternalRef,
		TypeCode:     ecf.DocumentType(r.TypeCode),
		ReferenceNCF: r.ReferenceNCF,
		Issuer:       r.Issuer,
		Counterparty: r.Buyer,
		Lines:        r.Lines,
		PaymentTerm:  r.PaymentTerm,
		DueDate:      r.DueDate,
		Notes:        r.Notes,
		EmissionAt:   r.EmissionAt,
	}
}

// AbortRequest motivo de la cancelación.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// DocumentResponse estado del documento.
type DocumentResponse struct {
	ID              string                `json:"id"`
	ExternalRef     string                `json:"external_ref"`
	TypeCode        string                `json:"type_code"`
	TypeName        string                `json:"type_name"`
	NCF             string                `json:"ncf,omitempty"`
	ReferenceNCF    string                `json:"reference_ncf,omitempty"`
	Issuer          entity.IssuerIdentity `json:"issuer"`
	Buyer           entity.Party          `json:"buyer"`
	Lines           []entity.LineItem     `json:"lines"`
	Untaxed         string                `json:"untaxed"`
	Tax             string                `json:"tax"`
	Total           string                `json:"total"`
	EmissionAt      time.Time             `json:"emission_at"`
	Status          string                `json:"status"`
	ResumeStatus    string                `json:"resume_status,omitempty"`
	FailedStep      string                `json:"failed_step,omitempty"`
	LastError       string                `json:"last_error,omitempty"`
	AuthorityState  string                `json:"authority_state,omitempty"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
	TrackID         string                `json:"track_id,omitempty"`
	SecurityCode    string                `json:"security_code,omitempty"`
	SignedAt        *time.Time            `json:"signed_at,omitempty"`
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// NewDocumentResponse proyecta el documento; los montos van con dos decimales.
func NewDocumentResponse(d *entity.FiscalDocument) DocumentResponse {
	return DocumentResponse{
		ID:              d.ID,
		ExternalRef:     d.ExternalRef,
		TypeCode:        string(d.TypeCode),
		TypeName:        d.TypeCode.Name(),
		NCF:             d.NCF,
		ReferenceNCF:    d.ReferenceNCF,
		Issuer:          d.Issuer,
		Buyer:           d.Counterparty,
		Lines:           d.Lines,
		Untaxed:         fiscal.FormatAmount(d.Totals.Untaxed),
		Tax:             fiscal.FormatAmount(d.Totals.Tax),
		Total:           fiscal.FormatAmount(d.Totals.Total),
		EmissionAt:      d.EmissionAt,
		Status:          string(d.Status),
		ResumeStatus:    string(d.ResumeStatus),
		FailedStep:      d.FailedStep,
		LastError:       d.LastError,
		AuthorityState:  d.AuthorityState,
		RejectionReason: d.RejectionReason,
		TrackID:         d.TrackID,
		SecurityCode:    d.SecurityCode,
		SignedAt:        d.SignedAt,
		Version:         d.Version,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// TrackingResponse último seguimiento de un documento.
type TrackingResponse struct {
	TrackID        string     `json:"track_id"`
	State          string     `json:"state"`
	AuthorityState string     `json:"authority_state,omitempty"`
	Messages       []string   `json:"messages,omitempty"`
	PollCount      int        `json:"poll_count"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorAt    *time.Time `json:"last_error_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTrackingResponse proyecta el registro de seguimiento.
func NewTrackingResponse(r *entity.TrackingRecord) TrackingResponse {
	return TrackingResponse{
		TrackID:        r.TrackID,
		State:          string(r.LastState),
		AuthorityState: r.AuthorityState,
		Messages:       r.Messages,
		PollCount:      r.PollCount,
		LastError:      r.LastError,
		LastErrorAt:    r.LastErrorAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// ── Artefactos ───────────────────────────────────────────────────────────────

// ArtifactResponse metadatos de un artefacto firmado (el XML se descarga aparte).
type ArtifactResponse struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id,omitempty"`
	Kind         string    `json:"kind"`
	ReferenceNCF string    `json:"reference_ncf,omitempty"`
	SecurityCode string    `json:"security_code"`
	StorageKey   string    `json:"storage_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewArtifactResponse proyecta el artefacto.
func NewArtifactResponse(a *entity.SignedArtifact) ArtifactResponse {
	return ArtifactResponse{
		ID:           a.ID,
		DocumentID:   a.DocumentID,
		Kind:         a.Kind,
		ReferenceNCF: a.ReferenceNCF,
		SecurityCode: a.SecurityCode,
		StorageKey:   a.StorageKey,
		CreatedAt:    a.CreatedAt,
	}
}

// ApprovalRequest aprobación o rechazo comercial de un e-CF recibido.
type ApprovalRequest struct {
	IssuerRNC  string          `json:"issuer_rnc"`
	BuyerRNC   string          `json:"buyer_rnc"`
	NCF        string          `json:"ncf"`
	Total      decimal.Decimal `json:"total"`
	Approved   bool            `json:"approved"`
	ReasonCode string          `json:"reason_code,omitempty"`
}

// ToEntity convierte la petición.
func (r ApprovalRequest) ToEntity() *entity.CommercialApproval {
	return &entity.CommercialApproval{
		IssuerRNC:  r.IssuerRNC,
		BuyerRNC:   r.BuyerRNC,
		NCF:        r.NCF,
		Total:      r.Total,
		Approved:   r.Approved,
		ReasonCode: r.ReasonCode,
	}
}

// AcknowledgmentRequest acuse de recibo.
type AcknowledgmentRequest struct {
	IssuerRNC  string `json:"issuer_rnc"`
	BuyerRNC   string `json:"buyer_rnc"`
	NCF        string `json:"ncf"`
	Received   bool   `json:"received"`
	ReasonCode string `json:"reason_code,omitempty"`
}

// ToEntity convierte la petición.
func (r AcknowledgmentRequest) ToEntity() *entity.ReceiptAcknowledgment {
	return &entity.ReceiptAcknowledgment{
		IssuerRNC:  r.IssuerRNC,
		BuyerRNC:   r.BuyerRNC,
		NCF:        r.NCF,
		Received:   r.Received,
		ReasonCode: r.ReasonCode,
	}
}

// CancellationRequest e-NCF sin uso a anular; se agrupan en rangos.
type CancellationRequest struct {
	IssuerRNC string   `json:"issuer_rnc"`
	NCFs      []string `json:"ncfs"`
}

// SummaryRequest resumen de consumo del día (yyyy-mm-dd, hora de Santo Domingo).
type SummaryRequest struct {
	IssuerRNC string `json:"issuer_rnc"`
	Date      string `json:"date"`
}

// ── Secuencias ───────────────────────────────────────────────────────────────

// SequenceCounterResponse estado de un rango autorizado.
type SequenceCounterResponse struct {
	TypeCode   string     `json:"type_code"`
	TypeName   string     `json:"type_name"`
	LastIssued int64      `json:"last_issued"`
	UpperBound int64      `json:"upper_bound"`
	Remaining  int64      `json:"remaining"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// NewSequenceCounterResponse proyecta el contador.
func NewSequenceCounterResponse(c *entity.FiscalSequenceCounter) SequenceCounterResponse {
	return SequenceCounterResponse{
		TypeCode:   string(c.TypeCode),
		TypeName:   c.TypeCode.Name(),
		LastIssued: c.LastIssued,
		UpperBound: c.UpperBound,
		Remaining:  c.Remaining(),
		ValidUntil: c.ValidUntil,
	}
}

// RegisterRangeRequest alta de un rango autorizado.
type RegisterRangeRequest struct {
	TypeCode   string     `json:"type_code"`
	LastIssued int64      `json:"last_issued"`
	UpperBound int64      `json:"upper_bound"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// ExtendRangeRequest nuevo límite superior.
type ExtendRangeRequest struct {
	UpperBound int64 `json:"upper_bound"`
}
