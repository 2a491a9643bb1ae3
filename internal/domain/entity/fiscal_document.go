package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// DocumentStatus es el estado local del ciclo de vida de un e-CF.
type DocumentStatus string

const (
	StatusDraft            DocumentStatus = "DRAFT"             // Snapshot recibido, sin e-NCF
	StatusSequenceAssigned DocumentStatus = "SEQUENCE_ASSIGNED" // e-NCF reservado y persistido
	StatusBuilt            DocumentStatus = "BUILT"             // XML sin firmar generado
	StatusSigned           DocumentStatus = "SIGNED"            // Artefacto firmado disponible
	StatusSubmitted        DocumentStatus = "SUBMITTED"         // Envío en curso hacia la DGII
	StatusProcessing       DocumentStatus = "PROCESSING"        // TrackID recibido, pendiente de resultado
	StatusAccepted         DocumentStatus = "ACCEPTED"          // Aceptado por la DGII
	StatusRejected         DocumentStatus = "REJECTED"          // Rechazado por la DGII
	StatusError            DocumentStatus = "ERROR"             // Fallo en algún paso; ver FailedStep
	StatusCancelled        DocumentStatus = "CANCELLED"         // Abortado antes del envío
)

// Terminal indica que el documento ya no admite transiciones.
func (s DocumentStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusCancelled
}

// Phone teléfono del emisor (TablaTelefonoEmisor).
type Phone struct {
	Number string `json:"number"`
	Type   string `json:"type,omitempty"`
}

// AdditionalInfo par nombre/texto de información adicional.
type AdditionalInfo struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Party identifica a una contraparte (comprador).
type Party struct {
	RNC     string `json:"rnc,omitempty"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// IssuerIdentity datos del emisor tal como los entrega el sistema contable.
type IssuerIdentity struct {
	RNC                   string           `json:"rnc"`
	Name                  string           `json:"name"`
	TradeName             string           `json:"trade_name,omitempty"`
	Address               string           `json:"address"`
	Municipality          string           `json:"municipality,omitempty"`
	Province              string           `json:"province,omitempty"`
	Phones                []Phone          `json:"phones,omitempty"`
	Email                 string           `json:"email,omitempty"`
	Website               string           `json:"website,omitempty"`
	EconomicActivity      string           `json:"economic_activity,omitempty"`
	SellerCode            string           `json:"seller_code,omitempty"`
	InternalInvoiceNumber string           `json:"internal_invoice_number,omitempty"`
	InternalOrderNumber   string           `json:"internal_order_number,omitempty"`
	SalesZone             string           `json:"sales_zone,omitempty"`
	SalesRoute            string           `json:"sales_route,omitempty"`
	AdditionalInfo        []AdditionalInfo `json:"additional_info,omitempty"`
}

// LineTax impuesto aplicado a una línea. Solo Category = ITBIS entra al cálculo del e-CF.
type LineTax struct {
	Category string          `json:"category"`
	Name     string          `json:"name,omitempty"`
	Rate     decimal.Decimal `json:"rate"` // porcentaje, ej. 18
}

// LineItem línea del comprobante.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Taxes       []LineTax       `json:"taxes,omitempty"`
}

// Totals montos del documento sin redondear.
type Totals struct {
	Untaxed decimal.Decimal `json:"untaxed"`
	Tax     decimal.Decimal `json:"tax"`
	Total   decimal.Decimal `json:"total"`
}

// FiscalDocument es el snapshot de solo lectura recibido del sistema contable
// más el estado del ciclo e-CF. Solo el coordinador lo modifica.
type FiscalDocument struct {
	ID           string
	CompanyID    string
	ExternalRef  string // referencia del documento en el sistema contable
	TypeCode     ecf.DocumentType
	NCF          string // vacío hasta asignar secuencia
	ReferenceNCF string // NCF modificado (notas de débito/crédito)
	Issuer       IssuerIdentity
	Counterparty Party
	Lines        []LineItem
	Totals       Totals
	PaymentTerm  string
	DueDate      *time.Time
	Notes        string
	EmissionAt   time.Time

	Status          DocumentStatus
	ResumeStatus    DocumentStatus // último estado completado antes de Error
	FailedStep      string
	LastError       string // texto crudo de la autoridad o del paso fallido
	AuthorityState  string
	RejectionReason string
	TrackID         string
	SecurityCode    string
	SignedAt        *time.Time
	UnsignedXML     []byte

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasNCF indica si ya se consumió un número fiscal.
func (d *FiscalDocument) HasNCF() bool {
	return d.NCF != ""
}
