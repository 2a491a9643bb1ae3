package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// CommercialApproval aprobación o rechazo comercial de un e-CF recibido (ACECF).
type CommercialApproval struct {
	IssuerRNC  string
	BuyerRNC   string
	NCF        string
	Total      decimal.Decimal
	Approved   bool
	ReasonCode string // obligatorio si Approved = false
	At         time.Time
}

// ReceiptAcknowledgment acuse de recibo de un e-CF (ARECF).
type ReceiptAcknowledgment struct {
	IssuerRNC  string
	BuyerRNC   string
	NCF        string
	Received   bool
	ReasonCode string // obligatorio si Received = false
	At         time.Time
}

// CancelledRange rango continuo de e-NCF anulados de un mismo tipo.
type CancelledRange struct {
	TypeCode ecf.DocumentType
	From     string
	To       string
	Count    int
}

// CancellationBatch anulación de secuencias no utilizadas (ANECF).
type CancellationBatch struct {
	IssuerRNC   string
	GeneratedAt time.Time
	Ranges      []CancelledRange
}

// Count total de comprobantes anulados en el lote.
func (b *CancellationBatch) Count() int {
	n := 0
	for _, r := range b.Ranges {
		n += r.Count
	}
	return n
}

// SummaryEntry monto de una factura de consumo incluida en el resumen.
type SummaryEntry struct {
	NCF     string
	Untaxed decimal.Decimal
	Tax     decimal.Decimal
	Total   decimal.Decimal
}

// ConsumerSummary resumen diario de facturas de consumo (RFCE).
type ConsumerSummary struct {
	IssuerRNC string
	Date      time.Time
	Entries   []SummaryEntry
}
