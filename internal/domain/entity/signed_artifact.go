package entity

import "time"

// Tipos de artefacto firmado.
const (
	ArtifactECF            = "ECF"   // comprobante electrónico
	ArtifactApproval       = "ACECF" // aprobación comercial
	ArtifactAcknowledgment = "ARECF" // acuse de recibo
	ArtifactCancellation   = "ANECF" // anulación de secuencias
	ArtifactSummary        = "RFCE"  // resumen de facturas de consumo
)

// SignedArtifact resultado inmutable de una firma. Un reenvío genera uno nuevo.
type SignedArtifact struct {
	ID             string
	DocumentID     string // vacío para artefactos que no pertenecen a un e-CF propio
	CompanyID      string
	Kind           string
	ReferenceNCF   string
	RawXML         []byte
	SignedXML      []byte
	SignatureValue string
	SecurityCode   string
	StorageKey     string // clave en el almacenamiento externo, si aplica
	CreatedAt      time.Time
}
