// Package ecf contiene los catálogos y validaciones del Comprobante Fiscal
// Electrónico (e-CF) de la DGII (República Dominicana), formato 1.1.
package ecf

import "fmt"

// =============================================================================
// Tipos de e-CF
// =============================================================================

// DocumentType es el código de dos dígitos del tipo de comprobante (TipoeCF).
type DocumentType string

const (
	TypeCreditoFiscal     DocumentType = "31" // Factura de Crédito Fiscal Electrónica
	TypeConsumo           DocumentType = "32" // Factura de Consumo Electrónica
	TypeNotaDebito        DocumentType = "33" // Nota de Débito Electrónica
	TypeNotaCredito       DocumentType = "34" // Nota de Crédito Electrónica
	TypeCompras           DocumentType = "41" // Comprobante Electrónico de Compras
	TypeGastosMenores     DocumentType = "43" // Comprobante Electrónico para Gastos Menores
	TypeRegimenesEspecial DocumentType = "44" // Comprobante Electrónico para Regímenes Especiales
	TypeGubernamental     DocumentType = "45" // Comprobante Electrónico Gubernamental
	TypeExportaciones     DocumentType = "46" // Comprobante Electrónico para Exportaciones
	TypePagosExterior     DocumentType = "47" // Comprobante Electrónico para Pagos al Exterior
)

var documentTypeNames = map[DocumentType]string{
	TypeCreditoFiscal:     "Factura de Crédito Fiscal Electrónica",
	TypeConsumo:           "Factura de Consumo Electrónica",
	TypeNotaDebito:        "Nota de Débito Electrónica",
	TypeNotaCredito:       "Nota de Crédito Electrónica",
	TypeCompras:           "Comprobante Electrónico de Compras",
	TypeGastosMenores:     "Comprobante Electrónico para Gastos Menores",
	TypeRegimenesEspecial: "Comprobante Electrónico para Regímenes Especiales",
	TypeGubernamental:     "Comprobante Electrónico Gubernamental",
	TypeExportaciones:     "Comprobante Electrónico para Exportaciones",
	TypePagosExterior:     "Comprobante Electrónico para Pagos al Exterior",
}

// DocumentTypes lista los tipos soportados en orden de código.
var DocumentTypes = []DocumentType{
	TypeCreditoFiscal, TypeConsumo, TypeNotaDebito, TypeNotaCredito, TypeCompras,
	TypeGastosMenores, TypeRegimenesEspecial, TypeGubernamental, TypeExportaciones, TypePagosExterior,
}

// Valid indica si el código pertenece al catálogo.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeNames[t]
	return ok
}

// Name devuelve la descripción oficial del tipo.
func (t DocumentType) Name() string {
	return documentTypeNames[t]
}

// ParseDocumentType valida y convierte un código recibido desde fuera.
func ParseDocumentType(code string) (DocumentType, error) {
	t := DocumentType(code)
	if !t.Valid() {
		return "", fmt.Errorf("ecf: tipo de comprobante desconocido %q", code)
	}
	return t, nil
}

// RequiresBuyerRNC indica si el comprador debe venir identificado con RNC/cédula.
// Las facturas de consumo (32) admiten consumidor final sin identificar.
func (t DocumentType) RequiresBuyerRNC() bool {
	switch t {
	case TypeCreditoFiscal, TypeNotaDebito, TypeNotaCredito, TypeRegimenesEspecial, TypeGubernamental:
		return true
	}
	return false
}

// RequiresReference indica si el tipo modifica otro comprobante (notas de débito/crédito).
func (t DocumentType) RequiresReference() bool {
	return t == TypeNotaDebito || t == TypeNotaCredito
}

// =============================================================================
// Indicadores y códigos del Encabezado
// =============================================================================

// Indicador de monto gravado (IndicadorMontoGravado).
const (
	MontoGravadoSinITBIS = "0" // Precios sin ITBIS incluido
	MontoGravadoConITBIS = "1" // Precios con ITBIS incluido
)

// Tipo de teléfono del emisor.
const (
	PhoneTypeFixed  = "1"
	PhoneTypeMobile = "2"
	PhoneTypeFax    = "3"
)

// TaxCategoryITBIS es la categoría del impuesto equivalente al IVA.
const TaxCategoryITBIS = "ITBIS"

// Estados de aprobación comercial (ACECF) y acuse de recibo (ARECF).
const (
	ApprovalAccepted = "0"
	ApprovalRejected = "1"

	AckReceived    = "0"
	AckNotReceived = "1"
)

// Códigos de motivo de rechazo comercial.
var ApprovalReasonCodes = map[string]string{
	"1": "Error de especificación",
	"2": "Error de firma digital",
	"3": "Envío duplicado",
	"4": "RNC comprador no corresponde",
}

// Códigos de motivo de no recibido (acuse de recibo).
var AckReasonCodes = map[string]string{
	"1": "Error de especificación",
	"2": "Error de firma digital",
	"3": "Envío duplicado",
	"4": "RNC comprador no corresponde",
}

// =============================================================================
// Estados de la DGII (consulta de resultado)
// =============================================================================

const (
	AuthorityAccepted = "Aceptado"
	AuthorityRejected = "Rechazado"
)

// Formatos de fecha usados en los documentos.
const (
	DateLayout     = "02-01-2006"
	DateTimeLayout = "02-01-2006 15:04:05"
)

// SchemaVersion es la versión declarada en el nodo Version de cada documento.
const SchemaVersion = "1.0"

// SchemaLocation es el esquema publicado por la DGII para el e-CF.
const SchemaLocation = "https://ecf.dgii.gov.do/esquemas/ecf/1.1"
