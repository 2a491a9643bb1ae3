package fiscal

import (
	"encoding/json"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// QRPayload contenido del código QR de la representación impresa.
type QRPayload struct {
	IssuerRNC  string `json:"RNC Emisor"`
	IssuerName string `json:"Razón Social Emisor"`
	BuyerRNC   string `json:"RNC Comprador"`
	BuyerName  string `json:"Razón Social Comprador"`
	NCF        string `json:"e-NCF"`
	EmittedOn  string `json:"Fecha de Emisión"`
	TaxTotal   string `json:"Total de ITBIS"`
	GrandTotal string `json:"Monto Total"`
	Status     string `json:"Estado"`
}

// NewQRPayload arma la carga útil a partir del documento.
func NewQRPayload(doc *entity.FiscalDocument) QRPayload {
	totals := ComputeTotals(doc.Lines)
	status := doc.AuthorityState
	if status == "" {
		status = string(doc.Status)
	}
	return QRPayload{
		IssuerRNC:  doc.Issuer.RNC,
		IssuerName: doc.Issuer.Name,
		BuyerRNC:   doc.Counterparty.RNC,
		BuyerName:  doc.Counterparty.Name,
		NCF:        doc.NCF,
		EmittedOn:  ecf.FormatDate(doc.EmissionAt),
		TaxTotal:   FormatAmount(totals.Tax),
		GrandTotal: FormatAmount(totals.Total),
		Status:     status,
	}
}

// String serializa la carga en JSON compacto.
func (p QRPayload) String() string {
	b, _ := json.Marshal(p)
	return string(b)
}
