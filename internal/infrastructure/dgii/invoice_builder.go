package dgii

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// InvoiceBuilder construye el e-CF (tipos 31 a 47) sin firma.
type InvoiceBuilder struct{}

// Build valida el snapshot y genera el árbol en el orden exigido por la DGII:
// Encabezado (Version, IdDoc, Emisor, Comprador, InformacionesAdicionales,
// Transporte, Totales), Detalles, Totales e InformacionReferencia.
func (InvoiceBuilder) Build(d *entity.FiscalDocument) (*etree.Document, error) {
	if err := validateInvoice(d); err != nil {
		return nil, err
	}
	totals := fiscal.ComputeTotals(d.Lines)

	doc := newDocument()
	root := doc.CreateElement("ECF")
	root.CreateAttr("xmlns:xsi", nsXsi)
	root.CreateAttr("xsi:schemaLocation", ecf.SchemaLocation)

	enc := root.CreateElement("Encabezado")
	addText(enc, "Version", ecf.SchemaVersion)
	writeIdDoc(enc, d)
	writeEmisor(enc, d)
	writeComprador(enc, d.Counterparty)
	writeAdditionalInfo(enc, d.Notes)
	enc.CreateElement("Transporte")
	writeHeaderTotals(enc, totals)

	writeLines(root, d.Lines)
	writeDocumentTotals(root, totals)
	if d.ReferenceNCF != "" {
		ref := root.CreateElement("InformacionReferencia")
		addText(ref, "NCFModificado", d.ReferenceNCF)
	}
	return doc, nil
}

func validateInvoice(d *entity.FiscalDocument) error {
	r := newRequirements("e-CF")
	if d == nil {
		r.check(false, "documento nulo")
		return r.err()
	}
	r.check(d.TypeCode.Valid(), "IdDoc/TipoeCF inválido")
	r.need("IdDoc/eNCF", d.NCF)
	if d.NCF != "" {
		if t, _, err := ecf.ParseNCF(d.NCF); err != nil {
			r.check(false, "IdDoc/eNCF con formato inválido")
		} else {
			r.check(t == d.TypeCode, "IdDoc/eNCF no corresponde a TipoeCF")
		}
	}
	r.need("Emisor/RNCEmisor", d.Issuer.RNC)
	r.need("Emisor/RazonSocialEmisor", d.Issuer.Name)
	r.need("Emisor/DireccionEmisor", d.Issuer.Address)
	r.check(!d.EmissionAt.IsZero(), "Emisor/FechaEmision")
	if d.TypeCode.RequiresBuyerRNC() {
		r.need("Comprador/RNCComprador", d.Counterparty.RNC)
	}
	if d.Counterparty.RNC != "" {
		r.need("Comprador/RazonSocialComprador", d.Counterparty.Name)
	}
	if d.TypeCode.RequiresReference() {
		r.need("InformacionReferencia/NCFModificado", d.ReferenceNCF)
	}
	r.check(len(d.Lines) > 0, "Detalles/Item (al menos una línea)")
	for i, l := range d.Lines {
		n := i + 1
		r.need(fmt.Sprintf("Item[%d]/Descripcion", n), l.Description)
		r.check(l.Quantity.IsPositive(), fmt.Sprintf("Item[%d]/Cantidad debe ser mayor que cero", n))
		r.check(!l.UnitPrice.IsNegative(), fmt.Sprintf("Item[%d]/PrecioUnitario no puede ser negativo", n))
	}
	return r.err()
}

func writeIdDoc(enc *etree.Element, d *entity.FiscalDocument) {
	id := enc.CreateElement("IdDoc")
	addText(id, "TipoeCF", string(d.TypeCode))
	addText(id, "eNCF", d.NCF)
	addText(id, "IndicadorMontoGravado", ecf.MontoGravadoSinITBIS)
	if d.DueDate != nil {
		addText(id, "FechaLimitePago", ecf.FormatDate(*d.DueDate))
	}
	addOptional(id, "TerminoPago", d.PaymentTerm)
}

func writeEmisor(enc *etree.Element, d *entity.FiscalDocument) {
	is := d.Issuer
	em := enc.CreateElement("Emisor")
	addText(em, "RNCEmisor", ecf.NormalizeTaxID(is.RNC))
	addText(em, "RazonSocialEmisor", is.Name)
	addOptional(em, "NombreComercial", is.TradeName)
	addText(em, "DireccionEmisor", is.Address)
	addOptional(em, "Municipio", is.Municipality)
	addOptional(em, "Provincia", is.Province)
	if len(is.Phones) > 0 {
		table := em.CreateElement("TablaTelefonoEmisor")
		for _, p := range is.Phones {
			ph := table.CreateElement("TelefonoEmisor")
			addText(ph, "NumeroTelefono", p.Number)
			addOptional(ph, "TipoTelefono", p.Type)
		}
	}
	addOptional(em, "CorreoEmisor", is.Email)
	addOptional(em, "WebSite", is.Website)
	addOptional(em, "ActividadEconomica", is.EconomicActivity)
	addOptional(em, "CodigoVendedor", is.SellerCode)
	addOptional(em, "NumeroFacturaInterna", is.InternalInvoiceNumber)
	addOptional(em, "NumeroPedidoInterno", is.InternalOrderNumber)
	addOptional(em, "ZonaVenta", is.SalesZone)
	addOptional(em, "RutaVenta", is.SalesRoute)
	if len(is.AdditionalInfo) > 0 {
		extra := em.CreateElement("InformacionAdicionalEmisor")
		for _, a := range is.AdditionalInfo {
			info := extra.CreateElement("InformacionAdicional")
			info.CreateAttr("nombre", a.Name)
			info.CreateAttr("texto", a.Text)
		}
	}
	addText(em, "FechaEmision", ecf.FormatDate(d.EmissionAt))
}

// consumidor final sin identificar: se omite el bloque completo.
func writeComprador(enc *etree.Element, p entity.Party) {
	if p.RNC == "" && p.Name == "" {
		return
	}
	c := enc.CreateElement("Comprador")
	addOptional(c, "RNCComprador", ecf.NormalizeTaxID(p.RNC))
	addOptional(c, "RazonSocialComprador", p.Name)
	addOptional(c, "DireccionComprador", p.Address)
}

func writeAdditionalInfo(enc *etree.Element, notes string) {
	if notes == "" {
		return
	}
	info := enc.CreateElement("InformacionesAdicionales").CreateElement("InformacionAdicional")
	info.CreateAttr("nombre", "Observaciones")
	info.CreateAttr("texto", notes)
}

// writeHeaderTotals no duplica Totales si un paso anterior ya lo agregó.
func writeHeaderTotals(enc *etree.Element, t entity.Totals) {
	tot, created := ensureChild(enc, "Totales")
	if !created {
		return
	}
	addText(tot, "MontoTotal", fiscal.FormatAmount(t.Total))
	addText(tot, "ValorPagar", fiscal.FormatAmount(t.Total))
	addText(tot, "TotalITBISRetenido", "0.00")
	addText(tot, "TotalISRRetencion", "0.00")
	addText(tot, "TotalITBISPercepcion", "0.00")
}

func writeLines(root *etree.Element, lines []entity.LineItem) {
	det := root.CreateElement("Detalles")
	for i, l := range lines {
		a := fiscal.ComputeLine(l)
		item := det.CreateElement("Item")
		addText(item, "NumeroLinea", strconv.Itoa(i+1))
		addText(item, "Descripcion", l.Description)
		addText(item, "Cantidad", fiscal.FormatQuantity(l.Quantity))
		addText(item, "PrecioUnitario", fiscal.FormatUnitPrice(l.UnitPrice))
		addText(item, "ITBIS", fiscal.FormatAmount(a.Tax))
		addText(item, "MontoItem", fiscal.FormatAmount(a.Total))
	}
}

func writeDocumentTotals(root *etree.Element, t entity.Totals) {
	tot, created := ensureChild(root, "Totales")
	if !created {
		return
	}
	addText(tot, "MontoTotal", fiscal.FormatAmount(t.Total))
	addText(tot, "ITBISTotal", fiscal.FormatAmount(t.Tax))
}
