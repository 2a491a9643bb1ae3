package dgii

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// CancellationBuilder anulación de rangos de e-NCF (ANECF).
type CancellationBuilder struct{}

// Build genera CancelacionSecuencia: encabezado con el total anulado y una
// entrada por rango.
func (CancellationBuilder) Build(b *entity.CancellationBatch) (*etree.Document, error) {
	r := newRequirements("anulación de secuencias")
	if b == nil {
		r.check(false, "lote nulo")
		return nil, r.err()
	}
	r.need("Encabezado/RNCEmisor", b.IssuerRNC)
	r.check(!b.GeneratedAt.IsZero(), "Encabezado/FechaHoraGeneracion")
	r.check(len(b.Ranges) > 0, "DetalleAnulacion (al menos un rango)")
	for i, rg := range b.Ranges {
		validateRange(r, i+1, rg)
	}
	if err := r.err(); err != nil {
		return nil, err
	}

	doc := newDocument()
	root := doc.CreateElement("CancelacionSecuencia")
	enc := root.CreateElement("Encabezado")
	addText(enc, "Version", ecf.SchemaVersion)
	addText(enc, "RNCEmisor", ecf.NormalizeTaxID(b.IssuerRNC))
	addText(enc, "CantidadComprobantesAnulados", strconv.Itoa(b.Count()))
	addText(enc, "FechaHoraGeneracion", ecf.FormatDateTime(b.GeneratedAt))

	det := root.CreateElement("DetalleAnulacion")
	for i, rg := range b.Ranges {
		a := det.CreateElement("Anulacion")
		addText(a, "NoLinea", strconv.Itoa(i+1))
		addText(a, "TipoeCF", string(rg.TypeCode))
		addText(a, "SecuenciaeNCFDesde", rg.From)
		addText(a, "SecuenciaeNCFHasta", rg.To)
		addText(a, "CantidadeNCFAnulados", strconv.Itoa(rg.Count))
	}
	return doc, nil
}

func validateRange(r *requirements, n int, rg entity.CancelledRange) {
	prefix := fmt.Sprintf("Anulacion[%d]", n)
	if !rg.TypeCode.Valid() {
		r.check(false, prefix+"/TipoeCF inválido")
		return
	}
	fromType, from, errFrom := ecf.ParseNCF(rg.From)
	toType, to, errTo := ecf.ParseNCF(rg.To)
	if errFrom != nil || errTo != nil {
		r.check(false, prefix+"/SecuenciaeNCFDesde y SecuenciaeNCFHasta deben ser e-NCF válidos")
		return
	}
	r.check(fromType == rg.TypeCode && toType == rg.TypeCode, prefix+" mezcla tipos de comprobante")
	r.check(to >= from, prefix+"/SecuenciaeNCFHasta menor que SecuenciaeNCFDesde")
	r.check(int64(rg.Count) == to-from+1, prefix+"/CantidadeNCFAnulados no coincide con el rango")
}
