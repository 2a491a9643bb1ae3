package dgii

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// SummaryBuilder resumen de facturas de consumo (RFCE).
type SummaryBuilder struct{}

// SummaryTotals totales agregados del resumen, sin redondear.
type SummaryTotals struct {
	Tax    decimal.Decimal
	Exempt decimal.Decimal // monto sin impuestos de las facturas sin ITBIS
	Total  decimal.Decimal
}

// AggregateSummary suma los montos de las facturas incluidas.
func AggregateSummary(entries []entity.SummaryEntry) SummaryTotals {
	sum := func(pick func(entity.SummaryEntry) decimal.Decimal) func(decimal.Decimal, entity.SummaryEntry, int) decimal.Decimal {
		return func(acc decimal.Decimal, e entity.SummaryEntry, _ int) decimal.Decimal { return acc.Add(pick(e)) }
	}
	exempt := lo.Filter(entries, func(e entity.SummaryEntry, _ int) bool { return e.Tax.IsZero() })
	return SummaryTotals{
		Tax:    lo.Reduce(entries, sum(func(e entity.SummaryEntry) decimal.Decimal { return e.Tax }), decimal.Zero),
		Exempt: lo.Reduce(exempt, sum(func(e entity.SummaryEntry) decimal.Decimal { return e.Untaxed }), decimal.Zero),
		Total:  lo.Reduce(entries, sum(func(e entity.SummaryEntry) decimal.Decimal { return e.Total }), decimal.Zero),
	}
}

// Build genera ResumenFacturasConsumo con el placeholder de firma al final.
func (SummaryBuilder) Build(s *entity.ConsumerSummary) (*etree.Document, error) {
	r := newRequirements("resumen de facturas de consumo")
	if s == nil {
		r.check(false, "resumen nulo")
		return nil, r.err()
	}
	r.need("Encabezado/RNCEmisor", s.IssuerRNC)
	r.check(!s.Date.IsZero(), "Encabezado/FechaEmision")
	r.check(len(s.Entries) > 0, "al menos una factura de consumo")
	for _, e := range s.Entries {
		t, _, err := ecf.ParseNCF(e.NCF)
		r.check(err == nil && t == ecf.TypeConsumo, "solo se resumen facturas de consumo (32): "+e.NCF)
	}
	dups := lo.FindDuplicatesBy(s.Entries, func(e entity.SummaryEntry) string { return e.NCF })
	r.check(len(dups) == 0, "facturas repetidas en el resumen")
	if err := r.err(); err != nil {
		return nil, err
	}

	totals := AggregateSummary(s.Entries)

	doc := newDocument()
	root := doc.CreateElement("ResumenFacturasConsumo")
	enc := root.CreateElement("Encabezado")
	addText(enc, "Version", ecf.SchemaVersion)
	addText(enc, "RNCEmisor", ecf.NormalizeTaxID(s.IssuerRNC))
	addText(enc, "FechaEmision", ecf.FormatDate(s.Date))
	addText(enc, "CantidadFacturas", strconv.Itoa(len(s.Entries)))

	tot, _ := ensureChild(root, "Totales")
	addText(tot, "TotalITBIS", fiscal.FormatAmount(totals.Tax))
	addText(tot, "MontoExento", fiscal.FormatAmount(totals.Exempt))
	addText(tot, "MontoTotal", fiscal.FormatAmount(totals.Total))
	root.CreateElement(signaturePlaceholder)
	return doc, nil
}
