// Package pdf genera la representación impresa de un e-CF.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razón Social + RNC  │  Tipo e-CF + e-NCF + Fecha   │
//	│  EMISOR: Dirección / Tel / Email                             │
//	│  COMPRADOR: Razón social + RNC                               │
//	│  TABLA: Cant | Descripción | P.Unit | ITBIS% | Monto         │
//	│  TOTALES: Subtotal / ITBIS / MONTO TOTAL                     │
//	│  FOOTER: QR + Código de seguridad + Fecha de firma           │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 45, Blue: 98}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
)

// montos en formato RD$ 1,180.00
var printer = message.NewPrinter(language.AmericanEnglish)

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa documents.PDFRenderer usando Maroto v2.
type MarotoPDFGenerator struct{}

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// Render genera el PDF de un documento firmado y devuelve sus bytes.
func (g *MarotoPDFGenerator) Render(doc *entity.FiscalDocument, qr fiscal.QRPayload) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(doc.TypeCode.Name()+" "+doc.NCF, true).
		WithAuthor(doc.Issuer.Name, true).
		Build()

	m := maroto.New(cfg)
	totals := fiscal.ComputeTotals(doc.Lines)

	m.AddRows(headerRow(doc))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(issuerRow(doc.Issuer))
	m.AddRows(buyerRow(doc.Counterparty))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(tableDetailRows(doc.Lines)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(totals))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(doc, qr)...)

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return out.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(doc *entity.FiscalDocument) core.Row {
	return row.New(18).Add(
		col.New(7).Add(
			text.New(doc.Issuer.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("RNC: "+doc.Issuer.RNC, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(doc.TypeCode.Name(), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New("e-NCF: "+doc.NCF, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha de emisión: "+ecf.FormatDate(doc.EmissionAt), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func issuerRow(is entity.IssuerIdentity) core.Row {
	phone := "—"
	if len(is.Phones) > 0 {
		phone = is.Phones[0].Number
	}
	return row.New(12).Add(
		col.New(12).Add(
			text.New("EMISOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Dirección: %s   |   Tel: %s   |   Email: %s",
				nonEmpty(is.Address, "—"),
				phone,
				nonEmpty(is.Email, "—"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

func buyerRow(p entity.Party) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("COMPRADOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(p.Name, "Consumidor final"), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New("RNC/Cédula: "+nonEmpty(p.RNC, "—"), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("Precio Unit.", 2, align.Right),
		h("ITBIS%", 1, align.Center),
		h("Monto", 3, align.Right),
	).WithStyle(&props.Cell{BackgroundColor: colorPrimary})
}

func tableDetailRows(lines []entity.LineItem) []core.Row {
	result := make([]core.Row, 0, len(lines))
	for _, l := range lines {
		amounts := fiscal.ComputeLine(l)
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				fiscal.FormatQuantity(l.Quantity),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(5).Add(text.New(
				l.Description,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				formatMoney(l.UnitPrice),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(1).Add(text.New(
				fiscal.ITBISRate(l.Taxes).String()+"%",
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(3).Add(text.New(
				formatMoney(amounts.Total),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

func totalsRow(t entity.Totals) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	grand := func(s string, right float64) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 10, Align: align.Right,
			Color: colorPrimary, Right: right,
		})
	}

	return row.New(26).Add(
		col.New(3),
		col.New(3).Add(
			label("Subtotal:"),
			label("ITBIS:"),
			grand("MONTO TOTAL:", 2),
		),
		col.New(3).Add(
			value(formatMoney(t.Untaxed)),
			value(formatMoney(t.Tax)),
			grand(formatMoney(t.Total), 1),
		),
		col.New(3),
	)
}

// footerRows: QR con la carga de consulta, código de seguridad y fecha de firma.
func footerRows(doc *entity.FiscalDocument, qr fiscal.QRPayload) []core.Row {
	signedAt := "—"
	if doc.SignedAt != nil {
		signedAt = ecf.FormatDateTime(*doc.SignedAt)
	}
	return []core.Row{
		row.New(50).Add(
			col.New(4).Add(code.NewQr(qr.String(), props.Rect{Percent: 95, Center: true})),
			col.New(8).Add(
				text.New("Código de seguridad: "+doc.SecurityCode, props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 4, Left: 3, Color: colorPrimary,
				}),
				text.New("Fecha de firma digital: "+signedAt, props.Text{
					Size: 8, Top: 12, Left: 3, Color: colorGray,
				}),
				text.New("Estado: "+qr.Status, props.Text{
					Size: 8, Top: 18, Left: 3, Color: colorGray,
				}),
			),
		),
		row.New(8).Add(col.New(12).Add(
			text.New(
				"Representación impresa de un comprobante fiscal electrónico. "+
					"Escanee el código QR para consultar su validez ante la DGII.",
				props.Text{Size: 6.5, Color: colorGray, Top: 2},
			),
		)),
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney redondea a dos decimales y agrega separador de miles: RD$1,180.00.
func formatMoney(d decimal.Decimal) string {
	return "RD$" + printer.Sprint(number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}
