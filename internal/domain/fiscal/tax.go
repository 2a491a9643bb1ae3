// Package fiscal reúne las reglas puras del e-CF: cálculo de ITBIS, transiciones
// del ciclo de vida y la carga útil del código QR.
package fiscal

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

var hundred = decimal.NewFromInt(100)

// LineAmounts montos de una línea sin redondear.
type LineAmounts struct {
	Subtotal decimal.Decimal
	Rate     decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ITBISRate suma las tasas de todos los impuestos de categoría ITBIS de la línea.
func ITBISRate(taxes []entity.LineTax) decimal.Decimal {
	rate := decimal.Zero
	for _, t := range taxes {
		if strings.EqualFold(strings.TrimSpace(t.Category), ecf.TaxCategoryITBIS) {
			rate = rate.Add(t.Rate)
		}
	}
	return rate
}

// ComputeLine calcula subtotal, ITBIS y total de una línea. No redondea.
func ComputeLine(l entity.LineItem) LineAmounts {
	subtotal := l.Quantity.Mul(l.UnitPrice)
	rate := ITBISRate(l.Taxes)
	tax := subtotal.Mul(rate).Div(hundred)
	return LineAmounts{
		Subtotal: subtotal,
		Rate:     rate,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// ComputeTotals suma los componentes sin redondear de todas las líneas.
func ComputeTotals(lines []entity.LineItem) entity.Totals {
	var t entity.Totals
	for _, l := range lines {
		a := ComputeLine(l)
		t.Untaxed = t.Untaxed.Add(a.Subtotal)
		t.Tax = t.Tax.Add(a.Tax)
		t.Total = t.Total.Add(a.Total)
	}
	return t
}

// FormatAmount redondea a 2 decimales (mitad hacia arriba) solo al serializar.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatUnitPrice admite hasta 4 decimales; nunca menos de 2.
func FormatUnitPrice(d decimal.Decimal) string {
	r := d.Round(4)
	if r.Equal(r.Round(2)) {
		return r.StringFixed(2)
	}
	return r.String()
}

// FormatQuantity representa cantidades sin ceros sobrantes.
func FormatQuantity(d decimal.Decimal) string {
	return d.String()
}
