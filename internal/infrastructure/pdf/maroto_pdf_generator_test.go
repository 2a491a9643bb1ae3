package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

func TestFormatMoney(t *testing.T) {
	cases := map[string]string{
		"0":           "RD$0.00",
		"180":         "RD$180.00",
		"1180":        "RD$1,180.00",
		"1234567.891": "RD$1,234,567.89",
		"0.005":       "RD$0.01",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatMoney(decimal.RequireFromString(in)), in)
	}
}

func TestRender_ProducesPDF(t *testing.T) {
	signedAt := time.Date(2026, 4, 10, 15, 5, 0, 0, time.UTC)
	doc := &entity.FiscalDocument{
		TypeCode:     ecf.TypeCreditoFiscal,
		NCF:          "E310000000001",
		Issuer:       entity.IssuerIdentity{RNC: "131246796", Name: "Emisor de Pruebas SRL", Address: "Av. Winston Churchill 1"},
		Counterparty: entity.Party{RNC: "00113918205", Name: "Cliente Final"},
		Lines: []entity.LineItem{{
			Description: "Consultoría",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(1000),
			Taxes:       []entity.LineTax{{Category: ecf.TaxCategoryITBIS, Rate: decimal.NewFromInt(18)}},
		}},
		EmissionAt:   signedAt,
		Status:       entity.StatusAccepted,
		SecurityCode: "AbC123",
		SignedAt:     &signedAt,
	}

	out, err := NewMarotoPDFGenerator().Render(doc, fiscal.NewQRPayload(doc))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "debe ser un PDF")
}
