package dgii

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
)

func TestWriteHeaderTotals_DoesNotDuplicate(t *testing.T) {
	enc := etree.NewElement("Encabezado")
	first := entity.Totals{Total: decimal.NewFromInt(100), Tax: decimal.NewFromInt(18)}

	writeHeaderTotals(enc, first)
	writeHeaderTotals(enc, entity.Totals{Total: decimal.NewFromInt(999)})

	assert.Len(t, enc.SelectElements("Totales"), 1)
	assert.Equal(t, "100.00", enc.FindElement("Totales/MontoTotal").Text(), "conserva el bloque ya presente")
}

func TestWriteDocumentTotals_DoesNotDuplicate(t *testing.T) {
	root := etree.NewElement("ECF")
	writeDocumentTotals(root, entity.Totals{Total: decimal.NewFromInt(1)})
	writeDocumentTotals(root, entity.Totals{Total: decimal.NewFromInt(2)})

	assert.Len(t, root.SelectElements("Totales"), 1)
}
