package ecf_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

func TestFormatNCF(t *testing.T) {
	ncf, err := ecf.FormatNCF(ecf.TypeConsumo, 1)
	require.NoError(t, err)
	assert.Equal(t, "E320000000001", ncf)

	ncf, err = ecf.FormatNCF(ecf.TypeCreditoFiscal, 9_999_999_999)
	require.NoError(t, err)
	assert.Equal(t, "E319999999999", ncf)

	_, err = ecf.FormatNCF(ecf.TypeConsumo, 0)
	assert.Error(t, err)
	_, err = ecf.FormatNCF("99", 1)
	assert.Error(t, err)
}

func TestParseNCF(t *testing.T) {
	typ, n, err := ecf.ParseNCF("E340000000123")
	require.NoError(t, err)
	assert.Equal(t, ecf.TypeNotaCredito, typ)
	assert.Equal(t, int64(123), n)

	for _, bad := range []string{"", "B0100000001", "E990000000001", "E32000000000A", "E320000000000"} {
		_, _, err := ecf.ParseNCF(bad)
		assert.Error(t, err, "debe rechazar %q", bad)
	}
}

func TestValidateTaxID(t *testing.T) {
	assert.NoError(t, ecf.ValidateTaxID("131246796"))
	assert.NoError(t, ecf.ValidateTaxID("1-31-24679-6"))
	assert.Error(t, ecf.ValidateTaxID("131246797"))

	assert.NoError(t, ecf.ValidateTaxID("001-1391820-5"))
	assert.Error(t, ecf.ValidateTaxID("00113918206"))

	assert.Error(t, ecf.ValidateTaxID("12345"))
}

func TestDocumentTypeCatalogue(t *testing.T) {
	assert.Len(t, ecf.DocumentTypes, 10)
	for _, typ := range ecf.DocumentTypes {
		assert.NotEmpty(t, typ.Name(), "tipo %s sin nombre", typ)
	}
	assert.True(t, ecf.TypeCreditoFiscal.RequiresBuyerRNC())
	assert.False(t, ecf.TypeConsumo.RequiresBuyerRNC())
	assert.True(t, ecf.TypeNotaCredito.RequiresReference())

	_, err := ecf.ParseDocumentType("30")
	assert.Error(t, err)
}

func TestFormatDate_DominicanTime(t *testing.T) {
	// 02:30 UTC del 1 de marzo todavía es 28 de febrero en Santo Domingo
	ts := time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, "28-02-2026", ecf.FormatDate(ts))
	assert.Equal(t, "28-02-2026 22:30:00", ecf.FormatDateTime(ts))
}
