package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

func latin1(t *testing.T, s string) *bytes.Reader {
	t.Helper()
	enc, err := charmap.ISO8859_1.NewEncoder().String(s)
	require.NoError(t, err)
	return bytes.NewReader([]byte(enc))
}

func TestParseRanges(t *testing.T) {
	csv := "Tipo;Desde;Hasta;Vencimiento\n" +
		"32;1;500;31-12-2027\n" +
		"31;E310000000001;E310000000100;\n" +
		"32;501;1000;\n"
	ranges, err := parseRanges(latin1(t, csv))
	require.NoError(t, err)
	require.Len(t, ranges, 2)

	assert.Equal(t, ecf.TypeCreditoFiscal, ranges[0].Type)
	assert.Equal(t, int64(1), ranges[0].From)
	assert.Equal(t, int64(100), ranges[0].To)
	assert.Nil(t, ranges[0].ValidUntil)

	assert.Equal(t, ecf.TypeConsumo, ranges[1].Type)
	assert.Equal(t, int64(1), ranges[1].From, "se conserva el primer Desde")
	assert.Equal(t, int64(1000), ranges[1].To, "se amplía al mayor Hasta")
	require.NotNil(t, ranges[1].ValidUntil)
	assert.Equal(t, "2027-12-31", ranges[1].ValidUntil.Format("2006-01-02"))
}

func TestParseRanges_RejectsGap(t *testing.T) {
	csv := "Tipo;Desde;Hasta\n" +
		"32;1;100\n" +
		"32;500;600\n"
	ranges, err := parseRanges(strings.NewReader(csv))
	assert.Nil(t, ranges)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tipo 32")
	assert.Contains(t, err.Error(), "1-100 y 500-600 no son contiguos")
}

func TestParseRanges_MergesOverlapOutOfOrder(t *testing.T) {
	csv := "41;201;300;30-06-2027\n" +
		"41;1;250;31-12-2026\n"
	ranges, err := parseRanges(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(1), ranges[0].From)
	assert.Equal(t, int64(300), ranges[0].To)
	require.NotNil(t, ranges[0].ValidUntil)
	assert.Equal(t, "2027-06-30", ranges[0].ValidUntil.Format("2006-01-02"), "se conserva el vencimiento más lejano")
}

func TestParseRanges_Invalid(t *testing.T) {
	cases := map[string]string{
		"tipo desconocido": "99;1;10\n",
		"rango invertido":  "31;10;1\n",
		"tipo cruzado":     "31;E320000000001;E320000000010\n",
		"pocas columnas":   "31;1\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseRanges(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestWriteSQL_NeverShrinks(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeSQL(&out, []authorizedRange{{Type: ecf.TypeCreditoFiscal, From: 1, To: 100}}))
	sql := out.String()
	assert.Contains(t, sql, "VALUES ('31', 0, 100, NULL)")
	assert.Contains(t, sql, "GREATEST(fiscal_sequences.upper_bound, EXCLUDED.upper_bound)")
}
