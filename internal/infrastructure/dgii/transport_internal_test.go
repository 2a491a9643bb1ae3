package dgii

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRaw_TruncatesOnRuneBoundary(t *testing.T) {
	// "ó" ocupa los bytes 1999 y 2000: el corte no puede partirlo
	body := strings.Repeat("a", maxRawText-1) + "ó" + strings.Repeat("b", 50)
	text := response{Status: http.StatusBadRequest, Body: []byte(body)}.raw()

	assert.True(t, utf8.ValidString(text))
	assert.LessOrEqual(t, len(text), maxRawText)
	assert.Equal(t, strings.Repeat("a", maxRawText-1), text)
}

func TestRaw_InvalidBytesAreReplaced(t *testing.T) {
	text := response{Status: http.StatusBadRequest, Body: []byte("Validaci\xf3n fallida")}.raw()
	assert.True(t, utf8.ValidString(text))
	assert.Equal(t, "Validaci�n fallida", text)
}

func TestRaw_EmptyBodyUsesStatusText(t *testing.T) {
	assert.Equal(t, "Bad Gateway", response{Status: http.StatusBadGateway}.raw())
}
