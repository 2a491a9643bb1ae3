package ecf

import (
	"fmt"
	"strconv"
)

// NCFPrefix es la letra de serie de los comprobantes electrónicos.
const NCFPrefix = "E"

// NCFCounterWidth es el ancho del secuencial numérico.
const NCFCounterWidth = 10

// MaxCounter es el mayor secuencial representable con NCFCounterWidth dígitos.
const MaxCounter int64 = 9_999_999_999

// FormatNCF arma el e-NCF: "E" + tipo + secuencial de 10 dígitos (ej. E320000000001).
func FormatNCF(t DocumentType, counter int64) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("ecf: tipo de comprobante desconocido %q", t)
	}
	if counter < 1 || counter > MaxCounter {
		return "", fmt.Errorf("ecf: secuencial fuera de rango: %d", counter)
	}
	return fmt.Sprintf("%s%s%0*d", NCFPrefix, t, NCFCounterWidth, counter), nil
}

// ParseNCF separa un e-NCF en tipo y secuencial.
func ParseNCF(ncf string) (DocumentType, int64, error) {
	if len(ncf) != 1+2+NCFCounterWidth || ncf[:1] != NCFPrefix {
		return "", 0, fmt.Errorf("ecf: e-NCF con formato inválido %q", ncf)
	}
	t := DocumentType(ncf[1:3])
	if !t.Valid() {
		return "", 0, fmt.Errorf("ecf: e-NCF con tipo desconocido %q", ncf)
	}
	digits := ncf[3:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, fmt.Errorf("ecf: e-NCF con secuencial no numérico %q", ncf)
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("ecf: e-NCF con secuencial inválido %q", ncf)
	}
	return t, n, nil
}
