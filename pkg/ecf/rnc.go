package ecf

import (
	"fmt"
	"unicode"
)

// pesos del dígito verificador del RNC (8 primeros dígitos).
var rncWeights = [8]int{7, 9, 8, 6, 5, 4, 3, 2}

// ValidateTaxID acepta un RNC (9 dígitos) o una cédula (11 dígitos), con o sin guiones.
func ValidateTaxID(taxID string) error {
	digits := extractDigits(taxID)
	switch len(digits) {
	case 9:
		return validateRNC(digits)
	case 11:
		return validateCedula(digits)
	default:
		return fmt.Errorf("ecf: RNC/cédula debe tener 9 u 11 dígitos, se encontraron %d", len(digits))
	}
}

// NormalizeTaxID devuelve solo los dígitos del identificador.
func NormalizeTaxID(taxID string) string {
	return string(extractDigits(taxID))
}

func validateRNC(digits []rune) error {
	var sum int
	for i, w := range rncWeights {
		sum += int(digits[i]-'0') * w
	}
	var expected int
	switch r := sum % 11; r {
	case 0:
		expected = 2
	case 1:
		expected = 1
	default:
		expected = 11 - r
	}
	if got := int(digits[8] - '0'); got != expected {
		return fmt.Errorf("ecf: dígito verificador de RNC inválido: esperado %d, recibido %d", expected, got)
	}
	return nil
}

// la cédula usa Luhn sobre los 10 primeros dígitos.
func validateCedula(digits []rune) error {
	var sum int
	for i := 0; i < 10; i++ {
		d := int(digits[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	expected := (10 - sum%10) % 10
	if got := int(digits[10] - '0'); got != expected {
		return fmt.Errorf("ecf: dígito verificador de cédula inválido: esperado %d, recibido %d", expected, got)
	}
	return nil
}

func extractDigits(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, r)
		}
	}
	return out
}
