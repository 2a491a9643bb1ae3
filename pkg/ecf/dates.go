package ecf

import "time"

// Location hora de República Dominicana (UTC-4, sin horario de verano).
var Location = time.FixedZone("AST", -4*60*60)

// FormatDate fecha dd-mm-aaaa en hora local dominicana.
func FormatDate(t time.Time) string {
	return t.In(Location).Format(DateLayout)
}

// FormatDateTime fecha y hora dd-mm-aaaa HH:MM:SS en hora local dominicana.
func FormatDateTime(t time.Time) string {
	return t.In(Location).Format(DateTimeLayout)
}
