// seed_sequences genera el script SQL que registra los rangos de e-NCF
// autorizados por la DGII a partir del CSV exportado de la Oficina Virtual
// (separado por ';', codificado en ISO-8859-1).
//
// Uso: go run ./cmd/seed_sequences [ruta/rangos.csv] [salida.sql]
// Columnas: Tipo;Desde;Hasta;Vencimiento (dd-mm-aaaa, opcional).
// Un rango ya registrado solo se amplía; nunca se reduce.
package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// authorizedRange una fila del CSV ya validada.
type authorizedRange struct {
	Type       ecf.DocumentType
	From       int64
	To         int64
	ValidUntil *time.Time
}

func main() {
	csvPath := "rangos.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	ranges, err := parseRanges(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer rangos: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if len(os.Args) > 2 {
		out, err = os.Create(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
			os.Exit(1)
		}
		defer out.Close()
	}
	if err := writeSQL(out, ranges); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir SQL: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Generados %d rangos desde %s\n", len(ranges), csvPath)
}

// parseRanges lee el CSV en ISO-8859-1. Acepta el NCF completo (E310000000001)
// o solo el número en Desde/Hasta.
func parseRanges(r io.Reader) ([]authorizedRange, error) {
	reader := csv.NewReader(transform.NewReader(r, charmap.ISO8859_1.NewDecoder()))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	byType := make(map[ecf.DocumentType][]authorizedRange)
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "tipo") {
			continue
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("línea %d: se esperan al menos 3 columnas", i+1)
		}
		t := ecf.DocumentType(strings.TrimSpace(rec[0]))
		if !t.Valid() {
			return nil, fmt.Errorf("línea %d: tipo de comprobante %q", i+1, rec[0])
		}
		from, err := sequenceNumber(t, rec[1])
		if err != nil {
			return nil, fmt.Errorf("línea %d: Desde: %w", i+1, err)
		}
		to, err := sequenceNumber(t, rec[2])
		if err != nil {
			return nil, fmt.Errorf("línea %d: Hasta: %w", i+1, err)
		}
		if from < 1 || to < from {
			return nil, fmt.Errorf("línea %d: rango %d-%d inválido", i+1, from, to)
		}
		row := authorizedRange{Type: t, From: from, To: to}
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			d, err := time.ParseInLocation("02-01-2006", strings.TrimSpace(rec[3]), ecf.Location)
			if err != nil {
				return nil, fmt.Errorf("línea %d: Vencimiento: %w", i+1, err)
			}
			row.ValidUntil = &d
		}
		byType[t] = append(byType[t], row)
	}

	out := make([]authorizedRange, 0, len(byType))
	for t, rows := range byType {
		merged, err := mergeRanges(rows)
		if err != nil {
			return nil, fmt.Errorf("tipo %s: %w", t, err)
		}
		out = append(out, merged)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// mergeRanges une las autorizaciones de un mismo tipo, solapadas o contiguas.
// El contador solo guarda un límite superior: un hueco entre rangos es error.
func mergeRanges(rows []authorizedRange) (authorizedRange, error) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].From < rows[j].From })
	cur := rows[0]
	for _, r := range rows[1:] {
		if r.From > cur.To+1 {
			return authorizedRange{}, fmt.Errorf("los rangos %d-%d y %d-%d no son contiguos", cur.From, cur.To, r.From, r.To)
		}
		if r.To > cur.To {
			cur.To = r.To
		}
		if r.ValidUntil != nil && (cur.ValidUntil == nil || r.ValidUntil.After(*cur.ValidUntil)) {
			cur.ValidUntil = r.ValidUntil
		}
	}
	return cur, nil
}

func sequenceNumber(t ecf.DocumentType, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToUpper(raw), "E") {
		pt, n, err := ecf.ParseNCF(strings.ToUpper(raw))
		if err != nil {
			return 0, err
		}
		if pt != t {
			return 0, fmt.Errorf("%s no es del tipo %s", raw, t)
		}
		return n, nil
	}
	var n int64
	if _, err := fmt.Sscan(raw, &n); err != nil {
		return 0, fmt.Errorf("número %q", raw)
	}
	return n, nil
}

func writeSQL(w io.Writer, ranges []authorizedRange) error {
	var b strings.Builder
	b.WriteString("-- Rangos de e-NCF autorizados por la DGII\n")
	b.WriteString("-- Generado por cmd/seed_sequences\n\n")
	for _, r := range ranges {
		validUntil := "NULL"
		if r.ValidUntil != nil {
			validUntil = "'" + r.ValidUntil.Format(time.RFC3339) + "'"
		}
		fmt.Fprintf(&b, "-- %s %s\n", r.Type, r.Type.Name())
		b.WriteString("INSERT INTO fiscal_sequences (type_code, last_issued, upper_bound, valid_until)\n")
		fmt.Fprintf(&b, "VALUES ('%s', %d, %d, %s)\n", r.Type, r.From-1, r.To, validUntil)
		b.WriteString("ON CONFLICT (type_code) DO UPDATE SET\n")
		b.WriteString("  upper_bound = GREATEST(fiscal_sequences.upper_bound, EXCLUDED.upper_bound),\n")
		b.WriteString("  valid_until = COALESCE(EXCLUDED.valid_until, fiscal_sequences.valid_until),\n")
		b.WriteString("  updated_at  = now();\n\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
