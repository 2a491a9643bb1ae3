package dgii

import (
	"fmt"
	"net/url"
	"strings"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvTest ambiente de pruebas (TesteCF).
	EnvTest = "test"
	// EnvCert ambiente de certificación (CerteCF).
	EnvCert = "cert"
	// EnvProd ambiente de producción (eCF).
	EnvProd = "prod"
)

var baseURLs = map[string]string{
	EnvTest: "https://ecf.dgii.gov.do/testecf",
	EnvCert: "https://ecf.dgii.gov.do/certecf",
	EnvProd: "https://ecf.dgii.gov.do/ecf",
}

const (
	pathSeed         = "/Autenticacion/api/Autenticacion/Semilla"
	pathValidateSeed = "/Autenticacion/api/Autenticacion/ValidarSemilla"
	pathSubmit       = "/Recepcion/api/FacturasElectronicas"
	pathTrack        = "/consultaresultado/api/consultas/estado"
)

// Endpoints URLs de la DGII para un ambiente.
type Endpoints struct {
	Base string
}

// NewEndpoints resuelve la URL base del ambiente; override (si no está vacío) la reemplaza.
func NewEndpoints(env, override string) (Endpoints, error) {
	if override != "" {
		u, err := url.Parse(override)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return Endpoints{}, fmt.Errorf("dgii: URL base inválida %q", override)
		}
		return Endpoints{Base: strings.TrimRight(override, "/")}, nil
	}
	base, ok := baseURLs[env]
	if !ok {
		return Endpoints{}, fmt.Errorf("dgii: ambiente desconocido %q (test, cert, prod)", env)
	}
	return Endpoints{Base: base}, nil
}

func (e Endpoints) Seed() string         { return e.Base + pathSeed }
func (e Endpoints) ValidateSeed() string { return e.Base + pathValidateSeed }
func (e Endpoints) Submit() string       { return e.Base + pathSubmit }

// Track URL de consulta con el parámetro trackid.
func (e Endpoints) Track(trackID string) string {
	return e.Base + pathTrack + "?" + url.Values{"trackid": {trackID}}.Encode()
}
