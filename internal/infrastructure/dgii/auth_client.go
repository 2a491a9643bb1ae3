package dgii

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// XMLSigner firma un XML (lo implementa *signer.Service).
type XMLSigner interface {
	Sign(unsigned []byte) (*signer.Result, error)
}

// AuthState estado del handshake semilla → firma → validación.
type AuthState int

const (
	NoSession AuthState = iota
	SeedFetched
	SeedSigned
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case SeedFetched:
		return "SeedFetched"
	case SeedSigned:
		return "SeedSigned"
	case Authenticated:
		return "Authenticated"
	default:
		return "NoSession"
	}
}

// AuthClientConfig credenciales y destino del servicio de autenticación.
type AuthClientConfig struct {
	Endpoints Endpoints
	Username  string
	Password  string
	Timeout   time.Duration
}

// AuthClient obtiene tokens Bearer de la DGII. Cada lote de envío crea su propio
// Handshake: el token no se reutiliza entre operaciones no relacionadas.
type AuthClient struct {
	httpClient *http.Client
	cfg        AuthClientConfig
	signer     XMLSigner
	metrics    *metrics.Collectors
	log        zerolog.Logger
	now        func() time.Time
}

// NewAuthClient construye el cliente.
func NewAuthClient(cfg AuthClientConfig, s XMLSigner, m *metrics.Collectors, log zerolog.Logger) *AuthClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &AuthClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		signer:     s,
		metrics:    m,
		log:        log.With().Str("component", "dgii_auth").Logger(),
		now:        time.Now,
	}
}

// Authenticate recorre el handshake completo y devuelve la sesión.
func (c *AuthClient) Authenticate(ctx context.Context) (*entity.AuthSession, error) {
	h := c.Begin()
	seed, err := h.FetchSeed(ctx)
	if err != nil {
		return nil, err
	}
	signed, err := h.SignSeed(seed)
	if err != nil {
		return nil, err
	}
	return h.ValidateSeed(ctx, signed)
}

// Begin inicia un handshake en NoSession.
func (c *AuthClient) Begin() *Handshake {
	return &Handshake{client: c}
}

// Handshake máquina de estados de una autenticación. No es segura para uso concurrente.
type Handshake struct {
	client *AuthClient
	state  AuthState
}

// State estado actual.
func (h *Handshake) State() AuthState { return h.state }

func (h *Handshake) expect(s AuthState, op string) error {
	if h.state != s {
		return fmt.Errorf("%w: %s requiere %s, estado actual %s", domain.ErrInvalidTransition, op, s, h.state)
	}
	return nil
}

// FetchSeed descarga la semilla con autenticación básica.
func (h *Handshake) FetchSeed(ctx context.Context) ([]byte, error) {
	if err := h.expect(NoSession, "FetchSeed"); err != nil {
		return nil, err
	}
	c := h.client
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoints.Seed(), nil)
	if err != nil {
		return nil, fmt.Errorf("dgii: crear request semilla: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/xml")

	resp, err := do(c.httpClient, req)
	if err != nil {
		err = c.networkError(ctx, err)
		c.metrics.Authority("seed", start, err)
		return nil, err
	}
	if !resp.ok() {
		err := domain.NewError(domain.ErrAuthUnavailable, fiscal.StepAuth, resp.raw(), fmt.Errorf("semilla: HTTP %d", resp.Status))
		c.metrics.Authority("seed", start, err)
		c.log.Warn().Int("status", resp.Status).Msg("semilla rechazada")
		return nil, err
	}
	c.metrics.Authority("seed", start, nil)
	c.log.Debug().Dur("duration", time.Since(start)).Msg("semilla obtenida")
	h.state = SeedFetched
	return resp.Body, nil
}

// SignSeed firma la semilla con la credencial local.
func (h *Handshake) SignSeed(seed []byte) ([]byte, error) {
	if err := h.expect(SeedFetched, "SignSeed"); err != nil {
		return nil, err
	}
	if h.client.signer == nil {
		return nil, domain.NewError(domain.ErrInvalidCredential, fiscal.StepAuth, "", errors.New("no hay firmador configurado"))
	}
	res, err := h.client.signer.Sign(seed)
	if err != nil {
		return nil, fmt.Errorf("dgii: firmar semilla: %w", err)
	}
	h.state = SeedSigned
	return res.SignedXML, nil
}

type validateSeedResponse struct {
	Token    string `json:"token"`
	Expira   string `json:"expira"`
	Expedido string `json:"expedido"`
}

// ValidateSeed envía la semilla firmada y devuelve el token.
func (h *Handshake) ValidateSeed(ctx context.Context, signed []byte) (*entity.AuthSession, error) {
	if err := h.expect(SeedSigned, "ValidateSeed"); err != nil {
		return nil, err
	}
	c := h.client
	start := time.Now()
	body, contentType, err := xmlMultipart("signed.xml", signed)
	if err != nil {
		return nil, fmt.Errorf("dgii: armar multipart: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.ValidateSeed(), body)
	if err != nil {
		return nil, fmt.Errorf("dgii: crear request validación: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := do(c.httpClient, req)
	if err != nil {
		err = c.networkError(ctx, err)
		c.metrics.Authority("validate_seed", start, err)
		return nil, err
	}
	if !resp.ok() {
		err := domain.NewError(domain.ErrCredentialRejected, fiscal.StepAuth, resp.raw(), fmt.Errorf("validar semilla: HTTP %d", resp.Status))
		c.metrics.Authority("validate_seed", start, err)
		c.log.Warn().Int("status", resp.Status).Msg("semilla firmada rechazada")
		return nil, err
	}
	var out validateSeedResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil || strings.TrimSpace(out.Token) == "" {
		err := domain.NewError(domain.ErrCredentialRejected, fiscal.StepAuth, resp.raw(), errors.New("respuesta sin token"))
		c.metrics.Authority("validate_seed", start, err)
		return nil, err
	}
	c.metrics.Authority("validate_seed", start, nil)

	session := &entity.AuthSession{
		Token:     out.Token,
		IssuedAt:  parseAuthorityTime(out.Expedido, c.now()),
		ExpiresAt: parseAuthorityTime(out.Expira, time.Time{}),
	}
	h.state = Authenticated
	c.log.Info().Str("token_ref", session.Fingerprint()).Msg("sesión DGII autenticada")
	return session, nil
}

func (c *AuthClient) networkError(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return domain.NewError(domain.ErrTransient, fiscal.StepAuth, "", err)
	}
	return domain.NewError(domain.ErrAuthUnavailable, fiscal.StepAuth, "", err)
}

// la DGII informa fechas ISO-8601, con o sin zona.
func parseAuthorityTime(s string, def time.Time) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, ecf.Location); err == nil {
		return t
	}
	return def
}
