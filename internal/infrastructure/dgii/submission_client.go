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
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/metrics"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// SubmissionClientConfig destino y plazos de recepción y consulta.
type SubmissionClientConfig struct {
	Endpoints     Endpoints
	SubmitTimeout time.Duration // plazo del envío (60 s por defecto)
	TrackTimeout  time.Duration // plazo corto de cada consulta (30 s por defecto)
	TrackRate     float64       // consultas por segundo hacia la DGII; 0 = sin límite
}

// SubmissionClient envía documentos firmados y consulta su estado.
// Usa net/http de la stdlib.
type SubmissionClient struct {
	httpClient *http.Client
	cfg        SubmissionClientConfig
	limiter    *rate.Limiter
	metrics    *metrics.Collectors
	log        zerolog.Logger
}

// NewSubmissionClient construye el cliente.
func NewSubmissionClient(cfg SubmissionClientConfig, m *metrics.Collectors, log zerolog.Logger) *SubmissionClient {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 60 * time.Second
	}
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.TrackRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TrackRate), 1)
	}
	return &SubmissionClient{
		httpClient: &http.Client{Timeout: cfg.SubmitTimeout},
		cfg:        cfg,
		limiter:    limiter,
		metrics:    m,
		log:        log.With().Str("component", "dgii_submission").Logger(),
	}
}

type submitResponse struct {
	TrackID string `json:"trackId"`
}

// Submit envía el XML firmado y devuelve el TrackID.
func (c *SubmissionClient) Submit(ctx context.Context, signedXML []byte, fileName string, session *entity.AuthSession) (string, error) {
	if session == nil || session.Token == "" {
		return "", domain.NewError(domain.ErrCredentialRejected, fiscal.StepSubmit, "", errors.New("sin token de sesión"))
	}
	start := time.Now()
	body, contentType, err := xmlMultipart(fileName, signedXML)
	if err != nil {
		return "", fmt.Errorf("dgii: armar multipart: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoints.Submit(), body)
	if err != nil {
		return "", fmt.Errorf("dgii: crear request envío: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)

	resp, err := do(c.httpClient, req)
	if err != nil {
		err = domain.NewError(domain.ErrTransient, fiscal.StepSubmit, "", err)
		c.metrics.Authority("submit", start, err)
		return "", err
	}
	if !resp.ok() {
		err := c.statusError(fiscal.StepSubmit, resp, domain.ErrSubmissionRejected)
		c.metrics.Authority("submit", start, err)
		c.log.Warn().Int("status", resp.Status).Str("file", fileName).Msg("envío rechazado")
		return "", err
	}
	var out submitResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil || strings.TrimSpace(out.TrackID) == "" {
		err := domain.NewError(domain.ErrSubmissionRejected, fiscal.StepSubmit, resp.raw(), errors.New("respuesta sin trackId"))
		c.metrics.Authority("submit", start, err)
		return "", err
	}
	c.metrics.Authority("submit", start, nil)
	c.log.Info().Str("file", fileName).Str("track_id", out.TrackID).Dur("duration", time.Since(start)).Msg("documento recibido por la DGII")
	return out.TrackID, nil
}

type trackMessage struct {
	Valor  string `json:"valor"`
	Codigo string `json:"codigo"`
}

type trackResponse struct {
	TrackID  string         `json:"trackId"`
	Codigo   string         `json:"codigo"`
	Estado   string         `json:"estado"`
	Mensajes []trackMessage `json:"mensajes"`
}

// Track consulta el estado de un TrackID. Es idempotente; respeta el límite de
// frecuencia configurado y un plazo corto por llamada.
func (c *SubmissionClient) Track(ctx context.Context, trackID string, session *entity.AuthSession) (entity.TrackingResult, error) {
	if session == nil || session.Token == "" {
		return entity.TrackingResult{}, domain.NewError(domain.ErrCredentialRejected, fiscal.StepTrack, "", errors.New("sin token de sesión"))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return entity.TrackingResult{}, domain.NewError(domain.ErrTransient, fiscal.StepTrack, "", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TrackTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoints.Track(trackID), nil)
	if err != nil {
		return entity.TrackingResult{}, fmt.Errorf("dgii: crear request consulta: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.Token)

	resp, err := do(c.httpClient, req)
	if err != nil {
		err = domain.NewError(domain.ErrTransient, fiscal.StepTrack, "", err)
		c.metrics.Authority("track", start, err)
		return entity.TrackingResult{}, err
	}
	if !resp.ok() {
		err := c.statusError(fiscal.StepTrack, resp, domain.ErrTransient)
		c.metrics.Authority("track", start, err)
		return entity.TrackingResult{}, err
	}
	var out trackResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		err := domain.NewError(domain.ErrTransient, fiscal.StepTrack, resp.raw(), fmt.Errorf("respuesta de consulta ilegible: %w", err))
		c.metrics.Authority("track", start, err)
		return entity.TrackingResult{}, err
	}
	c.metrics.Authority("track", start, nil)

	messages := lo.Compact(lo.Map(out.Mensajes, func(m trackMessage, _ int) string {
		return strings.TrimSpace(m.Valor)
	}))
	result := MapAuthorityState(out.Estado, messages)
	c.metrics.TrackingPoll(string(result.State))
	c.log.Debug().Str("track_id", trackID).Str("estado", out.Estado).Msg("estado consultado")
	return result, nil
}

// MapAuthorityState traduce el estado de la DGII: Aceptado → accepted,
// Rechazado → rejected con sus mensajes; cualquier otro valor → pending.
func MapAuthorityState(estado string, messages []string) entity.TrackingResult {
	res := entity.TrackingResult{State: entity.TrackingPending, AuthorityState: estado, Messages: messages}
	switch {
	case strings.EqualFold(strings.TrimSpace(estado), ecf.AuthorityAccepted):
		res.State = entity.TrackingAccepted
	case strings.EqualFold(strings.TrimSpace(estado), ecf.AuthorityRejected):
		res.State = entity.TrackingRejected
	}
	return res
}

// 401/403 invalidan la sesión; el resto usa la clase indicada.
func (c *SubmissionClient) statusError(step string, resp response, kind error) error {
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
		kind = domain.ErrCredentialRejected
	}
	return domain.NewError(kind, step, resp.raw(), fmt.Errorf("HTTP %d", resp.Status))
}
