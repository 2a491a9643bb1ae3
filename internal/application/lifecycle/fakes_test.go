package lifecycle_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/application/lifecycle"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/repository"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii"
	"github.com/jhoicas/ecf-dgii/internal/infrastructure/dgii/signer"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
)

// ── repositorios en memoria ──────────────────────────────────────────────────

type memDocs struct {
	mu   sync.Mutex
	docs map[string]entity.FiscalDocument
}

func newMemDocs() *memDocs { return &memDocs{docs: map[string]entity.FiscalDocument{}} }

func (m *memDocs) Create(_ context.Context, doc *entity.FiscalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = uuid.NewString()
	doc.Version = 1
	m.docs[doc.ID] = *doc
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id string) (*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memDocs) GetByExternalRef(_ context.Context, companyID, ref string) (*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.CompanyID == companyID && d.ExternalRef == ref {
			return &d, nil
		}
	}
	return nil, nil
}

func (m *memDocs) Save(_ context.Context, doc *entity.FiscalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok || cur.Version != doc.Version {
		return domain.ErrConflict
	}
	doc.Version++
	m.docs[doc.ID] = *doc
	return nil
}

func (m *memDocs) ListByStatus(_ context.Context, status entity.DocumentStatus, limit int) ([]*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.FiscalDocument
	for _, d := range m.docs {
		if d.Status == status {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memDocs) ListIssuedOn(_ context.Context, companyID string, typeCode ecf.DocumentType, day time.Time) ([]*entity.FiscalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	y, mo, dd := day.In(ecf.Location).Date()
	var out []*entity.FiscalDocument
	for _, d := range m.docs {
		ey, emo, edd := d.EmissionAt.In(ecf.Location).Date()
		if d.CompanyID == companyID && d.TypeCode == typeCode && d.HasNCF() && ey == y && emo == mo && edd == dd {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NCF < out[j].NCF })
	return out, nil
}

type memArtifacts struct {
	mu    sync.Mutex
	items []entity.SignedArtifact
}

func (m *memArtifacts) Create(_ context.Context, a *entity.SignedArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.NewString()
	m.items = append(m.items, *a)
	return nil
}

func (m *memArtifacts) GetByID(_ context.Context, id string) (*entity.SignedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.items {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *memArtifacts) GetLatestByDocument(_ context.Context, documentID string) (*entity.SignedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].DocumentID == documentID {
			a := m.items[i]
			return &a, nil
		}
	}
	return nil, nil
}

func (m *memArtifacts) ListByCompany(_ context.Context, companyID, kind string, limit int) ([]*entity.SignedArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.SignedArtifact
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		a := m.items[i]
		if a.CompanyID == companyID && (kind == "" || a.Kind == kind) {
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m *memArtifacts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// memTracking ordena por un contador de escrituras en lugar de updated_at.
type memTracking struct {
	mu    sync.Mutex
	recs  map[string]entity.TrackingRecord
	order map[string]int
	seq   int
}

func newMemTracking() *memTracking {
	return &memTracking{recs: map[string]entity.TrackingRecord{}, order: map[string]int{}}
}

func (m *memTracking) Upsert(_ context.Context, rec *entity.TrackingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.recs[rec.TrackID]; ok && cur.Terminal() {
		return nil
	}
	m.seq++
	rec.UpdatedAt = time.Now()
	m.recs[rec.TrackID] = *rec
	m.order[rec.TrackID] = m.seq
	return nil
}

func (m *memTracking) ListDue(_ context.Context, limit int) ([]*entity.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TrackingRecord
	for _, r := range m.recs {
		if !r.Terminal() {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].TrackID] < m.order[out[j].TrackID] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTracking) GetByTrackID(_ context.Context, trackID string) (*entity.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[trackID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memTracking) GetLatestByDocument(_ context.Context, documentID string) (*entity.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.DocumentID == documentID {
			return &r, nil
		}
	}
	return nil, nil
}

// memTx ejecuta fn con los mismos repositorios; no hay rollback.
type memTx struct {
	docs      *memDocs
	artifacts *memArtifacts
	tracking  *memTracking
}

func (t memTx) Run(_ context.Context, fn func(repository.DocumentRepository, repository.ArtifactRepository, repository.TrackingRepository) error) error {
	return fn(t.docs, t.artifacts, t.tracking)
}

// countingAllocator cuenta las reservas por tipo.
type countingAllocator struct {
	mu    sync.Mutex
	next  map[ecf.DocumentType]int64
	calls int
	err   error
}

func (a *countingAllocator) AllocateFor(_ context.Context, t ecf.DocumentType, owner string) (*entity.SequenceIssue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if a.next == nil {
		a.next = map[ecf.DocumentType]int64{}
	}
	a.next[t]++
	ncf, err := ecf.FormatNCF(t, a.next[t])
	if err != nil {
		return nil, err
	}
	return &entity.SequenceIssue{NCF: ncf, TypeCode: t, Number: a.next[t], OwnerRef: owner, IssuedAt: time.Now()}, nil
}

func (a *countingAllocator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// ── doble de la DGII ─────────────────────────────────────────────────────────

// authority responde trackId trk-N en el N-ésimo envío.
type authority struct {
	mu           sync.Mutex
	submitStatus int
	submitBody   string
	trackBody    string
	trackStatus  int
	validateBody string

	seeds   atomic.Int32
	submits atomic.Int32
	tracks  atomic.Int32
}

func newAuthority() *authority {
	return &authority{
		submitStatus: http.StatusOK,
		submitBody:   `{"trackId":"trk-{n}"}`,
		trackStatus:  http.StatusOK,
		trackBody:    `{"trackId":"trk-1","estado":"En Proceso","mensajes":[]}`,
		validateBody: `{"token":"tok-lifecycle","expedido":"2026-04-10T15:00:00Z"}`,
	}
}

func (a *authority) setValidate(body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.validateBody = body
}

func (a *authority) setSubmit(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitStatus, a.submitBody = status, body
}

func (a *authority) setTrack(status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trackStatus, a.trackBody = status, body
}

func (a *authority) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/Autenticacion/api/Autenticacion/Semilla", func(w http.ResponseWriter, _ *http.Request) {
		a.seeds.Add(1)
		_, _ = io.WriteString(w, `<SemillaModel><valor>semilla</valor></SemillaModel>`)
	})
	mux.HandleFunc("/Autenticacion/api/Autenticacion/ValidarSemilla", func(w http.ResponseWriter, _ *http.Request) {
		a.mu.Lock()
		body := a.validateBody
		a.mu.Unlock()
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/Recepcion/api/FacturasElectronicas", func(w http.ResponseWriter, _ *http.Request) {
		n := a.submits.Add(1)
		a.mu.Lock()
		status, body := a.submitStatus, a.submitBody
		a.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, strings.ReplaceAll(body, "{n}", strconv.Itoa(int(n))))
	})
	mux.HandleFunc("/consultaresultado/api/consultas/estado", func(w http.ResponseWriter, _ *http.Request) {
		a.tracks.Add(1)
		a.mu.Lock()
		status, body := a.trackStatus, a.trackBody
		a.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ── ensamblado ───────────────────────────────────────────────────────────────

type harness struct {
	coord     *lifecycle.Coordinator
	docs      *memDocs
	artifacts *memArtifacts
	tracking  *memTracking
	allocator *countingAllocator
	authority *authority
}

func newTestSigner(t *testing.T) *signer.Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "Emisor de pruebas"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return signer.NewService(&signer.Credential{Certificate: cert, PrivateKey: key})
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		docs:      newMemDocs(),
		artifacts: &memArtifacts{},
		tracking:  newMemTracking(),
		allocator: &countingAllocator{},
		authority: newAuthority(),
	}
	srv := h.authority.server(t)
	ep, err := dgii.NewEndpoints(dgii.EnvTest, srv.URL)
	require.NoError(t, err)

	sig := newTestSigner(t)
	log := zerolog.Nop()
	h.coord = lifecycle.NewCoordinator(lifecycle.Deps{
		Documents: h.docs,
		Artifacts: h.artifacts,
		Tracking:  h.tracking,
		Tx:        memTx{docs: h.docs, artifacts: h.artifacts, tracking: h.tracking},
		Allocator: h.allocator,
		Builder:   dgii.NewXMLBuilder(),
		Signer:    sig,
		Auth:      dgii.NewAuthClient(dgii.AuthClientConfig{Endpoints: ep, Username: "usuario", Password: "clave"}, sig, nil, log),
		Submitter: dgii.NewSubmissionClient(dgii.SubmissionClientConfig{Endpoints: ep, TrackTimeout: 2 * time.Second}, nil, log),
		Logger:    log,
	}, lifecycle.PollConfig{Concurrency: 2, BatchSize: 10})
	return h
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func invoice(ref string) *entity.FiscalDocument {
	return &entity.FiscalDocument{
		CompanyID:   "empresa-1",
		ExternalRef: ref,
		TypeCode:    ecf.TypeCreditoFiscal,
		Issuer: entity.IssuerIdentity{
			RNC:     "131246796",
			Name:    "Emisor de Pruebas SRL",
			Address: "Av. Winston Churchill 1",
		},
		Counterparty: entity.Party{RNC: "00113918205", Name: "Cliente Final"},
		Lines: []entity.LineItem{{
			Description: "Consultoría",
			Quantity:    dec("1"),
			UnitPrice:   dec("1000.00"),
			Taxes:       []entity.LineTax{{Category: ecf.TaxCategoryITBIS, Rate: dec("18")}},
		}},
		EmissionAt: time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC),
	}
}

func (h *harness) register(t *testing.T, ref string) *entity.FiscalDocument {
	t.Helper()
	doc, err := h.coord.Register(context.Background(), invoice(ref))
	require.NoError(t, err)
	return doc
}
