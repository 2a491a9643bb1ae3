package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ecf-dgii/internal/application/dto"
	"github.com/jhoicas/ecf-dgii/internal/application/lifecycle"
	"github.com/jhoicas/ecf-dgii/internal/domain"
	"github.com/jhoicas/ecf-dgii/internal/domain/entity"
	"github.com/jhoicas/ecf-dgii/internal/domain/fiscal"
	apphttp "github.com/jhoicas/ecf-dgii/internal/interfaces/http"
	"github.com/jhoicas/ecf-dgii/pkg/ecf"
	pkgjwt "github.com/jhoicas/ecf-dgii/pkg/jwt"
)

// ── dobles ───────────────────────────────────────────────────────────────────

type fakeLifecycle struct {
	docs      map[string]*entity.FiscalDocument
	submitErr error
	polled    bool
}

func (f *fakeLifecycle) Register(_ context.Context, doc *entity.FiscalDocument) (*entity.FiscalDocument, error) {
	if doc.ExternalRef == "" {
		return nil, domain.ErrInvalidInput
	}
	doc.ID = "doc-nuevo"
	doc.Status = entity.StatusDraft
	f.docs[doc.ID] = doc
	return doc, nil
}
func (f *fakeLifecycle) ReplaceSnapshot(_ context.Context, id string, _ *entity.FiscalDocument) (*entity.FiscalDocument, error) {
	return f.docs[id], domain.ErrInvalidTransition
}
func (f *fakeLifecycle) Finalize(_ context.Context, id string) (*entity.FiscalDocument, error) {
	d := f.docs[id]
	d.NCF = "E310000000001"
	d.Status = entity.StatusSequenceAssigned
	return d, nil
}
func (f *fakeLifecycle) Build(_ context.Context, id string) (*entity.FiscalDocument, error) {
	return f.docs[id], nil
}
func (f *fakeLifecycle) Sign(_ context.Context, id string) (*entity.FiscalDocument, error) {
	return f.docs[id], nil
}
func (f *fakeLifecycle) Submit(_ context.Context, id string) (*entity.FiscalDocument, error) {
	d := f.docs[id]
	if f.submitErr != nil {
		d.Status = entity.StatusError
		d.FailedStep = fiscal.StepAuth
		return d, f.submitErr
	}
	d.Status = entity.StatusProcessing
	return d, nil
}
func (f *fakeLifecycle) Track(_ context.Context, id string) (*entity.FiscalDocument, error) {
	return f.docs[id], nil
}
func (f *fakeLifecycle) Retry(_ context.Context, id string) (*entity.FiscalDocument, error) {
	return f.docs[id], nil
}
func (f *fakeLifecycle) Abort(_ context.Context, id, reason string) (*entity.FiscalDocument, error) {
	d := f.docs[id]
	d.Status = entity.StatusCancelled
	d.LastError = reason
	return d, nil
}
func (f *fakeLifecycle) Get(_ context.Context, id string) (*entity.FiscalDocument, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}
func (f *fakeLifecycle) LatestArtifact(_ context.Context, id string) (*entity.SignedArtifact, error) {
	return &entity.SignedArtifact{DocumentID: id, SignedXML: []byte("<ECF/>")}, nil
}
func (f *fakeLifecycle) TrackingOf(context.Context, string) (*entity.TrackingRecord, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeLifecycle) PollPending(context.Context) (lifecycle.PollReport, error) {
	f.polled = true
	return lifecycle.PollReport{Polled: 2, Accepted: 1, Pending: 1}, nil
}

type fakeRepresentation struct{}

func (fakeRepresentation) QR(context.Context, string, string) (fiscal.QRPayload, error) {
	return fiscal.QRPayload{NCF: "E310000000001", Status: "Aceptado"}, nil
}
func (fakeRepresentation) PDF(context.Context, string, string) ([]byte, string, error) {
	return []byte("%PDF-1.3"), "131246796E310000000001.pdf", nil
}

type fakeIssuer struct{ lastDay time.Time }

func (f *fakeIssuer) IssueApproval(_ context.Context, companyID string, a *entity.CommercialApproval) (*entity.SignedArtifact, error) {
	return &entity.SignedArtifact{ID: "a-1", CompanyID: companyID, Kind: entity.ArtifactApproval, ReferenceNCF: a.NCF, SecurityCode: "AbC123"}, nil
}
func (f *fakeIssuer) IssueAcknowledgment(context.Context, string, *entity.ReceiptAcknowledgment) (*entity.SignedArtifact, error) {
	return nil, domain.ErrSchemaViolation
}
func (f *fakeIssuer) CancelNumbers(context.Context, string, string, []string) (*entity.SignedArtifact, error) {
	return &entity.SignedArtifact{ID: "a-2", Kind: entity.ArtifactCancellation}, nil
}
func (f *fakeIssuer) IssueDailySummary(_ context.Context, _, _ string, day time.Time) (*entity.SignedArtifact, error) {
	f.lastDay = day
	return &entity.SignedArtifact{ID: "a-3", Kind: entity.ArtifactSummary}, nil
}
func (f *fakeIssuer) Artifacts(context.Context, string, string, int) ([]*entity.SignedArtifact, error) {
	return []*entity.SignedArtifact{{ID: "a-1", Kind: entity.ArtifactApproval}}, nil
}
func (f *fakeIssuer) Artifact(_ context.Context, _ string, id string) (*entity.SignedArtifact, error) {
	if id != "a-1" {
		return nil, domain.ErrNotFound
	}
	return &entity.SignedArtifact{ID: id, Kind: entity.ArtifactApproval, ReferenceNCF: "E310000000007", SignedXML: []byte("<ACECF/>")}, nil
}

type fakeSequences struct{ extended int64 }

func (f *fakeSequences) Counters(context.Context) ([]*entity.FiscalSequenceCounter, error) {
	return []*entity.FiscalSequenceCounter{{TypeCode: ecf.TypeCreditoFiscal, LastIssued: 10, UpperBound: 100}}, nil
}
func (f *fakeSequences) RegisterRange(context.Context, *entity.FiscalSequenceCounter) error {
	return nil
}
func (f *fakeSequences) ExtendRange(_ context.Context, _ ecf.DocumentType, upper int64) error {
	f.extended = upper
	return nil
}

type env struct {
	app  *fiber.App
	lc   *fakeLifecycle
	iss  *fakeIssuer
	seqs *fakeSequences
}

func newEnv() *env {
	e := &env{
		lc: &fakeLifecycle{docs: map[string]*entity.FiscalDocument{
			"doc-1": {ID: "doc-1", CompanyID: testCompanyID, TypeCode: ecf.TypeCreditoFiscal, Status: entity.StatusSigned, NCF: "E310000000001"},
			"ajeno": {ID: "ajeno", CompanyID: "otra-empresa", TypeCode: ecf.TypeConsumo, Status: entity.StatusDraft},
		}},
		iss:  &fakeIssuer{},
		seqs: &fakeSequences{},
	}
	e.app = fiber.New()
	apphttp.Router(e.app, apphttp.RouterDeps{
		Lifecycle:      e.lc,
		Representation: fakeRepresentation{},
		Artifacts:      e.iss,
		Sequences:      e.seqs,
		JWTSecret:      testJWTSecret,
	})
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ── Documentos ───────────────────────────────────────────────────────────────

func TestDocuments_RegisterUsesTokenCompany(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/documents", tokenForRole(t, pkgjwt.RoleOperator), dto.DocumentRequest{
		ExternalRef: "FAC-1",
		TypeCode:    "31",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[dto.DocumentResponse](t, resp)
	assert.Equal(t, "DRAFT", out.Status)
	assert.Equal(t, "Factura de Crédito Fiscal Electrónica", out.TypeName)
	assert.Equal(t, testCompanyID, e.lc.docs["doc-nuevo"].CompanyID)
}

func TestDocuments_ViewerCannotRegister(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/documents", tokenForRole(t, pkgjwt.RoleViewer), dto.DocumentRequest{ExternalRef: "FAC-1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDocuments_OtherCompanyForbidden(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/documents/ajeno/submit", tokenForRole(t, pkgjwt.RoleOperator), nil)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", out.Code)
	assert.Equal(t, entity.StatusDraft, e.lc.docs["ajeno"].Status, "no se toca el documento ajeno")
}

func TestDocuments_NotFound(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodGet, "/api/documents/no-existe", tokenForRole(t, pkgjwt.RoleViewer), nil)
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", out.Code)
}

func TestDocuments_SubmitFailureCarriesAuthorityText(t *testing.T) {
	e := newEnv()
	e.lc.submitErr = domain.NewError(domain.ErrCredentialRejected, fiscal.StepAuth, "Certificado no registrado", nil)

	resp := e.do(t, http.MethodPost, "/api/documents/doc-1/submit", tokenForRole(t, pkgjwt.RoleOperator), nil)
	out := decode[dto.OperationErrorResponse](t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "CREDENTIAL_REJECTED", out.Code)
	assert.Equal(t, "Certificado no registrado", out.AuthorityMessage)
	require.NotNil(t, out.Document)
	assert.Equal(t, "ERROR", out.Document.Status)
	assert.Equal(t, "auth", out.Document.FailedStep)
}

func TestDocuments_SubmitOK(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/documents/doc-1/submit", tokenForRole(t, pkgjwt.RoleOperator), nil)
	out := decode[dto.DocumentResponse](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PROCESSING", out.Status)
}

func TestDocuments_ReplaceRefused(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPut, "/api/documents/doc-1", tokenForRole(t, pkgjwt.RoleOperator), dto.DocumentRequest{ExternalRef: "FAC-1"})
	out := decode[dto.OperationErrorResponse](t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", out.Code)
}

func TestDocuments_AbortWithReason(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/documents/doc-1/abort", tokenForRole(t, pkgjwt.RoleOperator), dto.AbortRequest{Reason: "venta anulada"})
	out := decode[dto.DocumentResponse](t, resp)
	assert.Equal(t, "CANCELLED", out.Status)
	assert.Equal(t, "venta anulada", out.LastError)
}

func TestDocuments_SignedXMLAndPDF(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodGet, "/api/documents/doc-1/xml", tokenForRole(t, pkgjwt.RoleViewer), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/xml")

	resp = e.do(t, http.MethodGet, "/api/documents/doc-1/pdf", tokenForRole(t, pkgjwt.RoleViewer), nil)
	defer resp.Body.Close()
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "131246796E310000000001.pdf")
}

func TestTracking_PollOperatorOnly(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/tracking/poll", tokenForRole(t, pkgjwt.RoleViewer), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.False(t, e.lc.polled)

	resp = e.do(t, http.MethodPost, "/api/tracking/poll", tokenForRole(t, pkgjwt.RoleOperator), nil)
	out := decode[lifecycle.PollReport](t, resp)
	assert.Equal(t, 2, out.Polled)
	assert.Equal(t, 1, out.Accepted)
}

// ── Artefactos y secuencias ──────────────────────────────────────────────────

func TestArtifacts_Approval(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/artifacts/approvals", tokenForRole(t, pkgjwt.RoleOperator), dto.ApprovalRequest{
		IssuerRNC: "131246796", BuyerRNC: "101010101", NCF: "E310000000007", Approved: true,
	})
	out := decode[dto.ArtifactResponse](t, resp)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "ACECF", out.Kind)
	assert.Equal(t, "AbC123", out.SecurityCode)
}

func TestArtifacts_SchemaViolation(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/artifacts/acknowledgments", tokenForRole(t, pkgjwt.RoleOperator), dto.AcknowledgmentRequest{})
	out := decode[dto.ErrorResponse](t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "SCHEMA_VIOLATION", out.Code)
}

func TestArtifacts_SummaryDate(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodPost, "/api/artifacts/summaries", tokenForRole(t, pkgjwt.RoleOperator), dto.SummaryRequest{IssuerRNC: "131246796", Date: "10/04/2026"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/artifacts/summaries", tokenForRole(t, pkgjwt.RoleOperator), dto.SummaryRequest{IssuerRNC: "131246796", Date: "2026-04-10"})
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "2026-04-10", e.iss.lastDay.Format("2006-01-02"))
	assert.Equal(t, ecf.Location, e.iss.lastDay.Location())
}

func TestArtifacts_URLWithoutMirror(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodGet, "/api/artifacts/a-1/url", tokenForRole(t, pkgjwt.RoleViewer), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSequences(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodGet, "/api/sequences", tokenForRole(t, pkgjwt.RoleViewer), nil)
	list := decode[[]dto.SequenceCounterResponse](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, int64(90), list[0].Remaining)

	resp = e.do(t, http.MethodPatch, "/api/sequences/31", tokenForRole(t, pkgjwt.RoleOperator), dto.ExtendRangeRequest{UpperBound: 500})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int64(500), e.seqs.extended)

	resp = e.do(t, http.MethodPost, "/api/sequences", tokenForRole(t, pkgjwt.RoleOperator), dto.RegisterRangeRequest{TypeCode: "99", UpperBound: 10})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv()
	resp := e.do(t, http.MethodGet, "/metrics", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
