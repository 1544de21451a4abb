package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ecofin/internal/apperror"
	"ecofin/internal/middleware"
	"ecofin/internal/repository"
	"ecofin/internal/service"
	"ecofin/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "handler-test-secret"

var testUserID = uuid.MustParse("6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f")

func token(t *testing.T, role string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  testUserID.String(),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type registrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

func newRouter(handlers ...registrar) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return r
}

func do(t *testing.T, r http.Handler, method, path, role string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

var testAuth = middleware.NewAuth(testSecret, false)

// --- fakes ---

type fakeSettings struct {
	service.SettingsService
	err   error
	actor service.Actor
}

func (f *fakeSettings) UpdateSettings(_ context.Context, actor service.Actor, id string, _ service.UpdateSettingsRequest) (service.SettingsResponse, error) {
	f.actor = actor
	if f.err != nil {
		return service.SettingsResponse{}, f.err
	}
	return service.SettingsResponse{ID: id}, nil
}

func (f *fakeSettings) GetSettings(_ context.Context, year, month int) (service.SettingsResponse, error) {
	return service.SettingsResponse{Year: year, Month: month}, f.err
}

type fakeInvoices struct {
	service.InvoiceService
	issueErr error
	replayed bool
	key      string
	actor    service.Actor
	pdf      []byte
}

func (f *fakeInvoices) Issue(_ context.Context, actor service.Actor, req service.IssueInvoiceRequest, key string) (service.IssueInvoiceResult, error) {
	f.actor, f.key = actor, key
	if f.issueErr != nil {
		return service.IssueInvoiceResult{}, f.issueErr
	}
	return service.IssueInvoiceResult{Invoice: service.InvoiceResponse{ClientID: req.ClientID}, Replayed: f.replayed}, nil
}

func (f *fakeInvoices) InvoicePDF(context.Context, string) ([]byte, string, error) {
	return f.pdf, "ECO-0001.pdf", nil
}

type fakeRecords struct {
	service.RecordService
	filter service.RecordListFilter
}

func (f *fakeRecords) ListRecords(_ context.Context, filter service.RecordListFilter) ([]service.RecordResponse, int64, error) {
	f.filter = filter
	return []service.RecordResponse{}, 0, nil
}

type fakeImports struct {
	service.ImportService
	req service.UploadRequest
}

func (f *fakeImports) Upload(_ context.Context, _ service.Actor, req service.UploadRequest) (service.BatchResponse, error) {
	f.req = req
	return service.BatchResponse{FileName: req.FileName}, nil
}

type fakeAudit struct {
	filter repository.AuditFilter
}

func (f *fakeAudit) GetAuditLogs(_ context.Context, filter repository.AuditFilter) ([]service.AuditLogResponse, int64, error) {
	f.filter = filter
	return []service.AuditLogResponse{{Action: filter.Action}}, 41, nil
}

// --- tests ---

func TestRespondError_MapsKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"validation", apperror.Validation("month must be between 1 and 12"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", apperror.NotFound("client not found"), http.StatusNotFound, "NOT_FOUND"},
		{"billing state", apperror.InvalidBillingState("nothing left to bill"), http.StatusConflict, "INVALID_BILLING_STATE"},
		{"immutable", apperror.ImmutableRecord("settings are locked"), http.StatusForbidden, "IMMUTABLE_RECORD"},
		{"conflict", apperror.Conflict("settings already exist"), http.StatusConflict, "CONFLICT"},
		{"upstream", &apperror.UpstreamError{Service: "smartbill", StatusCode: 400, Body: `{"errorText":"bad cif"}`}, http.StatusBadGateway, "UPSTREAM_SERVICE_ERROR"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &fakeSettings{err: tt.err}
			r := newRouter(NewSettingsHandler(settings, testAuth))

			rec := do(t, r, http.MethodPut, "/api/ecofin/settings/abc", "management", map[string]any{"notes": "x"})
			require.Equal(t, tt.code, rec.Code)

			var body response.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.code, body.StatusCode)
			assert.Equal(t, tt.kind, body.Code)
		})
	}
}

func TestRespondError_HidesInternalAndExposesUpstream(t *testing.T) {
	settings := &fakeSettings{err: errors.New("pq: connection refused")}
	r := newRouter(NewSettingsHandler(settings, testAuth))
	body := decode(t, do(t, r, http.MethodPut, "/api/ecofin/settings/abc", "admin", map[string]any{}))
	assert.Equal(t, "Internal server error", body["error"])
	assert.Nil(t, body["details"])

	settings.err = &apperror.UpstreamError{Service: "smartbill", StatusCode: 401, Body: "unauthorized"}
	body = decode(t, do(t, r, http.MethodPut, "/api/ecofin/settings/abc", "admin", map[string]any{}))
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "smartbill", details["service"])
	assert.EqualValues(t, 401, details["status_code"])
	assert.Equal(t, "unauthorized", details["body"])
}

func TestRoutes_RequireRoles(t *testing.T) {
	r := newRouter(NewSettingsHandler(&fakeSettings{}, testAuth), NewAuditHandler(&fakeAudit{}, testAuth))

	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/api/ecofin/settings/2025/3", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/api/ecofin/settings/2025/3", "staff", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/ecofin/settings/2025/3", "management", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/api/audit-logs", "staff", nil).Code)
}

func TestSettings_PassesActorAndParsesPath(t *testing.T) {
	settings := &fakeSettings{}
	r := newRouter(NewSettingsHandler(settings, testAuth))

	rec := do(t, r, http.MethodPut, "/api/ecofin/settings/abc", "admin", map[string]any{"notes": "fix"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, settings.actor.UserID)
	assert.Equal(t, testUserID, *settings.actor.UserID)
	assert.True(t, settings.actor.Elevated())

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/ecofin/settings/2025/march", "admin", nil).Code)
}

func TestIssueInvoice(t *testing.T) {
	invoices := &fakeInvoices{}
	r := newRouter(NewInvoiceHandler(invoices, nil, testAuth))
	body := map[string]any{"client_id": uuid.NewString(), "year": 2025, "month": 3, "confirm_hours_agreed": true}

	rec := do(t, r, http.MethodPost, "/api/billing/invoices/issue", "management", body, IdempotencyHeader, "key-1")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "key-1", invoices.key)
	assert.Equal(t, "management", invoices.actor.Role)

	invoices.replayed = true
	rec = do(t, r, http.MethodPost, "/api/billing/invoices/issue", "management", body, IdempotencyHeader, "key-1")
	assert.Equal(t, http.StatusOK, rec.Code)

	invoices.issueErr = apperror.Validation("hours must be confirmed as agreed with the client")
	rec = do(t, r, http.MethodPost, "/api/billing/invoices/issue", "management", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/billing/invoices/issue", "management", map[string]any{"year": 2025})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing client_id fails binding")
}

func TestDownloadPDF(t *testing.T) {
	invoices := &fakeInvoices{pdf: []byte("%PDF-1.4")}
	r := newRouter(NewInvoiceHandler(invoices, nil, testAuth))

	rec := do(t, r, http.MethodGet, "/api/billing/invoices/abc/pdf", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="ECO-0001.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
}

func TestListRecords_Filters(t *testing.T) {
	records := &fakeRecords{}
	r := newRouter(NewRecordHandler(records, testAuth))

	rec := do(t, r, http.MethodGet, "/api/ecofin/records?year=2025&month=3&validated=true&page=2&limit=10", "management", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2025, records.filter.Year)
	assert.Equal(t, 3, records.filter.Month)
	require.NotNil(t, records.filter.Validated)
	assert.True(t, *records.filter.Validated)
	assert.Equal(t, 2, records.filter.Page)

	data := decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 10, data["limit"])

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/ecofin/records?validated=maybe", "management", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/ecofin/records?year=abc", "management", nil).Code)
}

func multipartUpload(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload(t *testing.T) {
	imports := &fakeImports{}
	r := newRouter(NewImportHandler(imports, testAuth, 1024))

	send := func(body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ecofin/import/upload", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token(t, "management"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	body, ct := multipartUpload(t, map[string]string{"year": "2025", "month": "3"}, "pontaj.csv", []byte("Pasaport;Ore;Salariu\n"))
	rec := send(body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "pontaj.csv", imports.req.FileName)
	assert.Equal(t, 2025, imports.req.Year)
	assert.Equal(t, []byte("Pasaport;Ore;Salariu\n"), imports.req.Data)

	body, ct = multipartUpload(t, map[string]string{"year": "2025", "month": "3"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, send(body, ct).Code)

	body, ct = multipartUpload(t, map[string]string{"year": "x", "month": "3"}, "pontaj.csv", []byte("a"))
	assert.Equal(t, http.StatusBadRequest, send(body, ct).Code)

	body, ct = multipartUpload(t, map[string]string{"year": "2025", "month": "3"}, "big.csv", bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusBadRequest, send(body, ct).Code)
}

func TestAuditLogs_Paginates(t *testing.T) {
	audit := &fakeAudit{}
	r := newRouter(NewAuditHandler(audit, testAuth))

	rec := do(t, r, http.MethodGet, "/api/audit-logs?action=ISSUE_INVOICE&limit=500", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ISSUE_INVOICE", audit.filter.Action)
	assert.Equal(t, 100, audit.filter.Limit)

	data := decode(t, rec)["data"].(map[string]any)
	assert.EqualValues(t, 41, data["total"])
	assert.Len(t, data["items"], 1)
}

type fakeWorkers struct {
	service.WorkerService
	stats    service.WorkerStatsFilter
	filename string
	data     []byte
}

func (f *fakeWorkers) Statistics(_ context.Context, filter service.WorkerStatsFilter) (service.WorkerStatistics, error) {
	f.stats = filter
	return service.WorkerStatistics{Total: 3}, nil
}

func (f *fakeWorkers) ImportTemplate() ([]byte, error) { return []byte("xlsx"), nil }

func (f *fakeWorkers) ImportWorkers(_ context.Context, _ service.Actor, filename string, data []byte) (service.WorkerImportResult, error) {
	f.filename, f.data = filename, data
	return service.WorkerImportResult{Total: 1, Created: 1}, nil
}

type fakeDocuments struct {
	service.WorkerDocumentService
	upload service.DocumentUpload
	file   service.DocumentFile
}

func (f *fakeDocuments) Upload(_ context.Context, _ service.Actor, req service.DocumentUpload) (service.WorkerDocumentResponse, error) {
	f.upload = req
	return service.WorkerDocumentResponse{WorkerID: req.WorkerID, FileName: req.FileName}, nil
}

func (f *fakeDocuments) Download(context.Context, string) (service.DocumentFile, error) {
	return f.file, nil
}

type fakeAlerts struct {
	opts service.AlertOptions
}

func (f *fakeAlerts) SendAppointmentAlerts(_ context.Context, _ service.Actor, opts service.AlertOptions) (service.AlertResult, error) {
	f.opts = opts
	return service.AlertResult{DryRun: opts.DryRun}, nil
}

func TestWorkerRoutes(t *testing.T) {
	workers := &fakeWorkers{}
	docs := &fakeDocuments{file: service.DocumentFile{FileName: `scan "1".pdf`, ContentType: "application/pdf", Data: []byte("%PDF")}}
	alerts := &fakeAlerts{}
	r := newRouter(NewWorkerHandler(workers, docs, alerts, testAuth, 1024, 2))

	rec := do(t, r, http.MethodGet, "/api/workers/statistics?status=ACTIVE&citizenship=nepal", "staff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.WorkerStatsFilter{Status: "ACTIVE", Citizenship: "nepal"}, workers.stats)

	rec = do(t, r, http.MethodGet, "/api/workers/import/template", "management", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), service.WorkerTemplateFilename)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodGet, "/api/workers/import/template", "staff", nil).Code)

	rec = do(t, r, http.MethodGet, "/api/worker-documents/abc", "staff", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="scan '1'.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF", rec.Body.String())
}

func TestWorkerUploads(t *testing.T) {
	workers := &fakeWorkers{}
	docs := &fakeDocuments{}
	r := newRouter(NewWorkerHandler(workers, docs, &fakeAlerts{}, testAuth, 1024, 2))

	send := func(path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token(t, "management"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	body, ct := multipartUpload(t, nil, "register.xlsx", []byte("PK"))
	require.Equal(t, http.StatusOK, send("/api/workers/import", body, ct).Code)
	assert.Equal(t, "register.xlsx", workers.filename)
	assert.Equal(t, []byte("PK"), workers.data)

	body, ct = multipartUpload(t, map[string]string{"document_type": "visa", "description": "stamped"}, "visa.jpg", []byte("jpg"))
	rec := send("/api/workers/w-1/documents", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "w-1", docs.upload.WorkerID)
	assert.Equal(t, "visa", docs.upload.DocumentType)
	assert.Equal(t, "stamped", docs.upload.Description)
	assert.Equal(t, []byte("jpg"), docs.upload.Data)

	body, ct = multipartUpload(t, nil, "", nil)
	assert.Equal(t, http.StatusBadRequest, send("/api/workers/w-1/documents", body, ct).Code)
	body, ct = multipartUpload(t, nil, "big.pdf", bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusBadRequest, send("/api/workers/import", body, ct).Code)
}

func TestAppointmentAlerts(t *testing.T) {
	alerts := &fakeAlerts{}
	r := newRouter(NewWorkerHandler(&fakeWorkers{}, &fakeDocuments{}, alerts, testAuth, 1024, 2))

	rec := do(t, r, http.MethodPost, "/api/workers/appointment-alerts", "management", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.AlertOptions{DaysAhead: 2}, alerts.opts)

	rec = do(t, r, http.MethodPost, "/api/workers/appointment-alerts", "admin", map[string]any{"days_ahead": 0, "dry_run": true, "test_email": "qa@eco.ro"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.AlertOptions{DaysAhead: 0, DryRun: true, TestEmail: "qa@eco.ro"}, alerts.opts)

	rec = do(t, r, http.MethodPost, "/api/workers/appointment-alerts", "admin", map[string]any{"test_email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusForbidden, do(t, r, http.MethodPost, "/api/workers/appointment-alerts", "staff", nil).Code)
}
