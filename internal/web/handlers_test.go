package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/core/coretest"
)

const csvHeader = "site_name,cell_name,cell_type,equipment_name,tag_id,description,make,model,ip_address,firmware_version,equipment_type,tags\n"

func csvRows(n int) string {
	var b strings.Builder
	b.WriteString(csvHeader)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Plant A,Line 1,PRODUCTION,Press 01,PLC-%04d,Controller %d,Siemens,S7-1500,,V1,PLC,line\n", i, i)
	}
	return b.String()
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	srv   *Server
	store *coretest.MemStore
	queue *coretest.MemQueue
}

func testConfig() *config.Config {
	return &config.Config{
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20},
		Security: config.SecurityConfig{UserHeader: "X-User-ID"},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := coretest.NewMemStore()
	queue := coretest.NewMemQueue()
	svc := core.NewService(store,
		core.WithJobQueue(queue),
		core.WithAuditNotifier(&coretest.RecordingNotifier{}),
	)
	return &testEnv{
		srv:   NewServer(context.Background(), svc, cfg, fakePinger{}),
		store: store,
		queue: queue,
	}
}

func (e *testEnv) do(req *http.Request, user string) *httptest.ResponseRecorder {
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

// uploadRequest builds a multipart import request.
func uploadRequest(t *testing.T, fileName, body string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// Imports
// =============================================================================

func TestImport_Synchronous(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(uploadRequest(t, "plcs.csv", csvRows(3), map[string]string{"createMissing": "true"}), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[core.ImportResult](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.ProcessedRows)
	assert.Equal(t, 3, res.Created.PLCs)
	assert.False(t, res.IsBackground)
	assert.NotEmpty(t, res.ImportID)
}

func TestImport_ValidateOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	body := csvRows(2) + "Plant A,Line 1,PRODUCTION,Press 01,PLC-BAD,Bad row,Siemens,S7-1500,999.1.1.1,V1,PLC,\n"

	rec := env.do(uploadRequest(t, "plcs.csv", body, map[string]string{"validateOnly": "on"}), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	summary := decode[core.ValidationSummary](t, rec)
	assert.False(t, summary.IsValid)
	assert.Equal(t, 3, summary.TotalRows)
	require.Len(t, summary.RowErrors, 1)
	assert.Equal(t, 4, summary.RowErrors[0].Row)
	assert.Len(t, summary.Preview, 3)
	assert.Equal(t, core.CreatedCounts{}, env.store.Counts(), "validate-only must not write")
}

func TestImport_Background(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(uploadRequest(t, "big.csv", csvRows(150), map[string]string{
		"createMissing":       "true",
		"backgroundThreshold": "100",
	}), "alice")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	res := decode[core.ImportResult](t, rec)
	assert.True(t, res.IsBackground)
	assert.Equal(t, 0, res.ProcessedRows)
	require.NotEmpty(t, res.JobID)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/jobs/"+res.JobID, nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[map[string]any](t, rec)
	assert.Equal(t, "queued", job["status"])
	assert.EqualValues(t, 150, job["totalRows"])
	assert.EqualValues(t, 0, job["percent"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/jobs/"+res.JobID, nil), "mallory")
	assert.Equal(t, http.StatusNotFound, rec.Code, "jobs are private to their owner")

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/imports/jobs/"+res.JobID+"/cancel", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/imports/jobs/"+res.JobID+"/cancel", nil), "alice")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "IMP002", decode[ErrorResponse](t, rec).Code)
}

func TestImport_JobProgressFragment(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(uploadRequest(t, "big.csv", csvRows(120), map[string]string{
		"createMissing":       "true",
		"backgroundThreshold": "100",
	}), "alice")
	require.Equal(t, http.StatusAccepted, rec.Code)
	res := decode[core.ImportResult](t, rec)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/jobs/"+res.JobID, nil)
	req.Header.Set("HX-Request", "true")
	rec = env.do(req, "alice")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `data-status="queued"`)
	assert.Contains(t, rec.Body.String(), "0 / 120 rows")
}

func TestImport_RequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name:     "not csv",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "report.pdf", "%PDF", nil) },
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE003",
		},
		{
			name:   "too large",
			mutate: func(c *config.Config) { c.Upload.MaxFileSize = 64 },
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "plcs.csv", csvRows(10), nil)
			},
			wantCode: http.StatusRequestEntityTooLarge,
			wantErr:  "FILE001",
		},
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "", "", map[string]string{"createMissing": "true"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "VAL001",
		},
		{
			name: "bad duplicate strategy",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "plcs.csv", csvRows(1), map[string]string{"duplicateHandling": "replace"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "VAL001",
		},
		{
			name: "threshold out of range",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "plcs.csv", csvRows(1), map[string]string{"backgroundThreshold": "50"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "VAL001",
		},
		{
			name: "malformed csv",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "plcs.csv", csvHeader+"\"unterminated,quote\n", nil)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE002",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader("{}"))
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "VAL001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mutate)
			rec := env.do(tt.req(t), "alice")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestImport_HTMXErrorFragment(t *testing.T) {
	env := newTestEnv(t, nil)
	req := uploadRequest(t, "report.pdf", "%PDF", nil)
	req.Header.Set("HX-Request", "true")

	rec := env.do(req, "alice")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Only CSV and XLSX files are accepted")
	assert.Contains(t, rec.Body.String(), "FILE003")
}

// =============================================================================
// History
// =============================================================================

func TestHistory_ScopedToUser(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 3; i++ {
		rec := env.do(uploadRequest(t, "plcs.csv", csvRows(1), map[string]string{
			"createMissing":     "true",
			"duplicateHandling": "overwrite",
		}), "alice")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := env.do(uploadRequest(t, "bob.csv", csvRows(1), map[string]string{
		"createMissing":     "true",
		"duplicateHandling": "skip",
	}), "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	bobImport := decode[core.ImportResult](t, rec).ImportID

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/history?page=1&pageSize=2", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.HistoryPage](t, rec)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.PageSize)
	for _, h := range page.Items {
		assert.Equal(t, "alice", h.UserID)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/history/"+bobImport, nil), "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/history/"+bobImport, nil), "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob.csv", decode[core.ImportHistory](t, rec).FileName)
}

func TestHistory_PageSizeClamped(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports/history?pageSize=1000", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[core.HistoryPage](t, rec)
	assert.Equal(t, core.MaxHistoryPageSize, page.PageSize)
	assert.Equal(t, 1, page.Page)
	assert.NotNil(t, page.Items)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/history?page=abc", nil), "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Templates and exports
// =============================================================================

func TestImportTemplate(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports/template", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="plc-import-template.csv"`)
	assert.True(t, strings.HasPrefix(rec.Body.String(), strings.TrimSuffix(csvHeader, "\n")))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/template?format=xlsx", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.Equal(t, "PK", rec.Body.String()[:2], "xlsx is a zip container")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/imports/template?format=pdf", nil), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportTemplate_UploadsBack(t *testing.T) {
	for _, format := range []string{"csv", "xlsx"} {
		t.Run(format, func(t *testing.T) {
			env := newTestEnv(t, nil)

			rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports/template?format="+format, nil), "")
			require.Equal(t, http.StatusOK, rec.Code)

			upload := uploadRequest(t, "plc-import-template."+format, rec.Body.String(), map[string]string{"createMissing": "true"})
			rec = env.do(upload, "alice")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			res := decode[core.ImportResult](t, rec)
			assert.True(t, res.Success, res.Errors)
			assert.Equal(t, 2, res.Created.PLCs)
		})
	}
}

func seedForExport(t *testing.T, env *testEnv) {
	t.Helper()
	body := csvHeader +
		"Plant A,Line 1,PRODUCTION,Press 01,PLC-A1,Press,Siemens,S7-1500,10.0.0.1,V1,PLC,press\n" +
		"Plant B,Line 9,PACKAGING,Wrapper,PLC-B1,Wrapper,Rockwell,ControlLogix,10.1.0.1,V2,PLC,wrap\n"
	rec := env.do(uploadRequest(t, "seed.csv", body, map[string]string{"createMissing": "true"}), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestExport_GetWithFilters(t *testing.T) {
	env := newTestEnv(t, nil)
	seedForExport(t, env)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/exports?sites=Plant%20B&format=csv", nil), "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment; filename=\"plc-export-")
	assert.Equal(t, "1", rec.Header().Get("X-Export-Rows"))
	assert.Contains(t, rec.Body.String(), "PLC-B1")
	assert.NotContains(t, rec.Body.String(), "PLC-A1")
}

func TestExport_PostJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	seedForExport(t, env)

	body := `{"format":"json","includeHierarchy":true,"filter":{"ipRange":"10.0.0.0/24"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req, "alice")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Export-Rows"))
	assert.Contains(t, rec.Body.String(), "PLC-A1")
}

func TestExport_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"bad format", httptest.NewRequest(http.MethodGet, "/api/exports?format=pdf", nil)},
		{"bad cidr", httptest.NewRequest(http.MethodGet, "/api/exports?ipRange=10.0.0.0/99", nil)},
		{"bad date", httptest.NewRequest(http.MethodGet, "/api/exports?dateFrom=yesterday", nil)},
		{"inverted dates", httptest.NewRequest(http.MethodGet, "/api/exports?dateFrom=2024-02-01&dateTo=2024-01-01", nil)},
		{"unknown json field", httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(`{"sites":["x"]}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.req, "alice")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// Health and auth
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	env.srv.db = fakePinger{err: errors.New("connection refused")}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unreachable", decode[map[string]any](t, rec)["database"])
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"k1", "k2"}
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/imports/history", nil), "alice")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/history", nil)
	req.Header.Set("X-API-Key", "nope")
	assert.Equal(t, http.StatusForbidden, env.do(req, "alice").Code)

	req = httptest.NewRequest(http.MethodGet, "/api/imports/history", nil)
	req.Header.Set("X-API-Key", "k2")
	assert.Equal(t, http.StatusOK, env.do(req, "alice").Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code, "health is outside /api")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("wrap: %w", core.ErrUnsupportedFileType), http.StatusBadRequest},
		{&core.MalformedInputError{Line: 2, Err: errors.New("bad quote")}, http.StatusBadRequest},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrJobNotCancellable, http.StatusConflict},
		{core.ErrTooManyUploads, http.StatusServiceUnavailable},
		{core.ErrQueueUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("import x: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
