package server

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/lintsvc/internal/cache"
	"github.com/flanksource/lintsvc/internal/db"
	"github.com/flanksource/lintsvc/internal/jobs"
	"github.com/flanksource/lintsvc/internal/metrics"
	"github.com/flanksource/lintsvc/internal/models"
	"github.com/flanksource/lintsvc/internal/orchestrator"
	"github.com/flanksource/lintsvc/internal/registry"
	"github.com/flanksource/lintsvc/internal/runner"
	"github.com/flanksource/lintsvc/internal/workspace"
)

// Prometheus registration is global and MustRegister panics on a second
// call with the same metric name, so every test in this binary shares
// one Metrics instance.
var (
	sharedMetrics     *metrics.Metrics
	sharedMetricsOnce sync.Once
)

func testMetrics() *metrics.Metrics {
	sharedMetricsOnce.Do(func() { sharedMetrics = metrics.New() })
	return sharedMetrics
}

func newTestServer(t *testing.T, executable string, timeoutMs int, failureCodes map[int]struct{}) *Server {
	t.Helper()
	baseDir := t.TempDir()
	database, err := db.Open(filepath.Join(baseDir, "srv_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	reg := registry.NewCustom(models.Descriptor{
		Name:                "echoer",
		Executable:          executable,
		SupportedExtensions: map[string]struct{}{".txt": {}},
		SupportedFormats:    map[models.Format]struct{}{models.FormatJSON: {}, models.FormatText: {}},
		TimeoutMs:           timeoutMs,
		ParserID:            "text",
		FailureExitCodes:    failureCodes,
	})
	ws, err := workspace.NewManager(filepath.Join(baseDir, "workspaces"), workspace.DefaultQuotas(), time.Hour)
	require.NoError(t, err)
	r := runner.New(reg)
	cacheSvc := cache.New(database)
	orch := orchestrator.New(ws, reg, r, cacheSvc)
	jobMgr := jobs.New(jobs.Config{MaxConcurrentJobs: 2, JobTimeoutMs: 5000}, database, orch)

	return New(orch, jobMgr, cacheSvc, reg, r, database, testMetrics())
}

func TestHandleSyncSuccess(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)

	body := `{"content":"hello","filename":"a.txt"}`
	req := httptest.NewRequest(http.MethodPost, "/echoer/json", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, false, resp["cache_hit"])
}

func TestHandleSyncCacheHitOnSecondCall(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	body := `{"content":"hello","filename":"a.txt"}`

	for i, expectHit := range []bool{false, true} {
		req := httptest.NewRequest(http.MethodPost, "/echoer/json", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "call %d", i)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, expectHit, resp["cache_hit"], "call %d", i)
	}
}

func TestHandleSyncUnknownLinterReturns400(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	body := `{"content":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/not-a-linter/json", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSyncMissingContentReturns400(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	req := httptest.NewRequest(http.MethodPost, "/echoer/json", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetEncodedDecompressesAndRuns(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)

	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())

	req := httptest.NewRequest(http.MethodGet, "/echoer/json/"+encoded, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestHandleAsyncSubmitsAndJobCompletes(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	srv.jobs.Start()
	defer srv.jobs.Stop()

	body := `{"content":"hello","filename":"a.txt"}`
	req := httptest.NewRequest(http.MethodPost, "/echoer/json/async", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	jobID, _ := resp["job_id"].(string)
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(3 * time.Second)
	var status string
	for time.Now().Before(deadline) {
		getReq := httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil)
		getRec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(getRec, getReq)
		var jobResp map[string]any
		require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &jobResp))
		status, _ = jobResp["status"].(string)
		if status == "completed" || status == "failed" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, "completed", status)
}

func TestHandleGetJobUnknownReturns404(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancelJobTwiceSecondReturns422(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)

	body := `{"content":"hello","filename":"a.txt"}`
	postReq := httptest.NewRequest(http.MethodPost, "/echoer/json/async", bytes.NewBufferString(body))
	postReq.Header.Set("Content-Type", "application/json")
	postRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(postRec, postReq)
	var postResp map[string]any
	require.NoError(t, json.Unmarshal(postRec.Body.Bytes(), &postResp))
	jobID := postResp["job_id"].(string)

	delReq1 := httptest.NewRequest(http.MethodDelete, "/jobs/"+jobID, nil)
	delRec1 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(delRec1, delReq1)
	assert.Equal(t, http.StatusOK, delRec1.Code)

	delReq2 := httptest.NewRequest(http.MethodDelete, "/jobs/"+jobID, nil)
	delRec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(delRec2, delReq2)
	assert.Equal(t, http.StatusUnprocessableEntity, delRec2.Code)
}

func TestHandleListLinters(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	req := httptest.NewRequest(http.MethodGet, "/linters", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthReturnsOK(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHandleDeleteCacheClearsEntries(t *testing.T) {
	srv := newTestServer(t, "true", 5000, nil)

	body := `{"content":"hello","filename":"a.txt"}`
	req := httptest.NewRequest(http.MethodPost, "/echoer/json", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/cache", nil)
	delRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusOK, delRec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/echoer/json", bytes.NewBufferString(body))
	req2.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	var resp2 map[string]any
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp2))
	assert.Equal(t, false, resp2["cache_hit"], "cache should have been cleared")
}

func TestHandleSyncTimeoutReturns408(t *testing.T) {
	baseDir := t.TempDir()
	database, err := db.Open(filepath.Join(baseDir, "timeout_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	reg := registry.NewCustom(models.Descriptor{
		Name:                "echoer",
		Executable:          "sh",
		BaseArgs:            []string{"-c", "exec sleep 5"},
		SupportedExtensions: map[string]struct{}{".txt": {}},
		SupportedFormats:    map[models.Format]struct{}{models.FormatJSON: {}},
		TimeoutMs:           50,
		ParserID:            "text",
	})
	ws, err := workspace.NewManager(filepath.Join(baseDir, "workspaces"), workspace.DefaultQuotas(), time.Hour)
	require.NoError(t, err)
	r := runner.New(reg)
	cacheSvc := cache.New(database)
	orch := orchestrator.New(ws, reg, r, cacheSvc)
	jobMgr := jobs.New(jobs.Config{MaxConcurrentJobs: 2, JobTimeoutMs: 5000}, database, orch)
	srv := New(orch, jobMgr, cacheSvc, reg, r, database, testMetrics())

	body := `{"content":"hello","filename":"a.txt"}`
	req := httptest.NewRequest(http.MethodPost, "/echoer/json", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Empty(t, r.RunningProcesses())
}
