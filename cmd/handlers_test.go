package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/router"
	"github.com/sells-group/audit-cli/internal/store"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeAnalyzer) AnalyzeStream(ctx context.Context, req model.AnalysisRequest, onChunk func(router.Chunk)) (*model.AnalysisResult, error) {
	onChunk(router.Chunk{Text: "{\"issuesFound\":"})
	onChunk(router.Chunk{Text: "[]}", Fallback: true})
	return f.Analyze(ctx, req)
}

func succeed(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
	id := req.CorrelationID
	if id == "" {
		id = "generated-1"
	}
	return &model.AnalysisResult{
		CorrelationID: id,
		TaskType:      req.TaskType,
		Success:       true,
		IssuesFound:   []string{"E1 overtime miscalculated"},
		Corrections:   []model.Correction{},
		CorrectedData: req.Records,
		Severity:      model.SeverityMedium,
		Confidence:    80,
		Routing:       &model.Routing{Provider: "anthropic", Model: router.ModelClaudeSonnet},
	}, nil
}

type fakeRoutes struct{}

func (fakeRoutes) Table() *router.Table { return router.DefaultTable() }
func (fakeRoutes) BreakerStates() map[string]string {
	return map[string]string{"anthropic": "closed"}
}

type fakeClaimer struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (f *fakeClaimer) Claim(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[id] {
		return false, nil
	}
	f.held[id] = true
	return true, nil
}

func (f *fakeClaimer) Release(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, id)
	f.released = append(f.released, id)
	return nil
}

type testServer struct {
	handler  http.Handler
	analyzer *fakeAnalyzer
	store    store.Store
	claimer  *fakeClaimer
}

func newTestServer(t *testing.T, fn func(context.Context, model.AnalysisRequest) (*model.AnalysisResult, error)) *testServer {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	ts := &testServer{
		analyzer: &fakeAnalyzer{fn: fn},
		store:    st,
		claimer:  &fakeClaimer{held: map[string]bool{}},
	}
	ts.handler = newServer(serverDeps{
		Analyzer: ts.analyzer,
		Routes:   fakeRoutes{},
		Store:    st,
		Dedupe:   ts.claimer,
	}, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func payrollBody(correlationID string) map[string]any {
	return map[string]any{
		"task_type":      "payroll",
		"correlation_id": correlationID,
		"records":        []map[string]any{{"employeeId": "E1", "hours": 45}},
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	body := decode(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"anthropic": "closed"}, body["circuits"])
}

func TestAnalyze_SavesAndFetches(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("corr-1"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decode(t, rr)
	assert.Equal(t, "corr-1", body["correlation_id"])
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "medium", body["severity"])
	id, _ := body["analysis_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, id, rr.Header().Get("X-Analysis-ID"))

	got := ts.do(t, http.MethodGet, "/v1/analyses/"+id, nil)
	require.Equal(t, http.StatusOK, got.Code)
	stored := decode(t, got)
	assert.Equal(t, "corr-1", stored["correlation_id"])
	assert.Len(t, stored["records"], 1)
}

func TestAnalyze_CamelCaseAndHeaderCorrelation(t *testing.T) {
	var seen model.AnalysisRequest
	ts := newTestServer(t, func(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
		seen = req
		return succeed(ctx, req)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze",
		bytes.NewBufferString(`{"taskType":"AI-Infrastructure","records":[{"id":"gpu-1"}]}`))
	req.Header.Set("X-Correlation-ID", "hdr-1")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.TaskAIInfrastructure, seen.TaskType)
	assert.Equal(t, "hdr-1", seen.CorrelationID)
}

func TestAnalyze_InvalidBody(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodPost, "/v1/analyze", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, ts.analyzer.calls)
}

func TestAnalyze_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &audit.ValidationError{Index: -1, Reason: "record batch is empty"}, http.StatusBadRequest},
		{"configuration", &router.ConfigurationError{TaskType: "marketing", Reason: "unknown task type"}, http.StatusUnprocessableEntity},
		{"other", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(context.Context, model.AnalysisRequest) (*model.AnalysisResult, error) {
				return nil, tt.err
			})

			rr := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("corr-err"))
			assert.Equal(t, tt.status, rr.Code)
			assert.NotEmpty(t, decode(t, rr)["error"])
			assert.Equal(t, []string{"corr-err"}, ts.claimer.released, "claim is released so a redelivery can retry")
		})
	}
}

func TestAnalyze_DuplicateCorrelationIsConflict(t *testing.T) {
	ts := newTestServer(t, succeed)

	first := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("dup-1"))
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("dup-1"))
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, 1, ts.analyzer.calls)
}

func TestAnalyze_InFlightClaimIsConflict(t *testing.T) {
	ts := newTestServer(t, succeed)
	ts.claimer.held["busy"] = true

	rr := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("busy"))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, 0, ts.analyzer.calls)
}

func TestAnalyze_FailedResultReleasesClaim(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
		return &model.AnalysisResult{
			CorrelationID: req.CorrelationID,
			TaskType:      req.TaskType,
			Success:       false,
			IssuesFound:   []string{},
			Corrections:   []model.Correction{},
			CorrectedData: req.Records,
			Severity:      model.SeverityLow,
			Error:         &model.ResultError{Kind: model.ErrorKindProvider, Cause: model.CauseNetwork, Message: "refused"},
		}, nil
	})

	rr := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("fail-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, []any{map[string]any{"employeeId": "E1", "hours": float64(45)}}, body["corrected_data"])
	assert.Equal(t, []string{"fail-1"}, ts.claimer.released)
}

type failingSaveStore struct {
	store.Store
}

func (failingSaveStore) SaveAnalysis(context.Context, model.AnalysisRequest, *model.AnalysisResult) (*store.Analysis, error) {
	return nil, errors.New("disk full")
}

func TestAnalyze_SaveErrorReleasesClaim(t *testing.T) {
	ts := newTestServer(t, succeed)
	ts.handler = newServer(serverDeps{
		Analyzer: ts.analyzer,
		Routes:   fakeRoutes{},
		Store:    failingSaveStore{Store: ts.store},
		Dedupe:   ts.claimer,
	}, nil)

	rr := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("save-1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, []string{"save-1"}, ts.claimer.released)
	assert.Empty(t, ts.claimer.held)

	// A redelivery is analyzed again rather than rejected as in flight.
	rr = ts.do(t, http.MethodPost, "/v1/analyze", payrollBody("save-1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 2, ts.analyzer.calls)
}

func TestAnalyze_WithoutCorrelationSkipsDedupe(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodPost, "/v1/analyze", payrollBody(""))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "generated-1", decode(t, rr)["correlation_id"])
	assert.Empty(t, ts.claimer.held)
}

func TestGetAnalysis_NotFound(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodGet, "/v1/analyses/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListAnalyses(t *testing.T) {
	ts := newTestServer(t, succeed)
	for _, id := range []string{"l-1", "l-2"} {
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/v1/analyze", payrollBody(id)).Code)
	}

	rr := ts.do(t, http.MethodGet, "/v1/analyses?task_type=payroll&success=true&limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["analyses"], 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/analyses?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/analyses?success=maybe", nil).Code)
}

func TestRoutesEndpoint(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodGet, "/v1/routes", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	routes, ok := body["routes"].([]any)
	require.True(t, ok)
	assert.Len(t, routes, len(model.TaskTypes))
	first := routes[0].(map[string]any)
	assert.Equal(t, "payroll", first["task_type"])
	assert.Equal(t, "anthropic", first["provider"])
}

func TestEstimateEndpoint(t *testing.T) {
	ts := newTestServer(t, succeed)

	rr := ts.do(t, http.MethodPost, "/v1/estimate", map[string]any{
		"task_type": "payroll", "input_tokens": 1_000_000, "output_tokens": 100_000,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.InDelta(t, 4.5, body["estimated_cost_usd"], 1e-9)
	assert.Equal(t, router.ModelClaudeSonnet, body["model"])

	rr = ts.do(t, http.MethodPost, "/v1/estimate", map[string]any{"task_type": "marketing", "input_tokens": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodPost, "/v1/estimate", map[string]any{"task_type": "payroll", "input_tokens": -1})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodPost, "/v1/estimate", "nope")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, succeed)

	req := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerWithoutStore(t *testing.T) {
	handler := newServer(serverDeps{Analyzer: &fakeAnalyzer{fn: succeed}, Routes: fakeRoutes{}}, []string{"https://a.example"})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewBufferString(`{"task_type":"payroll","correlation_id":"x","records":[{"id":"1"}]}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Analysis-ID"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/analyses/x", nil))
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}
