package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/config"
	"github.com/sells-group/audit-cli/internal/ingest"
	"github.com/sells-group/audit-cli/internal/llm"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/monitoring"
	"github.com/sells-group/audit-cli/internal/router"
	"github.com/sells-group/audit-cli/internal/store"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Anthropic.Key = "sk-ant-test"
	c.Anthropic.CacheSystem = true
	c.Together.Key = "tg-test"
	c.Routing.CallTimeoutSecs = 60
	c.Routing.Circuit.Enabled = true
	c.Routing.Circuit.FailureThreshold = 3
	c.Audit.MaxRecords = 1000
	c.Audit.SampleSize = 50
	c.Audit.Temperature = 0.1
	return c
}

func TestBuildProviders(t *testing.T) {
	c := testConfig()
	c.Together.RequestsPerSecond = 5

	providers := buildProviders(c)
	require.Len(t, providers, 2)
	assert.Equal(t, llm.ProviderAnthropic, providers[0].Name())
	assert.Equal(t, llm.ProviderTogether, providers[1].Name())
	assert.NotEmpty(t, providers[1].DefaultModel())
}

func TestBuildTable_AppliesOverridesAndPricing(t *testing.T) {
	c := testConfig()
	c.Routing.Routes = map[string]config.RouteConfig{
		"crm": {Provider: "anthropic", PrimaryModel: router.ModelClaudeHaiku},
	}
	c.Pricing.Anthropic = map[string]config.ModelPricing{
		router.ModelClaudeHaiku: {Input: 1, Output: 5},
	}

	table, err := buildTable(c)
	require.NoError(t, err)

	crm, err := table.Lookup(model.TaskCRM)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", crm.Provider)
	assert.Equal(t, router.ModelClaudeHaiku, crm.PrimaryModel)
	assert.InDelta(t, 1.0, crm.Cost.Input, 1e-9)

	c.Routing.Routes = map[string]config.RouteConfig{"marketing": {Provider: "anthropic"}}
	_, err = buildTable(c)
	assert.Error(t, err)
}

func TestBuildRouter(t *testing.T) {
	c := testConfig()
	r, err := buildRouter(c, buildProviders(c))
	require.NoError(t, err)
	assert.Empty(t, r.BreakerStates())

	route, err := r.Resolve(model.TaskCompliance)
	require.NoError(t, err)
	assert.Equal(t, router.ModelClaudeOpus, route.PrimaryModel)

	_, err = buildRouter(c, buildProviders(c)[:1])
	var ce *router.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestBuildAnalyzer_RejectsOversizedBatch(t *testing.T) {
	c := testConfig()
	c.Audit.MaxRecords = 2
	r, err := buildRouter(c, buildProviders(c))
	require.NoError(t, err)

	a := buildAnalyzer(c, r)
	_, err = a.Analyze(context.Background(), model.AnalysisRequest{
		TaskType: model.TaskPayroll,
		Records:  model.Batch{{"id": "1"}, {"id": "2"}, {"id": "3"}},
	})
	var ve *audit.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestEstimateFor(t *testing.T) {
	resp, err := estimateFor(router.DefaultTable(), model.TaskPayroll, 1_000_000, 100_000)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, resp.EstimatedCostUSD, 1e-9)
	assert.Equal(t, "anthropic", resp.Provider)

	_, err = estimateFor(router.DefaultTable(), "marketing", 1, 1)
	var ce *router.ConfigurationError
	assert.ErrorAs(t, err, &ce)

	_, err = estimateFor(router.DefaultTable(), model.TaskPayroll, -1, 0)
	assert.Error(t, err)
}

func TestPrintRoutes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printRoutes(&buf, router.DefaultTable()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(model.TaskTypes)+1)
	assert.Contains(t, lines[0], "FALLBACK")
	assert.Contains(t, buf.String(), router.ModelDeepSeekV3)
}

func TestRunAnalysis_StreamAnnouncesFallback(t *testing.T) {
	var out bytes.Buffer
	a := &fakeAnalyzer{fn: succeed}

	result, err := runAnalysis(context.Background(), a, model.AnalysisRequest{TaskType: model.TaskPayroll}, &out)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, out.String(), "restarting on fallback")
	assert.Contains(t, out.String(), "[]}")
}

func TestRunAnalysis_NoStream(t *testing.T) {
	result, err := runAnalysis(context.Background(), &fakeAnalyzer{fn: succeed}, model.AnalysisRequest{TaskType: model.TaskPayroll}, nil)
	require.NoError(t, err)
	assert.Equal(t, "generated-1", result.CorrelationID)
}

func writeBatchFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestProcessBatch(t *testing.T) {
	dir := t.TempDir()
	writeBatchFile(t, dir, "a.json", `[{"employeeId":"E1"}]`)
	writeBatchFile(t, dir, "b.csv", "employeeId,hours\nE2,40\n")
	writeBatchFile(t, dir, "c.json", `{"nope":true}`)
	writeBatchFile(t, dir, "d.json", `[]`)

	files, err := ingest.ListDir(dir)
	require.NoError(t, err)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	a := &fakeAnalyzer{fn: func(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error) {
		if len(req.Records) == 0 {
			return nil, &audit.ValidationError{Index: -1, Reason: "record batch is empty"}
		}
		r, err := succeed(ctx, req)
		r.CorrelationID = req.Records[0]["employeeId"].(string)
		return r, err
	}}

	report, err := processBatch(context.Background(), files, model.TaskPayroll, 2, a, st)
	require.NoError(t, err)
	require.Len(t, report.Files, 4)

	assert.True(t, report.Files[0].Success)
	assert.Equal(t, "E1", report.Files[0].CorrelationID)
	assert.True(t, report.Files[1].Success)
	assert.Contains(t, report.Files[2].Error, "records")
	assert.Contains(t, report.Files[3].Error, "empty")

	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 2, report.Summary.Succeeded)

	saved, err := st.ListAnalyses(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, report))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "summary")
}

func TestProcessBatch_Empty(t *testing.T) {
	report, err := processBatch(context.Background(), nil, model.TaskPayroll, 4, &fakeAnalyzer{fn: succeed}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Files)
	assert.Equal(t, 0, report.Summary.Total)
}

func TestRaiseAlerts(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	s := audit.Summarize(nil)
	s.Total, s.Failed = 10, 6
	s.EstimatedCostUSD = 20

	a := monitoring.NewAlerter(config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.25,
		CostThresholdUSD:     10,
	})
	alerts := raiseAlerts(context.Background(), a, s)
	require.Len(t, alerts, 2)
	assert.Equal(t, 2, hits)

	quiet := raiseAlerts(context.Background(), monitoring.NewAlerter(config.MonitoringConfig{}), s)
	assert.Empty(t, quiet)
}
