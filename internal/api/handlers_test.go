package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brandlens/brandlens/internal/aggregate"
	"github.com/brandlens/brandlens/internal/breaker"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/engine"
	"github.com/brandlens/brandlens/internal/matrix"
	"github.com/brandlens/brandlens/internal/platform"
	"github.com/brandlens/brandlens/internal/repository"
	"github.com/brandlens/brandlens/internal/store"
	"github.com/brandlens/brandlens/internal/timeout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAPI(t *testing.T) *API {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := store.NewStore(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	adapters := platform.NewRegistry()
	adapters.Register("openai", platform.Func(func(ctx context.Context, prompt string) (platform.Response, error) {
		return platform.Response{Content: "Acme is a leading vendor"}, nil
	}))

	e := engine.New(adapters, breaker.NewRegistry(breaker.DefaultConfig()), timeout.NewCalculator(timeout.DefaultConfig()),
		engine.Config{Workers: 4, BatchTimeout: 5 * time.Second})
	service := diagnosis.NewService(matrix.NewBuilder(adapters.Platforms()), e, s, repository.NewMockExecutionRepository())

	return NewAPI(service, s)
}

func startExecution(t *testing.T, api *API, body string) string {
	t.Helper()

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/diagnoses", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp StartDiagnosisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ExecutionID)

	return resp.ExecutionID
}

func waitUntilDone(t *testing.T, api *API, executionID string) diagnosis.ExecutionState {
	t.Helper()

	var state diagnosis.ExecutionState
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses/"+executionID, nil))
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
			return false
		}
		return state.ShouldStopPolling
	}, 5*time.Second, 10*time.Millisecond)

	return state
}

func TestStartDiagnosis(t *testing.T) {
	api := setupAPI(t)

	id := startExecution(t, api, `{"brands":["Acme"],"questions":["What is the best CRM?"],"platforms":["openai"]}`)
	state := waitUntilDone(t, api, id)

	assert.Equal(t, diagnosis.StageCompleted, state.Stage)
	assert.Equal(t, 100, state.Progress)
}

func TestStartDiagnosis_InvalidJSON(t *testing.T) {
	api := setupAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/diagnoses", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JSON")
}

func TestStartDiagnosis_ValidationError(t *testing.T) {
	api := setupAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{
			name: "no brands",
			body: `{"brands":[],"questions":["q"],"platforms":["openai"]}`,
		},
		{
			name: "unknown platform",
			body: `{"brands":["Acme"],"questions":["q"],"platforms":["claude"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/diagnoses", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStartDiagnosis_MethodNotAllowed(t *testing.T) {
	api := setupAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetDiagnosis_NotFound(t *testing.T) {
	api := setupAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses/unknown-id", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDiagnosisResult(t *testing.T) {
	api := setupAPI(t)

	id := startExecution(t, api, `{"brands":["Acme"],"questions":["What is the best CRM?"],"platforms":["openai"]}`)
	waitUntilDone(t, api, id)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses/"+id+"/result", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var result aggregate.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, aggregate.RecommendCompleted, result.Recommendation)
	assert.Equal(t, 1, result.SuccessCount)
}

func TestGetDiagnosisResult_NotFound(t *testing.T) {
	api := setupAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses/unknown-id/result", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiagnosisRoutes_UnknownSubpath(t *testing.T) {
	api := setupAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/diagnoses/some-id/other", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardStats(t *testing.T) {
	api := setupAPI(t)

	id := startExecution(t, api, `{"brands":["Acme"],"questions":["What is the best CRM?"],"platforms":["openai"]}`)
	waitUntilDone(t, api, id)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_executions":1`)
}
