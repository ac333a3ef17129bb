// Package api exposes the HTTP surface of the diagnosis service: starting an
// execution, polling its state, and fetching its result.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/brandlens/brandlens/internal/dashboard"
	"github.com/brandlens/brandlens/internal/diagnosis"
	"github.com/brandlens/brandlens/internal/httputil"
	"github.com/brandlens/brandlens/internal/matrix"
	"github.com/brandlens/brandlens/internal/middleware"
)

type API struct {
	service *diagnosis.Service
	mux     *http.ServeMux
}

type StartDiagnosisRequest struct {
	Brands    []string `json:"brands"`
	Questions []string `json:"questions"`
	Platforms []string `json:"platforms"`
}

type StartDiagnosisResponse struct {
	ExecutionID string `json:"execution_id"`
}

func NewAPI(service *diagnosis.Service, states dashboard.StateLister) *API {
	api := &API{
		service: service,
		mux:     http.NewServeMux(),
	}

	api.setupRoutes(states)
	return api
}

func (a *API) setupRoutes(states dashboard.StateLister) {
	a.mux.HandleFunc("/api/diagnoses", a.handleDiagnoses)
	a.mux.HandleFunc("/api/diagnoses/", a.handleDiagnosisByID)

	dash := dashboard.NewDashboard(states)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/history", dash.GetRecentExecutions)

	fs := http.FileServer(http.Dir("./web"))
	a.mux.Handle("/", fs)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.MetricsMiddleware(a.mux).ServeHTTP(w, r)
}

func (a *API) handleDiagnoses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.startDiagnosis(w, r)
}

func (a *API) startDiagnosis(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var req StartDiagnosisRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	executionID, err := a.service.Start(r.Context(), req.Brands, req.Questions, req.Platforms)
	if err != nil {
		var verr *matrix.ValidationError
		if errors.As(err, &verr) {
			httputil.WriteJSONError(w, verr.Error(), http.StatusBadRequest)
			return
		}
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, StartDiagnosisResponse{ExecutionID: executionID})
}

func (a *API) handleDiagnosisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/diagnoses/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		a.getDiagnosis(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "result":
		a.getDiagnosisResult(w, r, parts[0])
	default:
		httputil.WriteJSONError(w, "Not found", http.StatusNotFound)
	}
}

func (a *API) getDiagnosis(w http.ResponseWriter, r *http.Request, executionID string) {
	state, err := a.service.GetState(r.Context(), executionID)
	if err != nil {
		if errors.Is(err, diagnosis.ErrExecutionNotFound) {
			httputil.WriteJSONError(w, "Execution not found", http.StatusNotFound)
			return
		}
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, state)
}

func (a *API) getDiagnosisResult(w http.ResponseWriter, r *http.Request, executionID string) {
	result, err := a.service.GetResult(r.Context(), executionID)
	if err != nil {
		switch {
		case errors.Is(err, diagnosis.ErrExecutionNotFound):
			httputil.WriteJSONError(w, "Execution not found", http.StatusNotFound)
		case errors.Is(err, diagnosis.ErrResultNotReady):
			httputil.WriteJSONError(w, "Result not ready", http.StatusConflict)
		default:
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
