package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/audit-cli/internal/audit"
	"github.com/sells-group/audit-cli/internal/model"
	"github.com/sells-group/audit-cli/internal/router"
	"github.com/sells-group/audit-cli/internal/store"
)

const maxBodyBytes = 10 << 20

// routeInfo is the read-only view of the router the server exposes.
type routeInfo interface {
	Table() *router.Table
	BreakerStates() map[string]string
}

// claimer guards correlation ids against redelivery.
type claimer interface {
	Claim(ctx context.Context, correlationID string) (bool, error)
	Release(ctx context.Context, correlationID string) error
}

type serverDeps struct {
	Analyzer analyzer
	Routes   routeInfo
	Store    store.Store // optional
	Dedupe   claimer     // optional
}

type server struct {
	serverDeps
}

// newServer builds the HTTP API.
func newServer(deps serverDeps, allowedOrigins []string) http.Handler {
	s := &server{serverDeps: deps}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-ID"},
		ExposedHeaders: []string{"X-Analysis-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.analyze)
		r.Get("/analyses", s.listAnalyses)
		r.Get("/analyses/{id}", s.getAnalysis)
		r.Get("/routes", s.routes)
		r.Post("/estimate", s.estimate)
	})
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.Routes != nil {
		body["circuits"] = s.Routes.BreakerStates()
	}
	respondJSON(w, http.StatusOK, body)
}

// analyzeRequest accepts snake_case and camelCase field names.
type analyzeRequest struct {
	TaskType         string      `json:"task_type"`
	TaskTypeCamel    string      `json:"taskType"`
	Records          model.Batch `json:"records"`
	CorrelationID    string      `json:"correlation_id"`
	CorrelationCamel string      `json:"correlationId"`
}

func (a analyzeRequest) toModel(header string) model.AnalysisRequest {
	return model.AnalysisRequest{
		TaskType:      model.ParseTaskType(firstNonEmpty(a.TaskType, a.TaskTypeCamel)),
		Records:       a.Records,
		CorrelationID: strings.TrimSpace(firstNonEmpty(a.CorrelationID, a.CorrelationCamel, header)),
	}
}

type analyzeResponse struct {
	AnalysisID string `json:"analysis_id,omitempty"`
	*model.AnalysisResult
}

func (s *server) analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := body.toModel(r.Header.Get("X-Correlation-ID"))
	log := zap.L().With(zap.String("correlation_id", req.CorrelationID), zap.String("request_id", middleware.GetReqID(ctx)))

	if req.CorrelationID != "" {
		if s.Store != nil {
			if _, err := s.Store.GetAnalysisByCorrelation(ctx, req.CorrelationID); err == nil {
				respondError(w, http.StatusConflict, "correlation id already processed")
				return
			}
		}
		if s.Dedupe != nil {
			ok, err := s.Dedupe.Claim(ctx, req.CorrelationID)
			switch {
			case err != nil:
				log.Warn("dedupe claim failed, continuing", zap.Error(err))
			case !ok:
				respondError(w, http.StatusConflict, "correlation id is already being processed")
				return
			}
		}
	}

	result, err := s.Analyzer.Analyze(ctx, req)
	if err != nil || !result.Success {
		s.release(req.CorrelationID, log)
	}
	if err != nil {
		var ve *audit.ValidationError
		var ce *router.ConfigurationError
		switch {
		case errors.As(err, &ve):
			respondError(w, http.StatusBadRequest, ve.Error())
		case errors.As(err, &ce):
			respondError(w, http.StatusUnprocessableEntity, ce.Error())
		default:
			log.Error("analyze failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "analysis failed")
		}
		return
	}

	resp := analyzeResponse{AnalysisResult: result}
	if s.Store != nil {
		req.CorrelationID = result.CorrelationID
		saved, err := s.Store.SaveAnalysis(ctx, req, result)
		switch {
		case errors.Is(err, store.ErrDuplicate):
			respondError(w, http.StatusConflict, "correlation id already processed")
			return
		case err != nil:
			log.Error("save analysis failed", zap.Error(err))
			if result.Success {
				s.release(req.CorrelationID, log)
			}
			respondError(w, http.StatusInternalServerError, "analysis could not be saved")
			return
		default:
			resp.AnalysisID = saved.ID
			w.Header().Set("X-Analysis-ID", saved.ID)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// release drops a dedupe claim so a redelivered webhook can retry. It runs
// detached from the request context, which may already be canceled.
func (s *server) release(correlationID string, log *zap.Logger) {
	if s.Dedupe == nil || correlationID == "" {
		return
	}
	if err := s.Dedupe.Release(context.Background(), correlationID); err != nil {
		log.Warn("dedupe release failed", zap.Error(err))
	}
}

func (s *server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		respondError(w, http.StatusNotImplemented, "no store configured")
		return
	}
	a, err := s.Store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		zap.L().Error("get analysis failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		respondError(w, http.StatusNotImplemented, "no store configured")
		return
	}
	q := r.URL.Query()
	filter := store.Filter{TaskType: model.ParseTaskType(q.Get("task_type"))}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "success must be true or false")
			return
		}
		filter.Success = &b
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				respondError(w, http.StatusBadRequest, key+" must be a non-negative integer")
				return
			}
			*dst = n
		}
	}

	out, err := s.Store.ListAnalyses(r.Context(), filter)
	if err != nil {
		zap.L().Error("list analyses failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if out == nil {
		out = []store.Analysis{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"analyses": out})
}

func (s *server) routes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"routes":   s.Routes.Table().Routes(),
		"circuits": s.Routes.BreakerStates(),
	})
}

type estimateRequest struct {
	TaskType     string `json:"task_type"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

type estimateResponse struct {
	TaskType         model.TaskType `json:"task_type"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
	InputTokens      int64          `json:"input_tokens"`
	OutputTokens     int64          `json:"output_tokens"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
}

func (s *server) estimate(w http.ResponseWriter, r *http.Request) {
	var body estimateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := estimateFor(s.Routes.Table(), model.ParseTaskType(body.TaskType), body.InputTokens, body.OutputTokens)
	if err != nil {
		var ce *router.ConfigurationError
		if errors.As(err, &ce) {
			respondError(w, http.StatusUnprocessableEntity, ce.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
