package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/layerwave/layerwave/pkg/config"
	"github.com/layerwave/layerwave/pkg/engine"
	"github.com/layerwave/layerwave/pkg/policy"
)

// Routes returns the router with all routes configured.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestIDHeader)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.telemetry.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentType)
		r.Post("/plan", s.handlePlan)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleListReports)
			r.Get("/{id}", s.handleGetReport)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (s *Server) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs each request and records it in the metrics under its route
// pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(started)

		s.telemetry.Metrics.RecordHTTPRequest(r.Method, route, status, elapsed)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("request served")
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	cat, rev := s.Catalog()
	if cat == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Status: "not_ready",
			Checks: map[string]string{"catalog": "missing"},
		})
		return
	}
	s.writeJSON(w, http.StatusOK, ReadyResponse{
		Status:   "ready",
		Checks:   map[string]string{"catalog": "ok"},
		Revision: rev,
	})
}

// =============================================================================
// Plan Handler
// =============================================================================

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	cat, rev := s.Catalog()
	if cat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "NOT_READY", "no catalog loaded")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, engine.ErrCodeInputFormat, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, engine.ErrCodeInputFormat, "failed to read request body")
		return
	}

	doc, err := s.parser.ParseLayers(body, config.FormatJSON, "request")
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	var policyRev uint64
	if s.policies != nil {
		policyRev = s.policies.Revision()
	}
	key, err := cacheKey(rev, policyRev, doc)
	if err != nil {
		s.writeEngineError(w, engine.NewInternalError("failed to hash request", err))
		return
	}
	if cached, ok := s.plans.Get(key); ok {
		s.telemetry.Metrics.RecordCacheLookup(true)
		s.writeJSON(w, http.StatusOK, cached)
		return
	}
	s.telemetry.Metrics.RecordCacheLookup(false)

	layers, docTarget, err := doc.Decode()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	target, err := config.ResolveTarget("", docTarget, cat)
	if err != nil && s.cfg.DefaultTarget != "" {
		// The server default only fills in when the request and catalog are silent.
		target, err = config.ResolveTarget(s.cfg.DefaultTarget, nil, nil)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	plan, err := s.telemetry.ComputePlan(r.Context(), s.planner, engine.Request{
		Layers:  layers,
		Recipes: cat.Recipes,
		Buckets: cat.Buckets,
		Target:  target,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	if s.policies != nil {
		result, err := s.policies.EvaluatePlan(r.Context(), plan, "api")
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		for _, v := range result.Violations {
			s.telemetry.Metrics.RecordPolicyFinding(v.Policy, string(v.Severity))
		}
		if s.cfg.EnforcePolicies {
			if err := policy.Enforce(result); err != nil {
				s.writeEngineError(w, err)
				return
			}
		}
	}

	docs := plan.Documents()
	s.plans.Set(key, docs, cache.DefaultExpiration)
	s.writeJSON(w, http.StatusOK, docs)
}

// cacheKey identifies a request against one catalog revision and one policy
// set. Planning is deterministic, so equal keys always produce equal wave
// arrays and equal policy verdicts.
func cacheKey(revision, policyRevision uint64, doc *config.LayersDocument) (string, error) {
	canonical, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%d:%d:%s", revision, policyRevision, hex.EncodeToString(sum[:])), nil
}

// =============================================================================
// Report Handlers
// =============================================================================

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, engine.ErrCodeNotFound, "report archive is not enabled")
		return
	}

	reports, err := s.archive.ListReports(r.Context(), r.URL.Query().Get("target"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := make([]ReportSummary, 0, len(reports))
	for _, rep := range reports {
		resp = append(resp, ReportSummary{
			ID:          rep.ID,
			Target:      rep.Target,
			PlanID:      rep.PlanID,
			WaveCount:   rep.WaveCount,
			LayerCount:  rep.LayerCount,
			ManualCount: rep.ManualCount,
			CreatedAt:   rep.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusNotFound, engine.ErrCodeNotFound, "report archive is not enabled")
		return
	}

	report, err := s.archive.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeEngineError maps a classified error to its HTTP status.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := ErrorBody{
		Code:    engine.CodeOf(err),
		Message: err.Error(),
	}

	var ee *engine.EngineError
	if errors.As(err, &ee) {
		body.Message = ee.Message
		body.Field = ee.Field
		body.Layer = ee.Layer
		if diags, ok := ee.Details["diagnostics"].([]string); ok {
			body.Diagnostics = diags
		}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
		body.Message = "internal error"
	}
	s.writeJSON(w, status, ErrorResponse{Error: body})
}

func statusFor(err error) int {
	switch {
	case engine.IsInput(err):
		return http.StatusBadRequest
	case engine.IsNotFound(err):
		return http.StatusNotFound
	case engine.IsPolicyDenied(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
