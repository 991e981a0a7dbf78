// Package gateway is the HTTP facade: the search endpoints that accept
// the URL mini-language, the event ingest endpoint, and the usual
// health and metrics plumbing.
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"search-platform/internal/common/errors"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/observability"
	"search-platform/internal/search/orchestrator"
	"search-platform/internal/sla/ingest"
)

const maxEventBody = 1 << 20

// Server wires the orchestrator and the ingest service into chi.
type Server struct {
	search *orchestrator.Orchestrator
	ingest *ingest.Service
	logger logger.Logger
	obs    *observability.Observability
}

func NewServer(search *orchestrator.Orchestrator, ing *ingest.Service, log logger.Logger) *Server {
	return &Server{
		search: search,
		ingest: ing,
		logger: log.WithFields(map[string]interface{}{"component": "gateway"}),
	}
}

// WithObservability attaches request meters.
func (s *Server) WithObservability(obs *observability.Observability) *Server {
	s.obs = obs
	return s
}

func (s *Server) record(r *http.Request, kind, status string, started time.Time) {
	if s.obs == nil {
		return
	}
	s.obs.RecordRequest(r.Context(), kind, status)
	s.obs.RecordDuration(r.Context(), time.Since(started), kind)
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/search/{index}", s.handleSearch)
	r.Get("/search/{index}/aggregations", s.handleAggregations)
	r.Get("/search/{index}/suggest", s.handleSuggest)
	r.Post("/events/{tenant}", s.handleIngest)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	index := chi.URLParam(r, "index")
	tenantID := tenantOf(r)

	resp, err := s.search.Search(r.Context(), tenantID, index, r.URL.Query())
	if err != nil {
		s.record(r, "search", "error", started)
		s.writeError(w, err)
		return
	}
	s.record(r, "search", "ok", started)
	writeJSON(w, http.StatusOK, searchResponse(resp))
}

func (s *Server) handleAggregations(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	index := chi.URLParam(r, "index")
	tenantID := tenantOf(r)

	resp, err := s.search.Aggregate(r.Context(), tenantID, index, r.URL.Query())
	if err != nil {
		s.record(r, "aggregations", "error", started)
		s.writeError(w, err)
		return
	}
	s.record(r, "aggregations", "ok", started)
	writeJSON(w, http.StatusOK, searchResponse(resp))
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	index := chi.URLParam(r, "index")
	tenantID := tenantOf(r)

	texts, err := s.search.Suggest(r.Context(), tenantID, index, r.URL.Query())
	if err != nil {
		s.record(r, "suggest", "error", started)
		s.writeError(w, err)
		return
	}
	s.record(r, "suggest", "ok", started)
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": texts})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	tenantID := chi.URLParam(r, "tenant")

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		s.writeError(w, errors.NewParseError("unreadable request body"))
		return
	}

	id, err := s.ingest.Accept(r.Context(), tenantID, raw)
	if err != nil {
		s.record(r, "ingest", "error", started)
		s.writeError(w, err)
		return
	}
	s.record(r, "ingest", "ok", started)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"id": id})
}

// tenantOf resolves the caller's tenant: header first, query fallback.
func tenantOf(r *http.Request) string {
	if t := r.Header.Get("X-Tenant-ID"); t != "" {
		return t
	}
	return r.URL.Query().Get("tenant")
}

func searchResponse(resp *orchestrator.Response) map[string]interface{} {
	out := map[string]interface{}{
		"total": resp.Total,
		"root":  resp.Root,
	}
	if resp.Aggs != nil {
		out["aggs"] = resp.Aggs
	}
	return out
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"code": string(code), "error": err.Error(),
		})
	}
	writeJSON(w, status, map[string]interface{}{
		"code":    string(code),
		"message": err.Error(),
	})
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeParseError, errors.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case errors.ErrCodeQueueCapacityExceeded:
		return http.StatusTooManyRequests
	case errors.ErrCodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeESTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeESError, errors.ErrCodeBulkPartialFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
