// Package chi is the HTTP transport: request decoding, sentinel-to-status
// mapping, and the route table.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/malibio/nodespace-core-logic/internal/domain"
	"github.com/malibio/nodespace-core-logic/internal/domain/answer"
	"github.com/malibio/nodespace-core-logic/internal/domain/node"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/intent"
	"github.com/malibio/nodespace-core-logic/internal/domain/search/result"
	"github.com/malibio/nodespace-core-logic/internal/engine"
	"github.com/malibio/nodespace-core-logic/internal/logger"
	"github.com/malibio/nodespace-core-logic/internal/metrics"
	"github.com/malibio/nodespace-core-logic/internal/version"
)

// Engine is the orchestration surface the transport exposes.
type Engine interface {
	Upsert(ctx context.Context, req engine.UpsertRequest) (string, error)
	Resolve(ctx context.Context, id string) (node.Node, error)
	Search(ctx context.Context, query string, k int) ([]result.Result, intent.Intent, error)
	Answer(ctx context.Context, question string) (answer.Response, error)
	Insights(ctx context.Context, nodeID string) (string, error)
	RelatedNodes(ctx context.Context, nodeID string) ([]node.Node, error)
	NodesForDate(ctx context.Context, date time.Time) ([]node.Node, error)
	NavigateToDate(ctx context.Context, date time.Time) ([]node.Node, error)
	HasDate(date time.Time) bool
}

// Pinger checks storage connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API server.
type Server struct {
	eng           Engine
	pinger        Pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(eng Engine, pinger Pinger, log *zap.Logger) *Server {
	s := &Server{eng: eng, pinger: pinger, logger: log}
	s.errorHandlers = []errorHandler{
		cycleHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, CodeGenerationProvider),
		sentinelHandler(domain.ErrStorage, http.StatusInternalServerError, CodeStorageError),
		sentinelHandler(domain.ErrNotReady, http.StatusServiceUnavailable, CodeServiceNotReady),
	}
	return s
}

// Routes builds the API router with auth, metrics, and logging middleware.
func (s *Server) Routes(apiKeys []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(metrics.Middleware())
	r.Use(loggerMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Post("/nodes", s.UpsertNode)
	r.Get("/nodes/{id}", s.ResolveNode)
	r.Get("/nodes/{id}/related", s.RelatedNodes)
	r.Post("/nodes/{id}/insights", s.NodeInsights)
	r.Post("/search", s.Search)
	r.Post("/answer", s.Answer)
	r.Get("/dates/{date}", s.DateNodes)
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
	return r
}

// loggerMiddleware stores a request-scoped logger in the context and emits
// one canonical log line per request.
func loggerMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chimw.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := log.With(zap.String("request_id", requestID))
			ctx := logger.ContextWithLogger(r.Context(), reqLogger)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// UpsertNode handles POST /nodes.
func (s *Server) UpsertNode(w http.ResponseWriter, r *http.Request) {
	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "content is required")
		return
	}

	typ := node.Type(req.Type)
	if req.Type == "" {
		typ = node.Text
	}

	var meta node.Metadata
	if len(req.Metadata) > 0 {
		m, err := node.DecodeMeta(typ, req.Metadata)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "invalid metadata: "+err.Error())
			return
		}
		meta = m
	}

	id, err := s.eng.Upsert(r.Context(), engine.UpsertRequest{
		NodeID:   req.NodeID,
		RootKey:  req.RootKey,
		Content:  req.Content,
		ParentID: req.ParentID,
		BeforeID: req.BeforeID,
		Type:     typ,
		Meta:     meta,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if req.NodeID != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, UpsertResponse{NodeID: id})
}

// ResolveNode handles GET /nodes/{id}: the share-link resolver.
func (s *Server) ResolveNode(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeToWire(&n))
}

// RelatedNodes handles GET /nodes/{id}/related.
func (s *Server) RelatedNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.eng.RelatedNodes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	items := make([]NodeResponse, len(nodes))
	for i := range nodes {
		items[i] = nodeToWire(&nodes[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// NodeInsights handles POST /nodes/{id}/insights.
func (s *Server) NodeInsights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := s.eng.Insights(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, InsightsResponse{NodeID: id, Insights: text})
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return
	}

	results, qi, err := s.eng.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]SearchResultItem, len(results))
	for i := range results {
		items[i] = resultToWire(&results[i])
	}
	writeJSON(w, http.StatusOK, SearchResponse{Intent: string(qi), Results: items})
}

// Answer handles POST /answer.
func (s *Server) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "question is required")
		return
	}

	resp, err := s.eng.Answer(r.Context(), req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerToWire(&resp))
}

// DateNodes handles GET /dates/{date}. With ?create=true the day root is
// created when absent (journal navigation).
func (s *Server) DateNodes(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "date")
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "date must be YYYY-MM-DD")
		return
	}

	var nodes []node.Node
	if r.URL.Query().Get("create") == "true" {
		nodes, err = s.eng.NavigateToDate(r.Context(), date)
	} else {
		nodes, err = s.eng.NodesForDate(r.Context(), date)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]NodeResponse, len(nodes))
	for i := range nodes {
		items[i] = nodeToWire(&nodes[i])
	}
	writeJSON(w, http.StatusOK, DateNodesResponse{
		Date:        raw,
		Nodes:       items,
		HasPrevious: s.eng.HasDate(date.AddDate(0, 0, -1)),
		HasNext:     s.eng.HasDate(date.AddDate(0, 0, 1)),
	})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Version: version.Version})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.Version})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrValidation,
		domain.ErrEmbedding,
		domain.ErrGeneration,
		domain.ErrStorage,
		domain.ErrNotReady,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// cycleHandler reports the offending descent path for rejected cycles.
func cycleHandler(w http.ResponseWriter, err error, msg string) bool {
	var ce *domain.CycleError
	if !errors.As(err, &ce) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"code":    CodeCycleDetected,
		"message": msg,
		"node_id": ce.NodeID,
		"path":    ce.Path,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
