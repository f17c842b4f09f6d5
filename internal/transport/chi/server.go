package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/schema"
	"github.com/vortikal/vxsearch/internal/domain/search/querystring"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/result"
	logpkg "github.com/vortikal/vxsearch/internal/logger"
	healthuc "github.com/vortikal/vxsearch/internal/usecase/health"
	searchuc "github.com/vortikal/vxsearch/internal/usecase/search"
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest      = "bad_request"
	codeInvalidQuery    = "invalid_query"
	codeUnsupportedSort = "unsupported_sort"
	codeUnauthorized    = "unauthorized"
	codeInternalError   = "internal_error"
)

// engine is the part of the search service the HTTP layer calls.
type engine interface {
	Execute(ctx context.Context, token string, req request.Request) (result.Page, error)
	IterateMatching(ctx context.Context, token string, req request.Request, fn searchuc.MatchFunc) error
}

type healthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the search HTTP API.
type Server struct {
	search        engine
	health        healthChecker
	schema        schema.Schema
	limits        querystring.Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search engine,
	health healthChecker,
	sch schema.Schema,
	limits querystring.Limits,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.Default <= 0 {
		limits.Default = 20
	}
	return &Server{
		search: search,
		health: health,
		schema: sch,
		limits: limits,
		logger: logger,
		errorHandlers: []errorHandler{
			kindHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery, true),
			kindHandler(domain.ErrUnsupportedSort, http.StatusBadRequest, codeUnsupportedSort, true),
			kindHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized, false),
		},
	}
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/search", s.Search)
	r.Get("/search/stream", s.Stream)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type propertySetResponse struct {
	URI        string                 `json:"uri"`
	Properties map[string]interface{} `json:"properties"`
}

type searchResponse struct {
	Items  []propertySetResponse `json:"items"`
	Total  int                   `json:"total"`
	Cursor int                   `json:"cursor"`
	Limit  int                   `json:"limit"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Search handles GET /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, err := querystring.ParseRequest(r.URL.Query(), s.schema, s.limits)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	page, err := s.search.Execute(r.Context(), TokenFromContext(r.Context()), req)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	items := make([]propertySetResponse, 0, page.Len())
	for _, ps := range page.Items() {
		items = append(items, propertySetToResponse(ps))
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Items:  items,
		Total:  page.Total(),
		Cursor: req.Cursor(),
		Limit:  req.Limit(),
	})
}

// Stream handles GET /search/stream. Matching documents are written as
// JSON lines in sort order; sorting is limited to one ascending property.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	req, err := querystring.ParseRequest(r.URL.Query(), s.schema, s.limits)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	started := false
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	err = s.search.IterateMatching(r.Context(), TokenFromContext(r.Context()), req,
		func(ps result.PropertySet) (bool, error) {
			if !started {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.WriteHeader(http.StatusOK)
				started = true
			}
			if err := enc.Encode(propertySetToResponse(ps)); err != nil {
				return false, err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return r.Context().Err() == nil, nil
		})
	switch {
	case err != nil && started:
		// Headers are gone; the client sees a truncated stream.
		logpkg.FromContext(r.Context()).Warn("stream aborted", zap.Error(err))
	case err != nil:
		s.handleDomainError(r.Context(), w, err)
	case !started:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
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

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// kindHandler returns an errorHandler for one engine error kind. With detail
// set, the message includes the cause carried by the domain error.
func kindHandler(sentinel error, status int, code string, detail bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		var de *domain.Error
		if detail && errors.As(err, &de) && de.Err != nil {
			msg += ": " + de.Err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			logpkg.FromContext(ctx).Debug("request rejected", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func propertySetToResponse(ps result.PropertySet) propertySetResponse {
	return propertySetResponse{
		URI:        ps.URI(),
		Properties: ps.Properties(),
	}
}
