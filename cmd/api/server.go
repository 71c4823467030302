package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fieldtrial/domain/core"
	"fieldtrial/domain/observation"
	"fieldtrial/internal/container"
	apperrors "fieldtrial/internal/errors"
	"fieldtrial/internal/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds observation documents accepted by the API
const maxBodyBytes = 1 << 20

// Server exposes the statistics and observation services over HTTP
type Server struct {
	router *chi.Mux
	c      *container.Container
	logger *logging.Logger
}

// NewServer builds the router on an initialized container
func NewServer(c *container.Container) *Server {
	s := &Server{
		router: chi.NewRouter(),
		c:      c,
		logger: c.Logger.With("component", "api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.c.Registry, promhttp.HandlerOpts{}))

	s.router.Route("/studies/{id}", func(r chi.Router) {
		r.Post("/statistics", s.handleComputeStatistics)
		r.Get("/statistics", s.handleGetStatistics)
	})
	s.router.Post("/observations/parse", s.handleParseObservation)
	s.router.Put("/plots/{id}/rows/{index}/observations", s.handleSubmitObservation)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleComputeStatistics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.c.Statistics.Run(r.Context(), id)
	if err != nil {
		if result != nil {
			// a finished run whose save failed still reports its tallies
			writeJSON(w, apperrors.HTTPStatus(err), map[string]any{
				"result": result,
				"error":  errorBody(err),
			})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	format, err := viewFormat(r.URL.Query().Get("format"), core.ViewClientMinimal)
	if err != nil {
		s.writeError(w, err)
		return
	}
	nodes, err := s.c.Statistics.PhenotypeStatisticsJSON(r.Context(), id, format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if nodes == nil {
		nodes = []any{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleParseObservation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in, err := viewFormat(q.Get("in"), core.ViewClientFull)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := viewFormat(q.Get("out"), core.ViewStorage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	doc, err := decodeDocument(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	svc := s.c.Observations
	obs, fieldErrs, err := svc.Parse(r.Context(), doc, in, nil)
	if err != nil {
		writeJSON(w, apperrors.HTTPStatus(err), map[string]any{
			"error":        errorBody(err),
			"field_errors": fieldErrs,
		})
		return
	}
	defer obs.Release()
	writeJSON(w, http.StatusOK, map[string]any{
		"observation":  svc.Render(obs, out),
		"field_errors": fieldErrs,
	})
}

func (s *Server) handleSubmitObservation(w http.ResponseWriter, r *http.Request) {
	plotID, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 1 {
		s.writeError(w, apperrors.InvalidInput("row index must be a positive integer"))
		return
	}
	doc, err := decodeDocument(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.c.Observations.Submit(r.Context(), plotID, index, doc, nil)
	if err != nil {
		var fieldErrs []*observation.FieldError
		if result != nil {
			fieldErrs = result.FieldErrors
		}
		writeJSON(w, apperrors.HTTPStatus(err), map[string]any{
			"error":        errorBody(err),
			"field_errors": fieldErrs,
		})
		return
	}
	status := http.StatusCreated
	if result.Replaced {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"error": errorBody(err)})
}

func errorBody(err error) map[string]string {
	return map[string]string{
		"code":    apperrors.GetCode(err),
		"message": err.Error(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, key string) (core.ID, error) {
	id, err := core.ParseID(chi.URLParam(r, key))
	if err != nil {
		return "", apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}
	return id, nil
}

func viewFormat(s string, fallback core.ViewFormat) (core.ViewFormat, error) {
	if s == "" {
		return fallback, nil
	}
	f, err := core.ParseViewFormat(s)
	if err != nil {
		return f, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}
	return f, nil
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (core.Document, error) {
	var doc core.Document
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&doc); err != nil {
		return nil, apperrors.Wrap(apperrors.InvalidInput(err.Error()), "decode observation document")
	}
	return doc, nil
}
