// Package httpserver provides the operational HTTP server: liveness,
// readiness, and Prometheus metrics endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// Pinger reports whether a backing store is reachable. A nil Pinger means
// the server has no store and readiness only reflects process liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ArchiveReader serves the archive's read side; satisfied by
// repository.PgArchive. A nil reader disables the archive endpoints.
type ArchiveReader interface {
	RecentSearches(ctx context.Context, limit int) ([]*domain.SearchRecord, error)
	GetPaper(ctx context.Context, arxivID string) (*domain.PaperRecord, error)
}

// Config holds operational HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the operational HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	db         Pinger
	archive    ArchiveReader
	logger     zerolog.Logger
}

// NewServer creates the operational server. db and archive may be nil when
// the archive is disabled.
func NewServer(cfg Config, db Pinger, archive ArchiveReader, logger zerolog.Logger) *Server {
	s := &Server{
		db:      db,
		archive: archive,
		logger:  logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/archive", func(r chi.Router) {
		r.Get("/searches", s.listSearchesHandler)
		r.Get("/papers/{arxivID}", s.getPaperHandler)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler returns readiness status including database
// connectivity when an archive is configured.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "not_ready",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ready",
			"database": "healthy",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// searchResponse is the wire form of one archived search.
type searchResponse struct {
	Topic      string `json:"topic"`
	Query      string `json:"query"`
	From       string `json:"from"`
	To         string `json:"to"`
	Discovered int    `json:"discovered"`
	Summarized int    `json:"summarized"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

// paperResponse is the wire form of one archived paper.
type paperResponse struct {
	ArxivID          string                  `json:"arxiv_id"`
	Title            string                  `json:"title"`
	Abstract         string                  `json:"abstract"`
	Authors          []string                `json:"authors"`
	SectionSummaries []domain.SectionSummary `json:"section_summaries"`
	GeneralSummary   string                  `json:"general_summary"`
	Status           string                  `json:"status"`
	URL              string                  `json:"url"`
}

// listSearchesHandler returns recent archived searches, newest first.
// The limit query parameter caps the result count.
func (s *Server) listSearchesHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive disabled"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	searches, err := s.archive.RecentSearches(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list searches")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list searches"})
		return
	}

	out := make([]searchResponse, 0, len(searches))
	for _, search := range searches {
		out = append(out, searchResponse{
			Topic:      search.Topic,
			Query:      search.Query,
			From:       search.Range.From.Format("2006.01.02"),
			To:         search.Range.To.Format("2006.01.02"),
			Discovered: search.Discovered,
			Summarized: search.Summarized,
			Duplicates: search.Duplicates,
			Failed:     search.Failed,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// getPaperHandler returns one archived paper by its arXiv identifier.
func (s *Server) getPaperHandler(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive disabled"})
		return
	}

	arxivID := chi.URLParam(r, "arxivID")
	paper, err := s.archive.GetPaper(r.Context(), arxivID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "paper not found"})
		case errors.Is(err, domain.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			s.logger.Error().Err(err).Str("arxiv_id", arxivID).Msg("failed to get paper")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get paper"})
		}
		return
	}

	writeJSON(w, http.StatusOK, paperResponse{
		ArxivID:          paper.ID,
		Title:            paper.Title,
		Abstract:         paper.Abstract,
		Authors:          paper.Authors,
		SectionSummaries: paper.SectionSummaries,
		GeneralSummary:   paper.GeneralSummary,
		Status:           string(paper.Status),
		URL:              paper.URL(),
	})
}

// requestLogger logs each request with its status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}
