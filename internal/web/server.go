// Package web exposes live stack captures and stored crash reports over a
// local debug HTTP server.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/core"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/report"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/store"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/wire"
)

// ReportStore is the slice of report persistence the server needs.
type ReportStore interface {
	List(ctx context.Context, limit int) ([]*store.Report, error)
	Get(ctx context.Context, id string) (*store.Report, error)
	Delete(ctx context.Context, id string) error
}

// Server represents the crashtrace debug HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	config     Config
	logger     *slog.Logger
	capturer   *stack.Capturer
	reports    ReportStore
}

// Config holds the server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	EnableCORS      bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:7457",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		CORSOrigins:     []string{"http://localhost:7457"},
		EnableCORS:      true,
	}
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithReportStore wires stored crash reports into the API routes.
func WithReportStore(rs ReportStore) ServerOption {
	return func(s *Server) {
		s.reports = rs
	}
}

// New creates a new Server instance with the given configuration.
func New(cfg Config, capturer *stack.Capturer, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if capturer == nil {
		capturer = stack.NewCapturer(nil)
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		capturer: capturer,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// setupRouter configures the Chi router with middleware and routes.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		})
		r.Use(corsMiddleware.Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/debug", func(r chi.Router) {
		r.Get("/stack", s.handleStack)
		r.Get("/stack/all", s.handleStackAll)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleAPIRoot)
		if s.reports != nil {
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", s.handleListReports)
				r.Get("/{id}", s.handleGetReport)
				r.Delete("/{id}", s.handleDeleteReport)
			})
			s.logger.Info("report routes registered at /api/v1/reports")
		}
	})

	return r
}

// loggingMiddleware logs HTTP requests using structured logging.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// handleAPIRoot returns API information.
func (s *Server) handleAPIRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"version":"v1","name":"crashtrace-api"}`))
}

// handleStack captures and returns the stack of the handling goroutine.
func (s *Server) handleStack(w http.ResponseWriter, r *http.Request) {
	seq := s.capturer.Capture()
	switch r.URL.Query().Get("format") {
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, seq.String())
	case "wire":
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(wire.PackFrames(seq))
	default:
		s.writeError(w, http.StatusBadRequest, "unknown format, want text or wire")
	}
}

// handleStackAll captures every goroutine and returns the aggregated tree.
func (s *Server) handleStackAll(w http.ResponseWriter, r *http.Request) {
	tree := s.capturer.CaptureAll()
	switch r.URL.Query().Get("format") {
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_ = tree.Render(w)
	case "wire":
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(wire.PackTree(tree))
	default:
		s.writeError(w, http.StatusBadRequest, "unknown format, want text or wire")
	}
}

type reportSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message,omitempty"`
	Source      string    `json:"source,omitempty"`
	Signal      string    `json:"signal,omitempty"`
	MemoryBytes uint64    `json:"memory_bytes,omitempty"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	reports, err := s.reports.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing reports", "error", err)
		s.writeError(w, http.StatusInternalServerError, "listing reports failed")
		return
	}

	summaries := make([]reportSummary, 0, len(reports))
	for _, rep := range reports {
		summaries = append(summaries, reportSummary{
			ID:          rep.ID,
			CreatedAt:   rep.CreatedAt,
			Kind:        rep.Kind,
			Message:     rep.Message,
			Source:      rep.Source,
			Signal:      rep.Signal,
			MemoryBytes: rep.MemoryBytes,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": summaries})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rep, err := s.reports.Get(r.Context(), id)
	if err != nil {
		if core.IsCategory(err, core.ErrCatNotFound) {
			s.writeError(w, http.StatusNotFound, "report not found")
			return
		}
		s.logger.Error("loading report", "report_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "loading report failed")
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		s.writeJSON(w, http.StatusOK, map[string]any{
			"id":           rep.ID,
			"created_at":   rep.CreatedAt,
			"kind":         rep.Kind,
			"message":      rep.Message,
			"source":       rep.Source,
			"signal":       rep.Signal,
			"memory_bytes": rep.MemoryBytes,
			"report":       rep.Report,
		})
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprint(w, rep.Report)
	case "yaml":
		doc, err := report.FromEncoded(rep.ID, rep.CreatedAt, rep.Kind, rep.Message, rep.Source, rep.Signal, rep.MemoryBytes, rep.Encoded)
		if err != nil {
			s.logger.Error("decoding report", "report_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "decoding report failed")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		if err := doc.ExportYAML(w); err != nil {
			s.logger.Error("exporting report", "report_id", id, "error", err)
		}
	default:
		s.writeError(w, http.StatusBadRequest, "unknown format, want json, text or yaml")
	}
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.reports.Delete(r.Context(), id); err != nil {
		s.logger.Error("deleting report", "report_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "deleting report failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Start starts the HTTP server in a non-blocking manner.
func (s *Server) Start() error {
	s.logger.Info("starting http server",
		slog.String("addr", s.httpServer.Addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Router returns the underlying chi router for route registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
