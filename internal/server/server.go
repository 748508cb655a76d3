// Package server exposes a read-only JSON index of a tap over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/history"
	"github.com/blackwell-systems/tapkeeper/internal/ledger"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
	"github.com/blackwell-systems/tapkeeper/internal/watcher"
)

// ReleaseSource provides recorded release history.
type ReleaseSource interface {
	Releases(pkg string) ([]*ledger.Release, error)
}

// OrderFunc returns the publication order of a loaded tap.
type OrderFunc func(ctx context.Context, t *tap.Tap) (map[string][]*formula.Descriptor, error)

// Config holds server configuration.
type Config struct {
	TapDir string
	Linter *lint.Linter
	// Order defaults to git history, falling back to the files at HEAD.
	Order OrderFunc
	// Ledger is optional; without it the releases route returns 404.
	Ledger ReleaseSource
	Logger zerolog.Logger
}

// Server serves the tap index.
type Server struct {
	cfg     Config
	index   index
	metrics *metrics
}

// New creates a Server and loads the tap once.
func New(cfg Config) (*Server, error) {
	if cfg.Linter == nil {
		cfg.Linter = lint.New(cfg.Logger)
	}
	if cfg.Order == nil {
		logger := cfg.Logger
		cfg.Order = func(ctx context.Context, t *tap.Tap) (map[string][]*formula.Descriptor, error) {
			order, _, err := history.Order(ctx, t, logger)
			return order, err
		}
	}
	s := &Server{cfg: cfg, metrics: newMetrics()}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the tap and recomputes the lint report.
func (s *Server) Reload() error {
	t, err := tap.Load(s.cfg.TapDir)
	if err != nil {
		s.metrics.reloadErrors.Inc()
		return err
	}
	order, err := s.cfg.Order(context.Background(), t)
	if err != nil {
		s.metrics.reloadErrors.Inc()
		return fmt.Errorf("failed to read publication order: %w", err)
	}
	report := s.cfg.Linter.Run(t.Descriptors, order)

	s.index.set(t, report)
	s.metrics.reloads.Inc()
	s.metrics.formulae.Set(float64(len(t.Descriptors)))
	s.metrics.lintIssues.WithLabelValues(lint.SeverityError.String()).Set(float64(len(report.Errors())))
	s.metrics.lintIssues.WithLabelValues(lint.SeverityWarning.String()).Set(float64(len(report.Warnings())))

	s.cfg.Logger.Debug().
		Int("formulae", len(t.Descriptors)).
		Int("load_errors", len(t.Errors)).
		Msg("index reloaded")
	return nil
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.metrics.instrument)

	r.Get("/healthz", s.health)
	r.Get("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/formulae", s.listFormulae)
		r.Get("/formulae/{name}", s.getFormula)
		r.Get("/formulae/{name}/releases", s.getReleases)
		r.Get("/lint", s.getLint)
	})

	return r
}

// Serve listens on addr until ctx is done, reloading the index whenever
// a formula file changes.
func (s *Server) Serve(ctx context.Context, addr string) error {
	t, err := tap.Load(s.cfg.TapDir)
	if err != nil {
		return err
	}
	w, err := watcher.New(t.Dir, s.cfg.Linter, func(ev watcher.Event) {
		if err := s.Reload(); err != nil {
			s.cfg.Logger.Error().Err(err).Str("file", ev.Path).Msg("reload failed")
		}
	}, s.cfg.Logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.cfg.Logger.Info().Str("addr", addr).Msg("serving tap index")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Formulae int    `json:"formulae"`
	LoadedAt string `json:"loaded_at"`
}

type errorResponse struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

type listResponse struct {
	Formulae []*formula.Descriptor `json:"formulae"`
	Count    int                   `json:"count"`
}

type lintResponse struct {
	*lint.Report
	Errors     int         `json:"errors"`
	Warnings   int         `json:"warnings"`
	LoadErrors []loadError `json:"load_errors,omitempty"`
}

type loadError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	n, loadedAt := s.index.stats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Formulae: n,
		LoadedAt: loadedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) listFormulae(w http.ResponseWriter, r *http.Request) {
	ds := s.index.list()
	if ds == nil {
		ds = []*formula.Descriptor{}
	}
	writeJSON(w, http.StatusOK, listResponse{Formulae: ds, Count: len(ds)})
}

func (s *Server) getFormula(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.index.get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("formula %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) getReleases(w http.ResponseWriter, r *http.Request) {
	name := formula.BaseName(chi.URLParam(r, "name"))
	if s.cfg.Ledger == nil {
		writeError(w, http.StatusNotFound, "Not Found", "no ledger configured")
		return
	}

	releases, err := s.cfg.Ledger.Releases(name)
	switch {
	case errors.Is(err, ledger.ErrNotInitialized):
		writeError(w, http.StatusNotFound, "Not Found", "ledger is empty")
		return
	case err != nil:
		s.cfg.Logger.Error().Err(err).Str("package", name).Msg("failed to read releases")
		writeError(w, http.StatusInternalServerError, "Internal Server Error", "failed to read releases")
		return
	case len(releases) == 0:
		writeError(w, http.StatusNotFound, "Not Found", fmt.Sprintf("no releases recorded for %q", name))
		return
	}
	writeJSON(w, http.StatusOK, releases)
}

func (s *Server) getLint(w http.ResponseWriter, r *http.Request) {
	report, loadErrs := s.index.lint()
	resp := lintResponse{
		Report:   report,
		Errors:   len(report.Errors()),
		Warnings: len(report.Warnings()),
	}
	for _, le := range loadErrs {
		resp.LoadErrors = append(resp.LoadErrors, loadError{Path: le.Path, Error: le.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, errorResponse{Status: status, Title: title, Detail: detail})
}
