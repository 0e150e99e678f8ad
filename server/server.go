// Package server is the dashboard: an embedded Leaflet page plus the JSON,
// PNG and PDF endpoints it draws from. Each request filters the loaded
// catalog and renders the result; nothing is cached between requests.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zalepa/crimemap/config"
	"github.com/zalepa/crimemap/loader"
)

//go:embed web.html
var htmlContent embed.FS

// Server serves one loaded catalog.
type Server struct {
	cfg     *config.Config
	catalog *loader.Catalog
	log     *zap.Logger

	metaJSON []byte
	router   chi.Router
}

// New builds the router and precomputes the metadata response.
func New(cfg *config.Config, catalog *loader.Catalog, log *zap.Logger) (*Server, error) {
	metaJSON, err := json.Marshal(buildMetadata(catalog))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		catalog:  catalog,
		log:      log,
		metaJSON: metaJSON,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/html"))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/metadata", s.handleMetadata)
		r.Get("/map", s.handleMap)
		r.Get("/series", s.handleSeries)
		r.Get("/chart.png", s.handleChart)
		r.Get("/report.pdf", s.handleReport)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("not found"))
	})
	s.router = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully,
// giving in-flight requests the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.GetReadTimeout(),
		WriteTimeout: s.cfg.GetWriteTimeout(),
		ErrorLog:     zap.NewStdLog(s.log),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("Dashboard listening", zap.String("addr", "http://"+ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down dashboard")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
