package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/tendant/music-catalog/pkg/catalog"
	"github.com/tendant/music-catalog/pkg/catalog/api"
	"github.com/tendant/music-catalog/pkg/catalog/config"
	"github.com/tendant/music-catalog/pkg/catalog/logging"
	"github.com/tendant/music-catalog/pkg/catalog/metrics"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load server configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(serverConfig.Environment, os.Stdout)
	slog.SetDefault(logger)

	recorder := metrics.NewRecorder()

	ctx := context.Background()
	svc, cleanup, err := serverConfig.BuildService(ctx, logger, catalog.WithMetrics(recorder))
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := NewHTTPServer(svc, serverConfig, recorder)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Music catalog server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.StorageBackend,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// In-flight publishes run on a detached context; give them time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.UploadTimeout+10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}

// HTTPServer wraps the catalog service for HTTP access
type HTTPServer struct {
	service  catalog.Service
	config   *config.ServerConfig
	recorder *metrics.Recorder
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(service catalog.Service, serverConfig *config.ServerConfig, recorder *metrics.Recorder) *HTTPServer {
	return &HTTPServer{
		service:  service,
		config:   serverConfig,
		recorder: recorder,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.MetricsMiddleware(s.recorder))

	if s.config.JWTSecret != "" {
		r.Use(api.Authenticate(api.NewJWTAuth(s.config.JWTSecret)))
	} else {
		slog.Warn("AUTH_JWT_SECRET is not set; every admin request will be rejected")
	}

	opts := []api.HandlerOption{
		api.WithMaxUploadMemory(s.config.MaxUploadMemory),
		api.WithErrorDetail(!s.config.IsProduction()),
	}
	catalogHandler := api.NewCatalogHandler(s.service, opts...)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/healthz/ready", s.handleHealth)
	r.Handle("/metrics", s.recorder.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Mount("/admin", api.NewAdminHandler(s.service, opts...).Routes())
		r.Mount("/songs", catalogHandler.SongRoutes())
		r.Mount("/albums", catalogHandler.AlbumRoutes())
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, http.StatusText(http.StatusOK))
}
