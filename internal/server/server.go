package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SearchHandler answers API Gateway shaped search requests.
type SearchHandler interface {
	Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
}

// Uploader stores an image together with its custom labels.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, labels []string) error
}

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServerConfig holds the local API server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	HealthTimeout   time.Duration
	// Health backs /healthz. Without it /healthz only reports that the process is up.
	Health          HealthChecker
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxUploadBytes:  10 << 20,
		HealthTimeout:   5 * time.Second,
	}
}

// Server exposes the search and upload flows over plain HTTP for local development.
type Server struct {
	config       *ServerConfig
	search       SearchHandler
	uploader     Uploader
	registry     *prometheus.Registry
	metrics      *httpMetrics
	httpServer   *http.Server
	logger       *zap.Logger
	shutdownOnce sync.Once
}

// NewServer creates a new local API server. uploader may be nil, which disables the upload route.
func NewServer(serverConfig *ServerConfig, search SearchHandler, uploader Uploader, logger *zap.Logger) (*Server, error) {
	if search == nil {
		return nil, fmt.Errorf("search handler is required")
	}
	if serverConfig == nil {
		serverConfig = DefaultServerConfig()
	}
	if serverConfig.MaxUploadBytes <= 0 {
		serverConfig.MaxUploadBytes = DefaultServerConfig().MaxUploadBytes
	}
	if serverConfig.HealthTimeout <= 0 {
		serverConfig.HealthTimeout = DefaultServerConfig().HealthTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := newHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}

	return &Server{
		config:   serverConfig,
		search:   search,
		uploader: uploader,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Run starts the server and blocks until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.Routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting local API server", zap.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		return err
	}
}

func (s *Server) shutdown() error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
	})
	return shutdownErr
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)
	r.Use(s.loggingMiddleware)

	r.Get("/search", s.handleSearch)
	r.Options("/search", s.handlePreflight)
	if s.uploader != nil {
		r.Put("/upload/{bucket}/*", s.handleUpload)
		r.Options("/upload/{bucket}/*", s.handlePreflight)
	}
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}
