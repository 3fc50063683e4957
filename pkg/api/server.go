package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gwerr "github.com/speechlytics/speech-gateway/pkg/errors"
)

// ServerConfig configures the gateway's HTTP listener.
type ServerConfig struct {
	// Host is the address to bind.
	Host string `json:"host" yaml:"host" env:"HOST" envDefault:"0.0.0.0"`

	// Port is the TCP port to listen on.
	Port int `json:"port" yaml:"port" env:"PORT" envDefault:"3000"`

	// ReadTimeout bounds reading a full request, body included.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT" envDefault:"30s"`

	// WriteTimeout bounds writing a full response.
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"30s"`

	// ShutdownTimeout bounds the graceful drain on shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Validate checks the configuration for logical correctness.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return gwerr.New(gwerr.CodeValidation, "api: port must be between 1 and 65535")
	}
	return nil
}

// Server runs the gateway's HTTP listener with CORS, panic recovery,
// and graceful shutdown around the given handler.
type Server struct {
	httpServer *http.Server
	config     ServerConfig
	logger     *slog.Logger
}

// NewServer creates a Server serving handler. logger may be nil, in
// which case the default logger is used.
func NewServer(cfg ServerConfig, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	wrapped := corsMiddleware(recoveryMiddleware(handler, logger))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      wrapped,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests for
// at most ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return gwerr.Wrap(err, gwerr.CodeInternal, "api: http server failed")
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return gwerr.Wrap(err, gwerr.CodeTimeout, "api: graceful shutdown did not complete")
	}
	return nil
}

// corsMiddleware allows any origin with the GET, POST, and OPTIONS
// methods and the Content-Type and Authorization headers. Preflight
// requests are answered directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts handler panics into the internal error
// envelope so no request can crash the process.
func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(r.Context(), "panic while handling request",
					"panic", rec, "method", r.Method, "path", r.URL.Path)
				writeError(w, ErrInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
