// Package api serves the read-only HTTP query surface over the state store,
// plus the websocket stream and Prometheus scrape endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORS         bool
	Logger       zerolog.Logger
}

// Server wraps an echo instance.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    zerolog.Logger
}

// NewServer builds the echo server and registers h's routes.
func NewServer(h *Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Addr:         ":8000",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second, // cleared on websocket upgrade
		CORS:         true,
		Logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.Logger.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(recoverer(log))
	e.Use(requestLogger(log))
	if cfg.CORS {
		e.Use(cors([]string{"*"}))
	}

	if h != nil {
		h.RegisterRoutes(e)
	}
	return &Server{echo: e, config: cfg, log: log}
}

// Start listens in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() error {
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("http server listening")
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info().Msg("http server stopped")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(c *ServerConfig) { c.Addr = addr }
}

// WithTimeouts sets read/write timeouts.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithCORS enables or disables the allow-all CORS middleware.
func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithLogger sets the request and lifecycle logger.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(c *ServerConfig) { c.Logger = l }
}
