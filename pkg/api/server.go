// Package api provides the diagnostics HTTP API of an overlay node
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZentaChain/overlay-node/pkg/network"
	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
	"github.com/ZentaChain/overlay-node/pkg/storage"
)

// Node is the part of network.Node the API needs.
type Node interface {
	Info() network.Info
	Send(recipient protocol.PublicKey, payload []byte) error
}

// Server represents the HTTP API server of a node
type Server struct {
	node       Node
	peers      *peers.Manager
	routes     *storage.RouteStore
	router     *gin.Engine
	listen     string
	httpServer *http.Server
	logger     *slog.Logger
}

// Config holds server configuration
type Config struct {
	Listen       string
	CORSOrigins  []string
	RateLimit    int // Requests per minute
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		RateLimit:    600,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates a new HTTP API server. routes may be nil when no route database is
// configured; the route endpoints then answer 503.
func NewServer(node Node, registry *peers.Manager, routes *storage.RouteStore, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		node:   node,
		peers:  registry,
		routes: routes,
		router: router,
		listen: config.Listen,
		logger: logger.With("component", "api"),
	}

	server.setupMiddleware(config)
	server.setupRoutes(config)

	return server
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(config *Config) {
	if len(config.CORSOrigins) > 0 {
		s.router.Use(CORSMiddleware(config.CORSOrigins))
	}
	if config.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(config.RateLimit)))
	}
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(gin.Recovery())
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(config *Config) {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/node", s.handleNodeInfo)

		peerGroup := v1.Group("/peers")
		{
			peerGroup.GET("", s.handlePeers)
			peerGroup.GET("/:address", s.handlePeer)
		}

		routeGroup := v1.Group("/routes")
		{
			routeGroup.GET("", s.handleListRoutes)
			routeGroup.POST("", s.handleAddRoute)
			routeGroup.DELETE("/:address", s.handleDeleteRoute)
		}

		v1.POST("/messages", s.handleSendMessage)
	}

	s.router.GET("/health", s.handleHealth)

	if config.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listen,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API server starting", "listen", s.listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
