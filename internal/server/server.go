// Package server builds the gin router and owns the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/api"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
	"github.com/sirosfoundation/go-booking-backend/pkg/logging"
	"github.com/sirosfoundation/go-booking-backend/pkg/middleware"
)

// NewRouter creates the router with common middleware and every route.
// metrics may be nil, in which case /metrics is not mounted. limiter may
// be nil to leave /qrcode and /socket unlimited.
func NewRouter(cfg *config.Config, handlers *api.Handlers, metrics http.Handler, limiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	if logging.IsDebug(cfg.Logging) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/", handlers.CustomerPage)
	router.GET("/admin", handlers.AdminPage)

	limited := router.Group("")
	if limiter != nil {
		limited.Use(middleware.RateLimit(limiter))
	}
	limited.GET("/qrcode", handlers.QRCode)
	limited.GET("/socket", handlers.WebSocket)

	router.GET("/status", handlers.Status)
	router.GET("/health", handlers.Status)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// everything else comes from the static directory
	router.NoRoute(gin.WrapH(http.FileServer(http.Dir(cfg.Server.StaticDir))))

	return router
}

// Server wraps the HTTP listener
type Server struct {
	cfg        *config.ServerConfig
	logger     *zap.Logger
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server for handler
func New(cfg *config.ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger.Named("server"),
		httpServer: &http.Server{
			Addr:              cfg.Address(),
			Handler:           handler,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds the listening socket and serves in the background. Bind
// errors are returned; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	go func() {
		s.logger.Info("HTTP server listening", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Port returns the bound TCP port
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.cfg.Port
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
