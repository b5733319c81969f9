package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/api"
	"github.com/sirosfoundation/go-booking-backend/internal/backend"
	"github.com/sirosfoundation/go-booking-backend/internal/gateway"
	"github.com/sirosfoundation/go-booking-backend/internal/server"
	"github.com/sirosfoundation/go-booking-backend/internal/service"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
	"github.com/sirosfoundation/go-booking-backend/pkg/logging"
	"github.com/sirosfoundation/go-booking-backend/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Booking Server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	// Initialize storage backend; snapshots are loaded here
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.New(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(ctx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to ping storage", zap.Error(err))
	}
	logger.Info("Storage backend initialized", zap.String("type", string(store.Type())))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Services and the real-time gateway
	services := service.NewServices(store, cfg, logger)
	gw := gateway.New(services.Registry, &cfg.Gateway, gateway.NewMetrics(reg), logger)

	handlers := api.NewHandlers(services, gw, cfg, logger)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, logger)
	defer limiter.Stop()
	router := server.NewRouter(cfg, handlers, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), limiter, logger)

	srv := server.New(&cfg.Server, router, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	handlers.SetPort(srv.Port())
	logAddresses(logger, srv.Port())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Channels are hijacked connections; close them before the HTTP server
	gw.Close()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// logAddresses prints where the customer and admin views can be reached
func logAddresses(logger *zap.Logger, port int) {
	logger.Info("Server running", zap.Int("port", port))
	logger.Info("Client", zap.String("url", fmt.Sprintf("http://localhost:%d", port)))
	logger.Info("Admin", zap.String("url", fmt.Sprintf("http://localhost:%d/admin", port)))

	ip, err := api.LANAddress()
	if err != nil {
		logger.Info("No LAN address detected", zap.Error(err))
		return
	}
	logger.Info("Client (LAN)", zap.String("url", fmt.Sprintf("http://%s:%d", ip, port)))
	logger.Info("Admin (LAN)", zap.String("url", fmt.Sprintf("http://%s:%d/admin", ip, port)))
}
