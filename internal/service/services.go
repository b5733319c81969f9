package service

import (
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

// Services aggregates all application services
type Services struct {
	Registry *Registry
}

// NewServices creates a new Services instance
func NewServices(store storage.Store, cfg *config.Config, logger *zap.Logger) *Services {
	return &Services{
		Registry: NewRegistry(store, &cfg.Booking, logger),
	}
}
