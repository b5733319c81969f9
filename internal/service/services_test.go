package service

import (
	"testing"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/storage/memory"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

func TestNewServices(t *testing.T) {
	store := memory.NewStore()
	cfg := config.DefaultConfig()
	cfg.Booking.ConfirmedLabel = "confirmed"
	logger := zap.NewNop()

	services := NewServices(store, cfg, logger)

	if services == nil {
		t.Fatal("expected services to not be nil")
	}
	if services.Registry == nil {
		t.Fatal("expected Registry service to be initialized")
	}
	if got := services.Registry.ConfirmedLabel(); got != "confirmed" {
		t.Errorf("ConfirmedLabel() = %q, want %q", got, "confirmed")
	}
}
