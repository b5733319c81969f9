package api

import (
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/gateway"
	"github.com/sirosfoundation/go-booking-backend/internal/service"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

// QRCodeErrorMessage is the whole body of a failed /qrcode response
const QRCodeErrorMessage = "Error generating QR code"

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	gateway  *gateway.Gateway
	cfg      *config.Config
	logger   *zap.Logger

	// lanAddress is swapped out in tests
	lanAddress func() (net.IP, error)
	// port is the bound listener port once known; 0 means cfg.Server.Port
	port atomic.Int32
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services *service.Services, gw *gateway.Gateway, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		services:   services,
		gateway:    gw,
		cfg:        cfg,
		logger:     logger.Named("handlers"),
		lanAddress: LANAddress,
	}
}

// CustomerPage serves the booking view
func (h *Handlers) CustomerPage(c *gin.Context) {
	c.File(filepath.Join(h.cfg.Server.StaticDir, h.cfg.Server.CustomerPage))
}

// AdminPage serves the order management view
func (h *Handlers) AdminPage(c *gin.Context) {
	c.File(filepath.Join(h.cfg.Server.StaticDir, h.cfg.Server.AdminPage))
}

// SetPort records the port the listener actually bound, which is what the
// QR code advertises
func (h *Handlers) SetPort(port int) {
	h.port.Store(int32(port))
}

func (h *Handlers) qrURL(ip net.IP) string {
	port := int(h.port.Load())
	if port == 0 {
		port = h.cfg.Server.Port
	}
	return fmt.Sprintf("http://%s:%d", ip, port)
}

// QRCode renders http://<lan-ip>:<port> as a PNG
func (h *Handlers) QRCode(c *gin.Context) {
	ip, err := h.lanAddress()
	if err != nil {
		h.logger.Warn("Failed to detect LAN address", zap.Error(err))
		c.String(http.StatusInternalServerError, QRCodeErrorMessage)
		return
	}

	url := h.qrURL(ip)
	png, err := qrcode.Encode(url, qrcode.Medium, h.cfg.Server.QRCodeSize)
	if err != nil {
		h.logger.Error("Failed to encode QR code", zap.String("url", url), zap.Error(err))
		c.String(http.StatusInternalServerError, QRCodeErrorMessage)
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// Status handles the /status and /health endpoints
func (h *Handlers) Status(c *gin.Context) {
	resp := StatusResponse{
		Status:  "ok",
		Service: ServiceName,
		Storage: h.cfg.Storage.Type,
	}
	if h.gateway != nil {
		resp.Connections = h.gateway.ConnectionCount()
	}

	orders, err := h.services.Registry.OrderCount(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count orders", zap.Error(err))
		resp.Status = "degraded"
	}
	resp.Orders = orders

	c.JSON(http.StatusOK, resp)
}

// WebSocket hands the request to the gateway
func (h *Handlers) WebSocket(c *gin.Context) {
	h.gateway.HandleConnection(c.Writer, c.Request)
}
