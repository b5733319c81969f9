// Package gateway runs the real-time booking channel. Each connected client
// gets a websocket; inbound events mutate the registry and the results are
// fanned out to every open channel.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/service"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

// ErrClosed is returned once the gateway has been shut down
var ErrClosed = errors.New("gateway closed")

type handlerFunc func(ctx context.Context, c *client, env *protocol.Envelope) error

// Gateway accepts channels and dispatches their events
type Gateway struct {
	registry *service.Registry
	cfg      *config.GatewayConfig
	metrics  *Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handlers map[protocol.Event]handlerFunc

	ctx    context.Context
	cancel context.CancelFunc

	// dispatchMu serializes event handling: mutation, persistence and the
	// resulting broadcast happen as one step, in arrival order.
	dispatchMu sync.Mutex

	clientsMu sync.RWMutex
	clients   map[string]*client
	closed    bool
}

// New creates a Gateway. metrics may be nil.
func New(registry *service.Registry, cfg *config.GatewayConfig, metrics *Metrics, logger *zap.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		registry: registry,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
	}
	g.handlers = map[protocol.Event]handlerFunc{
		protocol.EventNewBooking:          g.handleNewBooking,
		protocol.EventConfirmOrder:        g.handleConfirmOrder,
		protocol.EventUpdatePaymentStatus: g.handleUpdatePaymentStatus,
		protocol.EventRegister:            g.handleRegister,
		protocol.EventLogin:               g.handleLogin,
	}
	return g
}

// HandleConnection upgrades the request and serves the channel until it
// closes
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	g.clientsMu.RLock()
	closed := g.closed
	g.clientsMu.RUnlock()
	if closed {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := newClient(uuid.New().String(), conn, g.queueSize(),
		g.pingInterval(), g.writeTimeout(), g.logger)

	if err := g.attach(c); err != nil {
		c.logger.Warn("Rejecting channel", zap.Error(err))
		c.close()
		return
	}

	c.logger.Info("A user connected")
	go c.writePump()
	go g.readLoop(c)
}

// attach queues the current orders for c and then makes it visible to
// broadcasts. Holding dispatchMu means no update can slip in between.
func (g *Gateway) attach(c *client) error {
	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	orders, err := g.registry.Orders(g.ctx)
	if err != nil {
		g.logger.Error("Failed to load orders for new channel", zap.Error(err))
		orders = nil
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	if err := c.emit(protocol.EventLoadOrders, orders); err != nil {
		return err
	}

	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.clients[c.id] = c
	if g.metrics != nil {
		g.metrics.Connections.Inc()
	}
	return nil
}

func (g *Gateway) detach(c *client) {
	g.clientsMu.Lock()
	if _, ok := g.clients[c.id]; ok {
		delete(g.clients, c.id)
		if g.metrics != nil {
			g.metrics.Connections.Dec()
		}
	}
	g.clientsMu.Unlock()
	c.close()
}

func (g *Gateway) readLoop(c *client) {
	defer func() {
		g.detach(c)
		c.logger.Info("User disconnected")
	}()

	pongWait := 2*g.pingInterval() + g.writeTimeout()
	c.conn.SetReadLimit(g.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn("Ignoring malformed frame", zap.Error(err))
			continue
		}
		if env.Event == protocol.EventDisconnect {
			return
		}
		g.dispatch(c, env)
	}
}

func (g *Gateway) dispatch(c *client, env *protocol.Envelope) {
	handler, ok := g.handlers[env.Event]
	if !ok {
		c.logger.Warn("Ignoring unknown event", zap.String("event", string(env.Event)))
		return
	}
	if g.metrics != nil {
		g.metrics.Events.WithLabelValues(string(env.Event)).Inc()
	}

	g.dispatchMu.Lock()
	defer g.dispatchMu.Unlock()

	if err := handler(g.ctx, c, env); err != nil {
		c.logger.Error("Event handling failed",
			zap.String("event", string(env.Event)),
			zap.Error(err))
	}
}

// broadcast sends one event to every open channel, the sender included
func (g *Gateway) broadcast(event protocol.Event, data interface{}) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	if g.metrics != nil {
		g.metrics.Broadcasts.Inc()
	}

	g.clientsMu.RLock()
	defer g.clientsMu.RUnlock()
	for _, c := range g.clients {
		if !c.enqueue(frame) {
			c.logger.Warn("Send queue full, dropping channel", zap.String("event", string(event)))
			if g.metrics != nil {
				g.metrics.Dropped.Inc()
			}
			go c.close()
		}
	}
	return nil
}

// ConnectionCount returns the number of open channels
func (g *Gateway) ConnectionCount() int {
	g.clientsMu.RLock()
	defer g.clientsMu.RUnlock()
	return len(g.clients)
}

// Close closes every channel and refuses new ones
func (g *Gateway) Close() {
	g.clientsMu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.clients = make(map[string]*client)
	g.closed = true
	if g.metrics != nil {
		g.metrics.Connections.Set(0)
	}
	g.clientsMu.Unlock()

	g.cancel()
	for _, c := range clients {
		c.close()
	}
	g.logger.Info("Gateway closed", zap.Int("channels", len(clients)))
}

func (g *Gateway) queueSize() int {
	if g.cfg.SendQueueSize < 1 {
		return 64
	}
	return g.cfg.SendQueueSize
}

func (g *Gateway) pingInterval() time.Duration {
	if g.cfg.PingInterval <= 0 {
		return 25 * time.Second
	}
	return time.Duration(g.cfg.PingInterval) * time.Second
}

func (g *Gateway) writeTimeout() time.Duration {
	if g.cfg.WriteTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.cfg.WriteTimeout) * time.Second
}
