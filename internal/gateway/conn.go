package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

// client is one connected channel. All writes go through send and are
// performed by writePump; close may be called from any goroutine.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger

	pingInterval time.Duration
	writeTimeout time.Duration
}

func newClient(id string, conn *websocket.Conn, queueSize int, pingInterval, writeTimeout time.Duration, logger *zap.Logger) *client {
	return &client{
		id:           id,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		done:         make(chan struct{}),
		logger:       logger.With(zap.String("conn_id", id)),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
}

// enqueue queues a frame without blocking. It reports false when the
// channel is closed or its queue is full.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// emit sends one event to this channel only
func (c *client) emit(event protocol.Event, data interface{}) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	if !c.enqueue(frame) {
		c.logger.Warn("Send queue full, closing channel", zap.String("event", string(event)))
		go c.close()
	}
	return nil
}

// close sends a close frame and tears down the socket once
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
}

// writePump drains the send queue and keeps the socket alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Ping failed", zap.Error(err))
				return
			}
		}
	}
}
