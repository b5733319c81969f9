// Package client is a small websocket client for the booking channel.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

// ErrTimeout is returned when an expected event does not arrive in time
var ErrTimeout = errors.New("timed out waiting for event")

// Client is one channel to the booking server. Reads are not safe for
// concurrent use; writes are.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial opens a channel to a ws:// or wss:// URL
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Emit sends one event
func (c *Client) Emit(event protocol.Event, data interface{}) error {
	frame, err := protocol.Encode(event, data)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Next waits for the next event. A zero timeout waits forever.
func (c *Client) Next(timeout time.Duration) (*protocol.Envelope, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, frame, err := c.conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return protocol.Decode(frame)
}

// Expect skips events until one of the given names arrives
func (c *Client) Expect(timeout time.Duration, events ...protocol.Event) (*protocol.Envelope, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		env, err := c.Next(remaining)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			if env.Event == e {
				return env, nil
			}
		}
	}
}

// LoadOrders reads the order snapshot the server sends on connect
func (c *Client) LoadOrders(timeout time.Duration) ([]json.RawMessage, error) {
	env, err := c.Expect(timeout, protocol.EventLoadOrders)
	if err != nil {
		return nil, err
	}
	var orders []json.RawMessage
	if err := env.DecodeData(&orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// Close says goodbye and closes the socket
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
