package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

// scriptedServer sends frames on connect and echoes every frame it reads
func scriptedServer(t *testing.T, frames ...string) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := Dial(ctx, "ws://127.0.0.1:1/socket")
	assert.Error(t, err)
}

func TestClient_LoadOrders(t *testing.T) {
	url := scriptedServer(t, `{"event":"loadOrders","data":[{"id":1},{"id":2}]}`)
	c := dial(t, url)

	orders, err := c.LoadOrders(time.Second)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.JSONEq(t, `{"id":2}`, string(orders[1]))
}

func TestClient_ExpectSkipsOtherEvents(t *testing.T) {
	url := scriptedServer(t,
		`{"event":"loadOrders","data":[]}`,
		`{"event":"orderUpdate","data":{"id":1}}`,
		`{"event":"orderConfirmed","data":1}`,
	)
	c := dial(t, url)

	env, err := c.Expect(time.Second, protocol.EventOrderConfirmed, protocol.EventPaymentStatusUpdated)
	require.NoError(t, err)
	assert.Equal(t, protocol.EventOrderConfirmed, env.Event)
	assert.JSONEq(t, `1`, string(env.Data))
}

func TestClient_EmitRoundTrip(t *testing.T) {
	c := dial(t, scriptedServer(t))

	require.NoError(t, c.Emit(protocol.EventConfirmOrder, "abc"))
	env, err := c.Next(time.Second)
	require.NoError(t, err)
	assert.Equal(t, protocol.EventConfirmOrder, env.Event)
	assert.JSONEq(t, `"abc"`, string(env.Data))
}

func TestClient_Timeout(t *testing.T) {
	c := dial(t, scriptedServer(t))

	_, err := c.Expect(100*time.Millisecond, protocol.EventLoadOrders)
	assert.ErrorIs(t, err, ErrTimeout)
}
