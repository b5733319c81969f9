package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/service"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/memory"
	wsclient "github.com/sirosfoundation/go-booking-backend/pkg/client"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

const wait = 2 * time.Second

type testEnv struct {
	gateway  *Gateway
	store    storage.Store
	registry *service.Registry
	reg      *prometheus.Registry
	url      string
}

func newTestEnv(t *testing.T, store storage.Store) *testEnv {
	t.Helper()
	if store == nil {
		store = memory.NewStore()
	}
	cfg := config.DefaultConfig()
	reg := prometheus.NewRegistry()
	registry := service.NewRegistry(store, &cfg.Booking, zap.NewNop())
	g := New(registry, &cfg.Gateway, NewMetrics(reg), zap.NewNop())

	server := httptest.NewServer(http.HandlerFunc(g.HandleConnection))
	t.Cleanup(func() {
		g.Close()
		server.Close()
	})

	return &testEnv{
		gateway:  g,
		store:    store,
		registry: registry,
		reg:      reg,
		url:      "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

// connect dials and consumes the initial loadOrders frame
func (e *testEnv) connect(t *testing.T) (*wsclient.Client, []json.RawMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	c, err := wsclient.Dial(ctx, e.url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	env, err := c.Next(wait)
	require.NoError(t, err)
	require.Equal(t, protocol.EventLoadOrders, env.Event, "first frame must be loadOrders")

	var orders []json.RawMessage
	require.NoError(t, env.DecodeData(&orders))
	return c, orders
}

func expect(t *testing.T, c *wsclient.Client, event protocol.Event) *protocol.Envelope {
	t.Helper()
	env, err := c.Next(wait)
	require.NoError(t, err)
	require.Equal(t, event, env.Event, "payload: %s", string(env.Data))
	return env
}

func expectNothing(t *testing.T, c *wsclient.Client) {
	t.Helper()
	env, err := c.Next(200 * time.Millisecond)
	if err == nil {
		t.Fatalf("unexpected event %s: %s", env.Event, string(env.Data))
	}
	assert.ErrorIs(t, err, wsclient.ErrTimeout)
}

func registerUser(t *testing.T, c *wsclient.Client, email string) domain.Profile {
	t.Helper()
	require.NoError(t, c.Emit(protocol.EventRegister, domain.Registration{Name: "Test", Email: email, Password: "secret"}))
	env := expect(t, c, protocol.EventRegisterSuccess)
	var profile domain.Profile
	require.NoError(t, env.DecodeData(&profile))
	return profile
}

func seededStore(t *testing.T) storage.Store {
	t.Helper()
	var first, second domain.Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"userId":1,"room":"A"}`), &first))
	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"userId":1,"room":"B"}`), &second))
	return memory.NewStoreWith(
		[]*domain.User{{ID: 1, Name: "A", Email: "a@x.com", Password: "p"}},
		[]*domain.Order{&first, &second},
	)
}

func TestGateway_LoadOrdersOnConnect(t *testing.T) {
	env := newTestEnv(t, seededStore(t))

	_, orders := env.connect(t)
	require.Len(t, orders, 2)
	assert.JSONEq(t, `{"id":1,"userId":1,"room":"A"}`, string(orders[0]))
	assert.JSONEq(t, `{"id":2,"userId":1,"room":"B"}`, string(orders[1]))
}

func TestGateway_LoadOrdersEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	_, orders := env.connect(t)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestGateway_NewBookingBroadcastsToAll(t *testing.T) {
	env := newTestEnv(t, nil)
	customer, _ := env.connect(t)
	admin, _ := env.connect(t)

	profile := registerUser(t, customer, "a@x.com")
	assert.Equal(t, int64(1), profile.ID)
	assert.Equal(t, "a@x.com", profile.Email)

	booking := json.RawMessage(`{"id":42,"userId":1,"room":"101"}`)
	require.NoError(t, customer.Emit(protocol.EventNewBooking, booking))

	for _, c := range []*wsclient.Client{customer, admin} {
		update := expect(t, c, protocol.EventOrderUpdate)
		assert.JSONEq(t, string(booking), string(update.Data))
	}

	late, orders := env.connect(t)
	require.NotNil(t, late)
	require.Len(t, orders, 1)
	assert.JSONEq(t, string(booking), string(orders[0]))
}

func TestGateway_NewBookingUnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)
	customer, _ := env.connect(t)
	admin, _ := env.connect(t)

	require.NoError(t, customer.Emit(protocol.EventNewBooking, json.RawMessage(`{"id":1,"userId":5}`)))

	authErr := expect(t, customer, protocol.EventAuthError)
	var msg string
	require.NoError(t, authErr.DecodeData(&msg))
	assert.Equal(t, protocol.MessageAuthError, msg)

	expectNothing(t, admin)

	count, err := env.registry.OrderCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestGateway_RegisterPasswordNeverEchoed(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)

	require.NoError(t, c.Emit(protocol.EventRegister, domain.Registration{Name: "A", Email: "a@x.com", Password: "p"}))
	success := expect(t, c, protocol.EventRegisterSuccess)
	assert.NotContains(t, string(success.Data), "password")
	assert.JSONEq(t, `{"id":1,"name":"A","email":"a@x.com"}`, string(success.Data))
}

func TestGateway_RegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)
	other, _ := env.connect(t)

	registerUser(t, c, "a@x.com")
	require.NoError(t, c.Emit(protocol.EventRegister, domain.Registration{Name: "B", Email: "a@x.com", Password: "q"}))

	regErr := expect(t, c, protocol.EventRegisterError)
	var msg string
	require.NoError(t, regErr.DecodeData(&msg))
	assert.Equal(t, protocol.MessageRegisterError, msg)

	expectNothing(t, other)

	users, err := env.store.Users().GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestGateway_Login(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)
	registerUser(t, c, "a@x.com")

	require.NoError(t, c.Emit(protocol.EventLogin, domain.Credentials{Email: "a@x.com", Password: "secret"}))
	success := expect(t, c, protocol.EventLoginSuccess)
	assert.JSONEq(t, `{"id":1,"name":"Test","email":"a@x.com"}`, string(success.Data))

	require.NoError(t, c.Emit(protocol.EventLogin, domain.Credentials{Email: "a@x.com", Password: "wrong"}))
	loginErr := expect(t, c, protocol.EventLoginError)
	var msg string
	require.NoError(t, loginErr.DecodeData(&msg))
	assert.Equal(t, protocol.MessageLoginError, msg)
}

func TestGateway_ConfirmOrder(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)
	viewer, _ := env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventConfirmOrder, 2))

	for _, c := range []*wsclient.Client{admin, viewer} {
		confirmed := expect(t, c, protocol.EventOrderConfirmed)
		assert.JSONEq(t, `2`, string(confirmed.Data))
	}

	_, orders := env.connect(t)
	require.Len(t, orders, 2)
	assert.NotContains(t, string(orders[0]), "status")
	assert.JSONEq(t, `{"id":2,"userId":1,"room":"B","status":"Đã xác nhận"}`, string(orders[1]))
}

func TestGateway_ConfirmUnknownOrderIsSilent(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventConfirmOrder, 99))
	require.NoError(t, admin.Emit(protocol.EventConfirmOrder, "1"))

	// events are handled in order, so the next frame is the login reply
	require.NoError(t, admin.Emit(protocol.EventLogin, domain.Credentials{Email: "x", Password: "y"}))
	expect(t, admin, protocol.EventLoginError)

	_, orders := env.connect(t)
	for _, o := range orders {
		assert.NotContains(t, string(o), "status")
	}
}

func TestGateway_UpdatePaymentStatus(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)
	viewer, _ := env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"orderId":1,"depositPaid":true}`)))
	for _, c := range []*wsclient.Client{admin, viewer} {
		update := expect(t, c, protocol.EventPaymentStatusUpdated)
		assert.JSONEq(t, `{"orderId":1,"depositPaid":true}`, string(update.Data))
	}

	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"orderId":1,"fullPaid":false}`)))
	update := expect(t, admin, protocol.EventPaymentStatusUpdated)
	assert.JSONEq(t, `{"orderId":1,"depositPaid":true,"fullPaid":false}`, string(update.Data))

	order, err := env.registry.FindOrder(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, order.DepositPaid)
	require.NotNil(t, order.FullPaid)
	assert.True(t, *order.DepositPaid)
	assert.False(t, *order.FullPaid)
}

func TestGateway_UpdatePaymentStatusExplicitNullOverwrites(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"orderId":1,"depositPaid":true}`)))
	expect(t, admin, protocol.EventPaymentStatusUpdated)

	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"orderId":1,"depositPaid":null}`)))
	update := expect(t, admin, protocol.EventPaymentStatusUpdated)
	assert.JSONEq(t, `{"orderId":1,"depositPaid":null}`, string(update.Data))

	order, err := env.registry.FindOrder(context.Background(), "1")
	require.NoError(t, err)
	assert.Nil(t, order.DepositPaid)
	assert.JSONEq(t, `null`, string(order.Fields["depositPaid"]))
}

func TestGateway_UpdatePaymentStatusStoresNonBooleanFlags(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)
	viewer, _ := env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"orderId":1,"depositPaid":"yes","fullPaid":true}`)))
	for _, c := range []*wsclient.Client{admin, viewer} {
		update := expect(t, c, protocol.EventPaymentStatusUpdated)
		assert.JSONEq(t, `{"orderId":1,"depositPaid":"yes","fullPaid":true}`, string(update.Data))
	}

	order, err := env.registry.FindOrder(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, order.FullPaid)
	assert.True(t, *order.FullPaid)
	assert.JSONEq(t, `"yes"`, string(order.Fields["depositPaid"]))
}

func TestGateway_LoadOrdersKeepsPayloadKeyOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)
	profile := registerUser(t, c, "order@x.com")

	payload := fmt.Sprintf(`{"id":7,"userId":%d,"zname":"Z","amount":1.50}`, profile.ID)
	require.NoError(t, c.Emit(protocol.EventNewBooking, json.RawMessage(payload)))
	update := expect(t, c, protocol.EventOrderUpdate)
	assert.Equal(t, payload, string(update.Data))

	_, orders := env.connect(t)
	require.Len(t, orders, 1)
	assert.Equal(t, payload, string(orders[0]))
}

func TestGateway_UpdatePaymentStatusUnknownOrderIsSilent(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"orderId":7,"fullPaid":true}`)))
	require.NoError(t, admin.Emit(protocol.EventUpdatePaymentStatus, json.RawMessage(`{"fullPaid":true}`)))

	require.NoError(t, admin.Emit(protocol.EventLogin, domain.Credentials{}))
	expect(t, admin, protocol.EventLoginError)
}

func TestGateway_MalformedFramesIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)

	require.NoError(t, c.Emit("noSuchEvent", 1))
	require.NoError(t, c.Emit(protocol.EventRegister, "not an object"))
	require.NoError(t, c.Emit(protocol.EventLogin, domain.Credentials{}))
	expect(t, c, protocol.EventLoginError)
}

func TestGateway_DisconnectFrame(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)
	env.connect(t)
	require.Eventually(t, func() bool {
		return env.gateway.ConnectionCount() == 2
	}, wait, 10*time.Millisecond)

	require.NoError(t, c.Emit(protocol.EventDisconnect, nil))
	assert.Eventually(t, func() bool {
		return env.gateway.ConnectionCount() == 1
	}, wait, 10*time.Millisecond)
}

func TestGateway_Close(t *testing.T) {
	env := newTestEnv(t, nil)
	c, _ := env.connect(t)

	env.gateway.Close()
	assert.Equal(t, 0, env.gateway.ConnectionCount())

	_, err := c.Next(wait)
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	_, err = wsclient.Dial(ctx, env.url)
	assert.Error(t, err)
}

func TestGateway_Metrics(t *testing.T) {
	env := newTestEnv(t, seededStore(t))
	admin, _ := env.connect(t)
	env.connect(t)

	require.NoError(t, admin.Emit(protocol.EventConfirmOrder, 1))
	expect(t, admin, protocol.EventOrderConfirmed)

	families, err := env.reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), values["booking_gateway_connections"])
	assert.Equal(t, float64(1), values["booking_gateway_events_total"])
	assert.Equal(t, float64(1), values["booking_gateway_broadcasts_total"])
}
