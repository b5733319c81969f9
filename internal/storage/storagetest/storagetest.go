// Package storagetest holds the behaviour every storage backend must share:
// insertion order, first-match lookups on duplicate order IDs, payload key
// order, and ErrNotFound on misses.
package storagetest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
)

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) storage.Store

// MustOrder parses a booking payload, failing the test on error
func MustOrder(t *testing.T, payload string) *domain.Order {
	t.Helper()
	var o domain.Order
	require.NoError(t, json.Unmarshal([]byte(payload), &o))
	return &o
}

// Run executes the shared suite against the backend built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("UserCreateAndGet", func(t *testing.T) { testUserCreateAndGet(t, newStore(t)) })
	t.Run("UserDuplicate", func(t *testing.T) { testUserDuplicate(t, newStore(t)) })
	t.Run("UserNotFound", func(t *testing.T) { testUserNotFound(t, newStore(t)) })
	t.Run("UserMaxID", func(t *testing.T) { testUserMaxID(t, newStore(t)) })
	t.Run("OrderInsertionOrder", func(t *testing.T) { testOrderInsertionOrder(t, newStore(t)) })
	t.Run("OrderFirstMatch", func(t *testing.T) { testOrderFirstMatch(t, newStore(t)) })
	t.Run("OrderUpdate", func(t *testing.T) { testOrderUpdate(t, newStore(t)) })
	t.Run("OrderKeyOrder", func(t *testing.T) { testOrderKeyOrder(t, newStore(t)) })
	t.Run("OrderNotFound", func(t *testing.T) { testOrderNotFound(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func testUserCreateAndGet(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := store.Users()

	require.NoError(t, users.Create(ctx, &domain.User{ID: 1, Name: "A", Email: "a@x.com", Password: "p"}))
	require.NoError(t, users.Create(ctx, &domain.User{ID: 2, Name: "B", Email: "b@x.com", Password: "q"}))

	got, err := users.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, "q", got.Password)

	got, err = users.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	all, err := users.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a@x.com", all[0].Email)
	assert.Equal(t, "b@x.com", all[1].Email)
}

func testUserDuplicate(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := store.Users()

	require.NoError(t, users.Create(ctx, &domain.User{ID: 1, Name: "A", Email: "a@x.com", Password: "p"}))
	err := users.Create(ctx, &domain.User{ID: 2, Name: "A2", Email: "a@x.com", Password: "p"})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	all, err := users.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testUserNotFound(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.Users().GetByID(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Users().GetByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: 1, Name: "A", Email: "a@x.com"}))
	_, err = store.Users().GetByEmail(ctx, "A@x.com")
	assert.ErrorIs(t, err, storage.ErrNotFound, "email match is case-sensitive")
}

func testUserMaxID(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := store.Users()

	maxID, err := users.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxID)

	require.NoError(t, users.Create(ctx, &domain.User{ID: 3, Name: "C", Email: "c@x.com"}))
	require.NoError(t, users.Create(ctx, &domain.User{ID: 1, Name: "A", Email: "a@x.com"}))

	maxID, err = users.MaxID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxID)
}

func testOrderInsertionOrder(t *testing.T, store storage.Store) {
	ctx := context.Background()
	orders := store.Orders()

	for _, p := range []string{
		`{"id":3,"userId":1,"table":"c"}`,
		`{"id":1,"userId":1,"table":"a"}`,
		`{"id":"x","userId":2,"table":"b","depositPaid":false}`,
	} {
		require.NoError(t, orders.Create(ctx, MustOrder(t, p)))
	}

	all, err := orders.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.OrderID("3"), all[0].ID)
	assert.Equal(t, domain.OrderID("1"), all[1].ID)
	assert.Equal(t, domain.OrderID(`"x"`), all[2].ID)

	out, err := json.Marshal(all[2])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","userId":2,"table":"b","depositPaid":false}`, string(out))
}

func testOrderFirstMatch(t *testing.T, store storage.Store) {
	ctx := context.Background()
	orders := store.Orders()

	require.NoError(t, orders.Create(ctx, MustOrder(t, `{"id":1,"userId":1,"n":"first"}`)))
	require.NoError(t, orders.Create(ctx, MustOrder(t, `{"id":1,"userId":1,"n":"second"}`)))

	got, err := orders.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.JSONEq(t, `"first"`, string(got.Fields["n"]))

	got.SetStatus("done")
	require.NoError(t, orders.Update(ctx, got))

	all, err := orders.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].Status)
	assert.Equal(t, "done", *all[0].Status)
	assert.Nil(t, all[1].Status, "duplicate id must not be touched")
}

func testOrderUpdate(t *testing.T, store storage.Store) {
	ctx := context.Background()
	orders := store.Orders()

	require.NoError(t, orders.Create(ctx, MustOrder(t, `{"id":"a","userId":1}`)))

	got, err := orders.GetByID(ctx, `"a"`)
	require.NoError(t, err)
	got.ApplyPayment(domain.PaymentUpdate{DepositPaid: domain.BoolFlag(true)})
	require.NoError(t, orders.Update(ctx, got))

	got, err = orders.GetByID(ctx, `"a"`)
	require.NoError(t, err)
	require.NotNil(t, got.DepositPaid)
	assert.True(t, *got.DepositPaid)
	assert.Nil(t, got.FullPaid)
}

func testOrderKeyOrder(t *testing.T, store storage.Store) {
	ctx := context.Background()
	orders := store.Orders()

	require.NoError(t, orders.Create(ctx, MustOrder(t, `{"zname":"Z","id":7,"amount":1.50,"userId":1,"depositPaid":null}`)))

	got, err := orders.GetByID(ctx, "7")
	require.NoError(t, err)
	got.SetStatus("done")
	require.NoError(t, orders.Update(ctx, got))

	all, err := orders.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	out, err := json.Marshal(all[0])
	require.NoError(t, err)
	assert.Equal(t, `{"zname":"Z","id":7,"amount":1.50,"userId":1,"depositPaid":null,"status":"done"}`, string(out))
}

func testOrderNotFound(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.Orders().GetByID(ctx, "99")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.Orders().Update(ctx, &domain.Order{ID: "99"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
