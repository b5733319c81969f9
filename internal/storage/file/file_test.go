package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/storagetest"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := NewStore(&config.FileConfig{Dir: dir}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return openStore(t, t.TempDir()) })
}

func TestStore_SnapshotsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openStore(t, dir)
	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: 1, Name: "A", Email: "a@x.com", Password: "p"}))
	require.NoError(t, store.Orders().Create(ctx, storagetest.MustOrder(t, `{"id":1,"userId":1,"seats":4}`)))
	require.NoError(t, store.Orders().Create(ctx, storagetest.MustOrder(t, `{"id":2,"userId":1}`)))

	o, err := store.Orders().GetByID(ctx, "1")
	require.NoError(t, err)
	o.SetStatus("Confirmed")
	require.NoError(t, store.Orders().Update(ctx, o))

	reopened := openStore(t, dir)

	u, err := reopened.Users().GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "p", u.Password)

	orders, err := reopened.Orders().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, domain.OrderID("1"), orders[0].ID)
	require.NotNil(t, orders[0].Status)
	assert.Equal(t, "Confirmed", *orders[0].Status)
	assert.JSONEq(t, `4`, string(orders[0].Fields["seats"]))
	assert.Equal(t, domain.OrderID("2"), orders[1].ID)
}

func TestStore_SnapshotIsPrettyPrintedArray(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := openStore(t, dir)
	require.NoError(t, store.Users().Create(ctx, &domain.User{ID: 1, Name: "A", Email: "a@x.com", Password: "p"}))

	data, err := os.ReadFile(filepath.Join(dir, UsersFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "[\n  {"), "expected indented array, got %q", data)

	var users []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "p", users[0]["password"])

	_, err = os.Stat(filepath.Join(dir, OrdersFile))
	assert.True(t, os.IsNotExist(err), "orders.json is only written on order mutations")
}

func TestStore_MalformedSnapshotsStartEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, UsersFile), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, OrdersFile), []byte(`{"id":1}`), 0o644))

	store := openStore(t, dir)
	ctx := context.Background()

	users, err := store.Users().GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	orders, err := store.Orders().GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestStore_NullEntriesSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, OrdersFile), []byte(`[null, {"id":5,"userId":1}]`), 0o644))

	store := openStore(t, dir)

	orders, err := store.Orders().GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderID("5"), orders[0].ID)
}

func TestStore_FailedMutationWritesNothing(t *testing.T) {
	dir := t.TempDir()
	store := openStore(t, dir)

	err := store.Orders().Update(context.Background(), &domain.Order{ID: "1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = os.Stat(filepath.Join(dir, OrdersFile))
	assert.True(t, os.IsNotExist(err))
}
