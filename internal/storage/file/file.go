// Package file keeps the registry in memory and mirrors each collection to a
// pretty-printed JSON snapshot (users.json, orders.json) after every
// mutation. Snapshots are read once, when the store is opened.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/memory"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

const (
	UsersFile  = "users.json"
	OrdersFile = "orders.json"
)

// Store implements snapshot-file storage on top of the memory store
type Store struct {
	dir    string
	mem    *memory.Store
	logger *zap.Logger

	// writeMu serializes snapshot writes so the newest state lands last
	writeMu sync.Mutex

	users  *UserStore
	orders *OrderStore
}

// NewStore opens the snapshots in cfg.Dir. A missing or unparseable
// snapshot yields an empty collection; only an unusable directory fails.
func NewStore(cfg *config.FileConfig, logger *zap.Logger) (*Store, error) {
	logger = logger.Named("file-store")

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	var users []*domain.User
	if err := readSnapshot(filepath.Join(cfg.Dir, UsersFile), &users); err != nil {
		logger.Warn("Starting with no users", zap.Error(err))
		users = nil
	}
	var orders []*domain.Order
	if err := readSnapshot(filepath.Join(cfg.Dir, OrdersFile), &orders); err != nil {
		logger.Warn("Starting with no orders", zap.Error(err))
		orders = nil
	}

	s := &Store{
		dir:    cfg.Dir,
		mem:    memory.NewStoreWith(compact(users), compact(orders)),
		logger: logger,
	}
	s.users = &UserStore{store: s}
	s.orders = &OrderStore{store: s}

	logger.Info("Loaded snapshots",
		zap.String("dir", cfg.Dir),
		zap.Int("users", len(users)),
		zap.Int("orders", len(orders)),
	)
	return s, nil
}

func (s *Store) Users() storage.UserStore       { return s.users }
func (s *Store) Orders() storage.OrderStore     { return s.orders }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return nil }

func readSnapshot(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// compact drops null entries a hand-edited snapshot may contain
func compact[T any](in []*T) []*T {
	out := in[:0]
	for _, v := range in {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// persist rewrites one snapshot file wholesale. The in-memory state is
// authoritative, so a failed write is logged rather than returned.
func (s *Store) persist(name string, snapshot func() (interface{}, error)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	v, err := snapshot()
	if err != nil {
		s.logger.Error("Failed to snapshot collection", zap.String("file", name), zap.Error(err))
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Error("Failed to encode snapshot", zap.String("file", name), zap.Error(err))
		return
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		s.logger.Error("Failed to write snapshot", zap.String("file", path), zap.Error(err))
		return
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		s.logger.Error("Failed to write snapshot", zap.String("file", path), zap.Error(err))
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		s.logger.Error("Failed to write snapshot", zap.String("file", path), zap.Error(err))
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		s.logger.Error("Failed to replace snapshot", zap.String("file", path), zap.Error(err))
		return
	}

	s.logger.Debug("Snapshot written", zap.String("file", path), zap.Int("bytes", len(data)))
}

// UserStore mirrors user mutations to users.json
type UserStore struct {
	store *Store
}

func (s *UserStore) inner() storage.UserStore { return s.store.mem.Users() }

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if err := s.inner().Create(ctx, user); err != nil {
		return err
	}
	s.store.persist(UsersFile, func() (interface{}, error) { return s.inner().GetAll(ctx) })
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.inner().GetByID(ctx, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.inner().GetByEmail(ctx, email)
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	return s.inner().GetAll(ctx)
}

func (s *UserStore) MaxID(ctx context.Context) (int64, error) {
	return s.inner().MaxID(ctx)
}

// OrderStore mirrors order mutations to orders.json
type OrderStore struct {
	store *Store
}

func (s *OrderStore) inner() storage.OrderStore { return s.store.mem.Orders() }

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	if err := s.inner().Create(ctx, order); err != nil {
		return err
	}
	s.store.persist(OrdersFile, func() (interface{}, error) { return s.inner().GetAll(ctx) })
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return s.inner().GetByID(ctx, id)
}

func (s *OrderStore) GetAll(ctx context.Context) ([]*domain.Order, error) {
	return s.inner().GetAll(ctx)
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	if err := s.inner().Update(ctx, order); err != nil {
		return err
	}
	s.store.persist(OrdersFile, func() (interface{}, error) { return s.inner().GetAll(ctx) })
	return nil
}
