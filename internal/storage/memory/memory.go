package memory

import (
	"context"
	"sync"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
)

// Store implements an in-memory storage
type Store struct {
	users  *UserStore
	orders *OrderStore
}

// NewStore creates a new empty in-memory store
func NewStore() *Store {
	return NewStoreWith(nil, nil)
}

// NewStoreWith creates an in-memory store seeded with users and orders.
// The slices are copied; the caller keeps ownership of its records.
func NewStoreWith(users []*domain.User, orders []*domain.Order) *Store {
	s := &Store{
		users:  &UserStore{byID: make(map[int64]*domain.User)},
		orders: &OrderStore{},
	}
	for _, u := range users {
		c := u.Clone()
		s.users.data = append(s.users.data, c)
		if _, exists := s.users.byID[c.ID]; !exists {
			s.users.byID[c.ID] = c
		}
	}
	for _, o := range orders {
		s.orders.data = append(s.orders.data, o.Clone())
	}
	return s
}

func (s *Store) Users() storage.UserStore       { return s.users }
func (s *Store) Orders() storage.OrderStore     { return s.orders }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return nil }

// UserStore implements in-memory user storage
type UserStore struct {
	mu   sync.RWMutex
	data []*domain.User
	byID map[int64]*domain.User
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[user.ID]; exists {
		return storage.ErrAlreadyExists
	}
	for _, u := range s.data {
		if u.Email == user.Email {
			return storage.ErrAlreadyExists
		}
	}

	c := user.Clone()
	s.data = append(s.data, c)
	s.byID[c.ID] = c
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return user.Clone(), nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.data {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*domain.User, 0, len(s.data))
	for _, u := range s.data {
		users = append(users, u.Clone())
	}
	return users, nil
}

func (s *UserStore) MaxID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxID int64
	for _, u := range s.data {
		if u.ID > maxID {
			maxID = u.ID
		}
	}
	return maxID, nil
}

// OrderStore implements in-memory order storage
type OrderStore struct {
	mu   sync.RWMutex
	data []*domain.Order
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = append(s.data, order.Clone())
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.data[i].Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func (s *OrderStore) GetAll(ctx context.Context) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*domain.Order, 0, len(s.data))
	for _, o := range s.data {
		orders = append(orders, o.Clone())
	}
	return orders, nil
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(order.ID)
	if i < 0 {
		return storage.ErrNotFound
	}
	s.data[i] = order.Clone()
	return nil
}

// indexOf returns the position of the first order with id; caller holds mu
func (s *OrderStore) indexOf(id domain.OrderID) int {
	for i, o := range s.data {
		if o.ID == id {
			return i
		}
	}
	return -1
}
