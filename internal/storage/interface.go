package storage

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create stores a new user; the caller assigns the ID
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by exact email match
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetAll retrieves all users in insertion order
	GetAll(ctx context.Context) ([]*domain.User, error)

	// MaxID returns the highest assigned user ID, or 0 when there are none
	MaxID(ctx context.Context) (int64, error)
}

// OrderStore defines the interface for order storage operations.
// Order IDs are not unique; lookups and updates act on the first order
// (in insertion order) carrying the ID.
type OrderStore interface {
	// Create appends an order
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves the first order with the given ID
	GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error)

	// GetAll retrieves all orders in insertion order
	GetAll(ctx context.Context) ([]*domain.Order, error)

	// Update replaces the first order with the same ID
	Update(ctx context.Context, order *domain.Order) error
}

// Store aggregates all stores
type Store interface {
	Users() UserStore
	Orders() OrderStore
	Close() error
	Ping(ctx context.Context) error
}
