package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

var (
	ErrUnknownUser        = errors.New("booking does not reference a registered user")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownOrder       = errors.New("order not found")
)

// DefaultConfirmedLabel is the status an order gets on confirmation
const DefaultConfirmedLabel = "Đã xác nhận"

// Registry owns the users and orders. Every mutation runs under one lock
// so ids are assigned and orders updated one at a time.
type Registry struct {
	mu             sync.Mutex
	store          storage.Store
	confirmedLabel string
	logger         *zap.Logger
}

// NewRegistry creates a Registry on top of a store
func NewRegistry(store storage.Store, cfg *config.BookingConfig, logger *zap.Logger) *Registry {
	label := DefaultConfirmedLabel
	if cfg != nil && cfg.ConfirmedLabel != "" {
		label = cfg.ConfirmedLabel
	}
	return &Registry{
		store:          store,
		confirmedLabel: label,
		logger:         logger.Named("registry"),
	}
}

// ConfirmedLabel returns the status set by ConfirmOrder
func (r *Registry) ConfirmedLabel() string {
	return r.confirmedLabel
}

// FindUserByID returns storage.ErrNotFound when no user has the id
func (r *Registry) FindUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.store.Users().GetByID(ctx, id)
}

// FindUserByEmail matches the email exactly, case included
func (r *Registry) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.store.Users().GetByEmail(ctx, email)
}

// FindOrder returns the first order carrying the id
func (r *Registry) FindOrder(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return r.store.Orders().GetByID(ctx, id)
}

// Orders returns every order in the order it was booked
func (r *Registry) Orders(ctx context.Context) ([]*domain.Order, error) {
	return r.store.Orders().GetAll(ctx)
}

// OrderCount returns the number of stored orders
func (r *Registry) OrderCount(ctx context.Context) (int, error) {
	orders, err := r.store.Orders().GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(orders), nil
}

// Register adds a user under the next free id
func (r *Registry) Register(ctx context.Context, req *domain.Registration) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.Users().GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	maxID, err := r.store.Users().MaxID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assign user id: %w", err)
	}

	user := &domain.User{
		ID:       maxID + 1,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}
	if err := r.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login returns the user whose email and password both match exactly
func (r *Registry) Login(ctx context.Context, creds *domain.Credentials) (*domain.User, error) {
	user, err := r.store.Users().GetByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.Matches(creds.Email, creds.Password) {
		return nil, ErrInvalidCredentials
	}

	r.logger.Debug("User logged in", zap.Int64("user_id", user.ID))
	return user, nil
}

// Book stores a booking payload as a new order. The payload must name an
// existing user in userId; anything else is ErrUnknownUser.
func (r *Registry) Book(ctx context.Context, payload json.RawMessage) (*domain.Order, error) {
	var order domain.Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, ErrUnknownUser
	}
	return r.AddOrder(ctx, &order)
}

// AddOrder appends an already decoded order
func (r *Registry) AddOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	ownerID, ok := order.OwnerID()
	if !ok {
		return nil, ErrUnknownUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.store.Users().GetByID(ctx, ownerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := r.store.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Info("New booking received",
		zap.String("order_id", order.ID.String()),
		zap.Int64("user_id", ownerID))
	return order, nil
}

// ConfirmOrder sets the confirmed label on the first order with the id
func (r *Registry) ConfirmOrder(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return r.SetOrderStatus(ctx, id, r.confirmedLabel)
}

// SetOrderStatus overwrites the status of the first order with the id
func (r *Registry) SetOrderStatus(ctx context.Context, id domain.OrderID, status string) (*domain.Order, error) {
	return r.mutateOrder(ctx, id, func(o *domain.Order) {
		o.SetStatus(status)
	})
}

// SetPaymentFlags applies the flags present in update; absent flags keep
// their value
func (r *Registry) SetPaymentFlags(ctx context.Context, update *domain.PaymentUpdate) (*domain.Order, error) {
	return r.mutateOrder(ctx, update.OrderID, func(o *domain.Order) {
		o.ApplyPayment(*update)
	})
}

func (r *Registry) mutateOrder(ctx context.Context, id domain.OrderID, fn func(*domain.Order)) (*domain.Order, error) {
	if id == "" {
		return nil, ErrUnknownOrder
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := r.store.Orders().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownOrder
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	fn(order)
	if err := r.store.Orders().Update(ctx, order); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownOrder
		}
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return order, nil
}
