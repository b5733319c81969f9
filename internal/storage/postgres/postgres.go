// Package postgres stores the registry in PostgreSQL using pgx directly.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

// uniqueViolation is the SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// Store implements PostgreSQL storage
type Store struct {
	pool   *pgxpool.Pool
	users  *UserStore
	orders *OrderStore
}

// NewStore connects to PostgreSQL and creates the schema if missing
func NewStore(ctx context.Context, cfg *config.PostgresConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{
		pool:   pool,
		users:  &UserStore{db: pool},
		orders: &OrderStore{db: pool},
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			seq      BIGSERIAL PRIMARY KEY,
			id       BIGINT NOT NULL UNIQUE,
			name     TEXT NOT NULL,
			email    TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS orders (
			seq      BIGSERIAL PRIMARY KEY,
			order_id TEXT NOT NULL,
			-- JSON, not JSONB: keys stay in payload order
			data     JSON NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_order_id ON orders (order_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Users() storage.UserStore       { return s.users }
func (s *Store) Orders() storage.OrderStore     { return s.orders }
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close releases the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UserStore implements PostgreSQL user storage
type UserStore struct {
	db *pgxpool.Pool
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, password) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Name, user.Email, user.Password,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert user: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.Password)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: query user: %v", storage.ErrDatabase, err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getOne(ctx, `SELECT id, name, email, password FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getOne(ctx, `SELECT id, name, email, password FROM users WHERE email = $1 ORDER BY seq LIMIT 1`, email)
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, email, password FROM users ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", storage.ErrDatabase, err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Password); err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", storage.ErrDatabase, err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (s *UserStore) MaxID(ctx context.Context) (int64, error) {
	var maxID int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM users`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("%w: max user id: %v", storage.ErrDatabase, err)
	}
	return maxID, nil
}

// OrderStore implements PostgreSQL order storage
type OrderStore struct {
	db *pgxpool.Pool
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO orders (order_id, data) VALUES ($1, $2)`,
		order.ID.String(), data,
	); err != nil {
		return fmt.Errorf("%w: insert order: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM orders WHERE order_id = $1 ORDER BY seq LIMIT 1`, id.String(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: query order: %v", storage.ErrDatabase, err)
	}
	return decodeOrder(data)
}

func (s *OrderStore) GetAll(ctx context.Context) ([]*domain.Order, error) {
	rows, err := s.db.Query(ctx, `SELECT data FROM orders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", storage.ErrDatabase, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scan order: %v", storage.ErrDatabase, err)
		}
		o, err := decodeOrder(data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET data = $1 WHERE seq = (SELECT MIN(seq) FROM orders WHERE order_id = $2)`,
		data, order.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: update order: %v", storage.ErrDatabase, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func decodeOrder(data []byte) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", storage.ErrDatabase, err)
	}
	return &o, nil
}
