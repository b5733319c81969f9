// Package sqlite stores the registry in a SQLite database. Orders are kept
// as their JSON payload next to the compact order id, so arbitrary booking
// fields survive without a schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

// Store implements SQLite storage
type Store struct {
	db     *sql.DB
	users  *UserStore
	orders *OrderStore
}

// NewStore opens (creating if needed) the database at cfg.Path
func NewStore(ctx context.Context, cfg *config.SQLiteConfig) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps writes ordered and makes :memory: usable.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.users = &UserStore{db: db}
	s.orders = &OrderStore{db: db}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	userTable := `CREATE TABLE IF NOT EXISTS users (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL
	);`

	orderTable := `CREATE TABLE IF NOT EXISTS orders (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id TEXT NOT NULL,
		data TEXT NOT NULL
	);`

	orderIndex := `CREATE INDEX IF NOT EXISTS idx_orders_order_id ON orders (order_id, seq);`

	for _, stmt := range []string{userTable, orderTable, orderIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

func (s *Store) Users() storage.UserStore       { return s.users }
func (s *Store) Orders() storage.OrderStore     { return s.orders }
func (s *Store) Close() error                   { return s.db.Close() }
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func isConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}

// UserStore implements SQLite user storage
type UserStore struct {
	db *sql.DB
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password) VALUES (?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.Password,
	)
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert user: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *UserStore) getOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: query user: %v", storage.ErrDatabase, err)
	}
	return &u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.getOne(ctx, `SELECT id, name, email, password FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getOne(ctx, `SELECT id, name, email, password FROM users WHERE email = ? ORDER BY seq LIMIT 1`, email)
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, password FROM users ORDER BY seq`)
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
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM users`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("%w: max user id: %v", storage.ErrDatabase, err)
	}
	return maxID, nil
}

// OrderStore implements SQLite order storage
type OrderStore struct {
	db *sql.DB
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, data) VALUES (?, ?)`,
		order.ID.String(), string(data),
	); err != nil {
		return fmt.Errorf("%w: insert order: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM orders WHERE order_id = ? ORDER BY seq LIMIT 1`, id.String(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: query order: %v", storage.ErrDatabase, err)
	}
	return decodeOrder(data)
}

func (s *OrderStore) GetAll(ctx context.Context) ([]*domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM orders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", storage.ErrDatabase, err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		var data string
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET data = ? WHERE seq = (SELECT MIN(seq) FROM orders WHERE order_id = ?)`,
		string(data), order.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: update order: %v", storage.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update order: %v", storage.ErrDatabase, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func decodeOrder(data string) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return nil, fmt.Errorf("%w: decode order: %v", storage.ErrDatabase, err)
	}
	return &o, nil
}
