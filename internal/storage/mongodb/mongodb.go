package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

// Store implements MongoDB storage
type Store struct {
	client   *mongo.Client
	database *mongo.Database
	cfg      *config.MongoDBConfig

	users  *UserStore
	orders *OrderStore
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *config.MongoDBConfig) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetServerSelectionTimeout(time.Duration(cfg.Timeout) * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	s := &Store{
		client:   client,
		database: database,
		cfg:      cfg,
	}
	s.users = &UserStore{collection: database.Collection("users")}
	s.orders = &OrderStore{
		collection: database.Collection("orders"),
		counter:    database.Collection("counters"),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.users.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.orders.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	return nil
}

func (s *Store) Users() storage.UserStore   { return s.users }
func (s *Store) Orders() storage.OrderStore { return s.orders }

// Close disconnects from MongoDB
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// UserStore implements MongoDB user storage.
// Users are listed by _id; the registry hands out increasing IDs so this
// matches insertion order.
type UserStore struct {
	collection *mongo.Collection
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	_, err := s.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert user: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := s.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find user: %v", storage.ErrDatabase, err)
	}
	return &user, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UserStore) GetAll(ctx context.Context) ([]*domain.User, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", storage.ErrDatabase, err)
	}
	defer cursor.Close(ctx)

	users := make([]*domain.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("%w: decode users: %v", storage.ErrDatabase, err)
	}
	return users, nil
}

func (s *UserStore) MaxID(ctx context.Context) (int64, error) {
	var user domain.User
	err := s.collection.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: max user id: %v", storage.ErrDatabase, err)
	}
	return user.ID, nil
}

// orderDocument wraps the JSON payload; _id is an insertion sequence
type orderDocument struct {
	Seq     int64  `bson:"_id"`
	OrderID string `bson:"order_id"`
	Data    string `bson:"data"`
}

// OrderStore implements MongoDB order storage
type OrderStore struct {
	collection *mongo.Collection
	counter    *mongo.Collection // For insertion sequence
}

func (s *OrderStore) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.counter.FindOneAndUpdate(ctx,
		bson.M{"_id": "order_seq"},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return fmt.Errorf("%w: order sequence: %v", storage.ErrDatabase, err)
	}
	if _, err := s.collection.InsertOne(ctx, orderDocument{
		Seq:     seq,
		OrderID: order.ID.String(),
		Data:    string(data),
	}); err != nil {
		return fmt.Errorf("%w: insert order: %v", storage.ErrDatabase, err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	var doc orderDocument
	err := s.collection.FindOne(ctx,
		bson.M{"order_id": id.String()},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: find order: %v", storage.ErrDatabase, err)
	}
	return decodeOrder(doc.Data)
}

func (s *OrderStore) GetAll(ctx context.Context) ([]*domain.Order, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", storage.ErrDatabase, err)
	}
	defer cursor.Close(ctx)

	orders := make([]*domain.Order, 0)
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode order: %v", storage.ErrDatabase, err)
		}
		o, err := decodeOrder(doc.Data)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", storage.ErrDatabase, err)
	}
	return orders, nil
}

func (s *OrderStore) Update(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"order_id": order.ID.String()},
		bson.M{"$set": bson.M{"data": string(data)}},
		options.FindOneAndUpdate().SetSort(bson.D{{Key: "_id", Value: 1}}),
	).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("%w: update order: %v", storage.ErrDatabase, err)
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
