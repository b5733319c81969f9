package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-booking-backend/internal/storage"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/file"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/memory"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/mongodb"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/postgres"
	"github.com/sirosfoundation/go-booking-backend/internal/storage/sqlite"
	"github.com/sirosfoundation/go-booking-backend/pkg/config"
)

// Type defines the type of storage backend
type Type string

const (
	// TypeMemory keeps everything in process memory; nothing survives a restart
	TypeMemory Type = "memory"
	// TypeFile mirrors each collection to a JSON snapshot file
	TypeFile Type = "file"
	// TypeSQLite uses a local SQLite database
	TypeSQLite Type = "sqlite"
	// TypeMongoDB uses MongoDB
	TypeMongoDB Type = "mongodb"
	// TypePostgres uses PostgreSQL
	TypePostgres Type = "postgres"
)

// Backend is the registry's storage with lifecycle management
type Backend interface {
	storage.Store
	// Type reports which backend is in use
	Type() Type
}

type typed struct {
	storage.Store
	kind Type
}

func (b *typed) Type() Type { return b.kind }

// New creates a storage backend based on the configuration
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Backend, error) {
	storageType := Type(cfg.Storage.Type)

	switch storageType {
	case TypeMemory, "":
		return &typed{Store: memory.NewStore(), kind: TypeMemory}, nil

	case TypeFile:
		store, err := file.NewStore(&cfg.Storage.File, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create file backend: %w", err)
		}
		return &typed{Store: store, kind: TypeFile}, nil

	case TypeSQLite:
		store, err := sqlite.NewStore(ctx, &cfg.Storage.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return &typed{Store: store, kind: TypeSQLite}, nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		return &typed{Store: store, kind: TypeMongoDB}, nil

	case TypePostgres:
		store, err := postgres.NewStore(ctx, &cfg.Storage.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL backend: %w", err)
		}
		return &typed{Store: store, kind: TypePostgres}, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
