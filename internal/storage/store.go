// Package storage defines the record store contract shared by every backend
// and selects a backend from configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/vehicle-incident-etl/internal/config"
	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
	"github.com/couchcryptid/vehicle-incident-etl/internal/storage/postgres"
	"github.com/couchcryptid/vehicle-incident-etl/internal/storage/redis"
	"github.com/couchcryptid/vehicle-incident-etl/internal/storage/sqlite"
)

// Store persists enriched records in per-type partitions. Implementations are
// safe for concurrent use and have applied their schema before returning from
// their constructor.
type Store interface {
	// Put writes one record. Errors wrap domain.ErrPersistenceFailure.
	Put(ctx context.Context, partition domain.Partition, rec domain.EnrichedRecord) error
	// ListVisible returns records whose show flag is "Yes", newest first.
	// With no partitions it reads all of them.
	ListVisible(ctx context.Context, partitions ...domain.Partition) ([]domain.EnrichedRecord, error)
	// SetVisibility overwrites the show flag of one record, or returns
	// domain.ErrRecordNotFound.
	SetVisibility(ctx context.Context, partition domain.Partition, id, show string) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	logger = logger.With("backend", cfg.StoreBackend)

	var (
		s   Store
		err error
	)
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		s, err = asStore(sqlite.Open(ctx, cfg.SQLitePath, logger))
	case config.StorePostgres:
		s, err = asStore(postgres.Open(ctx, cfg.PostgresURL, logger))
	case config.StoreRedis:
		s, err = asStore(redis.Open(ctx, redis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, logger))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	return s, nil
}

// asStore keeps a failed constructor's nil pointer from becoming a non-nil interface.
func asStore[T Store](s T, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
