// Package redis stores enriched records as JSON documents keyed by record id,
// with a per-partition sorted set indexing them by timestamp.
//
// Key layout:
//
//	{prefix}:{partition}:{id}       record JSON
//	{prefix}:{partition}:by_time    ZSET of ids scored by Unix microseconds
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

const maxWatchRetries = 5

// Options configures the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store is a Redis-backed record store.
type Store struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis store ready", "addr", opts.Addr, "db", opts.DB, "prefix", opts.KeyPrefix)
	return New(client, opts.KeyPrefix, logger), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string, logger *slog.Logger) *Store {
	return &Store{client: client, prefix: prefix, logger: logger}
}

func (s *Store) recordKey(p domain.Partition, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, p, id)
}

func (s *Store) indexKey(p domain.Partition) string {
	return fmt.Sprintf("%s:%s:by_time", s.prefix, p)
}

func validPartition(p domain.Partition) error {
	if _, ok := domain.ParsePartition(string(p)); !ok {
		return fmt.Errorf("unknown partition %q", p)
	}
	return nil
}

// Put writes the record document and its index entry in one MULTI/EXEC.
func (s *Store) Put(ctx context.Context, partition domain.Partition, rec domain.EnrichedRecord) error {
	if err := validPartition(partition); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: serialize record: %w", domain.ErrPersistenceFailure, err)
	}

	key := s.recordKey(partition, rec.ID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		pipe.ZAdd(ctx, s.indexKey(partition), redis.Z{
			Score:  float64(rec.Timestamp.UnixMicro()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %w", domain.ErrPersistenceFailure, key, err)
	}
	return nil
}

func (s *Store) ListVisible(ctx context.Context, partitions ...domain.Partition) ([]domain.EnrichedRecord, error) {
	records := []domain.EnrichedRecord{}
	for _, p := range domain.ResolvePartitions(partitions) {
		if err := validPartition(p); err != nil {
			return nil, err
		}
		recs, err := s.listPartition(ctx, p)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	domain.SortNewestFirst(records)
	return records, nil
}

func (s *Store) listPartition(ctx context.Context, p domain.Partition) ([]domain.EnrichedRecord, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(p), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s index: %w", p, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(p, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s records: %w", p, err)
	}

	records := make([]domain.EnrichedRecord, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry without a document.
			continue
		}
		var rec domain.EnrichedRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			s.logger.Warn("skipping unreadable record", "key", keys[i], "error", err)
			continue
		}
		if rec.Visible() {
			records = append(records, rec)
		}
	}
	return records, nil
}

// SetVisibility rewrites the record's show flag under WATCH so a concurrent
// writer cannot be overwritten.
func (s *Store) SetVisibility(ctx context.Context, partition domain.Partition, id, show string) error {
	if err := validPartition(partition); err != nil {
		return err
	}
	key := s.recordKey(partition, id)

	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s/%s: %w", partition, id, domain.ErrRecordNotFound)
		}
		if err != nil {
			return err
		}

		var rec domain.EnrichedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		rec.Show = show
		updated, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
			return fmt.Errorf("%w: update %s: %w", domain.ErrPersistenceFailure, key, err)
		}
		return err
	}
	return fmt.Errorf("%w: update %s: too much contention", domain.ErrPersistenceFailure, key)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
