// Package postgres stores enriched records in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

const columns = `id, car_id, latitude, longitude, timestamp,
	nearest_hospital, hospital_address, hospital_phone, hospital_latitude, hospital_longitude, show, type`

const queryTimeout = 5 * time.Second

// Store is a PostgreSQL-backed record store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open runs pending migrations against connString and connects a pool.
func Open(ctx context.Context, connString string, logger *slog.Logger) (*Store, error) {
	if err := Migrate(connString); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("postgres store ready")
	return &Store{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded migrations. It tolerates an up-to-date schema.
func Migrate(connString string) error {
	return migrateTo(connString, 0)
}

func migrateTo(connString string, steps int) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if steps > 0 {
		err = m.Steps(steps)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func tableFor(p domain.Partition) (string, error) {
	switch p {
	case domain.PartitionAccidents, domain.PartitionEmergencies:
		return string(p), nil
	default:
		return "", fmt.Errorf("unknown partition %q", p)
	}
}

func (s *Store) Put(ctx context.Context, partition domain.Partition, rec domain.EnrichedRecord) error {
	table, err := tableFor(partition)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, table, columns)
	_, err = s.pool.Exec(ctx, query,
		rec.ID,
		rec.CarID,
		rec.Latitude,
		rec.Longitude,
		rec.Timestamp,
		rec.NearestHospital,
		rec.HospitalAddress,
		rec.HospitalPhone,
		rec.HospitalLatitude,
		rec.HospitalLongitude,
		rec.Show,
		string(rec.Type),
	)
	if err != nil {
		return fmt.Errorf("%w: insert into %s: %w", domain.ErrPersistenceFailure, table, err)
	}
	return nil
}

func (s *Store) ListVisible(ctx context.Context, partitions ...domain.Partition) ([]domain.EnrichedRecord, error) {
	selects := make([]string, 0, len(domain.Partitions))
	for _, p := range domain.ResolvePartitions(partitions) {
		table, err := tableFor(p)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf(`SELECT %s FROM %s WHERE show = $1`, columns, table))
	}
	query := strings.Join(selects, " UNION ALL ") + " ORDER BY timestamp DESC"

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, domain.VisibleYes)
	if err != nil {
		return nil, fmt.Errorf("query visible records: %w", err)
	}
	defer rows.Close()

	records := []domain.EnrichedRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visible records: %w", err)
	}
	return records, nil
}

func (s *Store) SetVisibility(ctx context.Context, partition domain.Partition, id, show string) error {
	table, err := tableFor(partition)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE %s SET show = $1 WHERE id = $2`, table), show, id)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", domain.ErrPersistenceFailure, table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", partition, id, domain.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(rows pgx.Rows) (domain.EnrichedRecord, error) {
	var (
		rec       domain.EnrichedRecord
		eventType string
	)
	err := rows.Scan(
		&rec.ID,
		&rec.CarID,
		&rec.Latitude,
		&rec.Longitude,
		&rec.Timestamp,
		&rec.NearestHospital,
		&rec.HospitalAddress,
		&rec.HospitalPhone,
		&rec.HospitalLatitude,
		&rec.HospitalLongitude,
		&rec.Show,
		&eventType,
	)
	if err != nil {
		return domain.EnrichedRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Type = domain.EventType(eventType)
	return rec, nil
}
