// Package sqlite stores enriched records in SQLite, one table per partition.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const columns = `id, car_id, latitude, longitude, timestamp, timestamp_unix_us,
	nearest_hospital, hospital_address, hospital_phone, hospital_latitude, hospital_longitude, show, type`

// readerConns bounds the read pool of a file database.
const readerConns = 4

// Store is a SQLite-backed record store. Writes go through a single
// connection; a file database in WAL mode serves reads from a separate pool
// so list queries and ingestion never wait on each other.
type Store struct {
	db     *sql.DB
	reader *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == MemoryPath {
		// One connection keeps an in-memory database alive, so reads share it.
		db, err := openPool(ctx, MemoryPath, 1)
		if err != nil {
			return nil, err
		}
		if err := migrateUp(db, 0); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("sqlite store ready", "path", path)
		return &Store{db: db, reader: db, logger: logger}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	writer, err := openPool(ctx, fileDSN(path, "journal_mode(WAL)"), 1)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(writer, 0); err != nil {
		_ = writer.Close()
		return nil, err
	}

	reader, err := openPool(ctx, fileDSN(path, "query_only(1)"), readerConns)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	logger.Info("sqlite store ready", "path", path, "journal_mode", "wal", "reader_conns", readerConns)
	return &Store{db: writer, reader: reader, logger: logger}, nil
}

// fileDSN sets busy_timeout plus extra pragmas on every pooled connection.
func fileDSN(path string, pragmas ...string) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	for _, p := range pragmas {
		params.Add("_pragma", p)
	}
	return "file:" + path + "?" + params.Encode()
}

func openPool(ctx context.Context, dsn string, conns int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(conns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if dsn == MemoryPath {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite: %w", err)
		}
	}
	return db, nil
}

// migrateUp applies embedded migrations. steps > 0 applies only that many,
// which lets tests build a database at an older schema version.
func migrateUp(db *sql.DB, steps int) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	// m.Close would close db, so only the source is released.
	defer src.Close()

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

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table, columns)
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.CarID,
		rec.Latitude,
		rec.Longitude,
		rec.Timestamp.Format(time.RFC3339Nano),
		rec.Timestamp.UnixMicro(),
		rec.NearestHospital,
		rec.HospitalAddress,
		rec.HospitalPhone,
		nullFloat(rec.HospitalLatitude),
		nullFloat(rec.HospitalLongitude),
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
	args := make([]any, 0, len(domain.Partitions))
	for _, p := range domain.ResolvePartitions(partitions) {
		table, err := tableFor(p)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf(`SELECT %s FROM %s WHERE show = ?`, columns, table))
		args = append(args, domain.VisibleYes)
	}
	query := strings.Join(selects, " UNION ALL ") + " ORDER BY timestamp_unix_us DESC"

	rows, err := s.reader.QueryContext(ctx, query, args...)
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

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET show = ? WHERE id = ?`, table), show, id)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", domain.ErrPersistenceFailure, table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", domain.ErrPersistenceFailure, table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", partition, id, domain.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	return s.reader.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.reader == s.db {
		return s.db.Close()
	}
	return errors.Join(s.reader.Close(), s.db.Close())
}

func scanRecord(rows *sql.Rows) (domain.EnrichedRecord, error) {
	var (
		rec       domain.EnrichedRecord
		ts        string
		unixMicro int64
		hospLat   sql.NullFloat64
		hospLon   sql.NullFloat64
		eventType string
	)
	err := rows.Scan(
		&rec.ID,
		&rec.CarID,
		&rec.Latitude,
		&rec.Longitude,
		&ts,
		&unixMicro,
		&rec.NearestHospital,
		&rec.HospitalAddress,
		&rec.HospitalPhone,
		&hospLat,
		&hospLon,
		&rec.Show,
		&eventType,
	)
	if err != nil {
		return domain.EnrichedRecord{}, fmt.Errorf("scan record: %w", err)
	}

	rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		rec.Timestamp = time.UnixMicro(unixMicro).UTC()
	}
	rec.Type = domain.EventType(eventType)
	rec.HospitalLatitude = floatPtr(hospLat)
	rec.HospitalLongitude = floatPtr(hospLon)
	return rec, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}
