package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr(f float64) *float64 { return &f }

func testRecord(carID string, ts time.Time, typ domain.EventType) domain.EnrichedRecord {
	return domain.EnrichedRecord{
		ID:              domain.NewRecordID(),
		CarID:           carID,
		Latitude:        30.05,
		Longitude:       31.25,
		Timestamp:       ts,
		NearestHospital: domain.NotFound,
		HospitalAddress: domain.NotFound,
		HospitalPhone:   domain.NotFound,
		Show:            domain.VisibleYes,
		Type:            typ,
	}
}

func TestStore_PutAndList_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("C1", time.Date(2024, 5, 1, 10, 0, 0, 123456000, domain.ReferenceZone), domain.EventEmergency)
	rec.NearestHospital = "Dar Al Fouad Hospital"
	rec.HospitalAddress = "26 July Corridor"
	rec.HospitalPhone = "+20 2 38247247"
	rec.HospitalLatitude = ptr(30.0131)
	rec.HospitalLongitude = ptr(31.0052)

	require.NoError(t, s.Put(ctx, domain.PartitionEmergencies, rec))

	got, err := s.ListVisible(ctx, domain.PartitionEmergencies)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, rec.Timestamp.Equal(got[0].Timestamp))
	_, offset := got[0].Timestamp.Zone()
	assert.Equal(t, 7200, offset, "UTC offset should survive a round trip")

	got[0].Timestamp = rec.Timestamp
	if diff := cmp.Diff(rec, got[0]); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SentinelHospitalCoordinatesStayNull(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, testRecord("C1", time.Now(), domain.EventAccident)))

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NotFound, got[0].NearestHospital)
	assert.Nil(t, got[0].HospitalLatitude)
	assert.Nil(t, got[0].HospitalLongitude)
}

func TestStore_ListVisible_NewestFirstAcrossPartitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := testRecord("T1", base, domain.EventAccident)
	t2 := testRecord("T2", base.Add(time.Minute), domain.EventEmergency)
	t3 := testRecord("T3", base.Add(2*time.Minute), domain.EventAccident)

	// Inserted out of timestamp order.
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, t3))
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, t1))
	require.NoError(t, s.Put(ctx, domain.PartitionEmergencies, t2))

	all, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T2", "T1"}, carIDs(all))

	accidents, err := s.ListVisible(ctx, domain.PartitionAccidents)
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T1"}, carIDs(accidents))
}

func TestStore_ListVisible_OrdersByInstantNotText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// 09:30 UTC is later than 11:00+02:00 (09:00 UTC) even though it sorts earlier as text.
	earlier := testRecord("earlier", time.Date(2024, 5, 1, 11, 0, 0, 0, domain.ReferenceZone), domain.EventAccident)
	later := testRecord("later", time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), domain.EventAccident)

	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, earlier))
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, later))

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"later", "earlier"}, carIDs(got))
}

func TestStore_ListVisible_HidesNonYes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	visible := testRecord("visible", time.Now(), domain.EventAccident)
	hidden := testRecord("hidden", time.Now(), domain.EventAccident)
	hidden.Show = domain.VisibleNo
	odd := testRecord("odd", time.Now(), domain.EventAccident)
	odd.Show = "maybe"

	for _, r := range []domain.EnrichedRecord{visible, hidden, odd} {
		require.NoError(t, s.Put(ctx, domain.PartitionAccidents, r))
	}

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"visible"}, carIDs(got))
}

func TestStore_ListVisible_EmptyIsNotNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ListVisible(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_SetVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("C1", time.Now(), domain.EventEmergency)
	require.NoError(t, s.Put(ctx, domain.PartitionEmergencies, rec))

	require.NoError(t, s.SetVisibility(ctx, domain.PartitionEmergencies, rec.ID, domain.VisibleNo))
	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetVisibility(ctx, domain.PartitionEmergencies, rec.ID, domain.VisibleYes))
	got, err = s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_SetVisibility_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("C1", time.Now(), domain.EventAccident)
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, rec))

	err := s.SetVisibility(ctx, domain.PartitionEmergencies, rec.ID, domain.VisibleNo)
	require.ErrorIs(t, err, domain.ErrRecordNotFound)

	err = s.SetVisibility(ctx, domain.PartitionAccidents, "missing", domain.VisibleNo)
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestStore_Put_DuplicateIDFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("C1", time.Now(), domain.EventAccident)
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, rec))

	err := s.Put(ctx, domain.PartitionAccidents, rec)
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
}

func TestStore_Put_UnknownPartition(t *testing.T) {
	s := newTestStore(t)

	err := s.Put(context.Background(), domain.Partition("sightings"), testRecord("C1", time.Now(), domain.EventAccident))
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
}

func TestStore_ConcurrentPuts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := domain.PartitionAccidents
			typ := domain.EventAccident
			if i%2 == 0 {
				p, typ = domain.PartitionEmergencies, domain.EventEmergency
			}
			assert.NoError(t, s.Put(ctx, p, testRecord("car", time.Now(), typ)))
		}()
	}
	wg.Wait()

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestMigrations_AddColumnsToExistingTables(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", MemoryPath)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	// Build the first schema version and store rows that predate show/type.
	require.NoError(t, migrateUp(db, 1))
	_, err = db.ExecContext(ctx, `INSERT INTO accidents
		(id, car_id, latitude, longitude, timestamp, timestamp_unix_us, nearest_hospital, hospital_address, hospital_phone)
		VALUES ('legacy-a', 'OLD1', 30.1, 31.2, '2023-01-01T00:00:00Z', 1672531200000000, 'Not found', 'Not found', 'Not found')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO emergencies
		(id, car_id, latitude, longitude, timestamp, timestamp_unix_us, nearest_hospital, hospital_address, hospital_phone)
		VALUES ('legacy-e', 'OLD2', 30.1, 31.2, '2023-01-02T00:00:00Z', 1672617600000000, 'Not found', 'Not found', 'Not found')`)
	require.NoError(t, err)

	require.NoError(t, migrateUp(db, 0))

	s := &Store{db: db, reader: db, logger: discardLogger()}
	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "OLD2", got[0].CarID)
	assert.Equal(t, domain.EventEmergency, got[0].Type)
	assert.Equal(t, domain.VisibleYes, got[0].Show)
	assert.Equal(t, "OLD1", got[1].CarID)
	assert.Equal(t, domain.EventAccident, got[1].Type)

	// Re-running is a no-op.
	require.NoError(t, migrateUp(db, 0))
}

func TestOpen_FileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "incidents.db")

	s, err := Open(ctx, path, discardLogger())
	require.NoError(t, err)
	rec := testRecord("C1", time.Now(), domain.EventAccident)
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, rec))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.ListVisible(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestOpen_FileDatabaseWritesWhileReading(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "incidents.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for i := range 3 {
		require.NoError(t, s.Put(ctx, domain.PartitionAccidents,
			testRecord(fmt.Sprintf("C%d", i), time.Now(), domain.EventAccident)))
	}

	// Hold a read cursor open mid-iteration, as a slow list request would.
	rows, err := s.reader.QueryContext(ctx, "SELECT id FROM accidents")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rows.Close() })
	require.True(t, rows.Next())

	putCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Put(putCtx, domain.PartitionEmergencies, testRecord("C9", time.Now(), domain.EventEmergency)))

	listCtx, listCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer listCancel()
	got, err := s.ListVisible(listCtx)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_MemoryDatabaseSharesConnection(t *testing.T) {
	s := newTestStore(t)
	assert.Same(t, s.db, s.reader)
	require.NoError(t, s.Ping(context.Background()))
}

func carIDs(records []domain.EnrichedRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.CarID
	}
	return ids
}
