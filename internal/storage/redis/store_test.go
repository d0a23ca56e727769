package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

const testPrefix = "incidents"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, testPrefix, discardLogger())
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

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

func TestStore_Put_KeyLayout(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := testRecord("C1", ts, domain.EventEmergency)
	require.NoError(t, s.Put(ctx, domain.PartitionEmergencies, rec))

	raw, err := mr.Get("incidents:emergencies:" + rec.ID)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "C1", doc["car_id"])
	assert.Equal(t, "Emergency", doc["type"])
	assert.Equal(t, "Yes", doc["show"])
	assert.Equal(t, "Not found", doc["nearest_hospital"])
	assert.Nil(t, doc["hospital_latitude"])

	score, err := mr.ZScore("incidents:emergencies:by_time", rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, float64(ts.UnixMicro()), score, 1)
}

func TestStore_ListVisible_NewestFirstAcrossPartitions(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := testRecord("T1", base, domain.EventAccident)
	t2 := testRecord("T2", base.Add(time.Minute), domain.EventEmergency)
	t3 := testRecord("T3", base.Add(2*time.Minute), domain.EventAccident)

	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, t1))
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, t3))
	require.NoError(t, s.Put(ctx, domain.PartitionEmergencies, t2))

	all, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"T3", "T2", "T1"}, carIDs(all))

	emergencies, err := s.ListVisible(ctx, domain.PartitionEmergencies)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, carIDs(emergencies))
}

func TestStore_ListVisible_PreservesOffsetAndHospital(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	rec := testRecord("C1", time.Date(2024, 5, 1, 12, 0, 0, 500000000, domain.ReferenceZone), domain.EventAccident)
	lat, lon := 30.0131, 31.0052
	rec.NearestHospital = "Dar Al Fouad Hospital"
	rec.HospitalLatitude = &lat
	rec.HospitalLongitude = &lon
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, rec))

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, rec.Timestamp.Equal(got[0].Timestamp))
	_, offset := got[0].Timestamp.Zone()
	assert.Equal(t, 7200, offset)
	require.NotNil(t, got[0].HospitalLatitude)
	assert.InDelta(t, lat, *got[0].HospitalLatitude, 1e-9)
}

func TestStore_ListVisible_HidesNonYes(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	hidden := testRecord("hidden", time.Now(), domain.EventAccident)
	hidden.Show = domain.VisibleNo
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, hidden))
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, testRecord("visible", time.Now(), domain.EventAccident)))

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"visible"}, carIDs(got))
}

func TestStore_ListVisible_SkipsDanglingAndCorruptEntries(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, testRecord("good", time.Now(), domain.EventAccident)))
	_, err := mr.ZAdd("incidents:accidents:by_time", 1, "dangling")
	require.NoError(t, err)
	_, err = mr.ZAdd("incidents:accidents:by_time", 2, "corrupt")
	require.NoError(t, err)
	require.NoError(t, mr.Set("incidents:accidents:corrupt", "{not json"))

	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, carIDs(got))
}

func TestStore_ListVisible_Empty(t *testing.T) {
	_, s := setupTestRedis(t)

	got, err := s.ListVisible(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_SetVisibility(t *testing.T) {
	_, s := setupTestRedis(t)
	ctx := context.Background()

	rec := testRecord("C1", time.Now(), domain.EventAccident)
	require.NoError(t, s.Put(ctx, domain.PartitionAccidents, rec))

	require.NoError(t, s.SetVisibility(ctx, domain.PartitionAccidents, rec.ID, domain.VisibleNo))
	got, err := s.ListVisible(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetVisibility(ctx, domain.PartitionAccidents, rec.ID, domain.VisibleYes))
	got, err = s.ListVisible(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
}

func TestStore_SetVisibility_NotFound(t *testing.T) {
	_, s := setupTestRedis(t)

	err := s.SetVisibility(context.Background(), domain.PartitionEmergencies, "missing", domain.VisibleNo)
	require.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestStore_Put_UnknownPartition(t *testing.T) {
	_, s := setupTestRedis(t)

	err := s.Put(context.Background(), domain.Partition("sightings"), testRecord("C1", time.Now(), domain.EventAccident))
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
}

func TestStore_Put_ServerDown(t *testing.T) {
	mr, s := setupTestRedis(t)
	mr.Close()

	err := s.Put(context.Background(), domain.PartitionAccidents, testRecord("C1", time.Now(), domain.EventAccident))
	require.ErrorIs(t, err, domain.ErrPersistenceFailure)
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), Options{Addr: mr.Addr(), KeyPrefix: "fleet"}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rec := testRecord("C1", time.Now(), domain.EventAccident)
	require.NoError(t, s.Put(context.Background(), domain.PartitionAccidents, rec))
	assert.True(t, mr.Exists("fleet:accidents:"+rec.ID))
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), Options{Addr: addr}, discardLogger())
	require.Error(t, err)
}

func carIDs(records []domain.EnrichedRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.CarID
	}
	return ids
}
