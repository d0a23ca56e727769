package domain

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
)

// NewRecordID returns a random UUIDv4. Ids are never derived from input, so two
// identical messages always produce two distinct records.
func NewRecordID() string {
	return uuid.NewString()
}

// NewEnrichedRecord combines an Event with the top-ranked hospital, or the
// NotFound sentinels when hospitals is empty, under a freshly generated id.
func NewEnrichedRecord(event Event, hospitals []HospitalMatch) EnrichedRecord {
	rec := EnrichedRecord{
		ID:              NewRecordID(),
		CarID:           event.CarID,
		Latitude:        event.Latitude,
		Longitude:       event.Longitude,
		Timestamp:       event.Timestamp,
		NearestHospital: NotFound,
		HospitalAddress: NotFound,
		HospitalPhone:   NotFound,
		Show:            event.Show,
		Type:            event.Type,
	}
	if len(hospitals) > 0 {
		h := hospitals[0]
		rec.NearestHospital = h.Name
		rec.HospitalAddress = h.Address
		rec.HospitalPhone = h.Phone
		rec.HospitalLatitude = h.Latitude
		rec.HospitalLongitude = h.Longitude
	}
	return rec
}

// SortNewestFirst orders records by timestamp, latest first. Ties keep their
// relative order.
func SortNewestFirst(records []EnrichedRecord) {
	slices.SortStableFunc(records, func(a, b EnrichedRecord) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})
}

// ResolvePartitions returns the requested partitions, or all of them when none are given.
func ResolvePartitions(partitions []Partition) []Partition {
	if len(partitions) == 0 {
		return Partitions
	}
	return partitions
}
