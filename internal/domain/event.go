package domain

import (
	"context"
	"time"
)

// SourceHeader names the transport header that identifies the producer.
const SourceHeader = "source"

// RawEvent represents an unprocessed message from the delivery source.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// EventType classifies an incident report. Only two values exist after validation.
type EventType string

const (
	EventAccident  EventType = "Accident"
	EventEmergency EventType = "Emergency"
)

// Partition is the storage subdivision a record is written to.
type Partition string

const (
	PartitionAccidents   Partition = "accidents"
	PartitionEmergencies Partition = "emergencies"
)

// Partitions lists every storage partition in display order.
var Partitions = []Partition{PartitionAccidents, PartitionEmergencies}

// Partition maps the event type to its storage partition.
func (t EventType) Partition() Partition {
	if t == EventEmergency {
		return PartitionEmergencies
	}
	return PartitionAccidents
}

// ParsePartition resolves a partition name such as "accidents".
func ParsePartition(s string) (Partition, bool) {
	for _, p := range Partitions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Visibility flag values. Any other value is stored verbatim but never matches VisibleYes.
const (
	VisibleYes = "Yes"
	VisibleNo  = "No"
)

// InboundMessage is the wire format published on the incident channel.
// Coordinates travel as numeric strings, as the vehicle units send them.
type InboundMessage struct {
	CarID     string `json:"car_id"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Timestamp string `json:"timestamp,omitempty"`
	Type      string `json:"Type,omitempty"`
	Show      string `json:"show,omitempty"`
}

// Event is a validated incident report that has not been enriched yet.
type Event struct {
	CarID     string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	Type      EventType
	Show      string
}

// HospitalMatch is one hospital returned by the geo-search provider.
type HospitalMatch struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Phone     string   `json:"phone"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// EnrichedRecord is the persisted unit: an Event plus its best hospital match.
type EnrichedRecord struct {
	ID                string    `json:"id"`
	CarID             string    `json:"car_id"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Timestamp         time.Time `json:"timestamp"`
	NearestHospital   string    `json:"nearest_hospital"`
	HospitalAddress   string    `json:"hospital_address"`
	HospitalPhone     string    `json:"hospital_phone"`
	HospitalLatitude  *float64  `json:"hospital_latitude"`
	HospitalLongitude *float64  `json:"hospital_longitude"`
	Show              string    `json:"show"`
	Type              EventType `json:"type"`
}

// Visible reports whether the record should appear on the read side.
func (r EnrichedRecord) Visible() bool {
	return r.Show == VisibleYes
}
