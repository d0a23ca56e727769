// Package seed generates synthetic inbound incident messages for exercising
// the pipeline end to end.
package seed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

// wireTimestamp is the layout vehicle units use on the wire.
const wireTimestamp = "2006-01-02T15:04:05.000000Z"

// Options controls the mix of generated messages.
type Options struct {
	Count          int
	EmergencyRatio float64
	InvalidRatio   float64
	// Seed makes output reproducible. Zero picks a random seed.
	Seed int64
	// Bounding box for generated coordinates.
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// DefaultOptions covers greater Cairo, where the reference fleet operates.
func DefaultOptions() Options {
	return Options{
		Count:          10,
		EmergencyRatio: 0.2,
		InvalidRatio:   0,
		MinLat:         29.90,
		MaxLat:         30.20,
		MinLon:         31.10,
		MaxLon:         31.50,
	}
}

// Message is one generated payload ready to publish.
type Message struct {
	Key     string
	Payload []byte
	// Valid is false for payloads built to be rejected by validation.
	Valid bool
}

// Generator produces incident messages from a seeded faker.
type Generator struct {
	opts  Options
	faker *gofakeit.Faker
}

// NewGenerator validates the options and returns a Generator.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Count < 0 {
		return nil, fmt.Errorf("count must be >= 0, got %d", opts.Count)
	}
	if opts.EmergencyRatio < 0 || opts.EmergencyRatio > 1 {
		return nil, fmt.Errorf("emergency ratio must be in [0,1], got %g", opts.EmergencyRatio)
	}
	if opts.InvalidRatio < 0 || opts.InvalidRatio > 1 {
		return nil, fmt.Errorf("invalid ratio must be in [0,1], got %g", opts.InvalidRatio)
	}
	if opts.MinLat > opts.MaxLat || opts.MinLon > opts.MaxLon {
		return nil, fmt.Errorf("empty bounding box")
	}
	return &Generator{opts: opts, faker: gofakeit.New(opts.Seed)}, nil
}

// Generate returns opts.Count messages.
func (g *Generator) Generate() ([]Message, error) {
	msgs := make([]Message, 0, g.opts.Count)
	for range g.opts.Count {
		var (
			msg Message
			err error
		)
		if g.roll(g.opts.InvalidRatio) {
			msg = g.invalid()
		} else {
			msg, err = g.valid()
		}
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (g *Generator) roll(ratio float64) bool {
	return ratio > 0 && g.faker.Float64Range(0, 1) < ratio
}

func (g *Generator) carID() string {
	return g.faker.Numerify("CAR-####")
}

func (g *Generator) coord(lo, hi float64) string {
	return strconv.FormatFloat(g.faker.Float64Range(lo, hi), 'f', 6, 64)
}

func (g *Generator) valid() (Message, error) {
	msg := domain.InboundMessage{
		CarID:     g.carID(),
		Latitude:  g.coord(g.opts.MinLat, g.opts.MaxLat),
		Longitude: g.coord(g.opts.MinLon, g.opts.MaxLon),
		Timestamp: g.timestamp(),
	}
	if g.roll(g.opts.EmergencyRatio) {
		msg.Type = string(domain.EventEmergency)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	return Message{Key: msg.CarID, Payload: payload, Valid: true}, nil
}

// timestamp is a recent UTC instant, omitted now and then so the receive-time
// fallback gets exercised too.
func (g *Generator) timestamp() string {
	if g.faker.Number(1, 10) == 1 {
		return ""
	}
	end := time.Now().UTC()
	return g.faker.DateRange(end.Add(-24*time.Hour), end).UTC().Format(wireTimestamp)
}

// invalid builds a payload that fails validation in one of three ways.
func (g *Generator) invalid() Message {
	key := g.carID()
	var payload string
	switch g.faker.Number(0, 2) {
	case 0:
		payload = `{"car_id": "` + key + `", "latitude": `
	case 1:
		payload = fmt.Sprintf(`{"latitude": %q, "longitude": %q}`,
			g.coord(g.opts.MinLat, g.opts.MaxLat), g.coord(g.opts.MinLon, g.opts.MaxLon))
	default:
		payload = fmt.Sprintf(`{"car_id": %q, "latitude": %q, "longitude": %q}`,
			key, g.faker.Word(), g.coord(g.opts.MinLon, g.opts.MaxLon))
	}
	return Message{Key: key, Payload: []byte(payload), Valid: false}
}
