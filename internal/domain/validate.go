package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// timestampRe accepts "YYYY-MM-DDTHH:MM:SS.ffffffZ" with 1 to 6 fractional digits.
var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{1,6}Z$`)

// timestampLayout omits the fraction; time.Parse accepts one after the seconds field.
const timestampLayout = "2006-01-02T15:04:05Z"

// Inbound field names.
const (
	fieldCarID     = "car_id"
	fieldLatitude  = "latitude"
	fieldLongitude = "longitude"
	fieldTimestamp = "timestamp"
	fieldType      = "Type"
	fieldShow      = "show"
)

var requiredFields = []string{fieldCarID, fieldLatitude, fieldLongitude}

// ValidateEvent decodes a raw payload into an Event. Validation is all-or-nothing:
// the returned error wraps ErrMalformedInput, ErrMissingField, or
// ErrInvalidCoordinates, and no partial Event is ever returned.
//
// A missing or unparsable timestamp is not an error; it falls back to Now.
// Any Type other than exactly "Emergency" becomes Accident.
func ValidateEvent(payload []byte) (Event, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Event{}, fmt.Errorf("%w: empty payload", ErrMalformedInput)
	}
	if !utf8.Valid(payload) {
		return Event{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformedInput)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if doc == nil {
		return Event{}, fmt.Errorf("%w: payload is not an object", ErrMalformedInput)
	}

	for _, f := range requiredFields {
		if _, ok := doc[f]; !ok {
			return Event{}, fmt.Errorf("%w: %s", ErrMissingField, f)
		}
	}

	carID, err := parseCarID(doc[fieldCarID])
	if err != nil {
		return Event{}, err
	}
	lat, err := parseCoordinate(fieldLatitude, doc[fieldLatitude])
	if err != nil {
		return Event{}, err
	}
	lon, err := parseCoordinate(fieldLongitude, doc[fieldLongitude])
	if err != nil {
		return Event{}, err
	}

	ts, tsOK := doc[fieldTimestamp]
	typ, typOK := doc[fieldType]
	show, showOK := doc[fieldShow]

	return Event{
		CarID:     carID,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: parseTimestamp(ts, tsOK),
		Type:      parseEventType(typ, typOK),
		Show:      parseShow(show, showOK),
	}, nil
}

// decodeValue decodes a JSON value keeping numbers as json.Number.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// parseCarID accepts a non-empty string or a number (kept as its literal text).
func parseCarID(raw json.RawMessage) (string, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedInput, fieldCarID, err)
	}
	switch t := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: %s is null", ErrMissingField, fieldCarID)
	case string:
		if strings.TrimSpace(t) == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrMissingField, fieldCarID)
		}
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("%w: %s has type %T", ErrMalformedInput, fieldCarID, v)
	}
}

// parseCoordinate coerces a JSON number or numeric string to a finite float64.
func parseCoordinate(field string, raw json.RawMessage) (float64, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidCoordinates, field, err)
	}

	var f float64
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if strings.ContainsAny(s, "xX_") {
			return 0, fmt.Errorf("%w: %s=%q", ErrInvalidCoordinates, field, t)
		}
		f, err = strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidCoordinates, field, v)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidCoordinates, field, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrInvalidCoordinates, field)
	}
	return f, nil
}

// parseTimestamp returns the UTC instant of a well-formed timestamp, or Now.
func parseTimestamp(raw json.RawMessage, present bool) time.Time {
	if !present {
		return Now()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || !timestampRe.MatchString(s) {
		return Now()
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return Now()
	}
	return t.UTC()
}

func parseEventType(raw json.RawMessage, present bool) EventType {
	if !present {
		return EventAccident
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s == string(EventEmergency) {
		return EventEmergency
	}
	return EventAccident
}

// parseShow passes strings through verbatim and keeps other non-null values as literal JSON text.
func parseShow(raw json.RawMessage, present bool) string {
	if !present {
		return VisibleYes
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return VisibleYes
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
