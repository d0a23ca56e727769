package domain

import "errors"

var (
	// ErrMalformedInput means the payload could not be decoded as a JSON object.
	ErrMalformedInput = errors.New("malformed input")
	// ErrMissingField means car_id, latitude, or longitude is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidCoordinates means latitude or longitude is not a finite number.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrEnrichmentUnavailable wraps every geo-search provider failure.
	ErrEnrichmentUnavailable = errors.New("hospital enrichment unavailable")
	// ErrPersistenceFailure wraps record store write errors.
	ErrPersistenceFailure = errors.New("persistence failure")
	// ErrRecordNotFound is returned when a record id does not exist in a partition.
	ErrRecordNotFound = errors.New("record not found")
)

// RejectReason returns a stable label for a validation error, used in logs and metrics.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedInput):
		return "malformed"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidCoordinates):
		return "invalid_coordinates"
	default:
		return "unknown"
	}
}
