// Package domain models vehicle incident reports and their hospital enrichment.
//
// # Data Source
//
// Vehicle telematics units publish a JSON document on the incident channel
// when a crash is detected or the driver raises an emergency:
//
//	{"car_id":"C1","latitude":"30.05","longitude":"31.25",
//	 "timestamp":"2025-03-01T09:15:42.123456Z","Type":"Emergency","show":"Yes"}
//
// Only car_id, latitude, and longitude are required. Coordinates may be JSON
// numbers or numeric strings.
//
// # Validation
//
// [ValidateEvent] is all-or-nothing. Rejections wrap one of
// [ErrMalformedInput], [ErrMissingField], or [ErrInvalidCoordinates].
//
// Timestamps must be UTC with a mandatory fraction of 1 to 6 digits. Anything
// else, including a missing field, falls back to the current time in the
// fixed UTC+2 [ReferenceZone]. Availability wins over timestamp fidelity.
//
// Type is free-form on the wire. Exactly "Emergency" is an emergency; every
// other value, including misspellings, is an accident.
//
// # Enrichment
//
// [LookupHospitals] returns at most three hospitals and absorbs every provider
// failure. When it yields nothing, [NewEnrichedRecord] stores the literal
// "Not found" in the hospital name, address, and phone, and null coordinates.
//
// # Identity and Partitions
//
// Each record gets a random UUIDv4 at ingestion time. Identical messages are
// not de-duplicated. Records are written to the "accidents" or "emergencies"
// partition according to their type.
//
// # Visibility
//
// The show flag hides a record from reads without deleting it. Only the exact
// value "Yes" is visible.
package domain
