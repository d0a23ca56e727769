package domain

import (
	"context"
	"log/slog"
)

// MaxHospitalMatches caps how many hospitals a lookup returns.
const MaxHospitalMatches = 3

// NotFound is the sentinel stored in hospital text fields when enrichment found nothing.
const NotFound = "Not found"

// HospitalFinder searches for hospitals near a coordinate, best match first.
type HospitalFinder interface {
	NearestHospitals(ctx context.Context, lat, lon float64) ([]HospitalMatch, error)
}

// LookupHospitals returns up to MaxHospitalMatches hospitals near the coordinate.
// If finder is nil or the lookup fails, it returns an empty slice (graceful
// degradation); enrichment never fails the caller.
func LookupHospitals(ctx context.Context, finder HospitalFinder, lat, lon float64, logger *slog.Logger) []HospitalMatch {
	if finder == nil {
		return []HospitalMatch{}
	}

	matches, err := finder.NearestHospitals(ctx, lat, lon)
	if err != nil {
		logger.Warn("hospital lookup failed",
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return []HospitalMatch{}
	}
	if len(matches) > MaxHospitalMatches {
		matches = matches[:MaxHospitalMatches]
	}
	if matches == nil {
		return []HospitalMatch{}
	}
	return matches
}
