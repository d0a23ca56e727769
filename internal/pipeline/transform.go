package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

// IncidentTransformer implements Transformer: it validates the payload, looks
// up nearby hospitals, and assigns a fresh record id.
type IncidentTransformer struct {
	finder domain.HospitalFinder
	logger *slog.Logger
}

// NewTransformer creates an IncidentTransformer. Pass a nil finder to disable
// hospital enrichment; records then carry the "Not found" sentinels.
func NewTransformer(finder domain.HospitalFinder, logger *slog.Logger) *IncidentTransformer {
	return &IncidentTransformer{
		finder: finder,
		logger: logger,
	}
}

func (t *IncidentTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.EnrichedRecord, error) {
	event, err := domain.ValidateEvent(raw.Value)
	if err != nil {
		return domain.EnrichedRecord{}, err
	}

	hospitals := domain.LookupHospitals(ctx, t.finder, event.Latitude, event.Longitude, t.logger)
	return domain.NewEnrichedRecord(event, hospitals), nil
}
