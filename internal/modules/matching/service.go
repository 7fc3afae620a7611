// README: Proximity matcher; fills query defaults and returns a lock-free candidate snapshot.
package matching

import (
	"context"

	"dispatch/internal/apperr"
	"dispatch/internal/config"
	"dispatch/internal/infra"
)

type Service struct {
	store *Store
	cfg   config.MatchingConfig
}

func NewService(store *Store, cfg config.MatchingConfig) *Service {
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = DefaultRadiusMeters
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Service{store: store, cfg: cfg}
}

// FindCandidates returns available drivers of the requested class within the
// radius, nearest first. No match is an empty slice, not an error.
func (s *Service) FindCandidates(ctx context.Context, q infra.Querier, mq Query) ([]Candidate, error) {
	if mq.VehicleClass == "" {
		return nil, apperr.Validation("vehicle class is required")
	}
	if err := mq.Point.Validate(); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if mq.RadiusMeters <= 0 {
		mq.RadiusMeters = s.cfg.RadiusMeters
	}
	if mq.Limit <= 0 {
		mq.Limit = s.cfg.Limit
	}
	return s.store.NearbyDrivers(ctx, q, mq)
}
