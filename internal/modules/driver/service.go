// README: Driver service; reads, location updates (with geohash cells) and availability toggles.
package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmcloughlin/geohash"

	"dispatch/internal/apperr"
	"dispatch/internal/infra"
	"dispatch/internal/types"
)

type Service struct {
	db          infra.DB
	store       *Store
	lockTimeout time.Duration
	logger      *slog.Logger
}

// NewService builds a driver Service. lockTimeout bounds the row-lock wait in
// SetAvailability; 0 waits forever.
func NewService(db infra.DB, store *Store, lockTimeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, store: store, lockTimeout: lockTimeout, logger: logger}
}

type UpdateLocationCommand struct {
	DriverID types.ID
	Location types.Point
}

type SetAvailabilityCommand struct {
	DriverID types.ID
	Status   Status
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	if id == "" {
		return nil, apperr.Validation("driver id is required")
	}
	return s.store.Get(ctx, s.db, id)
}

func (s *Service) UpdateLocation(ctx context.Context, cmd UpdateLocationCommand) (*Driver, error) {
	if cmd.DriverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	if err := cmd.Location.Validate(); err != nil {
		return nil, apperr.Validation("location: %v", err)
	}
	cell := geohash.EncodeWithPrecision(cmd.Location.Lat, cmd.Location.Lng, GeohashPrecision)
	if err := s.store.UpdateLocation(ctx, s.db, cmd.DriverID, cmd.Location, cell); err != nil {
		return nil, err
	}
	s.logger.Debug("driver location updated", "driver_id", cmd.DriverID, "geohash", cell)
	return s.store.Get(ctx, s.db, cmd.DriverID)
}

// SetAvailability moves a driver between available and offline. Drivers on a
// trip are released only by completing or cancelling that trip.
func (s *Service) SetAvailability(ctx context.Context, cmd SetAvailabilityCommand) (*Driver, error) {
	if cmd.DriverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	if cmd.Status != StatusAvailable && cmd.Status != StatusOffline {
		return nil, apperr.Validation("status must be %q or %q", StatusAvailable, StatusOffline)
	}

	var out *Driver
	err := infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := infra.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}
		d, err := s.store.Lock(ctx, tx, cmd.DriverID)
		if err != nil {
			return err
		}
		if d.Status == StatusOnTrip {
			return apperr.ErrDriverNotAvailable
		}
		if d.Status != cmd.Status {
			if err := s.store.SetStatus(ctx, tx, d.ID, cmd.Status); err != nil {
				return err
			}
			d.Status = cmd.Status
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("driver availability changed", "driver_id", out.ID, "status", out.Status)
	return out, nil
}
