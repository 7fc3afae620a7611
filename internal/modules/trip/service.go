// README: Trip orchestrators; creation, acceptance and lifecycle transitions under Postgres row locks.
package trip

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dispatch/internal/apperr"
	"dispatch/internal/infra"
	"dispatch/internal/maps"
	"dispatch/internal/modules/driver"
	"dispatch/internal/modules/matching"
	"dispatch/internal/modules/surge"
	"dispatch/internal/types"
)

type SurgeResolver interface {
	Resolve(ctx context.Context, q infra.Querier, p types.Point) (surge.Resolution, error)
}

type Matcher interface {
	FindCandidates(ctx context.Context, q infra.Querier, mq matching.Query) ([]matching.Candidate, error)
}

// CandidateCache keeps the advisory offer made at creation time.
type CandidateCache interface {
	Record(ctx context.Context, tripID types.ID, candidates []matching.Candidate) error
	List(ctx context.Context, tripID types.ID) ([]matching.CachedCandidate, error)
}

type RouteEstimator interface {
	DistanceMeters(ctx context.Context, origin, destination types.Point) (float64, error)
}

// Deps wires a Service. Cache and Routes are optional.
type Deps struct {
	DB          infra.DB
	Trips       *Store
	Drivers     *driver.Store
	Surge       SurgeResolver
	Matcher     Matcher
	Cache       CandidateCache
	Routes      RouteEstimator
	LockTimeout time.Duration
	Logger      *slog.Logger
}

type Service struct {
	db          infra.DB
	trips       *Store
	drivers     *driver.Store
	surge       SurgeResolver
	matcher     Matcher
	cache       CandidateCache
	routes      RouteEstimator
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Service{
		db:          d.DB,
		trips:       d.Trips,
		drivers:     d.Drivers,
		surge:       d.Surge,
		matcher:     d.Matcher,
		cache:       d.Cache,
		routes:      d.Routes,
		lockTimeout: d.LockTimeout,
		logger:      d.Logger,
		now:         time.Now,
	}
}

type CreateCommand struct {
	CustomerID   types.ID
	Pickup       types.Point
	Dropoff      types.Point
	VehicleClass string
}

type AcceptCommand struct {
	TripID   types.ID
	DriverID types.ID
}

type CompleteCommand struct {
	TripID types.ID
}

type CancelCommand struct {
	TripID types.ID
}

func (c CreateCommand) validate() error {
	if c.CustomerID == "" {
		return apperr.Validation("customer id is required")
	}
	if c.VehicleClass == "" {
		return apperr.Validation("vehicle type is required")
	}
	if err := c.Pickup.Validate(); err != nil {
		return apperr.Validation("pickup: %v", err)
	}
	if err := c.Dropoff.Validate(); err != nil {
		return apperr.Validation("dropoff: %v", err)
	}
	return nil
}

// Create prices a trip from the surge at pickup and persists it as pending
// together with the candidate drivers found in the same transaction. It
// takes no locks and mutates no driver.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	var res CreateResult
	err := infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		sr, err := s.surge.Resolve(ctx, tx, cmd.Pickup)
		if err != nil {
			return err
		}
		candidates, err := s.matcher.FindCandidates(ctx, tx, matching.Query{
			Point:        cmd.Pickup,
			VehicleClass: cmd.VehicleClass,
		})
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return apperr.ErrNoDriversAvailable
		}

		t := &Trip{
			ID:          newID(),
			Status:      StatusPending,
			CustomerID:  cmd.CustomerID,
			SurgeZoneID: sr.ZoneID,
			Price:       BasePrice * sr.Multiplier,
			Pickup:      cmd.Pickup,
			Dropoff:     cmd.Dropoff,
			StartedAt:   s.now().UTC(),
		}
		if err := s.trips.Insert(ctx, tx, t); err != nil {
			return err
		}
		res = CreateResult{Trip: t, Candidates: candidates}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trip created",
		"trip_id", res.Trip.ID,
		"customer_id", res.Trip.CustomerID,
		"price", res.Trip.Price,
		"candidates", len(res.Candidates),
	)
	if s.cache != nil {
		if err := s.cache.Record(ctx, res.Trip.ID, res.Candidates); err != nil {
			s.logger.Warn("record candidates failed", "trip_id", res.Trip.ID, "err", err)
		}
	}
	return &res, nil
}

// Accept assigns cmd.DriverID to a pending trip. The driver row is locked
// before the trip row; every transition in this package keeps that order.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Trip, error) {
	if cmd.TripID == "" || cmd.DriverID == "" {
		return nil, apperr.Validation("trip id and driver id are required")
	}

	var out *Trip
	err := infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := infra.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}
		d, err := s.drivers.Lock(ctx, tx, cmd.DriverID)
		if err != nil {
			return err
		}
		if d.Status != driver.StatusAvailable {
			return apperr.ErrDriverNotAvailable
		}
		t, err := s.trips.Lock(ctx, tx, cmd.TripID)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			return apperr.ErrTripNotPending
		}
		if err := s.trips.Assign(ctx, tx, t.ID, d.ID); err != nil {
			return err
		}
		if err := s.drivers.SetStatus(ctx, tx, d.ID, driver.StatusOnTrip); err != nil {
			return err
		}
		t.Status = StatusOngoing
		t.DriverID = &d.ID
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("trip accepted", "trip_id", out.ID, "driver_id", cmd.DriverID)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	if id == "" {
		return nil, apperr.Validation("trip id is required")
	}
	return s.trips.Get(ctx, s.db, id)
}

// Candidates returns the offer recorded when the trip was created. Expired
// or never-recorded offers are an empty list.
func (s *Service) Candidates(ctx context.Context, id types.ID) ([]matching.CachedCandidate, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.cache == nil {
		return []matching.CachedCandidate{}, nil
	}
	return s.cache.List(ctx, id)
}

// Complete finishes an ongoing trip and releases its driver.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Trip, error) {
	if cmd.TripID == "" {
		return nil, apperr.Validation("trip id is required")
	}
	snap, err := s.trips.Get(ctx, s.db, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(snap.Status, StatusCompleted) || snap.DriverID == nil {
		return nil, apperr.ErrInvalidTransition
	}
	// Measured before any lock is taken.
	distance := s.distance(ctx, snap)

	var out *Trip
	err = infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := infra.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}
		d, err := s.drivers.Lock(ctx, tx, *snap.DriverID)
		if err != nil {
			return err
		}
		t, err := s.trips.Lock(ctx, tx, cmd.TripID)
		if err != nil {
			return err
		}
		if !unchanged(snap, t) {
			return apperr.ErrTripChanged
		}

		ended := s.now().UTC()
		duration := int64(ended.Sub(t.StartedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
		if err := s.trips.Complete(ctx, tx, t.ID, ended, distance, duration); err != nil {
			return err
		}
		if err := s.drivers.SetStatus(ctx, tx, d.ID, driver.StatusAvailable); err != nil {
			return err
		}
		t.Status = StatusCompleted
		t.EndedAt = &ended
		t.DistanceMeters = distance
		t.DurationSeconds = duration
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("trip completed",
		"trip_id", out.ID,
		"driver_id", *out.DriverID,
		"distance_m", out.DistanceMeters,
		"duration_s", out.DurationSeconds,
	)
	return out, nil
}

// Cancel ends a pending or ongoing trip. Ongoing trips release their driver.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Trip, error) {
	if cmd.TripID == "" {
		return nil, apperr.Validation("trip id is required")
	}
	snap, err := s.trips.Get(ctx, s.db, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(snap.Status, StatusCancelled) {
		return nil, apperr.ErrInvalidTransition
	}

	var out *Trip
	err = infra.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := infra.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}
		var d *driver.Driver
		if snap.DriverID != nil {
			var err error
			if d, err = s.drivers.Lock(ctx, tx, *snap.DriverID); err != nil {
				return err
			}
		}
		t, err := s.trips.Lock(ctx, tx, cmd.TripID)
		if err != nil {
			return err
		}
		if !unchanged(snap, t) {
			return apperr.ErrTripChanged
		}

		ended := s.now().UTC()
		if err := s.trips.Cancel(ctx, tx, t.ID, t.Status, ended); err != nil {
			return err
		}
		if d != nil {
			if err := s.drivers.SetStatus(ctx, tx, d.ID, driver.StatusAvailable); err != nil {
				return err
			}
		}
		t.Status = StatusCancelled
		t.EndedAt = &ended
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("trip cancelled", "trip_id", out.ID, "from", snap.Status)
	return out, nil
}

func (s *Service) distance(ctx context.Context, t *Trip) float64 {
	if s.routes != nil {
		m, err := s.routes.DistanceMeters(ctx, t.Pickup, t.Dropoff)
		if err == nil {
			return m
		}
		s.logger.Warn("route estimate failed, using great-circle distance", "trip_id", t.ID, "err", err)
	}
	return maps.HaversineMeters(t.Pickup, t.Dropoff)
}

// unchanged reports whether the locked row still matches the unlocked read
// the lock order was derived from.
func unchanged(snap, locked *Trip) bool {
	if snap.Status != locked.Status {
		return false
	}
	if (snap.DriverID == nil) != (locked.DriverID == nil) {
		return false
	}
	return snap.DriverID == nil || *snap.DriverID == *locked.DriverID
}

func newID() types.ID {
	return types.ID(uuid.NewString())
}
