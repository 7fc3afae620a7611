// README: Trip store backed by PostgreSQL/PostGIS; every method runs on the caller's Querier.
package trip

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"dispatch/internal/apperr"
	"dispatch/internal/infra"
	"dispatch/internal/types"
)

const tripSelect = `
	SELECT id, status, customer_id, driver_id, surge_zone_id, price,
	       ST_X(pickup), ST_Y(pickup), ST_X(dropoff), ST_Y(dropoff),
	       distance_m, duration_s, started_at, ended_at
	FROM trips
	WHERE id = $1`

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Insert(ctx context.Context, q infra.Querier, t *Trip) error {
	_, err := q.Exec(ctx, `
		INSERT INTO trips (
			id, status, customer_id, driver_id, surge_zone_id, price,
			pickup, dropoff, distance_m, duration_s, started_at, ended_at
		) VALUES (
			$1, $2, $3, NULL, $4, $5,
			ST_SetSRID(ST_MakePoint($6, $7), 4326), ST_SetSRID(ST_MakePoint($8, $9), 4326),
			0, 0, $10, NULL
		)`,
		string(t.ID),
		string(t.Status),
		string(t.CustomerID),
		nullableID(t.SurgeZoneID),
		t.Price,
		t.Pickup.Lng, t.Pickup.Lat,
		t.Dropoff.Lng, t.Dropoff.Lat,
		t.StartedAt,
	)
	if err != nil {
		return infra.StoreError("insert trip", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, q infra.Querier, id types.ID) (*Trip, error) {
	return scanTrip(q.QueryRow(ctx, tripSelect, string(id)), "get trip")
}

// Lock takes an exclusive row lock on the trip until the surrounding
// transaction ends.
func (s *Store) Lock(ctx context.Context, q infra.Querier, id types.ID) (*Trip, error) {
	return scanTrip(q.QueryRow(ctx, tripSelect+` FOR UPDATE`, string(id)), "lock trip")
}

// Assign moves a pending trip to ongoing with driverID. The partial unique
// index on ongoing trips rejects a driver already on another trip.
func (s *Store) Assign(ctx context.Context, q infra.Querier, id, driverID types.ID) error {
	tag, err := q.Exec(ctx, `
		UPDATE trips
		SET status = 'ongoing', driver_id = $2
		WHERE id = $1 AND status = 'pending'`,
		string(id), string(driverID),
	)
	if infra.IsUniqueViolation(err) {
		return apperr.ErrDriverNotAvailable
	}
	if err != nil {
		return infra.StoreError("assign trip", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrTripChanged
	}
	return nil
}

func (s *Store) Complete(ctx context.Context, q infra.Querier, id types.ID, endedAt time.Time, distanceMeters float64, durationSeconds int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE trips
		SET status = 'completed', ended_at = $2, distance_m = $3, duration_s = $4
		WHERE id = $1 AND status = 'ongoing'`,
		string(id), endedAt, distanceMeters, durationSeconds,
	)
	if err != nil {
		return infra.StoreError("complete trip", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrTripChanged
	}
	return nil
}

func (s *Store) Cancel(ctx context.Context, q infra.Querier, id types.ID, from Status, endedAt time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE trips
		SET status = 'cancelled', ended_at = $3
		WHERE id = $1 AND status = $2`,
		string(id), string(from), endedAt,
	)
	if err != nil {
		return infra.StoreError("cancel trip", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrTripChanged
	}
	return nil
}

func scanTrip(row pgx.Row, op string) (*Trip, error) {
	var t Trip
	var id, status, customerID string
	var driverID, zoneID sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(
		&id, &status, &customerID, &driverID, &zoneID, &t.Price,
		&t.Pickup.Lng, &t.Pickup.Lat, &t.Dropoff.Lng, &t.Dropoff.Lat,
		&t.DistanceMeters, &t.DurationSeconds, &t.StartedAt, &endedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrTripNotFound
	}
	if err != nil {
		return nil, infra.StoreError(op, err)
	}

	t.ID = types.ID(id)
	t.Status = Status(status)
	t.CustomerID = types.ID(customerID)
	t.DriverID = toIDPtr(driverID)
	t.SurgeZoneID = toIDPtr(zoneID)
	if endedAt.Valid {
		v := endedAt.Time
		t.EndedAt = &v
	}
	return &t, nil
}

func nullableID(v *types.ID) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func toIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}
