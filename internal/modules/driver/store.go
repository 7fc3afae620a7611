// README: Driver store backed by PostgreSQL; row locks are taken with FOR UPDATE OF d.
package driver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"

	"dispatch/internal/apperr"
	"dispatch/internal/infra"
	"dispatch/internal/types"
)

const driverSelect = `
	SELECT d.id, d.name, ST_X(d.location), ST_Y(d.location), d.geohash, d.status, d.vehicle_id, v.vehicle_type
	FROM drivers d
	LEFT JOIN vehicles v ON v.id = d.vehicle_id
	WHERE d.id = $1`

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Get(ctx context.Context, q infra.Querier, id types.ID) (*Driver, error) {
	return s.scanDriver(q.QueryRow(ctx, driverSelect, string(id)), "get driver")
}

// Lock takes an exclusive row lock on the driver until the surrounding
// transaction ends. Missing drivers return apperr.ErrDriverNotFound.
func (s *Store) Lock(ctx context.Context, q infra.Querier, id types.ID) (*Driver, error) {
	return s.scanDriver(q.QueryRow(ctx, driverSelect+` FOR UPDATE OF d`, string(id)), "lock driver")
}

func (s *Store) SetStatus(ctx context.Context, q infra.Querier, id types.ID, status Status) error {
	tag, err := q.Exec(ctx, `UPDATE drivers SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), string(id))
	if err != nil {
		return infra.StoreError("update driver status", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrDriverNotFound
	}
	return nil
}

func (s *Store) UpdateLocation(ctx context.Context, q infra.Querier, id types.ID, p types.Point, cell string) error {
	tag, err := q.Exec(ctx, `
		UPDATE drivers
		SET location = ST_SetSRID(ST_MakePoint($1, $2), 4326),
		    geohash = $3,
		    updated_at = NOW()
		WHERE id = $4`,
		p.Lng, p.Lat, cell, string(id),
	)
	if err != nil {
		return infra.StoreError("update driver location", err)
	}
	if tag.RowsAffected() != 1 {
		return apperr.ErrDriverNotFound
	}
	return nil
}

func (s *Store) scanDriver(row pgx.Row, op string) (*Driver, error) {
	var d Driver
	var id, status string
	var vehicleID, vehicleClass sql.NullString
	err := row.Scan(&id, &d.Name, &d.Location.Lng, &d.Location.Lat, &d.Geohash, &status, &vehicleID, &vehicleClass)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrDriverNotFound
	}
	if err != nil {
		return nil, infra.StoreError(op, err)
	}
	d.ID = types.ID(id)
	d.Status = Status(status)
	if vehicleID.Valid {
		v := types.ID(vehicleID.String)
		d.VehicleID = &v
	}
	d.VehicleClass = vehicleClass.String
	return &d, nil
}
