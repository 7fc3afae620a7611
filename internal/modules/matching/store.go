// README: Matching store; available drivers ordered by PostGIS geography distance.
package matching

import (
	"context"

	"dispatch/internal/infra"
	"dispatch/internal/types"
)

const nearbyDriversSQL = `
	SELECT d.id, d.name, ST_X(d.location), ST_Y(d.location), v.vehicle_type,
	       ST_Distance(d.location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_m
	FROM drivers d
	JOIN vehicles v ON v.id = d.vehicle_id
	WHERE d.status = 'available'
	  AND v.vehicle_type = $3
	  AND ST_DWithin(d.location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $4)
	ORDER BY distance_m ASC, d.id ASC
	LIMIT $5`

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) NearbyDrivers(ctx context.Context, q infra.Querier, mq Query) ([]Candidate, error) {
	rows, err := q.Query(ctx, nearbyDriversSQL, mq.Point.Lng, mq.Point.Lat, mq.VehicleClass, mq.RadiusMeters, mq.Limit)
	if err != nil {
		return nil, infra.StoreError("query nearby drivers", err)
	}
	defer rows.Close()

	candidates := []Candidate{}
	for rows.Next() {
		var id, name, class string
		var c Candidate
		if err := rows.Scan(&id, &name, &c.Location.Lng, &c.Location.Lat, &class, &c.DistanceMeters); err != nil {
			return nil, infra.StoreError("scan nearby driver", err)
		}
		c.DriverID = types.ID(id)
		c.Name = name
		c.VehicleClass = class
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.StoreError("iterate nearby drivers", err)
	}
	return candidates, nil
}
