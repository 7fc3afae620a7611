// README: Surge zone lookups backed by PostGIS containment.
package surge

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dispatch/internal/infra"
	"dispatch/internal/types"
)

// Overlapping zones resolve to the highest multiplier, then the smallest
// area, then the lowest id.
const containingZoneSQL = `
	SELECT id, name, multiplier
	FROM surge_zones
	WHERE ST_Contains(boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
	ORDER BY multiplier DESC, ST_Area(boundary) ASC, id ASC
	LIMIT 1`

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// ContainingZone returns the winning zone for p, or nil when p lies in none.
func (s *Store) ContainingZone(ctx context.Context, q infra.Querier, p types.Point) (*Zone, error) {
	var id, name string
	var z Zone
	err := q.QueryRow(ctx, containingZoneSQL, p.Lng, p.Lat).Scan(&id, &name, &z.Multiplier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, infra.StoreError("resolve surge zone", err)
	}
	z.ID = types.ID(id)
	z.Name = name
	return &z, nil
}
