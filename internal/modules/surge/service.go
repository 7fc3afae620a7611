// README: Surge resolver; read-only and lock-free so it can run inside any open transaction.
package surge

import (
	"context"
	"fmt"

	"dispatch/internal/infra"
	"dispatch/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Resolve returns the surge applying at p. Outside every zone it returns a
// nil zone and NoSurge.
func (s *Service) Resolve(ctx context.Context, q infra.Querier, p types.Point) (Resolution, error) {
	z, err := s.store.ContainingZone(ctx, q, p)
	if err != nil {
		return Resolution{}, err
	}
	if z == nil {
		return Resolution{Multiplier: NoSurge}, nil
	}
	if z.Multiplier < NoSurge {
		return Resolution{}, fmt.Errorf("surge zone %s has multiplier %v below %v", z.ID, z.Multiplier, NoSurge)
	}
	id := z.ID
	return Resolution{ZoneID: &id, Multiplier: z.Multiplier}, nil
}
