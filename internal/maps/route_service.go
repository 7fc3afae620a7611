// README: Google Maps driving-distance lookup used when a trip completes.
package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"

	"dispatch/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// DistanceMeters returns the driving distance of the first route from
// origin to destination.
func (s *RouteService) DistanceMeters(ctx context.Context, origin, destination types.Point) (float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, ErrNoRoute
	}

	var meters int
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}
	return float64(meters), nil
}

// latLng formats p the way the Directions API expects ("lat,lng").
func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
