// README: Proximity-match query and the candidate drivers it yields.
package matching

import (
	"dispatch/internal/types"
)

const (
	// DefaultRadiusMeters is the search radius around a pickup point.
	DefaultRadiusMeters = 5000.0
	// DefaultLimit caps how many candidates a trip is offered.
	DefaultLimit = 5
)

type Query struct {
	Point        types.Point
	VehicleClass string
	RadiusMeters float64
	Limit        int
}

// Candidate is an advisory match; availability is re-checked on accept.
type Candidate struct {
	DriverID       types.ID    `json:"id"`
	Name           string      `json:"name"`
	Location       types.Point `json:"location"`
	VehicleClass   string      `json:"vehicle_type"`
	DistanceMeters float64     `json:"distance_m"`
}
