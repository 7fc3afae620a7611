// README: Trip aggregate and its status flow.
package trip

import (
	"time"

	"dispatch/internal/modules/matching"
	"dispatch/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// BasePrice is the fare before the surge multiplier is applied.
const BasePrice = 10.0

type Trip struct {
	ID              types.ID    `json:"id"`
	Status          Status      `json:"status"`
	CustomerID      types.ID    `json:"customer_id"`
	DriverID        *types.ID   `json:"driver_id"`
	SurgeZoneID     *types.ID   `json:"surge_zone_id"`
	Price           float64     `json:"price"`
	Pickup          types.Point `json:"pickup"`
	Dropoff         types.Point `json:"dropoff"`
	DistanceMeters  float64     `json:"distance_m"`
	DurationSeconds int64       `json:"duration_s"`
	StartedAt       time.Time   `json:"started_at"`
	EndedAt         *time.Time  `json:"ended_at"`
}

type CreateResult struct {
	Trip       *Trip                `json:"trip"`
	Candidates []matching.Candidate `json:"candidates"`
}

// AllowedTransitions represents the trip state flow as code. Terminal
// states have no entry.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {StatusOngoing, StatusCancelled},
	StatusOngoing: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
