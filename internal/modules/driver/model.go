// README: Driver and vehicle reference data with the driver status enum.
package driver

import (
	"dispatch/internal/types"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusOnTrip    Status = "on_trip"
	StatusOffline   Status = "offline"
)

// GeohashPrecision is the cell size stored alongside a driver's location (~150m).
const GeohashPrecision = 7

type Driver struct {
	ID           types.ID    `json:"id"`
	Name         string      `json:"name"`
	Location     types.Point `json:"location"`
	Geohash      string      `json:"geohash"`
	Status       Status      `json:"status"`
	VehicleID    *types.ID   `json:"vehicle_id,omitempty"`
	VehicleClass string      `json:"vehicle_type,omitempty"`
}

type Vehicle struct {
	ID       types.ID
	Class    string
	DriverID types.ID
}

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusAvailable, StatusOnTrip, StatusOffline:
		return Status(s), true
	}
	return "", false
}
