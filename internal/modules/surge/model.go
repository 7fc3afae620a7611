// README: Surge zone and the resolution returned for a pickup point.
package surge

import "dispatch/internal/types"

// NoSurge is the multiplier applied outside every zone.
const NoSurge = 1.0

type Zone struct {
	ID         types.ID
	Name       string
	Multiplier float64
}

type Resolution struct {
	ZoneID     *types.ID
	Multiplier float64
}
