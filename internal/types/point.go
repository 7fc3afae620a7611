// README: WGS84 point value object; JSON form is a [lng, lat] pair.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// SRID of every geometry the store holds.
const SRID = 4326

var ErrInvalidPoint = errors.New("invalid point")

type Point struct {
	Lng float64
	Lat float64
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lng) || math.IsNaN(p.Lat) || math.IsInf(p.Lng, 0) || math.IsInf(p.Lat, 0) {
		return fmt.Errorf("%w: coordinates must be finite", ErrInvalidPoint)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidPoint, p.Lng)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidPoint, p.Lat)
	}
	return nil
}

// PointFromPair builds a point from a decoded [lng, lat] array.
func PointFromPair(pair []float64) (Point, error) {
	if len(pair) != 2 {
		return Point{}, fmt.Errorf("%w: expected [lng, lat], got %d components", ErrInvalidPoint, len(pair))
	}
	p := Point{Lng: pair[0], Lat: pair[1]}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lng, p.Lat})
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var pair []float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	v, err := PointFromPair(pair)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
