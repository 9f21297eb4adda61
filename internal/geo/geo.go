// Package geo provides great-circle path geometry for propagation circuits.
// All angles at the API boundary are in degrees, distances in kilometres.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used throughout the prediction engine.
const EarthRadiusKm = 6370.0

// ErrInvalidCoordinate is returned for latitudes outside [-90, 90] or
// longitudes outside [-180, 360).
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a geographic location in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Validate checks the coordinate ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon >= 360 {
		return fmt.Errorf("%w: lat=%.4f lon=%.4f", ErrInvalidCoordinate, p.Lat, p.Lon)
	}
	return nil
}

// String formats the point as "lat,lon".
func (p Point) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lon)
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
func deg(r float64) float64   { return r * 180 / math.Pi }

// centralAngle returns the great-circle central angle in radians (haversine).
func centralAngle(a, b Point) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLat := lat2 - lat1
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(math.Max(0, 1-h)))
}

// Distance returns the great-circle distance in km.
func Distance(a, b Point) float64 {
	return centralAngle(a, b) * EarthRadiusKm
}

// Bearing returns the initial great-circle bearing from a to b in degrees [0, 360).
func Bearing(a, b Point) float64 {
	lat1, lat2 := rad(a.Lat), rad(b.Lat)
	dLon := rad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return math.Mod(deg(math.Atan2(y, x))+360, 360)
}

// Intermediate returns the point at the given fraction (0..1) of the great
// circle from a to b.
func Intermediate(a, b Point, fraction float64) Point {
	delta := centralAngle(a, b)
	if delta < 1e-12 {
		return a
	}
	lat1, lon1 := rad(a.Lat), rad(a.Lon)
	lat2, lon2 := rad(b.Lat), rad(b.Lon)

	sinDelta := math.Sin(delta)
	fa := math.Sin((1-fraction)*delta) / sinDelta
	fb := math.Sin(fraction*delta) / sinDelta

	x := fa*math.Cos(lat1)*math.Cos(lon1) + fb*math.Cos(lat2)*math.Cos(lon2)
	y := fa*math.Cos(lat1)*math.Sin(lon1) + fb*math.Cos(lat2)*math.Sin(lon2)
	z := fa*math.Sin(lat1) + fb*math.Sin(lat2)

	return Point{
		Lat: deg(math.Atan2(z, math.Sqrt(x*x+y*y))),
		Lon: normalizeLon(deg(math.Atan2(y, x))),
	}
}

func normalizeLon(lon float64) float64 {
	for lon < -180 {
		lon += 360
	}
	for lon >= 180 {
		lon -= 360
	}
	return lon
}

// Path describes a transmitter-receiver circuit.
type Path struct {
	Tx          Point
	Rx          Point
	DistanceKm  float64
	Azimuth     float64 // degrees, at Tx towards Rx
	BackAzimuth float64 // degrees, at Rx towards Tx
}

// NewPath validates both ends and computes the short great-circle path.
func NewPath(tx, rx Point) (Path, error) {
	if err := tx.Validate(); err != nil {
		return Path{}, fmt.Errorf("transmitter: %w", err)
	}
	if err := rx.Validate(); err != nil {
		return Path{}, fmt.Errorf("receiver: %w", err)
	}
	return Path{
		Tx:          tx,
		Rx:          rx,
		DistanceKm:  Distance(tx, rx),
		Azimuth:     Bearing(tx, rx),
		BackAzimuth: Bearing(rx, tx),
	}, nil
}

// PointAt returns the point at the given distance (km) from the transmitter.
func (p Path) PointAt(km float64) Point {
	if p.DistanceKm <= 0 {
		return p.Tx
	}
	return Intermediate(p.Tx, p.Rx, km/p.DistanceKm)
}

// ControlPointSpacingKm is the distance from each end at which the outer
// control points of long paths are placed.
const ControlPointSpacingKm = 2000.0

// LongPathThresholdKm is the distance above which three control points are used.
const LongPathThresholdKm = 4000.0

// ControlPointDistances returns the distances (km from Tx) at which the
// ionosphere is sampled: the midpoint for paths up to 4000 km, otherwise
// 2000 km from each end plus the midpoint.
func (p Path) ControlPointDistances() []float64 {
	mid := p.DistanceKm / 2
	if p.DistanceKm <= LongPathThresholdKm {
		return []float64{mid}
	}
	return []float64{ControlPointSpacingKm, mid, p.DistanceKm - ControlPointSpacingKm}
}
