// Package geo holds the great-circle math used by geofence checks.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Within reports whether p lies inside the circle of radiusMeters around center.
func Within(center, p Point, radiusMeters float64) bool {
	return Distance(center, p) <= radiusMeters
}

// OffsetNorth returns the point meters due north of p. Used to build fixtures
// at a known distance along a meridian.
func OffsetNorth(p Point, meters float64) Point {
	return Point{
		Latitude:  p.Latitude + degrees(meters/EarthRadiusMeters),
		Longitude: p.Longitude,
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
