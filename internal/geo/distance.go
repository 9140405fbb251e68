// Package geo provides great-circle distance and point encoding for location data.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6_371_000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Haversine returns the great-circle distance in meters between two
// coordinates. NaN or out-of-range inputs propagate into the result.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dphi := radians(lat2 - lat1)
	dlambda := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dphi/2), 2) + math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dlambda/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance returns the Haversine distance between two points in meters.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Within reports whether b lies within radiusM meters of a.
func Within(a, b Point, radiusM float64) bool {
	return Distance(a, b) <= radiusM
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
