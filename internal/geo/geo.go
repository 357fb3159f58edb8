// Package geo holds the small amount of spherical geometry the scheduler needs.
package geo

import "math"

// EarthRadiusMeters is the mean earth radius used for distances.
const EarthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate.
type Point struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"lng"`
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := rad(a.Lat)
	lat2 := rad(b.Lat)
	dLat := lat2 - lat1
	dLong := rad(b.Long - a.Long)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLong/2)*math.Sin(dLong/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// InCircle reports whether p lies within radius meters of center.
func InCircle(p, center Point, radius float64) bool {
	return Distance(p, center) <= radius
}

// Round rounds v to the given number of decimals. Negative decimals leave v unchanged.
func Round(v float64, decimals int) float64 {
	if decimals < 0 {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }
