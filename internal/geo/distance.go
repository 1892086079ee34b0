package geo

import "math"

// EarthRadiusMeters is the mean radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// DefaultAverageSpeedKmh is the planning speed used by EstimateDuration.
const DefaultAverageSpeedKmh = 30.0

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TotalDistance sums the legs between consecutive points.
func TotalDistance(points []Coordinate) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1], points[i])
	}
	return total
}

// EstimateDuration returns the seconds needed to cover the ordered points at
// speedKmh. Non-positive speeds fall back to DefaultAverageSpeedKmh.
func EstimateDuration(points []Coordinate, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultAverageSpeedKmh
	}
	return TotalDistance(points) / (speedKmh / 3.6)
}
