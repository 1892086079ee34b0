package optimizer

import (
	"github.com/fieldtour/fieldtour/internal/geo"
	"github.com/fieldtour/fieldtour/internal/tour"
)

// NearestNeighbor orders stops greedily, always moving to the closest
// unvisited stop by great-circle distance. Ties keep the earlier stop.
// The input is not modified; the result carries order indices 0..n-1.
func NearestNeighbor(start geo.Coordinate, stops []tour.Stop) []tour.Stop {
	remaining := append([]tour.Stop(nil), stops...)
	ordered := make([]tour.Stop, 0, len(stops))

	current := start
	for len(remaining) > 0 {
		best := 0
		bestDist := geo.Haversine(current, remaining[0].Position)
		for i := 1; i < len(remaining); i++ {
			if d := geo.Haversine(current, remaining[i].Position); d < bestDist {
				best, bestDist = i, d
			}
		}

		next := remaining[best]
		next.Order = len(ordered)
		ordered = append(ordered, next)
		current = next.Position
		remaining = append(remaining[:best], remaining[best+1:]...)
	}

	return ordered
}

// maxTwoOptPasses bounds ImproveTwoOpt on pathological inputs.
const maxTwoOptPasses = 50

// ImproveTwoOpt refines an ordered open path from start by reversing
// segments while that shortens the total distance. Order indices are
// reassigned 0..n-1.
func ImproveTwoOpt(start geo.Coordinate, stops []tour.Stop) []tour.Stop {
	path := append([]tour.Stop(nil), stops...)
	n := len(path)

	pos := func(i int) geo.Coordinate {
		if i < 0 {
			return start
		}
		return path[i].Position
	}

	for pass := 0; pass < maxTwoOptPasses; pass++ {
		improved := false
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				before := geo.Haversine(pos(i-1), pos(i))
				after := geo.Haversine(pos(i-1), pos(j))
				if j+1 < n {
					before += geo.Haversine(pos(j), pos(j+1))
					after += geo.Haversine(pos(i), pos(j+1))
				}
				// Require a real gain so float noise cannot loop forever.
				if after < before-1e-6 {
					reverse(path[i : j+1])
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	for i := range path {
		path[i].Order = i
	}
	return path
}

func reverse(s []tour.Stop) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
