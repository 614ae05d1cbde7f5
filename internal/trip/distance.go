package trip

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/chrissnell/tmdtools/internal/timeseries"
)

// EarthRadiusMeters is the mean radius of the Earth.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// PathLength sums the distances between consecutive fixes of a GPS table.
// Rows with a missing coordinate are ignored. A table without latitude or
// longitude columns has a zero length.
func PathLength(gps *timeseries.Table) float64 {
	if gps == nil {
		return 0
	}
	lats, okLat := gps.Column("latitude")
	lons, okLon := gps.Column("longitude")
	if !okLat || !okLon {
		return 0
	}

	total := 0.0
	prev := -1
	for i := range lats {
		if math.IsNaN(lats[i]) || math.IsNaN(lons[i]) {
			continue
		}
		if prev >= 0 {
			total += DistanceMeters(lats[prev], lons[prev], lats[i], lons[i])
		}
		prev = i
	}
	return total
}
