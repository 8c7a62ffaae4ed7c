// Package geo provides the great-circle distance calculation used by the
// location match-function stage to order candidate cloudlets by proximity
// to a client's geolocation.
package geo

import (
	"math"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance in kilometers
// between two coordinates.
func DistanceKm(a, b model.LatLon) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// NearestDistanceKm returns the distance from client to the closest of the
// cloudlet's declared locations. A cloudlet with no declared locations is
// treated as infinitely far, sorting last.
func NearestDistanceKm(client model.LatLon, locations []model.LatLon) float64 {
	best := math.Inf(1)
	for _, loc := range locations {
		if d := DistanceKm(client, loc); d < best {
			best = d
		}
	}
	return best
}
