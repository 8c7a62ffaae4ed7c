package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cmusatyalab/sinfonia/internal/model"
)

func TestDistanceKmSamePoint(t *testing.T) {
	p := model.LatLon{Latitude: 40.4433, Longitude: -79.9436}
	assert.InDelta(t, 0, DistanceKm(p, p), 1e-6)
}

func TestDistanceKmKnownPair(t *testing.T) {
	// Pittsburgh to Philadelphia, roughly 412km apart.
	pgh := model.LatLon{Latitude: 40.4433, Longitude: -79.9436}
	phl := model.LatLon{Latitude: 39.9526, Longitude: -75.1652}
	got := DistanceKm(pgh, phl)
	assert.InDelta(t, 412, got, 15)
}

func TestNearestDistanceKmEmptyIsInfinite(t *testing.T) {
	client := model.LatLon{Latitude: 0, Longitude: 0}
	assert.True(t, math.IsInf(NearestDistanceKm(client, nil), 1))
}

func TestNearestDistanceKmPicksClosest(t *testing.T) {
	client := model.LatLon{Latitude: 40.4433, Longitude: -79.9436}
	near := model.LatLon{Latitude: 40.44, Longitude: -79.94}
	far := model.LatLon{Latitude: 51.5074, Longitude: -0.1278}
	got := NearestDistanceKm(client, []model.LatLon{far, near})
	assert.InDelta(t, DistanceKm(client, near), got, 1e-6)
}
