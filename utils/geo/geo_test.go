package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type spot struct {
	name  string
	at    Point
	score float64
}

func (s spot) Position() (Point, bool) { return s.at, true }
func (s spot) Score() float64          { return s.score }

func TestDistanceKm(t *testing.T) {
	// Esplanade to Howrah station, roughly 2.5 km.
	d := DistanceKm(Point{Lon: 88.3639, Lat: 22.5726}, Point{Lon: 88.3426, Lat: 22.5839})
	assert.InDelta(t, 2.5, d, 0.3)

	assert.Zero(t, DistanceKm(Point{Lon: 10, Lat: 10}, Point{Lon: 10, Lat: 10}))
	// One degree of latitude is about 111.19 km on this sphere.
	assert.InDelta(t, 111.19, DistanceKm(Point{Lat: 0}, Point{Lat: 1}), 0.01)
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Lon: 180, Lat: -90}.Valid())
	assert.False(t, Point{Lon: 0, Lat: 90.0001}.Valid())
	assert.False(t, Point{Lon: -180.5, Lat: 0}.Valid())
}

func TestWithinSortsByDistanceThenScore(t *testing.T) {
	origin := Point{Lon: 0, Lat: 0}
	items := []spot{
		{name: "far", at: Point{Lat: 0.1}, score: 5},
		{name: "near-low", at: Point{Lat: 0.01}, score: 3},
		{name: "near-high", at: Point{Lat: -0.01}, score: 4.5},
		{name: "outside", at: Point{Lat: 1}, score: 5},
	}
	hits := Within(origin, 15000, 0, items, nil)
	names := make([]string, 0, len(hits))
	for _, h := range hits {
		names = append(names, h.Item.name)
	}
	assert.Equal(t, []string{"near-high", "near-low", "far"}, names)

	limited := Within(origin, 15000, 2, items, func(s spot) bool { return s.name != "near-high" })
	assert.Len(t, limited, 2)
	assert.Equal(t, "near-low", limited[0].Item.name)
}

func TestBoxAroundAntimeridian(t *testing.T) {
	box := BoxAround(Point{Lon: 179.99, Lat: 0}, 5000)
	assert.Equal(t, -180.0, box.MinLon)
	assert.True(t, box.Contains(Point{Lon: -179.99, Lat: 0}))
}

func TestETAMinutes(t *testing.T) {
	assert.Equal(t, 20, ETAMinutes(10, 30))
	assert.Equal(t, 1, ETAMinutes(0.3, 30))
	assert.Equal(t, 0, ETAMinutes(0.2, 30))
}
