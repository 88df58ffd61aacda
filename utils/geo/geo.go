// Package geo holds the proximity math shared by the registry, the matching
// engine and tracking.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the sphere radius used for haversine distances.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate. JSON carries it as [lon, lat] through
// Coordinates.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

func (p Point) Coordinates() []float64 { return []float64{p.Lon, p.Lat} }

// Valid reports whether the point lies inside the legal lat/lon ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceKm returns the great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMeters is DistanceKm scaled to metres.
func DistanceMeters(a, b Point) float64 { return DistanceKm(a, b) * 1000 }

// BoundingBox is a lat/lon rectangle enclosing a circle, used as a cheap
// prefilter before the exact haversine check.
type BoundingBox struct {
	MinLat, MaxLat, MinLon, MaxLon float64
}

// BoxAround returns a box enclosing every point within radiusMeters of origin.
// Near the poles or when the circle crosses the antimeridian the longitude
// range widens to the full [-180, 180].
func BoxAround(origin Point, radiusMeters float64) BoundingBox {
	angular := radiusMeters / 1000 / EarthRadiusKm
	dLat := angular * 180 / math.Pi
	box := BoundingBox{
		MinLat: math.Max(origin.Lat-dLat, -90),
		MaxLat: math.Min(origin.Lat+dLat, 90),
		MinLon: -180,
		MaxLon: 180,
	}
	cosLat := math.Cos(toRad(origin.Lat))
	if cosLat <= 1e-9 {
		return box
	}
	dLon := dLat / cosLat
	if origin.Lon-dLon < -180 || origin.Lon+dLon > 180 || dLon >= 180 {
		return box
	}
	box.MinLon = origin.Lon - dLon
	box.MaxLon = origin.Lon + dLon
	return box
}

func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Locatable is anything Within can rank.
type Locatable interface {
	Position() (Point, bool)
	Score() float64
}

// Hit is a ranked result of Within.
type Hit[T Locatable] struct {
	Item       T
	DistanceKm float64
}

// Within returns the items lying within radiusMeters of origin that pass
// filter, sorted by ascending distance with ties broken by descending score.
// limit <= 0 means unbounded.
func Within[T Locatable](origin Point, radiusMeters float64, limit int, items []T, filter func(T) bool) []Hit[T] {
	box := BoxAround(origin, radiusMeters)
	hits := make([]Hit[T], 0)
	for _, item := range items {
		if filter != nil && !filter(item) {
			continue
		}
		pos, ok := item.Position()
		if !ok || !box.Contains(pos) {
			continue
		}
		d := DistanceKm(origin, pos)
		if d*1000 > radiusMeters {
			continue
		}
		hits = append(hits, Hit[T]{Item: item, DistanceKm: d})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].DistanceKm != hits[j].DistanceKm {
			return hits[i].DistanceKm < hits[j].DistanceKm
		}
		return hits[i].Item.Score() > hits[j].Item.Score()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// ETAMinutes converts a distance into whole minutes at the given average
// speed, rounded to the nearest minute.
func ETAMinutes(distanceKm, speedKmh float64) int {
	if speedKmh <= 0 {
		return 0
	}
	return int(math.Round(distanceKm / speedKmh * 60))
}
