package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

// HaversineMeters returns the great-circle distance between a and b in
// meters, delegating to orb/geo's Haversine implementation. Symmetric:
// HaversineMeters(a, b) == HaversineMeters(b, a).
func HaversineMeters(a, b model.LatLng) float64 {
	return geo.Distance(orb.Point{a.Lng, a.Lat}, orb.Point{b.Lng, b.Lat})
}
