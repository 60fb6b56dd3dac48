// Package geo implements a geohash/bucket index and radius search:
// geohash encode/decode, Haversine distance, and a
// bounding-box-prefiltered, Haversine-refined radius search over a
// bucket-of-ids index.
package geo

import (
	"strings"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// DefaultPrecision is the cell size used to bucket articles for radius
// search: 6 characters, roughly 1.2km x 0.6km per cell.
const DefaultPrecision = 6

var geohashIndexOf [128]int8

func init() {
	for i := range geohashIndexOf {
		geohashIndexOf[i] = -1
	}
	for i, c := range geohashAlphabet {
		geohashIndexOf[c] = int8(i)
	}
}

// Encode produces a base-32 geohash of the given precision for a
// latitude/longitude pair, by bit-interleaving successive latitude and
// longitude range bisections.
func Encode(lat, lng float64, precision int) string {
	latRange := [2]float64{-90, 90}
	lngRange := [2]float64{-180, 180}

	var out strings.Builder
	bit := 0
	ch := 0
	evenBit := true

	for out.Len() < precision {
		if evenBit {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng >= mid {
				ch |= 1 << uint(4-bit)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				ch |= 1 << uint(4-bit)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		evenBit = !evenBit
		if bit < 4 {
			bit++
		} else {
			out.WriteByte(geohashAlphabet[ch])
			bit = 0
			ch = 0
		}
	}
	return out.String()
}

// Bounds is the latitude/longitude box a geohash cell covers.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Center returns the midpoint of b.
func (b Bounds) Center() model.LatLng {
	return model.LatLng{Lat: (b.MinLat + b.MaxLat) / 2, Lng: (b.MinLng + b.MaxLng) / 2}
}

// ErrInvalidGeohash is returned by Decode for a hash containing a
// character outside the base-32 geohash alphabet.
var ErrInvalidGeohash = wikidb.NewError(wikidb.KindInvalidArgument, "invalid geohash", nil)

// Decode returns the bounding box a geohash string encodes.
func Decode(hash string) (Bounds, error) {
	latRange := [2]float64{-90, 90}
	lngRange := [2]float64{-180, 180}
	evenBit := true

	for _, c := range hash {
		if c < 0 || int(c) >= len(geohashIndexOf) || geohashIndexOf[c] == -1 {
			return Bounds{}, ErrInvalidGeohash
		}
		cd := int(geohashIndexOf[c])
		for mask := 16; mask > 0; mask >>= 1 {
			bit := cd&mask != 0
			if evenBit {
				mid := (lngRange[0] + lngRange[1]) / 2
				if bit {
					lngRange[0] = mid
				} else {
					lngRange[1] = mid
				}
			} else {
				mid := (latRange[0] + latRange[1]) / 2
				if bit {
					latRange[0] = mid
				} else {
					latRange[1] = mid
				}
			}
			evenBit = !evenBit
		}
	}
	return Bounds{MinLat: latRange[0], MaxLat: latRange[1], MinLng: lngRange[0], MaxLng: lngRange[1]}, nil
}

// neighbor directions, in clockwise order starting north, matching the
// canonical geohash neighbor tables.
var neighborDeltas = []struct{ dLat, dLng int }{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

// Neighbors returns the up-to-8 geohashes adjacent to hash at the same
// precision, used to expand a radius search outward from a center cell.
func Neighbors(hash string) ([]string, error) {
	b, err := Decode(hash)
	if err != nil {
		return nil, err
	}
	precision := len(hash)
	latSpan := b.MaxLat - b.MinLat
	lngSpan := b.MaxLng - b.MinLng
	center := b.Center()

	seen := make(map[string]struct{}, 8)
	out := make([]string, 0, 8)
	for _, d := range neighborDeltas {
		lat := center.Lat + float64(d.dLat)*latSpan
		lng := center.Lng + float64(d.dLng)*lngSpan
		if lat > 90 || lat < -90 {
			continue
		}
		lng = wrapLng(lng)
		n := Encode(lat, lng, precision)
		if n == hash {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
