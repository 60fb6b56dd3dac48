package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

func TestEncodeSanFrancisco(t *testing.T) {
	hash := Encode(37.7749, -122.4194, 6)
	if hash != "9q8yyk" {
		t.Fatalf("expected 9q8yyk, got %s", hash)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	hash := Encode(37.7749, -122.4194, 6)
	b, err := Decode(hash)
	if err != nil {
		t.Fatal(err)
	}
	if b.MinLat > 37.7749 || b.MaxLat < 37.7749 {
		t.Fatalf("decoded bounds do not contain original lat: %+v", b)
	}
	if b.MinLng > -122.4194 || b.MaxLng < -122.4194 {
		t.Fatalf("decoded bounds do not contain original lng: %+v", b)
	}
}

func TestDecodeInvalidGeohash(t *testing.T) {
	if _, err := Decode("9q8yyA"); err == nil {
		t.Fatal("expected error for invalid geohash character")
	}
	if _, err := Decode("9qilyk"); err == nil {
		t.Fatal("expected error: 'i' and 'l' are excluded from the geohash alphabet")
	}
}

func TestHaversineSanFranciscoToLosAngeles(t *testing.T) {
	sf := model.LatLng{Lat: 37.7749, Lng: -122.4194}
	la := model.LatLng{Lat: 34.0522, Lng: -118.2437}
	d := HaversineMeters(sf, la)
	if d < 550000 || d > 570000 {
		t.Fatalf("expected distance in [550000, 570000]m, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := model.LatLng{Lat: 37.7749, Lng: -122.4194}
	b := model.LatLng{Lat: 34.0522, Lng: -118.2437}
	if math.Abs(HaversineMeters(a, b)-HaversineMeters(b, a)) > 1e-9 {
		t.Fatal("expected Haversine distance to be symmetric")
	}
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	a := model.LatLng{Lat: 37.7749, Lng: -122.4194}
	if d := HaversineMeters(a, a); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestNeighborsExcludesSelf(t *testing.T) {
	hash := Encode(37.7749, -122.4194, 6)
	neighbors, err := Neighbors(hash)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range neighbors {
		if n == hash {
			t.Fatal("neighbors must not include the cell itself")
		}
	}
	if len(neighbors) == 0 {
		t.Fatal("expected at least one neighbor")
	}
}

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	entries := []Entry{
		{ID: "sf", Category: model.CategoryPlace, Lat: 37.7749, Lng: -122.4194},
		{ID: "oakland", Category: model.CategoryPlace, Lat: 37.8044, Lng: -122.2712},
		{ID: "san-jose", Category: model.CategoryPlace, Lat: 37.4249, Lng: -122.1194},
		{ID: "la", Category: model.CategoryPlace, Lat: 34.0522, Lng: -118.2437},
	}
	doc := document{Version: 1, Entries: entries}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := Build(raw)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestSearchRadiusSoundAndComplete(t *testing.T) {
	idx := buildTestIndex(t)
	results, err := idx.Search(SearchOptions{
		Center:       model.LatLng{Lat: 37.7749, Lng: -122.4194},
		RadiusMeters: 50000,
		Types:        map[model.Category]bool{model.CategoryPlace: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results (sf, oakland, san-jose), got %d: %+v", len(results), results)
	}
	ids := []string{results[0].ID, results[1].ID, results[2].ID}
	if ids[0] != "sf" {
		t.Fatalf("expected sf first (distance 0), got %s", ids[0])
	}
	for k := range ids {
		if ids[k] == "la" {
			t.Fatal("expected LA to be excluded at 50km radius")
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].DistanceMeters < results[i-1].DistanceMeters {
			t.Fatal("expected results sorted ascending by distance")
		}
	}
}

func TestSearchLimitTruncates(t *testing.T) {
	idx := buildTestIndex(t)
	results, err := idx.Search(SearchOptions{
		Center:       model.LatLng{Lat: 37.7749, Lng: -122.4194},
		RadiusMeters: 50000,
		Limit:        1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected limit to truncate to 1 result, got %d", len(results))
	}
}
