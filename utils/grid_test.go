package utils

import (
	"errors"
	"math"
	"testing"
)

var testGeo = Geocoding{GeoTransform: GeoTransform{100, 20, 0, 500, 0, -20}, CRS: "EPSG:32633"}

func TestGeocodingRoundTrip(t *testing.T) {
	gx, gy := testGeo.PixelCenter(3, 2)
	if gx != 170 || gy != 450 {
		t.Errorf("pixel centre: expecting (170, 450), actual (%v, %v)", gx, gy)
	}
	px, py, err := testGeo.PixelOf(gx, gy)
	if err != nil {
		t.Fatal(err)
	}
	if px != 3.5 || py != 2.5 {
		t.Errorf("inverse: expecting (3.5, 2.5), actual (%v, %v)", px, py)
	}

	_, _, err = Geocoding{}.PixelOf(0, 0)
	if !errors.Is(err, ErrGeometry) {
		t.Errorf("degenerate transform should be a geometry error, got %v", err)
	}
}

func TestProductBands(t *testing.T) {
	p := NewProduct("test", 2, 2, testGeo)
	lai := NewFilledGrid(2, 2, testGeo, 1.5)
	if err := p.AddBand("lai", "Leaf area index", "", lai); err != nil {
		t.Fatal(err)
	}
	if err := p.PutBand(&Band{Name: "sat_zenith_in", Grid: NewGrid(2, 2, testGeo)}); err != nil {
		t.Fatal(err)
	}

	if err := p.AddBand("bad", "", "", NewGrid(3, 2, testGeo)); !errors.Is(err, ErrGeometry) {
		t.Errorf("size mismatch should be a geometry error, got %v", err)
	}

	if _, err := p.Band("fapar"); !errors.Is(err, ErrSchema) {
		t.Errorf("missing band should be a schema error, got %v", err)
	}

	g, err := p.GridFallback("sat_zenith_tn", "sat_zenith_tx", "sat_zenith_in")
	if err != nil || g == nil {
		t.Errorf("fallback name not found: %v", err)
	}
	if _, err := p.GridFallback("latitude_tx", "latitude_in"); !errors.Is(err, ErrSchema) {
		t.Errorf("band missing under every name should be a schema error, got %v", err)
	}

	if err := p.AddBand("lai", "replaced", "", NewFilledGrid(2, 2, testGeo, 2)); err != nil {
		t.Fatal(err)
	}
	names := p.BandNames()
	if len(names) != 2 || names[0] != "lai" {
		t.Errorf("band order not kept on replace: %v", names)
	}
	b, _ := p.Band("lai")
	if b.Description != "replaced" || b.Data[0] != 2 {
		t.Errorf("band not replaced: %+v", b)
	}
}

func TestCheckGeometry(t *testing.T) {
	a := NewGrid(4, 4, testGeo)
	b := NewGrid(4, 4, testGeo)
	if err := CheckGeometry(map[string]*Grid{"a": a, "b": b}); err != nil {
		t.Errorf("identical grids reported as mismatched: %v", err)
	}

	shifted := testGeo
	shifted.GeoTransform[0] += 20
	c := NewGrid(4, 4, shifted)
	if err := CheckGeometry(map[string]*Grid{"a": a, "c": c}); !errors.Is(err, ErrGeometry) {
		t.Errorf("shifted grid should be a geometry error, got %v", err)
	}
}

func TestNewGridLike(t *testing.T) {
	g := NewGridLike(NewGrid(3, 1, testGeo))
	if g.CountNaN() != 3 {
		t.Errorf("expecting all NaN, actual %v", g.Data)
	}
	g.Set(1, 0, 4)
	if g.At(1, 0) != 4 || !math.IsNaN(float64(g.At(0, 0))) {
		t.Errorf("set/at mismatch: %v", g.Data)
	}
}
