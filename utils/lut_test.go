package utils

import (
	"errors"
	"strings"
	"testing"
)

var structuralColumns = []string{"veg_height", "lai_max", "is_herbaceous", "veg_fractional_cover",
	"veg_height_width_ratio", "veg_leaf_width", "veg_inclination_distribution", "igbp_classification"}

func TestLoadLookupTable(t *testing.T) {
	lut, err := LoadLookupTable("testdata/lut_sample.csv")
	if err != nil {
		t.Fatal(err)
	}
	if lut.NumRows() != 4 {
		t.Errorf("malformed row not skipped, rows: %d", lut.NumRows())
	}
	if err := lut.Require(structuralColumns...); err != nil {
		t.Error(err)
	}

	tests := []struct {
		class  float32
		column string
		value  float64
		found  bool
	}{
		{50, "veg_height", 25, true},
		{10, "is_herbaceous", 1, true},
		{70, "igbp_classification", 1, true},
		{71, "veg_height", 0, false},
		{10, "no_such_column", 0, false},
	}
	for _, tc := range tests {
		v, ok := lut.Value(tc.class, tc.column)
		if ok != tc.found || (ok && v != tc.value) {
			t.Errorf("Value(%v, %s): expecting (%v, %v), actual (%v, %v)", tc.class, tc.column, tc.value, tc.found, v, ok)
		}
	}
}

func TestLookupTableMissingColumns(t *testing.T) {
	lut, err := LoadLookupTable("testdata/lut_missing_columns.csv")
	if err != nil {
		t.Fatal(err)
	}
	err = lut.Require(structuralColumns...)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("expecting schema error, got %v", err)
	}
	if !strings.Contains(err.Error(), "igbp_classification") || strings.Contains(err.Error(), "lai_max,") {
		t.Errorf("error should list exactly the missing columns: %v", err)
	}
}

func TestReadLookupTableBadNumber(t *testing.T) {
	_, err := ReadLookupTable(strings.NewReader("landcover_class;veg_height\n10;tall\n"))
	if !errors.Is(err, ErrSchema) {
		t.Errorf("expecting schema error, got %v", err)
	}
}

func TestResolverFindsLookupTable(t *testing.T) {
	r := NewRuntimeFileResolver("../data")
	lut, err := r.LoadLookupTable("ESA_CCI_LUT.csv")
	if err != nil {
		t.Fatal(err)
	}
	if err := lut.Require(structuralColumns...); err != nil {
		t.Error(err)
	}
	if _, err := r.Lookup("missing.csv"); !errors.Is(err, ErrConfig) {
		t.Errorf("expecting configuration error, got %v", err)
	}
}
