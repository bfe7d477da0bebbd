package utils

import (
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestProductReadWrite(t *testing.T) {
	dir, err := ioutil.TempDir("", "senet_product_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	p := NewProduct("turbulentFluxes", 3, 2, testGeo)
	g := NewGrid(3, 2, testGeo)
	copy(g.Data, []float32{1, 2, float32(math.NaN()), -4, 5.5, 6})
	if err := p.AddBand("latent_heat_flux", "Latent heat flux", "W m-2", g); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "fluxes")
	if err := WriteProduct(out, p); err != nil {
		t.Fatal(err)
	}

	q, err := ReadProduct(out)
	if err != nil {
		t.Fatal(err)
	}
	if q.Name != p.Name || q.Width != 3 || q.Height != 2 || q.Geocoding != testGeo {
		t.Errorf("manifest mismatch: %+v", q)
	}
	b, err := q.Band("latent_heat_flux")
	if err != nil {
		t.Fatal(err)
	}
	if b.Unit != "W m-2" {
		t.Errorf("unit lost: %q", b.Unit)
	}
	for i, v := range g.Data {
		if math.Float32bits(v) != math.Float32bits(b.Data[i]) {
			t.Errorf("pixel %d: expecting %v, actual %v", i, v, b.Data[i])
		}
	}
}

func TestReadProductTruncatedBand(t *testing.T) {
	dir, err := ioutil.TempDir("", "senet_product_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	manifest := "name: broken\nwidth: 2\nheight: 2\ngeotransform: [0, 1, 0, 0, 0, -1]\nbands:\n- name: lai\n  file: lai.f32\n"
	if err := ioutil.WriteFile(filepath.Join(dir, ManifestName), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "lai.f32"), []byte{0, 0, 0, 0}, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadProduct(dir); !errors.Is(err, ErrSchema) {
		t.Errorf("short band file should be a schema error, got %v", err)
	}
}

func TestScratchRemovedOnClose(t *testing.T) {
	parent, err := ioutil.TempDir("", "senet_scratch_parent")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(parent)

	s, err := NewScratch(parent, "sharpen")
	if err != nil {
		t.Fatal(err)
	}
	g := NewFilledGrid(2, 2, testGeo, 0.5)
	if err := s.PutGrid("cos_theta", g); err != nil {
		t.Fatal(err)
	}
	back, err := s.Grid("cos_theta")
	if err != nil {
		t.Fatal(err)
	}
	if back.Data[3] != 0.5 {
		t.Errorf("scratch grid corrupted: %v", back.Data)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Dir); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s still exists", s.Dir)
	}
}
