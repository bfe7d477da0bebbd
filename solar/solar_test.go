package solar

import (
	"math"
	"testing"
	"time"

	"github.com/nci/senet/utils"
)

func TestDeclination(t *testing.T) {
	// Near the March equinox the declination is close to zero, at the
	// June solstice close to +23.45 degrees.
	if d := Declination(80); math.Abs(d) > rad(0.5) {
		t.Errorf("equinox declination: %v rad", d)
	}
	if d := Declination(172); math.Abs(d-rad(23.45)) > rad(0.2) {
		t.Errorf("solstice declination: %v deg", d*180/math.Pi)
	}
	if Declination(100.5) == Declination(100) {
		t.Errorf("fractional day of year ignored")
	}
}

func TestIncidenceAngleFlatSurface(t *testing.T) {
	lat, lon, doy, ftime := 41.5, 2.1, 185.0, 11.25
	got := IncidenceAngleTilted(lat, lon, doy, ftime, 0, 0, 0)

	delta := Declination(doy)
	omega := HourAngle(ftime, delta, lon, 0)
	phi := rad(lat)
	want := math.Sin(delta)*math.Sin(phi) + math.Cos(delta)*math.Cos(phi)*math.Cos(omega)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("flat surface: expecting %v, actual %v", want, got)
	}

	// Aspect has no effect on a horizontal surface.
	if other := IncidenceAngleTilted(lat, lon, doy, ftime, 0, 135, 0); math.Abs(other-got) > 1e-12 {
		t.Errorf("aspect changed flat incidence: %v vs %v", other, got)
	}
}

func TestIncidenceAngleSlopeFacingSun(t *testing.T) {
	// Northern hemisphere noon: a south-facing slope sees the sun more
	// directly than a north-facing one.
	south := IncidenceAngleTilted(45, 0, 80, 12, 0, 180, 30)
	north := IncidenceAngleTilted(45, 0, 80, 12, 0, 0, 30)
	if south <= north {
		t.Errorf("south facing %v should exceed north facing %v", south, north)
	}
	if south > 1 || north < -1 {
		t.Errorf("cosine out of range: %v %v", south, north)
	}
}

func TestIncidenceAngleTiltedGrid(t *testing.T) {
	geo := utils.Geocoding{GeoTransform: utils.GeoTransform{0, 1, 0, 0, 0, -1}}
	lat := utils.NewFilledGrid(2, 1, geo, 40)
	lon := utils.NewFilledGrid(2, 1, geo, -3)
	aspect := utils.NewFilledGrid(2, 1, geo, 90)
	slope := utils.NewFilledGrid(2, 1, geo, 10)
	slope.Data[1] = float32(math.NaN())

	acq := time.Date(2020, 6, 1, 10, 30, 0, 0, time.UTC)
	out, err := IncidenceAngleTiltedGrid(lat, lon, aspect, slope, acq, 0)
	if err != nil {
		t.Fatal(err)
	}
	doy, ftime := DayTime(acq)
	want := float32(IncidenceAngleTilted(40, -3, doy, ftime, 0, 90, 10))
	if out.Data[0] != want {
		t.Errorf("expecting %v, actual %v", want, out.Data[0])
	}
	if !math.IsNaN(float64(out.Data[1])) {
		t.Errorf("NaN slope should give NaN, actual %v", out.Data[1])
	}

	if _, err := IncidenceAngleTiltedGrid(lat, lon, aspect, utils.NewGrid(3, 1, geo), acq, 0); err == nil {
		t.Errorf("mismatched grids accepted")
	}
}
