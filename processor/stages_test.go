package processor

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

var testGeo = utils.Geocoding{
	GeoTransform: utils.GeoTransform{500000, 20, 0, 4400000, 0, -20},
	CRS:          "EPSG:32633",
}

var nan = float32(math.NaN())

func gridOf(w, h int, values ...float32) *utils.Grid {
	g := utils.NewGrid(w, h, testGeo)
	copy(g.Data, values)
	return g
}

// constProduct builds a product whose bands are filled with one value each.
func constProduct(t *testing.T, name string, w, h int, bands map[string]float32) *utils.Product {
	p := utils.NewProduct(name, w, h, testGeo)
	for band, v := range bands {
		if err := p.AddBand(band, "", "", utils.NewFilledGrid(w, h, testGeo, v)); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestClassifyPixels(t *testing.T) {
	lai := gridOf(5, 1, 0, -1, nan, 2, 0.5)
	c, err := ClassifyPixels(lai, []bool{true, true, true, false, true})
	if err != nil {
		t.Fatal(err)
	}

	eq := func(name string, got, want []int) {
		if len(got) != len(want) {
			t.Errorf("%s: got %v, want %v", name, got, want)
			return
		}
		for i := range got {
			if got[i] != want[i] {
				t.Errorf("%s: got %v, want %v", name, got, want)
				return
			}
		}
	}
	eq("soil", c.Soil, []int{0, 1})
	eq("vegetated", c.Vegetated, []int{3, 4})
	eq("processed soil", c.ProcessedSoil, []int{0, 1})
	eq("processed vegetated", c.ProcessedVegetated, []int{4})
	if c.Processed() != 3 || c.NotProcessed() != 2 {
		t.Errorf("processed %d, not processed %d", c.Processed(), c.NotProcessed())
	}

	if _, err := ClassifyPixels(lai, []bool{true}); !errors.Is(err, utils.ErrGeometry) {
		t.Errorf("expected geometry error, got %v", err)
	}
}

func TestLeafOpticsClamped(t *testing.T) {
	for _, cab := range []float64{-20, 0, 35, 140, 600} {
		for _, cw := range []float64{-1, 0, 0.015, 0.1, 2} {
			lo := CalcLeafOptics(cab, cw, false)
			for _, v := range []float64{lo.RhoVIS, lo.TauVIS, lo.RhoNIR, lo.TauNIR} {
				if v < 0 || v > 1 {
					t.Errorf("cab %v cw %v: value %v outside [0, 1]", cab, cw, v)
				}
			}

			clamped := CalcLeafOptics(clamp(cab, 0, maxChlorophyll), clamp(cw, 0, maxWaterContent), false)
			if lo != clamped {
				t.Errorf("cab %v cw %v: clamping is not idempotent: %+v vs %+v", cab, cw, lo, clamped)
			}

			legacy := CalcLeafOptics(cab, cw, true)
			if legacy.TauNIR != legacy.RhoNIR {
				t.Errorf("legacy NIR transmittance %v != reflectance %v", legacy.TauNIR, legacy.RhoNIR)
			}
		}
	}

	if CalcLeafOptics(600, 2, false) != CalcLeafOptics(140, 0.1, false) {
		t.Errorf("values above the range should equal the upper bound")
	}
}

func TestLeafSpectraBands(t *testing.T) {
	bio := constProduct(t, "biophysical", 3, 2, map[string]float32{"lai_cab": 40, "lai_cw": 0.02})
	out, err := LeafSpectra(bio, utils.LeafSpectraConfig{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"refl_vis_c", "refl_nir_c", "trans_vis_c", "trans_nir_c"}
	if got := strings.Join(out.BandNames(), ","); got != strings.Join(want, ",") {
		t.Errorf("band order %s", got)
	}

	missing := constProduct(t, "biophysical", 3, 2, map[string]float32{"lai_cab": 40})
	if _, err := LeafSpectra(missing, utils.LeafSpectraConfig{}); !errors.Is(err, utils.ErrSchema) {
		t.Errorf("expected schema error, got %v", err)
	}
}

func TestCalcFracGreen(t *testing.T) {
	for _, min := range []float64{0.01, 0.3} {
		for lai := 0.0; lai <= 7; lai += 0.5 {
			for fapar := 0.0; fapar <= 1; fapar += 0.1 {
				for sza := 0.0; sza < 85; sza += 20 {
					fg, it := CalcFracGreen(lai, fapar, sza, min)
					if fg < min || fg > 1 {
						t.Errorf("lai %v fapar %v sza %v: fg %v outside [%v, 1]", lai, fapar, sza, fg, min)
					}
					if it > FracGreenMaxIterations {
						t.Errorf("lai %v fapar %v: %d iterations", lai, fapar, it)
					}
				}
			}
		}
	}

	if fg, it := CalcFracGreen(0.1, 0.5, 30, 0.01); fg != 1 || it != 0 {
		t.Errorf("sparse pixel should be fully green without iterating: %v %d", fg, it)
	}
}

func TestFractionGreenConfig(t *testing.T) {
	bio := constProduct(t, "biophysical", 2, 2, map[string]float32{"lai": 2, "fapar": 0.5})
	sz := constProduct(t, "sunZenith", 2, 2, map[string]float32{"sun_zenith": 30})
	for _, min := range []float64{0, 0.005, 1.5} {
		if _, err := FractionGreen(sz, bio, min); !errors.Is(err, utils.ErrConfig) {
			t.Errorf("min %v: expected config error, got %v", min, err)
		}
	}

	out, err := FractionGreen(sz, bio, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	fg, err := out.Grid("frac_green")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range fg.Data {
		if v < 0.01 || v > 1 {
			t.Errorf("frac_green %v out of range", v)
		}
	}
}

func loadSampleLUT(t *testing.T) *utils.LookupTable {
	lut, err := utils.LoadLookupTable("../utils/testdata/lut_sample.csv")
	if err != nil {
		t.Fatal(err)
	}
	return lut
}

func TestStructuralParams(t *testing.T) {
	lut := loadSampleLUT(t)
	landcover := gridOf(4, 1, 10, 50, 999, nan)
	lai := gridOf(4, 1, 0.6, 3, 1, 1)
	fg := gridOf(4, 1, 1, 1, 1, 1)
	cfg := utils.NewConfig().StructuralParams

	out, err := StructuralParams(landcover, lai, fg, lut, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Bands()) != 6 {
		t.Fatalf("expected 6 bands, got %v", out.BandNames())
	}

	h, _ := out.Grid("veg_height")
	// Herbaceous: 0.1*1.2 + 0.9*1.2*(0.6/1.2)^3.
	if math.Abs(float64(h.Data[0])-0.255) > 1e-6 {
		t.Errorf("herbaceous height %v, want 0.255", h.Data[0])
	}
	if h.Data[1] != 25 {
		t.Errorf("woody height %v, want 25", h.Data[1])
	}
	for _, name := range out.BandNames() {
		g, _ := out.Grid(name)
		if !math.IsNaN(float64(g.Data[2])) || !math.IsNaN(float64(g.Data[3])) {
			t.Errorf("%s: unmapped and NaN classes should be NaN: %v", name, g.Data)
		}
	}

	again, err := StructuralParams(landcover, lai, fg, lut, cfg)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range out.Bands() {
		g, _ := again.Grid(b.Name)
		for i := range b.Data {
			if math.Float32bits(b.Data[i]) != math.Float32bits(g.Data[i]) {
				t.Errorf("%s[%d] differs between runs", b.Name, i)
			}
		}
	}

	cfg.VegHeight = false
	cfg.LeafWidth = false
	out, err = StructuralParams(landcover, nil, nil, lut, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if out.HasBand("veg_height") || out.HasBand("veg_leaf_width") || len(out.Bands()) != 4 {
		t.Errorf("disabled bands written: %v", out.BandNames())
	}
}

func TestStructuralParamsMissingColumn(t *testing.T) {
	lut, err := utils.ReadLookupTable(strings.NewReader("landcover_class;veg_height;lai_max\n10;1.2;4\n"))
	if err != nil {
		t.Fatal(err)
	}
	landcover := gridOf(2, 1, 10, 10)
	out, err := StructuralParams(landcover, gridOf(2, 1, 1, 1), gridOf(2, 1, 1, 1), lut, utils.NewConfig().StructuralParams)
	if !errors.Is(err, utils.ErrSchema) {
		t.Errorf("expected schema error, got %v", err)
	}
	if out != nil {
		t.Errorf("no product expected on schema error")
	}
	if err != nil && !strings.Contains(err.Error(), "veg_leaf_width") {
		t.Errorf("error should name the missing columns: %v", err)
	}
}

func structureProduct(t *testing.T, w, h int) *utils.Product {
	return constProduct(t, "landcoverParams", w, h, map[string]float32{
		"veg_height":                   1,
		"veg_fractional_cover":         0.8,
		"veg_height_width_ratio":       1,
		"veg_leaf_width":               0.05,
		"veg_inclination_distribution": 1,
		"igbp_classification":          12,
	})
}

func TestAerodynamicRoughness(t *testing.T) {
	lai := gridOf(4, 1, 0, -0.5, nan, 2)
	classes, err := ClassifyPixels(lai, nil)
	if err != nil {
		t.Fatal(err)
	}
	params := structureProduct(t, 4, 1)

	for _, bad := range []float64{0, -0.1, 1.5} {
		if _, err := AerodynamicRoughness(classes, params, bad); !errors.Is(err, utils.ErrConfig) {
			t.Errorf("soil roughness %v: expected config error, got %v", bad, err)
		}
	}

	out, err := AerodynamicRoughness(classes, params, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	z0, _ := out.Grid("roughness_length")
	d0, _ := out.Grid("zero_plane_displacement")
	for _, i := range []int{0, 1} {
		if z0.Data[i] != float32(0.01) || d0.Data[i] != 0 {
			t.Errorf("soil pixel %d: z0 %v d0 %v", i, z0.Data[i], d0.Data[i])
		}
	}
	if !math.IsNaN(float64(z0.Data[2])) || !math.IsNaN(float64(d0.Data[2])) {
		t.Errorf("NaN LAI should give NaN roughness: %v %v", z0.Data[2], d0.Data[2])
	}
	if !(z0.Data[3] > 0) || !(d0.Data[3] > 0) || d0.Data[3] >= 1 {
		t.Errorf("vegetated pixel: z0 %v d0 %v", z0.Data[3], d0.Data[3])
	}
}

func TestLongwaveIrradiance(t *testing.T) {
	meteo := constProduct(t, "meteo", 2, 1, map[string]float32{
		"air_temperature": 298, "vapour_pressure": 15, "air_pressure": 1000,
	})
	out, err := LongwaveIrradiance(meteo, 100)
	if err != nil {
		t.Fatal(err)
	}
	g, _ := out.Grid("longwave_irradiance")
	want := tseb.CalcLongwaveIrradiance(15, 298, 1000, 100, 2)
	if math.Abs(float64(g.Data[0])-want) > 1e-3 || g.Data[0] < 250 || g.Data[0] > 450 {
		t.Errorf("longwave irradiance %v, want %v", g.Data[0], want)
	}
}

func TestNetShortwaveRadiationSoil(t *testing.T) {
	lai := gridOf(3, 1, 0, 0, 2)
	classes, err := ClassifyPixels(lai, nil)
	if err != nil {
		t.Fatal(err)
	}
	bio := constProduct(t, "biophysical", 3, 1, map[string]float32{"lai_cab": 40, "lai_cw": 0.02})
	leaf, err := LeafSpectra(bio, utils.LeafSpectraConfig{LegacyNIRTransmittance: true})
	if err != nil {
		t.Fatal(err)
	}
	in := ShortwaveInputs{
		LeafSpectra: leaf,
		Structure:   structureProduct(t, 3, 1),
		Meteo:       constProduct(t, "meteo", 3, 1, map[string]float32{"air_pressure": 1013, clearSkyIrradiance: 800}),
		Geometry:    constProduct(t, "geometry", 3, 1, map[string]float32{"solar_zenith_in": 30}),
	}
	cfg := utils.ShortwaveConfig{SoilReflectanceVIS: 0.15, SoilReflectanceNIR: 0.25}

	out, err := NetShortwaveRadiation(classes, in, cfg)
	if err != nil {
		t.Fatal(err)
	}
	snC, _ := out.Grid("net_shortwave_radiation_canopy")
	snS, _ := out.Grid("net_shortwave_radiation_soil")

	dr := tseb.CalcDifuseRatio(800, 30, 1013)
	want := (1 - (dr.FVIS*0.15 + dr.FNIR*0.25)) * 800
	for _, i := range []int{0, 1} {
		if snC.Data[i] != 0 {
			t.Errorf("soil pixel %d has canopy shortwave %v", i, snC.Data[i])
		}
		if math.Abs(float64(snS.Data[i])-want) > 1e-3 {
			t.Errorf("soil pixel %d: Sn %v, want %v", i, snS.Data[i], want)
		}
	}
	if !(snC.Data[2] > 0) || !(snS.Data[2] >= 0) || snC.Data[2]+snS.Data[2] > 800 {
		t.Errorf("vegetated pixel: canopy %v soil %v", snC.Data[2], snS.Data[2])
	}

	if _, err := NetShortwaveRadiation(classes, in, utils.ShortwaveConfig{SoilReflectanceVIS: 1.2}); !errors.Is(err, utils.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestEnergyFluxes(t *testing.T) {
	lai := gridOf(4, 1, 0, 2, 1, 0)
	classes, err := ClassifyPixels(lai, []bool{true, true, false, false})
	if err != nil {
		t.Fatal(err)
	}
	structure := structureProduct(t, 4, 1)
	roughness, err := AerodynamicRoughness(classes, structure, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	meteo := constProduct(t, "meteo", 4, 1, map[string]float32{
		"air_temperature": 298, "vapour_pressure": 15, "air_pressure": 1000, "wind_speed": 3,
	})
	longwave, err := LongwaveIrradiance(meteo, 100)
	if err != nil {
		t.Fatal(err)
	}
	in := EnergyInputs{
		LST:       constProduct(t, "sharpenedLST", 4, 1, map[string]float32{sharpenedLSTBand: 305}),
		Geometry:  constProduct(t, "geometry", 4, 1, map[string]float32{"sat_zenith_tn": 10}),
		Structure: structure,
		FracGreen: constProduct(t, "fracGreen", 4, 1, map[string]float32{"frac_green": 0.9}),
		Roughness: roughness,
		Meteo:     meteo,
		Shortwave: constProduct(t, "netShortwaveRadiation", 4, 1, map[string]float32{
			"net_shortwave_radiation_canopy": 350,
			"net_shortwave_radiation_soil":   200,
		}),
		Longwave: longwave,
	}
	cfg := utils.NewConfig().EnergyBalance

	out, err := EnergyFluxes(classes, in, cfg)
	if err != nil {
		t.Fatal(err)
	}
	flags, _ := out.Grid("quality_flag")
	le, _ := out.Grid(latentHeatFluxBand)
	leC, _ := out.Grid("latent_heat_flux_canopy")
	leS, _ := out.Grid("latent_heat_flux_soil")
	h, _ := out.Grid("sensible_heat_flux")

	for i := range flags.Data {
		processed := i < 2
		if processed == (flags.Data[i] == tseb.FlagNotProcessed) {
			t.Errorf("pixel %d: processed %v, flag %v", i, processed, flags.Data[i])
		}
		if !processed {
			if !math.IsNaN(float64(le.Data[i])) || !math.IsNaN(float64(h.Data[i])) {
				t.Errorf("pixel %d outside the mask has fluxes: LE %v H %v", i, le.Data[i], h.Data[i])
			}
			continue
		}
		if le.Data[i] != leC.Data[i]+leS.Data[i] {
			t.Errorf("pixel %d: LE %v != %v + %v", i, le.Data[i], leC.Data[i], leS.Data[i])
		}
	}
	if leC.Data[0] != 0 {
		t.Errorf("soil pixel canopy LE %v", leC.Data[0])
	}

	counts := CountFlags(flags)
	if counts[tseb.FlagNotProcessed] != 2 {
		t.Errorf("flag counts %v", counts)
	}

	cfg.SaveComponentFlux, cfg.SaveComponentTemp, cfg.SaveAerodynamic = false, false, false
	out, err = EnergyFluxes(classes, in, cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := "sensible_heat_flux,latent_heat_flux,ground_heat_flux,net_radiation,quality_flag"
	if got := strings.Join(out.BandNames(), ","); got != want {
		t.Errorf("bands %s", got)
	}
}

func TestCalcDailyET(t *testing.T) {
	got := CalcDailyET(100, 500, 200)
	if got != tseb.FluxToEvaporation(40, 293.15, 24) {
		t.Errorf("daily ET %v does not match 40 W/m^2 over a day", got)
	}
	if math.Abs(got-1.408439224) > 1e-8 {
		t.Errorf("daily ET %v, want 1.408439224", got)
	}
	if !math.IsNaN(CalcDailyET(math.NaN(), 500, 200)) {
		t.Errorf("NaN flux should give NaN")
	}
}

func TestSlopeAspect(t *testing.T) {
	flat := utils.NewFilledGrid(5, 5, testGeo, 120)
	slope, aspect, err := SlopeAspect(flat, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range slope.Data {
		if slope.Data[i] != 0 || aspect.Data[i] != 0 {
			t.Fatalf("flat DEM pixel %d: slope %v aspect %v", i, slope.Data[i], aspect.Data[i])
		}
	}

	// Rising towards the east at 10 degrees faces west.
	rise := 20 * math.Tan(10*math.Pi/180)
	dem := utils.NewGrid(5, 5, testGeo)
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			dem.Set(x, y, float32(100+rise*float64(x)))
		}
	}
	slope, aspect, err = SlopeAspect(dem, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(slope.At(2, 2))-10) > 1e-3 {
		t.Errorf("slope %v, want 10", slope.At(2, 2))
	}
	if math.Abs(float64(aspect.At(2, 2))-270) > 1e-3 {
		t.Errorf("aspect %v, want 270", aspect.At(2, 2))
	}

	dem.Set(2, 2, nan)
	slope, _, _ = SlopeAspect(dem, 1)
	if !math.IsNaN(float64(slope.At(2, 2))) || !math.IsNaN(float64(slope.At(1, 1))) {
		t.Errorf("NaN elevation should propagate to its neighbourhood")
	}

	if _, _, err := SlopeAspect(dem, 0); !errors.Is(err, utils.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}
