package processor

import (
	"fmt"

	"github.com/nci/senet/utils"
)

// Alternative names of the observation geometry bands, in lookup order.
var (
	latitudeBands        = []string{"latitude_tx", "latitude_in"}
	longitudeBands       = []string{"longitude_tx", "longitude_in"}
	satZenithBands       = []string{"sat_zenith_tn", "sat_zenith_tx", "sat_zenith_in"}
	solarZenithBands     = []string{"solar_zenith_tn", "solar_zenith_tx", "solar_zenith_in"}
	dailyIrradianceBand  = "average_daily_solar_irradiance"
	clearSkyIrradiance   = "clear_sky_solar_radiation"
	sharpenedLSTBand     = "sharpened_LST"
	latentHeatFluxBand   = "latent_heat_flux"
	dailyEvapotranspBand = "daily_evapotranspiration"
)

// bandSet collects the named grids a stage needs and checks that they share
// one geometry.
type bandSet struct {
	stage string
	grids map[string]*utils.Grid
	err   error
}

func newBandSet(stage string) *bandSet {
	return &bandSet{stage: stage, grids: make(map[string]*utils.Grid)}
}

// get reads band name from p. The first failure sticks.
func (b *bandSet) get(p *utils.Product, name string) *utils.Grid {
	if b.err != nil {
		return nil
	}
	if p == nil {
		b.err = fmt.Errorf("%s: no product for band %s: %w", b.stage, name, utils.ErrSchema)
		return nil
	}
	g, err := p.Grid(name)
	if err != nil {
		b.err = fmt.Errorf("%s: %w", b.stage, err)
		return nil
	}
	b.grids[name] = g
	return g
}

// fallback reads the first of names present in p.
func (b *bandSet) fallback(p *utils.Product, names ...string) *utils.Grid {
	if b.err != nil {
		return nil
	}
	if p == nil {
		b.err = fmt.Errorf("%s: no product for band %s: %w", b.stage, names[0], utils.ErrSchema)
		return nil
	}
	g, err := p.GridFallback(names...)
	if err != nil {
		b.err = fmt.Errorf("%s: %w", b.stage, err)
		return nil
	}
	b.grids[names[0]] = g
	return g
}

// check returns the first read failure or a geometry mismatch.
func (b *bandSet) check() error {
	if b.err != nil {
		return b.err
	}
	if err := utils.CheckGeometry(b.grids); err != nil {
		return fmt.Errorf("%s: %w", b.stage, err)
	}
	return nil
}

// clamp bounds v to [lo, hi] and keeps NaN.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func f64(v float32) float64 {
	return float64(v)
}
