package processor

import (
	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

const (
	// Reference temperature (K) of the latent heat of vaporisation.
	dailyETReferenceTemp = 293.15
	dailyETHours         = 24
)

// CalcDailyET scales the instantaneous latent heat flux (W m-2) by the
// ratio of daily to instantaneous irradiance and converts it to mm/day.
func CalcDailyET(le, sdn, sdn24 float64) float64 {
	return tseb.FluxToEvaporation(sdn24*le/sdn, dailyETReferenceTemp, dailyETHours)
}

// DailyEvapotranspiration extrapolates the instantaneous latent heat flux
// to daily evapotranspiration.
func DailyEvapotranspiration(fluxes, meteo *utils.Product) (*utils.Product, error) {
	bs := newBandSet("daily evapotranspiration")
	le := bs.get(fluxes, latentHeatFluxBand)
	sdn := bs.get(meteo, clearSkyIrradiance)
	sdn24 := bs.get(meteo, dailyIrradianceBand)
	if err := bs.check(); err != nil {
		return nil, err
	}

	et := utils.NewGridLike(le)
	for i := range et.Data {
		et.Data[i] = float32(CalcDailyET(f64(le.Data[i]), f64(sdn.Data[i]), f64(sdn24.Data[i])))
	}

	out := utils.NewProductLike("dailyEvapotranspiration", le)
	if err := out.AddBand(dailyEvapotranspBand, "Daily evapotranspiration", "mm/day", et); err != nil {
		return nil, err
	}
	return out, nil
}
