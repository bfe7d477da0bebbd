package processor

import (
	"fmt"

	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

// Height (m) the longwave irradiance is reported at.
const longwaveSurfaceHeight = 2.0

// LongwaveIrradiance estimates the atmospheric longwave irradiance from
// air temperature (K), vapour pressure (mb) and pressure (mb) measured at
// measurementHeight metres.
func LongwaveIrradiance(meteo *utils.Product, measurementHeight float64) (*utils.Product, error) {
	if !(measurementHeight > 0) {
		return nil, fmt.Errorf("measurement height %v must be positive: %w", measurementHeight, utils.ErrConfig)
	}

	bs := newBandSet("longwave irradiance")
	ta := bs.get(meteo, "air_temperature")
	ea := bs.get(meteo, "vapour_pressure")
	p := bs.get(meteo, "air_pressure")
	if err := bs.check(); err != nil {
		return nil, err
	}

	ldn := utils.NewGridLike(ta)
	for i := range ldn.Data {
		ldn.Data[i] = float32(tseb.CalcLongwaveIrradiance(f64(ea.Data[i]), f64(ta.Data[i]), f64(p.Data[i]),
			measurementHeight, longwaveSurfaceHeight))
	}

	out := utils.NewProductLike("longwaveIrradiance", ta)
	if err := out.AddBand("longwave_irradiance", "Atmospheric longwave irradiance", "W/m^2", ldn); err != nil {
		return nil, err
	}
	return out, nil
}
