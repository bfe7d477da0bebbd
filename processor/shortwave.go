package processor

import (
	"fmt"

	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

// ShortwaveInputs are the products the net shortwave partition reads.
type ShortwaveInputs struct {
	LeafSpectra *utils.Product
	Structure   *utils.Product
	Meteo       *utils.Product
	Geometry    *utils.Product
}

// NetShortwaveRadiation partitions the clear sky irradiance into net
// shortwave radiation absorbed by canopy and soil. Bare soil absorbs what
// its VIS/NIR reflectance leaves; vegetated pixels go through the Campbell
// radiative transfer with a clumped effective LAI. Other pixels stay zero.
func NetShortwaveRadiation(classes *PixelClasses, in ShortwaveInputs, cfg utils.ShortwaveConfig) (*utils.Product, error) {
	if !inUnitInterval(cfg.SoilReflectanceVIS) || !inUnitInterval(cfg.SoilReflectanceNIR) {
		return nil, fmt.Errorf("soil reflectance (%v, %v) outside [0, 1]: %w", cfg.SoilReflectanceVIS, cfg.SoilReflectanceNIR, utils.ErrConfig)
	}

	bs := newBandSet("net shortwave radiation")
	bs.grids["lai"] = classes.LAI
	reflVIS := bs.get(in.LeafSpectra, "refl_vis_c")
	reflNIR := bs.get(in.LeafSpectra, "refl_nir_c")
	transVIS := bs.get(in.LeafSpectra, "trans_vis_c")
	transNIR := bs.get(in.LeafSpectra, "trans_nir_c")
	lad := bs.get(in.Structure, "veg_inclination_distribution")
	fc := bs.get(in.Structure, "veg_fractional_cover")
	hwRatio := bs.get(in.Structure, "veg_height_width_ratio")
	p := bs.get(in.Meteo, "air_pressure")
	sdn := bs.get(in.Meteo, clearSkyIrradiance)
	sza := bs.fallback(in.Geometry, solarZenithBands...)
	if err := bs.check(); err != nil {
		return nil, err
	}

	lai := classes.LAI
	snC := utils.NewGrid(lai.Width, lai.Height, lai.Geocoding)
	snS := utils.NewGrid(lai.Width, lai.Height, lai.Geocoding)

	split := func(i int) (tseb.DiffuseRatio, float64, float64) {
		s := f64(sdn.Data[i])
		dr := tseb.CalcDifuseRatio(s, f64(sza.Data[i]), f64(p.Data[i]))
		skyl := dr.Skyl()
		return dr, s * (1 - skyl), s * skyl
	}

	for _, i := range classes.Soil {
		dr, dir, dif := split(i)
		spectra := dr.FVIS*cfg.SoilReflectanceVIS + dr.FNIR*cfg.SoilReflectanceNIR
		snS.Data[i] = float32((1 - spectra) * (dir + dif))
	}

	for _, i := range classes.Vegetated {
		dr, dir, dif := split(i)
		l := f64(lai.Data[i])
		theta := f64(sza.Data[i])
		x := f64(lad.Data[i])
		f := f64(fc.Data[i])

		omega0 := tseb.CalcOmega0Kustas(l, f, x, true)
		omega := tseb.CalcOmegaKustas(omega0, theta, f64(hwRatio.Data[i]))
		laiEff := l / f * omega

		leaf := tseb.Leaf{
			RhoVIS: f64(reflVIS.Data[i]),
			TauVIS: f64(transVIS.Data[i]),
			RhoNIR: f64(reflNIR.Data[i]),
			TauNIR: f64(transNIR.Data[i]),
		}
		c, s := tseb.CalcSnCampbell(l, theta, dir, dif, dr.FVIS, dr.FNIR, leaf,
			cfg.SoilReflectanceVIS, cfg.SoilReflectanceNIR, x, laiEff)
		snC.Data[i] = float32(c)
		snS.Data[i] = float32(s)
	}

	out := utils.NewProductLike("netShortwaveRadiation", lai)
	if err := out.AddBand("net_shortwave_radiation_canopy", "Canopy net shortwave radiation", "W/m^2", snC); err != nil {
		return nil, err
	}
	if err := out.AddBand("net_shortwave_radiation_soil", "Soil net shortwave radiation", "W/m^2", snS); err != nil {
		return nil, err
	}
	return out, nil
}

func inUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
