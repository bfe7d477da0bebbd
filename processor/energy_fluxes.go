package processor

import (
	"fmt"

	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

// Emissivity of the senescent part of the canopy.
const nonGreenEmissivity = 0.91

// EnergyInputs are the products the energy balance reads.
type EnergyInputs struct {
	LST       *utils.Product // sharpened_LST
	Geometry  *utils.Product // sat_zenith_tn
	Structure *utils.Product
	FracGreen *utils.Product
	Roughness *utils.Product
	Meteo     *utils.Product
	Shortwave *utils.Product
	Longwave  *utils.Product
}

// fluxGrids are the per pixel solver outputs, NaN until written.
type fluxGrids struct {
	flag                *utils.Grid
	tS, tC, tAC         *utils.Grid
	hS, hC, leS, leC, g *utils.Grid
	lnS, lnC            *utils.Grid
	rS, rX, rA          *utils.Grid
	uStar, mol          *utils.Grid
}

// EnergyFluxes solves the surface energy balance of every processed pixel:
// bare soil with the one source model, vegetation with the two source
// Priestley-Taylor model. Pixels outside the valid mask keep NaN fluxes and
// quality flag 255.
func EnergyFluxes(classes *PixelClasses, in EnergyInputs, cfg utils.EnergyBalanceConfig) (*utils.Product, error) {
	bs := newBandSet("energy fluxes")
	bs.grids["lai"] = classes.LAI
	lst := bs.get(in.LST, sharpenedLSTBand)
	vza := bs.fallback(in.Geometry, satZenithBands...)
	lad := bs.get(in.Structure, "veg_inclination_distribution")
	fc := bs.get(in.Structure, "veg_fractional_cover")
	hwRatio := bs.get(in.Structure, "veg_height_width_ratio")
	leafWidth := bs.get(in.Structure, "veg_leaf_width")
	height := bs.get(in.Structure, "veg_height")
	fg := bs.get(in.FracGreen, "frac_green")
	z0M := bs.get(in.Roughness, "roughness_length")
	d0 := bs.get(in.Roughness, "zero_plane_displacement")
	ta := bs.get(in.Meteo, "air_temperature")
	u := bs.get(in.Meteo, "wind_speed")
	ea := bs.get(in.Meteo, "vapour_pressure")
	p := bs.get(in.Meteo, "air_pressure")
	snC := bs.get(in.Shortwave, "net_shortwave_radiation_canopy")
	snS := bs.get(in.Shortwave, "net_shortwave_radiation_soil")
	ldn := bs.get(in.Longwave, "longwave_irradiance")
	if err := bs.check(); err != nil {
		return nil, err
	}

	lai := classes.LAI
	nanGrid := func() *utils.Grid { return utils.NewGridLike(lai) }
	out := &fluxGrids{
		flag:  utils.NewFilledGrid(lai.Width, lai.Height, lai.Geocoding, tseb.FlagNotProcessed),
		tS:    nanGrid(),
		tC:    nanGrid(),
		tAC:   nanGrid(),
		hS:    nanGrid(),
		hC:    nanGrid(),
		leS:   nanGrid(),
		leC:   nanGrid(),
		g:     nanGrid(),
		lnS:   nanGrid(),
		lnC:   nanGrid(),
		rS:    nanGrid(),
		rX:    nanGrid(),
		rA:    nanGrid(),
		uStar: nanGrid(),
		mol:   nanGrid(),
	}

	for _, i := range classes.ProcessedSoil {
		r := tseb.OSEB(tseb.SoilInput{
			Tr:     f64(lst.Data[i]),
			Ta:     f64(ta.Data[i]),
			U:      f64(u.Data[i]),
			Ea:     f64(ea.Data[i]),
			P:      f64(p.Data[i]),
			Sn:     f64(snS.Data[i]),
			Ldn:    f64(ldn.Data[i]),
			Emis:   cfg.SoilEmissivity,
			Z0M:    f64(z0M.Data[i]),
			D0:     f64(d0.Data[i]),
			Zu:     cfg.MeasurementHeight,
			Zt:     cfg.MeasurementHeight,
			GRatio: cfg.GroundHeatRatio,
		})
		out.flag.Data[i] = float32(r.Flag)
		out.tS.Data[i] = lst.Data[i]
		out.lnS.Data[i] = float32(r.Ln)
		out.leS.Data[i] = float32(r.LE)
		out.hS.Data[i] = float32(r.H)
		out.g.Data[i] = float32(r.G)
		out.rA.Data[i] = float32(r.RA)
		out.uStar.Data[i] = float32(r.UStar)
		out.mol.Data[i] = float32(r.L)
		out.lnC.Data[i] = 0
		out.leC.Data[i] = 0
		out.hC.Data[i] = 0
	}

	for _, i := range classes.ProcessedVegetated {
		green := f64(fg.Data[i])
		r := tseb.TSEBPT(tseb.CanopyInput{
			Tr:        f64(lst.Data[i]),
			VZA:       f64(vza.Data[i]),
			Ta:        f64(ta.Data[i]),
			U:         f64(u.Data[i]),
			Ea:        f64(ea.Data[i]),
			P:         f64(p.Data[i]),
			SnC:       f64(snC.Data[i]),
			SnS:       f64(snS.Data[i]),
			Ldn:       f64(ldn.Data[i]),
			LAI:       f64(lai.Data[i]),
			HC:        f64(height.Data[i]),
			EmisC:     cfg.GreenEmissivity*green + nonGreenEmissivity*(1-green),
			EmisS:     cfg.SoilEmissivity,
			Z0M:       f64(z0M.Data[i]),
			D0:        f64(d0.Data[i]),
			Zu:        cfg.MeasurementHeight,
			Zt:        cfg.MeasurementHeight,
			Fc:        f64(fc.Data[i]),
			Fg:        green,
			WC:        f64(hwRatio.Data[i]),
			LeafWidth: f64(leafWidth.Data[i]),
			Z0Soil:    cfg.SoilRoughness,
			AlphaPT:   cfg.AlphaPT,
			XLAD:      f64(lad.Data[i]),
			GRatio:    cfg.GroundHeatRatio,
		})
		out.flag.Data[i] = float32(r.Flag)
		out.tS.Data[i] = float32(r.TS)
		out.tC.Data[i] = float32(r.TC)
		out.tAC.Data[i] = float32(r.TAC)
		out.lnS.Data[i] = float32(r.LnS)
		out.lnC.Data[i] = float32(r.LnC)
		out.leC.Data[i] = float32(r.LEC)
		out.hC.Data[i] = float32(r.HC)
		out.leS.Data[i] = float32(r.LES)
		out.hS.Data[i] = float32(r.HS)
		out.g.Data[i] = float32(r.G)
		out.rS.Data[i] = float32(r.RS)
		out.rX.Data[i] = float32(r.RX)
		out.rA.Data[i] = float32(r.RA)
		out.uStar.Data[i] = float32(r.UStar)
		out.mol.Data[i] = float32(r.L)
	}

	le := nanGrid()
	h := nanGrid()
	rn := nanGrid()
	for i := range le.Data {
		le.Data[i] = out.leC.Data[i] + out.leS.Data[i]
		h.Data[i] = out.hC.Data[i] + out.hS.Data[i]
		rn.Data[i] = snC.Data[i] + snS.Data[i] + out.lnC.Data[i] + out.lnS.Data[i]
	}

	type band struct {
		name, desc, unit string
		g                *utils.Grid
	}
	bands := []band{
		{"sensible_heat_flux", "Sensible heat flux", "W/m^2", h},
		{latentHeatFluxBand, "Latent heat flux", "W/m^2", le},
		{"ground_heat_flux", "Ground heat flux", "W/m^2", out.g},
		{"net_radiation", "Net radiation", "W/m^2", rn},
		{"quality_flag", "Energy balance quality flag", "", out.flag},
	}
	if cfg.SaveComponentFlux {
		bands = append(bands,
			band{"sensible_heat_flux_canopy", "Canopy sensible heat flux", "W/m^2", out.hC},
			band{"sensible_heat_flux_soil", "Soil sensible heat flux", "W/m^2", out.hS},
			band{"latent_heat_flux_canopy", "Canopy latent heat flux", "W/m^2", out.leC},
			band{"latent_heat_flux_soil", "Soil latent heat flux", "W/m^2", out.leS},
			band{"net_longwave_radiation_canopy", "Canopy net longwave radiation", "W/m^2", out.lnC},
			band{"net_longwave_radiation_soil", "Soil net longwave radiation", "W/m^2", out.lnS},
		)
	}
	if cfg.SaveComponentTemp {
		bands = append(bands,
			band{"temperature_canopy", "Canopy temperature", "K", out.tC},
			band{"temperature_soil", "Soil temperature", "K", out.tS},
			band{"temperature_canopy_air", "Canopy air temperature", "K", out.tAC},
		)
	}
	if cfg.SaveAerodynamic {
		bands = append(bands,
			band{"resistance_surface", "Aerodynamic resistance to heat transport", "s/m", out.rA},
			band{"resistance_canopy", "Canopy boundary layer resistance", "s/m", out.rX},
			band{"resistance_soil", "Soil surface resistance", "s/m", out.rS},
			band{"friction_velocity", "Friction velocity", "m/s", out.uStar},
			band{"monin_obukhov_length", "Monin-Obukhov length", "m", out.mol},
		)
	}

	prod := utils.NewProductLike("turbulentFluxes", lai)
	for _, b := range bands {
		if err := prod.AddBand(b.name, b.desc, b.unit, b.g); err != nil {
			return nil, fmt.Errorf("energy fluxes: %w", err)
		}
	}
	return prod, nil
}

// CountFlags tallies a quality flag band.
func CountFlags(flags *utils.Grid) map[int]int {
	counts := make(map[int]int)
	for _, v := range flags.Data {
		if v != v {
			continue
		}
		counts[int(v)]++
	}
	return counts
}
