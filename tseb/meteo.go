// Package tseb implements the one-source and two-source (Priestley-Taylor)
// surface energy balance models with their meteorological, radiative and
// aerodynamic helpers. Pressures are in mb, temperatures in Kelvin.
package tseb

import "math"

const (
	// von Karman's constant
	Karman = 0.41
	// acceleration of gravity (m s-2)
	Gravity = 9.8
	// Stefan Boltzmann constant (W m-2 K-4)
	Sigma = 5.670373e-8

	cpd     = 1003.5
	cpv     = 1865.0
	epsilon = 0.622
	rd      = 287.04
)

// CalcLambda returns the latent heat of vaporisation (J kg-1).
func CalcLambda(tK float64) float64 {
	return 1e6 * (2.501 - 2.361e-3*(tK-273.15))
}

// CalcCp returns the heat capacity of moist air (J kg-1 K-1).
func CalcCp(p, ea float64) float64 {
	q := epsilon * ea / (p + (epsilon-1)*ea)
	return (1-q)*cpd + q*cpv
}

// CalcRho returns the density of moist air (kg m-3).
func CalcRho(p, ea, tK float64) float64 {
	return p * 100 / (rd * tK) * (1 - (1-epsilon)*ea/p)
}

// CalcPsicr returns the psychrometric constant (mb K-1).
func CalcPsicr(cp, p, lambda float64) float64 {
	return cp * p / (epsilon * lambda)
}

// CalcVaporPressure returns the saturation water vapour pressure (mb).
func CalcVaporPressure(tK float64) float64 {
	tC := tK - 273.15
	return 6.112 * math.Exp(17.67*tC/(tC+243.5))
}

// CalcDeltaVaporPressure returns the slope of the saturation vapour
// pressure curve (mb K-1).
func CalcDeltaVaporPressure(tK float64) float64 {
	tC := tK - 273.15
	s := 4098.0 * (0.6108 * math.Exp(17.27*tC/(tC+237.3))) / math.Pow(tC+237.3, 2)
	return s * 10
}

// CalcMixingRatio returns the water vapour mixing ratio (kg kg-1).
func CalcMixingRatio(ea, p float64) float64 {
	return epsilon * ea / (p - ea)
}

// CalcLapseRateMoist returns the moist-adiabatic lapse rate (K m-1).
func CalcLapseRateMoist(tK, ea, p float64) float64 {
	r := CalcMixingRatio(ea, p)
	lambda := CalcLambda(tK)
	cp := CalcCp(p, ea)
	return Gravity * (rd*tK*tK + lambda*r*tK) / (cp*rd*tK*tK + lambda*lambda*r*epsilon)
}

// CalcStephanBoltzmann returns the blackbody emittance of a surface (W m-2).
func CalcStephanBoltzmann(tK float64) float64 {
	return Sigma * math.Pow(tK, 4)
}

// FluxToEvaporation converts a latent heat flux (W m-2) sustained over
// hours into an evaporated water depth (mm).
func FluxToEvaporation(flux, tK, hours float64) float64 {
	return flux * 3600 * hours / CalcLambda(tK)
}
