package tseb

import "math"

const (
	resistanceMin = 1e-3
	resistanceMax = 1e6
)

// CalcZ0H returns the roughness length for heat from the one for momentum.
func CalcZ0H(z0M, kB float64) float64 {
	return z0M / math.Exp(kB)
}

// CalcAGoudriaan returns the Goudriaan (1977) wind attenuation coefficient.
func CalcAGoudriaan(hC, lai, leafWidth float64) float64 {
	return 0.28 * math.Pow(lai, 2.0/3.0) * math.Pow(hC, 1.0/3.0) * math.Pow(leafWidth, -1.0/3.0)
}

// CalcUGoudriaan returns the wind speed at height z inside a canopy whose
// top wind speed is uC.
func CalcUGoudriaan(uC, hC, lai, leafWidth, z float64) float64 {
	a := CalcAGoudriaan(hC, lai, leafWidth)
	return uC * math.Exp(-a*(1-z/hC))
}

// CalcRSKustas returns the soil boundary layer resistance (s m-1) of
// Kustas and Norman (1999). deltaT is soil minus canopy temperature.
func CalcRSKustas(uS, deltaT float64) float64 {
	if deltaT < 0 {
		deltaT = 0
	}
	return 1 / (0.0025*math.Pow(deltaT, 1.0/3.0) + 0.012*uS)
}

// CalcRxNorman returns the canopy boundary layer resistance (s m-1) of
// Norman et al. (1995).
func CalcRxNorman(lai, leafWidth, uDZM float64) float64 {
	return 90 / lai * math.Sqrt(leafWidth/uDZM)
}

func clampResistance(r float64) float64 {
	if math.IsNaN(r) {
		return r
	}
	return math.Max(resistanceMin, math.Min(resistanceMax, r))
}
