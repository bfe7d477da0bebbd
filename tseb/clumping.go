package tseb

import "math"

// CalcOmega0Kustas returns the nadir clumping index of a canopy with
// fractional cover fc (Kustas and Norman 1999). When isLAIEff is set, lai
// is the field-average LAI and is converted to the local LAI first.
func CalcOmega0Kustas(lai, fc, xLAD float64, isLAIEff bool) float64 {
	kbe := CalcKbeCampbell(0, xLAD)
	F := lai
	if isLAIEff {
		F = lai / fc
	}
	trans := fc*math.Exp(-kbe*F) + (1 - fc)
	if trans <= 0 {
		trans = 1e-36
	}
	return -math.Log(trans) / (F * kbe)
}

// CalcOmegaKustas returns the clumping index at zenith theta (degrees)
// for a canopy with height to width ratio wC.
func CalcOmegaKustas(omega0, theta, wC float64) float64 {
	wC = 1 / wC
	return omega0 / (omega0 + (1-omega0)*math.Exp(-2.2*math.Pow(rad(theta), 3.8-0.46*wC)))
}
