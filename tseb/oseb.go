package tseb

import "math"

// MaxIterations bounds the Monin-Obukhov stability loop.
const MaxIterations = 15

// SoilInput describes one bare soil pixel.
type SoilInput struct {
	Tr     float64 // radiometric surface temperature (K)
	Ta     float64 // air temperature (K)
	U      float64 // wind speed (m s-1)
	Ea     float64 // vapour pressure (mb)
	P      float64 // pressure (mb)
	Sn     float64 // net shortwave radiation (W m-2)
	Ldn    float64 // downwelling longwave irradiance (W m-2)
	Emis   float64
	Z0M    float64
	D0     float64
	Zu     float64
	Zt     float64
	GRatio float64 // ground heat flux as a fraction of net radiation
}

// SoilOutput holds the fluxes of a bare soil pixel (W m-2).
type SoilOutput struct {
	Flag       int
	Ln         float64
	LE         float64
	H          float64
	G          float64
	RA         float64
	UStar      float64
	L          float64
	Iterations int
}

// OSEB solves the one-source energy balance of a bare soil pixel. H comes
// from the surface-air temperature gradient and LE is the residual; a
// negative residual sets LE to zero and closes the balance through H.
func OSEB(in SoilInput) SoilOutput {
	out := SoilOutput{Flag: FlagAllFluxes}

	rho := CalcRho(in.P, in.Ea, in.Ta)
	cp := CalcCp(in.P, in.Ea)
	z0H := CalcZ0H(in.Z0M, 0)

	out.Ln = in.Emis*in.Ldn - in.Emis*CalcStephanBoltzmann(in.Tr)
	rn := in.Sn + out.Ln
	out.G = in.GRatio * rn

	L := math.Inf(1)
	ustar := math.Max(UFrictionMin, CalcUStar(in.U, in.Zu, L, in.D0, in.Z0M))
	conv := newMOConvergence(L)
	converged := false

	for it := 1; it <= MaxIterations; it++ {
		out.Iterations = it
		out.Flag = FlagAllFluxes

		out.RA = clampResistance(CalcRA(in.Zt, ustar, L, in.D0, z0H))
		out.H = rho * cp * (in.Tr - in.Ta) / out.RA
		out.LE = rn - out.G - out.H
		if out.LE < 0 {
			out.Flag = FlagZeroLE
			out.LE = 0
			out.H = rn - out.G
		}

		L = CalcL(ustar, in.Ta, rho, cp, out.H, out.LE)
		ustar = math.Max(UFrictionMin, CalcUStar(in.U, in.Zu, L, in.D0, in.Z0M))
		if conv.update(L) {
			converged = true
			break
		}
	}

	out.UStar = ustar
	out.L = L
	if !converged {
		out.Flag = FlagNotConverged
	}
	return out
}
