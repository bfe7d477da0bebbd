package tseb

import "math"

// CanopyInput describes one vegetated pixel.
type CanopyInput struct {
	Tr        float64 // radiometric surface temperature (K)
	VZA       float64 // view zenith angle (degrees)
	Ta        float64 // air temperature (K)
	U         float64 // wind speed (m s-1)
	Ea        float64 // vapour pressure (mb)
	P         float64 // pressure (mb)
	SnC       float64 // canopy net shortwave radiation (W m-2)
	SnS       float64 // soil net shortwave radiation (W m-2)
	Ldn       float64 // downwelling longwave irradiance (W m-2)
	LAI       float64
	HC        float64 // canopy height (m)
	EmisC     float64
	EmisS     float64
	Z0M       float64
	D0        float64
	Zu        float64
	Zt        float64
	Fc        float64 // fractional cover
	Fg        float64 // green fraction
	WC        float64 // canopy height to width ratio
	LeafWidth float64
	Z0Soil    float64
	AlphaPT   float64
	XLAD      float64
	GRatio    float64
}

// CanopyOutput holds the component temperatures (K), fluxes (W m-2) and
// aerodynamic state of a vegetated pixel.
type CanopyOutput struct {
	Flag       int
	TS         float64
	TC         float64
	TAC        float64
	LnS        float64
	LnC        float64
	LEC        float64
	HC         float64
	LES        float64
	HS         float64
	G          float64
	RS         float64
	RX         float64
	RA         float64
	UStar      float64
	L          float64
	Iterations int
}

// CalcTS returns the soil temperature that, combined with the canopy
// temperature tC through the canopy view fraction fTheta, yields the
// radiometric temperature tR. ok is false when no such temperature exists.
func CalcTS(tR, tC, fTheta float64) (float64, bool) {
	tmp := math.Pow(tR, 4) - fTheta*math.Pow(tC, 4)
	if tmp < 0 {
		return math.NaN(), false
	}
	return math.Pow(tmp/(1-fTheta), 0.25), true
}

// calcTCSeries solves the canopy temperature of the series resistance
// network: the linear approximation of Norman et al. (1995) A.7 refined by
// the fourth-power correction of A.11 and A.12.
func calcTCSeries(tR, tA, rA, rX, rS, fTheta, hC, rho, cp float64) float64 {
	hTerm := hC * rX / (rho * cp)
	tCLin := (tA/rA + tR/(rS*(1-fTheta)) + hTerm*(1/rA+1/rS+1/rX)) /
		(1/rA + 1/rS + fTheta/(rS*(1-fTheta)))

	tD := tCLin*(1+rS/rA) - hTerm*(1+rS/rX+rS/rA) - tA*rS/rA

	deltaTC := (math.Pow(tR, 4) - fTheta*math.Pow(tCLin, 4) - (1-fTheta)*math.Pow(tD, 4)) /
		(4*(1-fTheta)*math.Pow(tD, 3)*(1+rS/rA) + 4*fTheta*math.Pow(tCLin, 3))
	return tCLin + deltaTC
}

// calcHCPT returns the canopy sensible heat flux from the Priestley-Taylor
// estimate of canopy transpiration.
func calcHCPT(deltaRnC, fg, tA, p, cp, alpha float64) float64 {
	s := CalcDeltaVaporPressure(tA)
	gamma := CalcPsicr(cp, p, CalcLambda(tA))
	return deltaRnC * (1 - alpha*fg*s/(s+gamma))
}

// calcTAC returns the temperature of the air within the canopy.
func calcTAC(tA, tS, tC, rA, rS, rX float64) float64 {
	return (tA/rA + tS/rS + tC/rX) / (1/rA + 1/rS + 1/rX)
}

// TSEBPT solves the two-source Priestley-Taylor energy balance of a
// vegetated pixel (Norman et al. 1995, Kustas and Norman 1999). Canopy
// transpiration starts at the potential rate; whenever the soil latent
// heat flux comes out negative the Priestley-Taylor coefficient is reduced
// in steps of 0.1 until the soil stops condensing, down to zero. The outer
// loop iterates the Monin-Obukhov length. Every output is populated even
// when the loop does not converge.
func TSEBPT(in CanopyInput) CanopyOutput {
	out := CanopyOutput{Flag: FlagAllFluxes}

	rho := CalcRho(in.P, in.Ea, in.Ta)
	cp := CalcCp(in.P, in.Ea)
	z0H := CalcZ0H(in.Z0M, 0)

	omega0 := CalcOmega0Kustas(in.LAI, in.Fc, in.XLAD, true)
	F := in.LAI / in.Fc
	fTheta := CalcFThetaCampbell(in.VZA, F, in.WC, omega0, in.XLAD)

	L := math.Inf(1)
	ustar := math.Max(UFrictionMin, CalcUStar(in.U, in.Zu, L, in.D0, in.Z0M))

	out.TC = math.Min(in.Tr, in.Ta)
	out.TS, _ = CalcTS(in.Tr, out.TC, fTheta)

	conv := newMOConvergence(L)
	converged := false

	for it := 1; it <= MaxIterations; it++ {
		out.Iterations = it

		out.LES = -1
		for step := 0; out.LES < 0; step++ {
			alpha := math.Max(0, in.AlphaPT-0.1*float64(step))
			flag := FlagAllFluxes
			switch {
			case alpha == 0:
				flag = FlagZeroLE
			case step > 0:
				flag = FlagZeroLESoil
			}

			out.RA, out.RX, out.RS = calcResistances(in, ustar, L, z0H, F, out.TS-out.TC)

			out.LnC, out.LnS = CalcLnKustas(out.TC, out.TS, in.Ldn, in.LAI, in.EmisC, in.EmisS, in.XLAD)
			deltaRnC := in.SnC + out.LnC
			rnS := in.SnS + out.LnS

			out.HC = calcHCPT(deltaRnC, in.Fg, in.Ta, in.P, cp, alpha)
			out.TC = calcTCSeries(in.Tr, in.Ta, out.RA, out.RX, out.RS, fTheta, out.HC, rho, cp)

			var ok bool
			out.TS, ok = CalcTS(in.Tr, out.TC, fTheta)

			out.TAC = calcTAC(in.Ta, out.TS, out.TC, out.RA, out.RS, out.RX)
			out.HS = rho * cp * (out.TS - out.TAC) / out.RS
			out.G = in.GRatio * rnS
			out.LES = rnS - out.G - out.HS
			out.LEC = deltaRnC - out.HC

			if out.LEC < 0 {
				out.HC += out.LEC
				out.LEC = 0
				if flag == FlagAllFluxes || flag == FlagZeroLESoil {
					flag = FlagZeroLECanopy
				}
			}
			if alpha == 0 {
				// Nothing evaporates, the soil balance closes through H.
				out.HS = math.Min(out.HS, rnS-out.G)
				out.G = math.Max(out.G, rnS-out.HS)
				out.LES = 0
			}
			if !ok {
				flag = FlagInvalidTemperature
			}
			out.Flag = flag
			if !ok {
				break
			}
		}

		if out.Flag == FlagInvalidTemperature {
			break
		}

		L = CalcL(ustar, in.Ta, rho, cp, out.HC+out.HS, out.LEC+out.LES)
		ustar = math.Max(UFrictionMin, CalcUStar(in.U, in.Zu, L, in.D0, in.Z0M))
		if conv.update(L) {
			converged = true
			break
		}
	}

	out.UStar = ustar
	out.L = L
	if out.Flag == FlagInvalidTemperature {
		out.TS, out.TAC = math.NaN(), math.NaN()
		out.LEC, out.HC, out.LES, out.HS, out.G = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return out
	}
	if !converged {
		out.Flag = FlagNotConverged
	}
	return out
}

func calcResistances(in CanopyInput, ustar, L, z0H, F, deltaT float64) (float64, float64, float64) {
	rA := CalcRA(in.Zt, ustar, L, in.D0, z0H)
	uC := CalcUCStar(ustar, in.HC, in.D0, in.Z0M, L)
	uS := CalcUGoudriaan(uC, in.HC, F, in.LeafWidth, in.Z0Soil)
	uDZM := CalcUGoudriaan(uC, in.HC, F, in.LeafWidth, in.D0+in.Z0M)
	rX := CalcRxNorman(F, in.LeafWidth, uDZM)
	rS := CalcRSKustas(uS, deltaT)
	return clampResistance(rA), clampResistance(rX), clampResistance(rS)
}
