package tseb

import "math"

// Minimum friction velocity (m s-1) used to keep the iterations stable.
const UFrictionMin = 0.01

// CalcPsiM returns the Monin-Obukhov stability correction for momentum.
// Unstable: Businger (1971) / Paulson (1970); stable: Beljaars and
// Holtslag (1991).
func CalcPsiM(zoL float64) float64 {
	if zoL >= 0 {
		const a, b = 6.1, 2.5
		return -a * math.Log(zoL+math.Pow(1+math.Pow(zoL, b), 1/b))
	}
	x := math.Pow(1-16*zoL, 0.25)
	return math.Log((1+x*x)/2) + 2*math.Log((1+x)/2) - 2*math.Atan(x) + math.Pi/2
}

// CalcPsiH returns the Monin-Obukhov stability correction for heat.
func CalcPsiH(zoL float64) float64 {
	if zoL >= 0 {
		const c, d = 5.3, 1.1
		return -c * math.Log(zoL+math.Pow(1+math.Pow(zoL, d), 1/d))
	}
	x := math.Pow(1-16*zoL, 0.25)
	return 2 * math.Log((1+x*x)/2)
}

// CalcL returns the Monin-Obukhov length (m). Neutral conditions give +Inf.
func CalcL(ustar, tK, rho, cp, H, LE float64) float64 {
	e := LE / CalcLambda(tK)
	hv := H + 0.61*tK*cp*e
	if hv == 0 {
		return math.Inf(1)
	}
	return -math.Pow(ustar, 3) / (Karman * Gravity / tK * (hv / (rho * cp)))
}

func stabilityLength(L float64) float64 {
	if L == 0 {
		return 1e-36
	}
	return L
}

// CalcUStar returns the friction velocity (m s-1).
func CalcUStar(u, zU, L, d0, z0M float64) float64 {
	L = stabilityLength(L)
	psiM := CalcPsiM((zU - d0) / L)
	psiM0 := CalcPsiM(z0M / L)
	return u * Karman / (math.Log((zU-d0)/z0M) - psiM + psiM0)
}

// CalcRA returns the aerodynamic resistance to heat transport (s m-1).
func CalcRA(zT, ustar, L, d0, z0H float64) float64 {
	if ustar == 0 {
		return math.Inf(1)
	}
	L = stabilityLength(L)
	psiH := CalcPsiH((zT - d0) / L)
	psiH0 := CalcPsiH(z0H / L)
	return (math.Log((zT-d0)/z0H) - psiH + psiH0) / (Karman * ustar)
}

// CalcUCStar returns the wind speed at the canopy top (m s-1).
func CalcUCStar(ustar, hC, d0, z0M, L float64) float64 {
	psiM := CalcPsiM((hC - d0) / L)
	psiM0 := CalcPsiM(z0M / L)
	return ustar * (math.Log((hC-d0)/z0M) - psiM + psiM0) / Karman
}

// moConvergence tracks the Monin-Obukhov length across iterations and
// reports convergence once the relative change against any of the last
// three values drops below threshold, which also catches oscillation.
type moConvergence struct {
	hist      [3]float64
	n         int
	threshold float64
}

func newMOConvergence(L float64) *moConvergence {
	c := &moConvergence{threshold: 0.001}
	c.push(L)
	return c
}

func (c *moConvergence) push(L float64) {
	copy(c.hist[1:], c.hist[:2])
	c.hist[0] = L
	if c.n < len(c.hist) {
		c.n++
	}
}

func (c *moConvergence) update(L float64) bool {
	converged := false
	for i := 0; i < c.n; i++ {
		if relativeDiff(L, c.hist[i]) < c.threshold {
			converged = true
			break
		}
	}
	c.push(L)
	return converged
}

func relativeDiff(a, b float64) float64 {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		if a == b {
			return 0
		}
		return math.Inf(1)
	}
	if b == 0 {
		return math.Abs(a - b)
	}
	return math.Abs((a - b) / b)
}
