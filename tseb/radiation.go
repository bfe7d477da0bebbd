package tseb

import "math"

const solarConstant = 1320.0

// CalcKbeCampbell returns the beam extinction coefficient for an
// ellipsoidal leaf angle distribution (Campbell and Norman 1998, 15.4).
// theta is in radians.
func CalcKbeCampbell(theta, xLAD float64) float64 {
	tan := math.Tan(theta)
	return math.Sqrt(xLAD*xLAD+tan*tan) / (xLAD + 1.774*math.Pow(xLAD+1.182, -0.733))
}

// calcTaud integrates the hemispherical diffuse transmittance of a canopy.
func calcTaud(xLAD, lai float64) float64 {
	taud := 0.0
	step := rad(5)
	for angle := 0; angle < 90; angle += 5 {
		a := rad(float64(angle))
		akd := CalcKbeCampbell(a, xLAD)
		taud += math.Exp(-akd*lai) * math.Cos(a) * math.Sin(a) * step
	}
	return 2 * taud
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Spectra holds the canopy albedo and transmittance for beam and diffuse
// radiation in one waveband.
type Spectra struct {
	AlbedoBeam      float64
	AlbedoDiffuse   float64
	TransmitBeam    float64
	TransmitDiffuse float64
}

// CalcSpectraCampbell computes the canopy spectra of a single waveband
// (Campbell and Norman 1998, chapter 15). sza is in degrees; laiEff is the
// clumping corrected LAI used for the beam component.
func CalcSpectraCampbell(lai, sza, rhoLeaf, tauLeaf, rhoSoil, xLAD, laiEff float64) Spectra {
	ameanSqrt := math.Sqrt(1 - rhoLeaf - tauLeaf)

	taud := calcTaud(xLAD, lai)
	akd := -math.Log(taud) / lai
	rcpy := (1 - ameanSqrt) / (1 + ameanSqrt)
	rdcpy := 2 * akd * rcpy / (akd + 1)

	expfac := ameanSqrt * akd * lai
	negExp, dNegExp := math.Exp(-expfac), math.Exp(-2*expfac)
	taudt := (rdcpy*rdcpy - 1) * negExp / ((rdcpy*rhoSoil - 1) + rdcpy*(rdcpy-rhoSoil)*dNegExp)
	fact := (rdcpy - rhoSoil) / (rdcpy*rhoSoil - 1) * dNegExp
	albd := (rdcpy + fact) / (1 + rdcpy*fact)

	akb := CalcKbeCampbell(rad(sza), xLAD)
	rbcpy := 2 * akb * rcpy / (akb + 1)
	expfac = ameanSqrt * akb * laiEff
	negExp, dNegExp = math.Exp(-expfac), math.Exp(-2*expfac)
	taubt := (rbcpy*rbcpy - 1) * negExp / ((rbcpy*rhoSoil - 1) + rbcpy*(rbcpy-rhoSoil)*dNegExp)
	fact = (rbcpy - rhoSoil) / (rbcpy*rhoSoil - 1) * dNegExp
	albb := (rbcpy + fact) / (1 + rbcpy*fact)

	// A bare canopy (LAI 0) degenerates to the soil.
	if math.IsNaN(taubt) {
		taubt = 1
	}
	if math.IsNaN(taudt) {
		taudt = 1
	}
	if math.IsNaN(albb) {
		albb = rhoSoil
	}
	if math.IsNaN(albd) {
		albd = rhoSoil
	}
	return Spectra{AlbedoBeam: albb, AlbedoDiffuse: albd, TransmitBeam: taubt, TransmitDiffuse: taudt}
}

// Leaf holds leaf reflectance and transmittance in the VIS and NIR.
type Leaf struct {
	RhoVIS, TauVIS float64
	RhoNIR, TauNIR float64
}

// CalcSnCampbell partitions incoming beam and diffuse shortwave radiation
// into the net shortwave absorbed by canopy and soil.
func CalcSnCampbell(lai, sza, sdnDir, sdnDif, fvis, fnir float64, leaf Leaf, soilVIS, soilNIR, xLAD, laiEff float64) (float64, float64) {
	vis := CalcSpectraCampbell(lai, sza, leaf.RhoVIS, leaf.TauVIS, soilVIS, xLAD, laiEff)
	nir := CalcSpectraCampbell(lai, sza, leaf.RhoNIR, leaf.TauNIR, soilNIR, xLAD, laiEff)

	snC := (1-vis.TransmitBeam)*(1-vis.AlbedoBeam)*sdnDir*fvis +
		(1-nir.TransmitBeam)*(1-nir.AlbedoBeam)*sdnDir*fnir +
		(1-vis.TransmitDiffuse)*(1-vis.AlbedoDiffuse)*sdnDif*fvis +
		(1-nir.TransmitDiffuse)*(1-nir.AlbedoDiffuse)*sdnDif*fnir

	snS := vis.TransmitBeam*(1-soilVIS)*sdnDir*fvis +
		nir.TransmitBeam*(1-soilNIR)*sdnDir*fnir +
		vis.TransmitDiffuse*(1-soilVIS)*sdnDif*fvis +
		nir.TransmitDiffuse*(1-soilNIR)*sdnDif*fnir
	return snC, snS
}

// PotentialIrradiance is the clear-sky irradiance of Weiss and Norman (1985).
type PotentialIrradiance struct {
	DirVIS, DifVIS float64
	DirNIR, DifNIR float64
}

// CalcPotentialIrradianceWeiss returns the potential beam and diffuse
// irradiance in the VIS and NIR for a zenith angle (degrees) and pressure (mb).
func CalcPotentialIrradianceWeiss(sza, press float64) PotentialIrradiance {
	var out PotentialIrradiance
	if !(sza < 90) {
		return out
	}
	const fnirIni = 0.5455
	coszen := math.Cos(rad(sza))
	airmas := 1 / coszen
	scoVIS := solarConstant * (1 - fnirIni)
	scoNIR := solarConstant * fnirIni

	out.DirVIS = math.Max(0, scoVIS*math.Exp(-0.185*(press/1313.25)*airmas)*coszen)
	out.DifVIS = math.Max(0, 0.4*(scoVIS*coszen-out.DirVIS))

	lc := math.Log10(coszen)
	w := solarConstant * math.Pow(10, -1.195+0.4459*lc-0.0345*lc*lc)
	out.DirNIR = math.Max(0, (scoNIR*math.Exp(-0.06*(press/1313.25)*airmas)-w)*coszen)
	out.DifNIR = math.Max(0, 0.6*(scoNIR*coszen-out.DirNIR-w))
	return out
}

// DiffuseRatio describes how global irradiance splits between wavebands
// and between beam and diffuse radiation.
type DiffuseRatio struct {
	DifVIS, DifNIR float64
	FVIS, FNIR     float64
}

// Skyl returns the overall diffuse fraction.
func (d DiffuseRatio) Skyl() float64 {
	return d.DifVIS*d.FVIS + d.DifNIR*d.FNIR
}

// CalcDifuseRatio estimates the diffuse fractions and the VIS/NIR partition
// of a measured global irradiance sdn (W m-2).
func CalcDifuseRatio(sdn, sza, press float64) DiffuseRatio {
	pot := CalcPotentialIrradianceWeiss(sza, press)
	potVIS := pot.DirVIS + pot.DifVIS
	if potVIS <= 0 {
		potVIS = 1e-6
	}
	potNIR := pot.DirNIR + pot.DifNIR
	if potNIR <= 0 {
		potNIR = 1e-6
	}
	fclear := math.Min(1, sdn/(potVIS+potNIR))

	fvis := clip(potVIS/(potVIS+potNIR), 0, 1)
	fnir := 1 - fvis

	ratiox := math.Min(fclear, 0.9)
	dirVIS := pot.DirVIS / potVIS * (1 - math.Pow((0.9-ratiox)/0.7, 0.6667))
	ratiox = math.Min(fclear, 0.88)
	dirNIR := pot.DirNIR / potNIR * (1 - math.Pow((0.88-ratiox)/0.68, 0.6667))

	return DiffuseRatio{
		DifVIS: 1 - clip(dirVIS, 0, 1),
		DifNIR: 1 - clip(dirNIR, 0, 1),
		FVIS:   fvis,
		FNIR:   fnir,
	}
}

// clip preserves NaN.
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CalcEmissAtm returns the Brutsaert (1975) clear-sky atmospheric emissivity.
func CalcEmissAtm(ea, tK float64) float64 {
	return 1.24 * math.Pow(ea/tK, 1.0/7.0)
}

// CalcLongwaveIrradiance estimates the downwelling longwave irradiance at
// the canopy top hC from air temperature measured at height zT.
func CalcLongwaveIrradiance(ea, tK, p, zT, hC float64) float64 {
	lapse := CalcLapseRateMoist(tK, ea, p)
	tSurface := tK - lapse*(hC-zT)
	return CalcEmissAtm(ea, tSurface) * CalcStephanBoltzmann(tSurface)
}

// CalcLnKustas returns the net longwave radiation of canopy and soil
// (Kustas and Norman 1999).
func CalcLnKustas(tC, tS, ldn, lai, emisVeg, emisSoil, xLAD float64) (float64, float64) {
	taudl := CalcSpectraCampbell(lai, 0, 1-emisVeg, 0, 1-emisSoil, xLAD, lai).TransmitDiffuse

	lC := emisVeg * CalcStephanBoltzmann(tC)
	lS := emisSoil * CalcStephanBoltzmann(tS)

	lnS := taudl*ldn + (1-taudl)*lC - lS
	lnC := (1 - taudl) * (ldn + lS - 2*lC)
	return lnC, lnS
}

// CalcFThetaCampbell returns the fraction of radiation intercepted by a
// canopy of local LAI F seen at theta degrees.
func CalcFThetaCampbell(theta, F, wC, omega0, xLAD float64) float64 {
	omegaTheta := omega0 / (omega0 + (1-omega0)*math.Exp(-2.2*math.Pow(rad(theta), 3.8-0.46*wC)))
	kbe := CalcKbeCampbell(rad(theta), xLAD)
	return 1 - math.Exp(-kbe*omegaTheta*F)
}
