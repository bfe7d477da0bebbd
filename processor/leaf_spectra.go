package processor

import (
	"math"

	"github.com/nci/senet/utils"
)

const (
	maxChlorophyll  = 140.0
	maxWaterContent = 0.1
)

// waterCloud is the empirical model a + b(1 - exp(c x)).
type waterCloud struct {
	a, b, c float64
}

func (w waterCloud) eval(x float64) float64 {
	return w.a + w.b*(1-math.Exp(w.c*x))
}

var (
	rhoVIS = waterCloud{0.14096573, -0.09648072, -0.06328343}
	tauVIS = waterCloud{0.08543707, -0.08072709, -0.06562554}
	rhoNIR = waterCloud{0.38976106, -0.17260689, -65.7445699}
	tauNIR = waterCloud{0.36187620, -0.18374560, -65.3125878}
)

// LeafOptics are the leaf reflectance and transmittance of one pixel.
type LeafOptics struct {
	RhoVIS, TauVIS float64
	RhoNIR, TauNIR float64
}

// CalcLeafOptics maps chlorophyll (ug cm-2) and water content (g cm-2) to
// leaf spectra. Inputs are clamped to their physical range and outputs to
// [0, 1]. legacyNIR reports the clamped NIR reflectance as transmittance.
func CalcLeafOptics(cab, cw float64, legacyNIR bool) LeafOptics {
	cab = clamp(cab, 0, maxChlorophyll)
	cw = clamp(cw, 0, maxWaterContent)

	out := LeafOptics{
		RhoVIS: clamp(rhoVIS.eval(cab), 0, 1),
		TauVIS: clamp(tauVIS.eval(cab), 0, 1),
		RhoNIR: clamp(rhoNIR.eval(cw), 0, 1),
	}
	if legacyNIR {
		out.TauNIR = out.RhoNIR
	} else {
		out.TauNIR = clamp(tauNIR.eval(cw), 0, 1)
	}
	return out
}

// LeafSpectra estimates leaf reflectance and transmittance in the visible
// and near infrared from the lai_cab and lai_cw bands of the biophysical
// product.
func LeafSpectra(biophysical *utils.Product, cfg utils.LeafSpectraConfig) (*utils.Product, error) {
	bs := newBandSet("leaf spectra")
	cab := bs.get(biophysical, "lai_cab")
	cw := bs.get(biophysical, "lai_cw")
	if err := bs.check(); err != nil {
		return nil, err
	}

	reflVIS := utils.NewGridLike(cab)
	reflNIR := utils.NewGridLike(cab)
	transVIS := utils.NewGridLike(cab)
	transNIR := utils.NewGridLike(cab)
	for i := range cab.Data {
		lo := CalcLeafOptics(f64(cab.Data[i]), f64(cw.Data[i]), cfg.LegacyNIRTransmittance)
		reflVIS.Data[i] = float32(lo.RhoVIS)
		reflNIR.Data[i] = float32(lo.RhoNIR)
		transVIS.Data[i] = float32(lo.TauVIS)
		transNIR.Data[i] = float32(lo.TauNIR)
	}

	out := utils.NewProductLike("leafSpectra", cab)
	for _, b := range []struct {
		name, desc string
		g          *utils.Grid
	}{
		{"refl_vis_c", "Leaf reflectance in the visible", reflVIS},
		{"refl_nir_c", "Leaf reflectance in the near infrared", reflNIR},
		{"trans_vis_c", "Leaf transmittance in the visible", transVIS},
		{"trans_nir_c", "Leaf transmittance in the near infrared", transNIR},
	} {
		if err := out.AddBand(b.name, b.desc, "", b.g); err != nil {
			return nil, err
		}
	}
	return out, nil
}
