package processor

import (
	"fmt"
	"math"

	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

const (
	FracGreenMaxIterations = 50
	fracGreenTolerance     = 0.02
	// Below these LAI and FAPAR the biophysical retrieval is unreliable and
	// the pixel is treated as bare, fully green.
	fracGreenMinLAI   = 0.2
	fracGreenMinFAPAR = 0.1
)

// CalcFracGreen solves fg = FAPAR / F_theta(sza, LAI/fg) by fixed point
// iteration clamped to [minFracGreen, 1]. It stops after
// FracGreenMaxIterations without reporting non-convergence and returns the
// iterations used.
func CalcFracGreen(lai, fapar, sza, minFracGreen float64) (float64, int) {
	fg := 1.0
	if lai <= fracGreenMinLAI || fapar <= fracGreenMinFAPAR {
		return fg, 0
	}
	it := 0
	for it < FracGreenMaxIterations {
		it++
		prev := fg
		fipar := tseb.CalcFThetaCampbell(sza, lai/fg, 1, 1, 1)
		fg = clamp(fapar/fipar, minFracGreen, 1)
		if math.IsNaN(fg) || math.Abs(fg-prev) <= fracGreenTolerance {
			break
		}
	}
	return fg, it
}

// FractionGreen estimates the fraction of vegetation that is green from
// the lai and fapar bands and the sun zenith angle (degrees).
func FractionGreen(sunZenith, biophysical *utils.Product, minFracGreen float64) (*utils.Product, error) {
	if !(minFracGreen >= 0.01 && minFracGreen <= 1) {
		return nil, fmt.Errorf("min_frac_green %v outside [0.01, 1]: %w", minFracGreen, utils.ErrConfig)
	}

	bs := newBandSet("fraction green")
	lai := bs.get(biophysical, "lai")
	fapar := bs.get(biophysical, "fapar")
	sza := bs.get(sunZenith, "sun_zenith")
	if err := bs.check(); err != nil {
		return nil, err
	}

	fg := utils.NewGridLike(lai)
	for i := range fg.Data {
		v, _ := CalcFracGreen(f64(lai.Data[i]), f64(fapar.Data[i]), f64(sza.Data[i]), minFracGreen)
		fg.Data[i] = float32(v)
	}

	out := utils.NewProductLike("fracGreen", lai)
	if err := out.AddBand("frac_green", "Fraction of green vegetation", "", fg); err != nil {
		return nil, err
	}
	return out, nil
}
