package processor

import (
	"fmt"

	"github.com/nci/senet/tseb"
	"github.com/nci/senet/utils"
)

// AerodynamicRoughness estimates the roughness length for momentum and the
// zero plane displacement height. Bare soil gets soilRoughness and no
// displacement; vegetated pixels derive both from canopy structure. Pixels
// in neither class stay NaN.
func AerodynamicRoughness(classes *PixelClasses, params *utils.Product, soilRoughness float64) (*utils.Product, error) {
	if !(soilRoughness > 0 && soilRoughness <= 1) {
		return nil, fmt.Errorf("soil roughness %v outside (0, 1]: %w", soilRoughness, utils.ErrConfig)
	}

	bs := newBandSet("aerodynamic roughness")
	bs.grids["lai"] = classes.LAI
	height := bs.get(params, "veg_height")
	hwRatio := bs.get(params, "veg_height_width_ratio")
	fc := bs.get(params, "veg_fractional_cover")
	igbp := bs.get(params, "igbp_classification")
	if err := bs.check(); err != nil {
		return nil, err
	}

	lai := classes.LAI
	z0M := utils.NewGridLike(lai)
	d0 := utils.NewGridLike(lai)
	for _, i := range classes.Soil {
		z0M.Data[i] = float32(soilRoughness)
		d0.Data[i] = 0
	}
	for _, i := range classes.Vegetated {
		z, d := tseb.CalcRoughness(f64(lai.Data[i]), f64(height.Data[i]), f64(hwRatio.Data[i]),
			f64(igbp.Data[i]), f64(fc.Data[i]))
		z0M.Data[i] = float32(z)
		d0.Data[i] = float32(d)
	}

	out := utils.NewProductLike("aerodynamicRoughness", lai)
	if err := out.AddBand("roughness_length", "Roughness length for momentum transport", "m", z0M); err != nil {
		return nil, err
	}
	if err := out.AddBand("zero_plane_displacement", "Zero plane displacement height", "m", d0); err != nil {
		return nil, err
	}
	return out, nil
}
