package processor

import (
	"fmt"
	"math"

	"github.com/nci/senet/utils"
)

// Columns the structural parameter lookup needs, besides the class key.
var StructuralLUTColumns = []string{
	"veg_height",
	"lai_max",
	"is_herbaceous",
	"veg_fractional_cover",
	"veg_height_width_ratio",
	"veg_leaf_width",
	"veg_inclination_distribution",
	"igbp_classification",
}

var structuralBandInfo = map[string]struct{ desc, unit string }{
	"veg_height":                   {"Vegetation height", "m"},
	"veg_fractional_cover":         {"Vegetation fractional cover", ""},
	"veg_height_width_ratio":       {"Vegetation height to width ratio", ""},
	"veg_leaf_width":               {"Leaf width", "m"},
	"veg_inclination_distribution": {"Leaf inclination distribution", ""},
	"igbp_classification":          {"IGBP land cover class", ""},
}

// StructuralParams maps a land cover grid through the lookup table to the
// vegetation structure bands enabled in cfg. lai and fracGreen are only
// read when the vegetation height is requested.
func StructuralParams(landcover, lai, fracGreen *utils.Grid, lut *utils.LookupTable, cfg utils.StructuralParamsConfig) (*utils.Product, error) {
	if err := lut.Require(append([]string{utils.LandcoverClassColumn}, StructuralLUTColumns...)...); err != nil {
		return nil, fmt.Errorf("structural parameters: %w", err)
	}

	grids := map[string]*utils.Grid{"landcover": landcover}
	if cfg.VegHeight {
		grids["lai"] = lai
		grids["frac_green"] = fracGreen
		if lai == nil || fracGreen == nil {
			return nil, fmt.Errorf("structural parameters: vegetation height needs lai and frac_green: %w", utils.ErrSchema)
		}
	}
	if err := utils.CheckGeometry(grids); err != nil {
		return nil, fmt.Errorf("structural parameters: %w", err)
	}

	out := utils.NewProductLike("landcoverParams", landcover)
	add := func(name string, g *utils.Grid) error {
		info := structuralBandInfo[name]
		return out.AddBand(name, info.desc, info.unit, g)
	}

	if cfg.VegHeight {
		if err := add("veg_height", vegetationHeight(landcover, lai, fracGreen, lut)); err != nil {
			return nil, err
		}
	}
	for _, p := range []struct {
		enabled bool
		name    string
	}{
		{cfg.FracCover, "veg_fractional_cover"},
		{cfg.HeightWidthRatio, "veg_height_width_ratio"},
		{cfg.LeafWidth, "veg_leaf_width"},
		{cfg.LeafInclination, "veg_inclination_distribution"},
		{cfg.Landcover, "igbp_classification"},
	} {
		if !p.enabled {
			continue
		}
		if err := add(p.name, lookupGrid(landcover, lut, p.name)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// lookupGrid substitutes each class by its table value. Classes absent
// from the table, and NaN, stay NaN.
func lookupGrid(landcover *utils.Grid, lut *utils.LookupTable, column string) *utils.Grid {
	out := utils.NewGridLike(landcover)
	for i, class := range landcover.Data {
		if v, ok := lut.Value(class, column); ok {
			out.Data[i] = float32(v)
		}
	}
	return out
}

// vegetationHeight looks up the canopy height and scales herbaceous
// classes with the plant area index: h' = 0.1h + 0.9h min((PAI/h)^3, 1).
func vegetationHeight(landcover, lai, fracGreen *utils.Grid, lut *utils.LookupTable) *utils.Grid {
	out := utils.NewGridLike(landcover)
	for i, class := range landcover.Data {
		h, ok := lut.Value(class, "veg_height")
		if !ok {
			continue
		}
		if herb, _ := lut.Value(class, "is_herbaceous"); herb == 1 {
			pai := f64(lai.Data[i]) / f64(fracGreen.Data[i])
			h = 0.1*h + 0.9*h*math.Min(math.Pow(pai/h, 3), 1)
		}
		out.Data[i] = float32(h)
	}
	return out
}
