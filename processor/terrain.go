package processor

import (
	"fmt"
	"math"

	"github.com/nci/senet/utils"
)

// SlopeAspect derives slope (degrees) and aspect (degrees clockwise from
// north) from a north-up DEM with Horn's 3x3 kernel. horizontalScale
// converts the horizontal units of the geotransform to the elevation
// units, e.g. 111120 for degrees and metres. Border pixels are computed
// with the edge elevations replicated outward. Flat cells get aspect 0.
func SlopeAspect(dem *utils.Grid, horizontalScale float64) (*utils.Grid, *utils.Grid, error) {
	if horizontalScale <= 0 {
		return nil, nil, fmt.Errorf("horizontal scale %v must be positive: %w", horizontalScale, utils.ErrConfig)
	}
	ewres := math.Abs(dem.GeoTransform[1]) * horizontalScale
	nsres := math.Abs(dem.GeoTransform[5]) * horizontalScale
	if ewres == 0 || nsres == 0 {
		return nil, nil, fmt.Errorf("DEM pixel size is zero: %w", utils.ErrGeometry)
	}

	slope := utils.NewGridLike(dem)
	aspect := utils.NewGridLike(dem)
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		} else if x >= dem.Width {
			x = dem.Width - 1
		}
		if y < 0 {
			y = 0
		} else if y >= dem.Height {
			y = dem.Height - 1
		}
		return f64(dem.Data[y*dem.Width+x])
	}

	for y := 0; y < dem.Height; y++ {
		for x := 0; x < dem.Width; x++ {
			if math.IsNaN(at(x, y)) {
				continue
			}
			a, b, c := at(x-1, y-1), at(x, y-1), at(x+1, y-1)
			d, f := at(x-1, y), at(x+1, y)
			g, h, i := at(x-1, y+1), at(x, y+1), at(x+1, y+1)

			// Gradients towards east and towards south.
			dx := ((c + 2*f + i) - (a + 2*d + g)) / 8
			dy := ((g + 2*h + i) - (a + 2*b + c)) / 8
			if math.IsNaN(dx) || math.IsNaN(dy) {
				continue
			}

			gx, gy := dx/ewres, dy/nsres
			slope.Set(x, y, float32(math.Atan(math.Hypot(gx, gy))*180/math.Pi))

			if dx == 0 && dy == 0 {
				aspect.Set(x, y, 0)
				continue
			}
			az := math.Atan2(gy, -gx) * 180 / math.Pi
			if az > 90 {
				az = 450 - az
			} else {
				az = 90 - az
			}
			if az >= 360 {
				az -= 360
			}
			aspect.Set(x, y, float32(az))
		}
	}
	return slope, aspect, nil
}
