package processor

import (
	"fmt"

	"github.com/nci/senet/utils"
)

// PixelClasses partitions the pixels of a scene once so every stage
// branches on the same index sets. Soil and Vegetated are threshold tests
// on LAI and are not complementary: NaN LAI belongs to neither.
type PixelClasses struct {
	LAI *utils.Grid

	Soil      []int
	Vegetated []int

	// Processed* are the subsets inside the valid mask.
	ProcessedSoil      []int
	ProcessedVegetated []int
}

// ClassifyPixels splits lai into bare soil (LAI <= 0) and vegetated
// (LAI > 0) pixels. valid may be nil, in which case every pixel is valid.
func ClassifyPixels(lai *utils.Grid, valid []bool) (*PixelClasses, error) {
	if valid != nil && len(valid) != lai.Len() {
		return nil, fmt.Errorf("valid mask has %d pixels, lai has %d: %w", len(valid), lai.Len(), utils.ErrGeometry)
	}

	c := &PixelClasses{LAI: lai}
	for i, v := range lai.Data {
		ok := valid == nil || valid[i]
		switch {
		case v <= 0:
			c.Soil = append(c.Soil, i)
			if ok {
				c.ProcessedSoil = append(c.ProcessedSoil, i)
			}
		case v > 0:
			c.Vegetated = append(c.Vegetated, i)
			if ok {
				c.ProcessedVegetated = append(c.ProcessedVegetated, i)
			}
		}
	}
	return c, nil
}

// Processed returns the number of pixels the energy balance attempts.
func (c *PixelClasses) Processed() int {
	return len(c.ProcessedSoil) + len(c.ProcessedVegetated)
}

// NotProcessed returns the number of pixels outside both processed sets.
func (c *PixelClasses) NotProcessed() int {
	return c.LAI.Len() - c.Processed()
}
