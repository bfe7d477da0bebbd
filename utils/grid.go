package utils

import (
	"fmt"
	"math"
)

// GeoTransform is the affine transform from pixel/line to georeferenced
// coordinates, in the GDAL coefficient order.
type GeoTransform [6]float64

// Geocoding places a grid on the earth.
type Geocoding struct {
	GeoTransform GeoTransform `yaml:"geotransform" json:"geotransform"`
	CRS          string       `yaml:"crs" json:"crs"`
}

// PixelCenter returns the georeferenced coordinate of the centre of pixel (x, y).
func (g Geocoding) PixelCenter(x, y int) (float64, float64) {
	px := float64(x) + 0.5
	py := float64(y) + 0.5
	gt := g.GeoTransform
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// PixelOf inverts the transform, returning fractional pixel coordinates.
func (g Geocoding) PixelOf(gx, gy float64) (float64, float64, error) {
	gt := g.GeoTransform
	det := gt[1]*gt[5] - gt[2]*gt[4]
	if det == 0 {
		return 0, 0, fmt.Errorf("degenerate geotransform %v: %w", gt, ErrGeometry)
	}
	dx := gx - gt[0]
	dy := gy - gt[3]
	return (dx*gt[5] - dy*gt[2]) / det, (dy*gt[1] - dx*gt[4]) / det, nil
}

// Grid is a row-major float32 raster. NaN marks no-data.
type Grid struct {
	Width  int
	Height int
	Data   []float32
	Geocoding
}

func NewGrid(width, height int, geo Geocoding) *Grid {
	return &Grid{Width: width, Height: height, Data: make([]float32, width*height), Geocoding: geo}
}

// NewFilledGrid allocates a grid with every pixel set to value.
func NewFilledGrid(width, height int, geo Geocoding, value float32) *Grid {
	g := NewGrid(width, height, geo)
	g.Fill(value)
	return g
}

// NewGridLike allocates a NaN grid with the same geometry as ref.
func NewGridLike(ref *Grid) *Grid {
	return NewFilledGrid(ref.Width, ref.Height, ref.Geocoding, float32(math.NaN()))
}

func (g *Grid) Fill(value float32) {
	for i := range g.Data {
		g.Data[i] = value
	}
}

func (g *Grid) Len() int {
	return len(g.Data)
}

func (g *Grid) At(x, y int) float32 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float32) {
	g.Data[y*g.Width+x] = v
}

func (g *Grid) Clone() *Grid {
	c := &Grid{Width: g.Width, Height: g.Height, Data: make([]float32, len(g.Data)), Geocoding: g.Geocoding}
	copy(c.Data, g.Data)
	return c
}

// SameGeometry reports whether both grids cover the same pixels.
func (g *Grid) SameGeometry(o *Grid) bool {
	if g.Width != o.Width || g.Height != o.Height {
		return false
	}
	if g.CRS != "" && o.CRS != "" && g.CRS != o.CRS {
		return false
	}
	for i := range g.GeoTransform {
		if math.Abs(g.GeoTransform[i]-o.GeoTransform[i]) > 1e-9*math.Max(1, math.Abs(g.GeoTransform[i])) {
			return false
		}
	}
	return true
}

// CountNaN returns the number of no-data pixels.
func (g *Grid) CountNaN() int {
	n := 0
	for _, v := range g.Data {
		if v != v {
			n++
		}
	}
	return n
}

// CheckGeometry fails with ErrGeometry unless every named grid matches the first.
func CheckGeometry(grids map[string]*Grid) error {
	var refName string
	var ref *Grid
	for name, g := range grids {
		if g == nil {
			continue
		}
		if ref == nil {
			ref, refName = g, name
			continue
		}
		if !ref.SameGeometry(g) {
			return fmt.Errorf("%s (%dx%d) vs %s (%dx%d): %w", refName, ref.Width, ref.Height, name, g.Width, g.Height, ErrGeometry)
		}
	}
	return nil
}

// Band is a named grid inside a product.
type Band struct {
	Name        string
	Description string
	Unit        string
	*Grid
}

// Product is an ordered set of co-registered bands.
type Product struct {
	Name      string
	Width     int
	Height    int
	Geocoding Geocoding
	bands     []*Band
	index     map[string]int
}

func NewProduct(name string, width, height int, geo Geocoding) *Product {
	return &Product{Name: name, Width: width, Height: height, Geocoding: geo, index: make(map[string]int)}
}

// NewProductLike creates an empty product on the grid of ref.
func NewProductLike(name string, ref *Grid) *Product {
	return NewProduct(name, ref.Width, ref.Height, ref.Geocoding)
}

// AddBand appends or replaces a band. The grid must match the product geometry.
func (p *Product) AddBand(name, description, unit string, g *Grid) error {
	if g.Width != p.Width || g.Height != p.Height {
		return fmt.Errorf("band %s is %dx%d, product %s is %dx%d: %w", name, g.Width, g.Height, p.Name, p.Width, p.Height, ErrGeometry)
	}
	b := &Band{Name: name, Description: description, Unit: unit, Grid: g}
	if i, ok := p.index[name]; ok {
		p.bands[i] = b
		return nil
	}
	p.index[name] = len(p.bands)
	p.bands = append(p.bands, b)
	return nil
}

func (p *Product) HasBand(name string) bool {
	_, ok := p.index[name]
	return ok
}

// Band returns the named band or an ErrSchema error.
func (p *Product) Band(name string) (*Band, error) {
	i, ok := p.index[name]
	if !ok {
		return nil, fmt.Errorf("product %s has no band %q: %w", p.Name, name, ErrSchema)
	}
	return p.bands[i], nil
}

// Grid is Band without the metadata.
func (p *Product) Grid(name string) (*Grid, error) {
	b, err := p.Band(name)
	if err != nil {
		return nil, err
	}
	return b.Grid, nil
}

// GridFallback returns the first band found among names.
func (p *Product) GridFallback(names ...string) (*Grid, error) {
	for _, name := range names {
		if i, ok := p.index[name]; ok {
			return p.bands[i].Grid, nil
		}
	}
	return nil, fmt.Errorf("product %s has none of the bands %v: %w", p.Name, names, ErrSchema)
}

func (p *Product) Bands() []*Band {
	return p.bands
}

func (p *Product) BandNames() []string {
	names := make([]string, len(p.bands))
	for i, b := range p.bands {
		names[i] = b.Name
	}
	return names
}

// FirstGrid returns the first band, used for single-band inputs.
func (p *Product) FirstGrid() (*Grid, error) {
	if len(p.bands) == 0 {
		return nil, fmt.Errorf("product %s has no bands: %w", p.Name, ErrSchema)
	}
	return p.bands[0].Grid, nil
}

// PutBand stores b, replacing any band of the same name.
func (p *Product) PutBand(b *Band) error {
	return p.AddBand(b.Name, b.Description, b.Unit, b.Grid)
}
