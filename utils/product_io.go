package utils

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const ManifestName = "product.yaml"
const bandFileExt = ".f32"

type bandManifest struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Unit        string `yaml:"unit,omitempty"`
	File        string `yaml:"file"`
}

type productManifest struct {
	Name         string         `yaml:"name"`
	Width        int            `yaml:"width"`
	Height       int            `yaml:"height"`
	GeoTransform []float64      `yaml:"geotransform"`
	CRS          string         `yaml:"crs,omitempty"`
	Bands        []bandManifest `yaml:"bands"`
}

// ReadProduct loads a product directory: a product.yaml manifest plus one
// little-endian float32 file per band.
func ReadProduct(dir string) (*Product, error) {
	raw, err := ioutil.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("Error while reading product manifest in %s: %v", dir, err)
	}

	var m productManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("Error parsing product manifest in %s: %v: %w", dir, err, ErrSchema)
	}
	if m.Width <= 0 || m.Height <= 0 {
		return nil, fmt.Errorf("product %s has invalid size %dx%d: %w", dir, m.Width, m.Height, ErrSchema)
	}

	var geo Geocoding
	if len(m.GeoTransform) != 0 && len(m.GeoTransform) != 6 {
		return nil, fmt.Errorf("product %s geotransform needs 6 coefficients, got %d: %w", dir, len(m.GeoTransform), ErrSchema)
	}
	copy(geo.GeoTransform[:], m.GeoTransform)
	geo.CRS = m.CRS

	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	p := NewProduct(m.Name, m.Width, m.Height, geo)
	for _, bm := range m.Bands {
		file := bm.File
		if file == "" {
			file = bm.Name + bandFileExt
		}
		g := NewGrid(m.Width, m.Height, geo)
		if err := readFloat32File(filepath.Join(dir, file), g.Data); err != nil {
			return nil, fmt.Errorf("product %s band %s: %w", m.Name, bm.Name, err)
		}
		if err := p.AddBand(bm.Name, bm.Description, bm.Unit, g); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WriteProduct stores p under dir, creating it if needed.
func WriteProduct(dir string, p *Product) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	m := productManifest{
		Name:         p.Name,
		Width:        p.Width,
		Height:       p.Height,
		GeoTransform: p.Geocoding.GeoTransform[:],
		CRS:          p.Geocoding.CRS,
	}
	for _, b := range p.Bands() {
		file := b.Name + bandFileExt
		if err := writeFloat32File(filepath.Join(dir, file), b.Data); err != nil {
			return fmt.Errorf("product %s band %s: %w", p.Name, b.Name, err)
		}
		m.Bands = append(m.Bands, bandManifest{Name: b.Name, Description: b.Description, Unit: b.Unit, File: file})
	}

	raw, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(dir, ManifestName), raw, 0644)
}

func readFloat32File(path string, data []float32) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() != int64(4*len(data)) {
		return fmt.Errorf("%s holds %d bytes, expected %d: %w", path, st.Size(), 4*len(data), ErrSchema)
	}
	return binary.Read(bufio.NewReader(f), binary.LittleEndian, data)
}

func writeFloat32File(path string, data []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
