package utils

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// Scratch is a private temporary directory owned by one pipeline stage.
// Intermediates spilled here never outlive the stage.
type Scratch struct {
	Dir string
}

func NewScratch(parent, stage string) (*Scratch, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return nil, err
		}
	}
	dir, err := ioutil.TempDir(parent, "senet_"+stage+"_")
	if err != nil {
		return nil, fmt.Errorf("Failed to create scratch space for %s: %v", stage, err)
	}
	return &Scratch{Dir: dir}, nil
}

// PutGrid spills g to disk under name.
func (s *Scratch) PutGrid(name string, g *Grid) error {
	p := NewProductLike(name, g)
	if err := p.AddBand(name, "", "", g); err != nil {
		return err
	}
	return WriteProduct(filepath.Join(s.Dir, name), p)
}

// Grid reads back a grid spilled with PutGrid.
func (s *Scratch) Grid(name string) (*Grid, error) {
	p, err := ReadProduct(filepath.Join(s.Dir, name))
	if err != nil {
		return nil, err
	}
	return p.Grid(name)
}

// Close removes the directory and everything in it.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.Dir)
}
