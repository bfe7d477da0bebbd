package utils

import (
	"fmt"
	"math"

	goeval "github.com/edisonguo/govaluate"
)

// MaskExpression selects valid pixels with a boolean expression over band
// names, e.g. "mask == 1" or "mask == 1 && cloud < 0.5".
type MaskExpression struct {
	Source string
	expr   *goeval.EvaluableExpression
	vars   []string
}

func ParseMaskExpression(src string) (*MaskExpression, error) {
	expr, err := goeval.NewEvaluableExpression(src)
	if err != nil {
		return nil, fmt.Errorf("valid mask expression %q: %v: %w", src, err, ErrConfig)
	}

	m := &MaskExpression{Source: src, expr: expr}
	seen := make(map[string]bool)
	for _, tok := range expr.Tokens() {
		if tok.Kind != goeval.VARIABLE {
			continue
		}
		name, ok := tok.Value.(string)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		m.vars = append(m.vars, name)
	}
	if len(m.vars) == 0 {
		return nil, fmt.Errorf("valid mask expression %q references no band: %w", src, ErrConfig)
	}
	return m, nil
}

// Vars lists the band names the expression reads.
func (m *MaskExpression) Vars() []string {
	return m.vars
}

// Evaluate returns the per-pixel truth value using the bands of p.
func (m *MaskExpression) Evaluate(p *Product) ([]bool, error) {
	grids := make([]*Grid, len(m.vars))
	for i, name := range m.vars {
		g, err := p.Grid(name)
		if err != nil {
			return nil, err
		}
		grids[i] = g
	}

	n := p.Width * p.Height
	out := make([]bool, n)
	params := make(map[string]interface{}, len(m.vars))

	// Single-band masks take few distinct values, memoize on the bit pattern.
	if len(grids) == 1 {
		cache := make(map[uint32]bool)
		for i, v := range grids[0].Data {
			key := math.Float32bits(v)
			res, ok := cache[key]
			if !ok {
				params[m.vars[0]] = float64(v)
				var err error
				res, err = m.eval(params)
				if err != nil {
					return nil, err
				}
				cache[key] = res
			}
			out[i] = res
		}
		return out, nil
	}

	for i := 0; i < n; i++ {
		for vi, name := range m.vars {
			params[name] = float64(grids[vi].Data[i])
		}
		res, err := m.eval(params)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

func (m *MaskExpression) eval(params map[string]interface{}) (bool, error) {
	res, err := m.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("valid mask expression %q: %v", m.Source, err)
	}
	switch v := res.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0 && !math.IsNaN(v), nil
	case float32:
		return v != 0 && v == v, nil
	default:
		return false, fmt.Errorf("valid mask expression %q yields %T, not a boolean: %w", m.Source, res, ErrConfig)
	}
}
