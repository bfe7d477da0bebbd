package utils

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const LandcoverClassColumn = "landcover_class"

// LookupTable maps land-cover classes to per-class parameters. The source
// is semicolon separated with a header row; rows whose field count differs
// from the header are ignored. It is read-only once loaded.
type LookupTable struct {
	columns []string
	colIdx  map[string]int
	rows    [][]float64
	classes map[float32]int
}

func LoadLookupTable(path string) (*LookupTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open lookup table %s: %v", path, err)
	}
	defer f.Close()

	lut, err := ReadLookupTable(f)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", path, err)
	}
	return lut, nil
}

func ReadLookupTable(r io.Reader) (*LookupTable, error) {
	sc := bufio.NewScanner(r)
	lut := &LookupTable{colIdx: make(map[string]int), classes: make(map[float32]int)}

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r\n ")
		if line == 1 {
			for i, col := range strings.Split(text, ";") {
				col = strings.TrimSpace(col)
				lut.columns = append(lut.columns, col)
				lut.colIdx[col] = i
			}
			continue
		}
		if len(strings.TrimSpace(text)) == 0 {
			continue
		}

		fields := strings.Split(text, ";")
		if len(fields) != len(lut.columns) {
			continue
		}
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %v: %w", line, lut.columns[i], err, ErrSchema)
			}
			row[i] = v
		}
		lut.rows = append(lut.rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if line == 0 {
		return nil, fmt.Errorf("empty lookup table: %w", ErrSchema)
	}

	if ci, ok := lut.colIdx[LandcoverClassColumn]; ok {
		for r, row := range lut.rows {
			key := float32(row[ci])
			if _, dup := lut.classes[key]; !dup {
				lut.classes[key] = r
			}
		}
	}
	return lut, nil
}

func (t *LookupTable) Columns() []string {
	return t.columns
}

func (t *LookupTable) HasColumn(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

// Require fails with ErrSchema naming every absent column.
func (t *LookupTable) Require(columns ...string) error {
	var missing []string
	for _, col := range columns {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("lookup table is missing columns %s: %w", strings.Join(missing, ", "), ErrSchema)
	}
	return nil
}

// Value returns the column value for an exactly matching class.
func (t *LookupTable) Value(class float32, column string) (float64, bool) {
	if class != class {
		return math.NaN(), false
	}
	ci, ok := t.colIdx[column]
	if !ok {
		return math.NaN(), false
	}
	r, ok := t.classes[class]
	if !ok {
		return math.NaN(), false
	}
	return t.rows[r][ci], true
}

func (t *LookupTable) NumRows() int {
	return len(t.rows)
}
