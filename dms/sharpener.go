// Package dms implements the Data Mining Sharpener: a bagged regression
// tree ensemble trained on coarse resolution cells to disaggregate a
// coarse variable, typically land surface temperature, to the resolution
// of its predictors.
package dms

import (
	"fmt"
	"math"
	"sort"

	"github.com/nci/senet/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/context"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultAutoCVQuantile   = 0.8
	defaultMinWindowSamples = 20
	minMSE                  = 1e-6
)

type Options struct {
	// MovingWindowSize is the side in coarse cells of the windows local
	// models are trained on. 0 trains the global model only.
	MovingWindowSize int
	// CVHomogeneityThreshold excludes coarse cells whose mean predictor
	// coefficient of variation exceeds it. 0 or less selects the
	// AutoCVQuantile of the good cells.
	CVHomogeneityThreshold float64
	AutoCVQuantile         float64
	GoodQualityFlags       []int
	// Temperature makes the residual analysis conserve emitted radiance
	// (T^4) rather than the value itself.
	Temperature      bool
	MinWindowSamples int
}

type Stats struct {
	GoodCells       int     `json:"good_cells"`
	TrainingSamples int     `json:"training_samples"`
	CVThreshold     float64 `json:"cv_threshold"`
	LocalModels     int     `json:"local_models"`
	GlobalMSE       float64 `json:"global_mse"`
	CorrectedCells  int     `json:"corrected_cells"`
}

type Result struct {
	Sharpened *utils.Grid
	// Residual is the correction added to each high resolution pixel.
	Residual *utils.Grid
	Stats    Stats
}

type Sharpener struct {
	Options Options
	Trainer Trainer
	Log     zerolog.Logger
}

func NewSharpener(opts Options, trainer Trainer, log zerolog.Logger) *Sharpener {
	if opts.AutoCVQuantile <= 0 || opts.AutoCVQuantile > 1 {
		opts.AutoCVQuantile = defaultAutoCVQuantile
	}
	if opts.MinWindowSamples <= 0 {
		opts.MinWindowSamples = defaultMinWindowSamples
	}
	return &Sharpener{Options: opts, Trainer: trainer, Log: log}
}

// cellStats holds the per coarse cell aggregates of the predictors.
type cellStats struct {
	count []int
	mean  []float64 // cell-major, nFeatures per cell
	cv    []float64
}

type window struct {
	model Model
	mse   float64
}

// Sharpen disaggregates lowRes to the grid of predictors. quality shares
// the geometry of lowRes.
func (s *Sharpener) Sharpen(ctx context.Context, predictors []*utils.Grid, lowRes, quality *utils.Grid) (*Result, error) {
	if len(predictors) == 0 {
		return nil, fmt.Errorf("no predictors: %w", utils.ErrSchema)
	}
	hiGrids := make(map[string]*utils.Grid, len(predictors))
	for i, g := range predictors {
		hiGrids[fmt.Sprintf("predictor %d", i)] = g
	}
	if err := utils.CheckGeometry(hiGrids); err != nil {
		return nil, err
	}
	if err := utils.CheckGeometry(map[string]*utils.Grid{"low resolution": lowRes, "quality": quality}); err != nil {
		return nil, err
	}

	hi := predictors[0]
	cellOf, err := mapCells(hi, lowRes)
	if err != nil {
		return nil, err
	}

	cells := aggregate(predictors, cellOf, lowRes.Len())
	res := &Result{}

	good := make([]bool, lowRes.Len())
	var goodCV []float64
	for c := range good {
		good[c] = cells.count[c] > 0 && !isNaN32(lowRes.Data[c]) && s.goodQuality(quality.Data[c])
		if good[c] {
			res.Stats.GoodCells++
			if !math.IsNaN(cells.cv[c]) && !math.IsInf(cells.cv[c], 0) {
				goodCV = append(goodCV, cells.cv[c])
			}
		}
	}

	threshold := s.Options.CVHomogeneityThreshold
	if threshold <= 0 {
		threshold = math.Inf(1)
		if len(goodCV) > 0 {
			sort.Float64s(goodCV)
			threshold = stat.Quantile(s.Options.AutoCVQuantile, stat.Empirical, goodCV, nil)
		}
	}
	res.Stats.CVThreshold = threshold

	nf := len(predictors)
	var trainCells []int
	for c := range good {
		if good[c] && cells.cv[c] <= threshold {
			trainCells = append(trainCells, c)
		}
	}
	if len(trainCells) == 0 {
		return nil, fmt.Errorf("sharpener: no good quality homogeneous cells: %w", ErrNoSamples)
	}
	res.Stats.TrainingSamples = len(trainCells)

	samples := func(cs []int) ([][]float64, []float64) {
		X := make([][]float64, len(cs))
		y := make([]float64, len(cs))
		for k, c := range cs {
			X[k] = cells.mean[c*nf : (c+1)*nf]
			y[k] = float64(lowRes.Data[c])
		}
		return X, y
	}

	s.Log.Info().Int("good_cells", res.Stats.GoodCells).Int("samples", len(trainCells)).
		Float64("cv_threshold", threshold).Msg("training global model")

	X, y := samples(trainCells)
	global, err := s.Trainer.Train(ctx, X, y)
	if err != nil {
		return nil, fmt.Errorf("sharpener global model: %w", err)
	}
	globalMSE := math.Max(minMSE, meanSquaredError(global, X, y))
	res.Stats.GlobalMSE = globalMSE

	windows, nwx, err := s.trainWindows(ctx, lowRes, trainCells, samples)
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if w != nil {
			res.Stats.LocalModels++
		}
	}

	// Disaggregate.
	out := utils.NewGridLike(hi)
	x := make([]float64, nf)
	ws := s.Options.MovingWindowSize
	for i := range out.Data {
		valid := true
		for f, g := range predictors {
			x[f] = float64(g.Data[i])
			if math.IsNaN(x[f]) {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		v := global.Predict(x)
		if c := cellOf[i]; c >= 0 && windows != nil {
			cx, cy := int(c)%lowRes.Width, int(c)/lowRes.Width
			if w := windows[(cy/ws)*nwx+cx/ws]; w != nil {
				vl := w.model.Predict(x)
				v = (v/globalMSE + vl/w.mse) / (1/globalMSE + 1/w.mse)
			}
		}
		out.Data[i] = float32(v)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Sharpened, res.Residual, res.Stats.CorrectedCells = s.residualCorrection(out, lowRes, cellOf, good)
	return res, nil
}

func (s *Sharpener) trainWindows(ctx context.Context, lowRes *utils.Grid, trainCells []int,
	samples func([]int) ([][]float64, []float64)) ([]*window, int, error) {
	ws := s.Options.MovingWindowSize
	if ws <= 0 {
		return nil, 0, nil
	}
	nwx := (lowRes.Width + ws - 1) / ws
	nwy := (lowRes.Height + ws - 1) / ws
	if nwx*nwy <= 1 {
		return nil, 0, nil
	}

	ext := ws / 4
	windows := make([]*window, nwx*nwy)
	for wy := 0; wy < nwy; wy++ {
		for wx := 0; wx < nwx; wx++ {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			x0, x1 := wx*ws-ext, (wx+1)*ws+ext
			y0, y1 := wy*ws-ext, (wy+1)*ws+ext

			var cs []int
			for _, c := range trainCells {
				cx, cy := c%lowRes.Width, c/lowRes.Width
				if cx >= x0 && cx < x1 && cy >= y0 && cy < y1 {
					cs = append(cs, c)
				}
			}
			if len(cs) < s.Options.MinWindowSamples {
				continue
			}

			X, y := samples(cs)
			model, err := s.Trainer.Train(ctx, X, y)
			if err != nil {
				return nil, 0, fmt.Errorf("sharpener local model (%d, %d): %w", wx, wy, err)
			}
			windows[wy*nwx+wx] = &window{model: model, mse: math.Max(minMSE, meanSquaredError(model, X, y))}
		}
	}
	s.Log.Debug().Int("windows", nwx*nwy).Msg("local models trained")
	return windows, nwx, nil
}

// residualCorrection aggregates the disaggregated field back to the coarse
// grid and spreads each good cell's residual uniformly over its pixels.
func (s *Sharpener) residualCorrection(out, lowRes *utils.Grid, cellOf []int32, good []bool) (*utils.Grid, *utils.Grid, int) {
	fwd, inv := identity, identity
	if s.Options.Temperature {
		fwd, inv = toRadiance, fromRadiance
	}

	nCells := lowRes.Len()
	sums := make([][]float64, nCells)
	for i, v := range out.Data {
		c := cellOf[i]
		if c < 0 || isNaN32(v) {
			continue
		}
		sums[c] = append(sums[c], fwd(float64(v)))
	}

	residual := make([]float64, nCells)
	corrected := 0
	for c := range residual {
		residual[c] = math.NaN()
		if !good[c] || len(sums[c]) == 0 {
			continue
		}
		residual[c] = fwd(float64(lowRes.Data[c])) - floats.Sum(sums[c])/float64(len(sums[c]))
		corrected++
	}

	sharpened := out.Clone()
	resGrid := utils.NewGridLike(out)
	for i, v := range out.Data {
		c := cellOf[i]
		if c < 0 || isNaN32(v) || math.IsNaN(residual[c]) {
			continue
		}
		nv := inv(fwd(float64(v)) + residual[c])
		sharpened.Data[i] = float32(nv)
		resGrid.Data[i] = float32(nv - float64(v))
	}
	return sharpened, resGrid, corrected
}

func (s *Sharpener) goodQuality(q float32) bool {
	if isNaN32(q) {
		return false
	}
	for _, f := range s.Options.GoodQualityFlags {
		if float32(f) == q {
			return true
		}
	}
	return false
}

// mapCells returns for every high resolution pixel the index of the coarse
// cell containing its centre, or -1.
func mapCells(hi, lo *utils.Grid) ([]int32, error) {
	if hi.CRS != "" && lo.CRS != "" && hi.CRS != lo.CRS {
		return nil, fmt.Errorf("high resolution CRS %s differs from low resolution %s: %w", hi.CRS, lo.CRS, utils.ErrGeometry)
	}
	cellOf := make([]int32, hi.Len())
	for y := 0; y < hi.Height; y++ {
		for x := 0; x < hi.Width; x++ {
			gx, gy := hi.PixelCenter(x, y)
			px, py, err := lo.PixelOf(gx, gy)
			if err != nil {
				return nil, err
			}
			cx, cy := int(math.Floor(px)), int(math.Floor(py))
			if cx < 0 || cy < 0 || cx >= lo.Width || cy >= lo.Height {
				cellOf[y*hi.Width+x] = -1
				continue
			}
			cellOf[y*hi.Width+x] = int32(cy*lo.Width + cx)
		}
	}
	return cellOf, nil
}

// aggregate computes per cell predictor means and the mean coefficient of
// variation across predictors. Pixels with any NaN predictor are ignored.
func aggregate(predictors []*utils.Grid, cellOf []int32, nCells int) *cellStats {
	nf := len(predictors)
	sum := make([]float64, nCells*nf)
	sumSq := make([]float64, nCells*nf)
	st := &cellStats{count: make([]int, nCells), mean: make([]float64, nCells*nf), cv: make([]float64, nCells)}

	for i, c := range cellOf {
		if c < 0 {
			continue
		}
		valid := true
		for _, g := range predictors {
			if isNaN32(g.Data[i]) {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}
		st.count[c]++
		for f, g := range predictors {
			v := float64(g.Data[i])
			sum[int(c)*nf+f] += v
			sumSq[int(c)*nf+f] += v * v
		}
	}

	cvs := make([]float64, nf)
	for c := 0; c < nCells; c++ {
		n := float64(st.count[c])
		if n == 0 {
			st.cv[c] = math.NaN()
			for f := 0; f < nf; f++ {
				st.mean[c*nf+f] = math.NaN()
			}
			continue
		}
		for f := 0; f < nf; f++ {
			m := sum[c*nf+f] / n
			sd := math.Sqrt(math.Max(0, sumSq[c*nf+f]/n-m*m))
			st.mean[c*nf+f] = m
			switch {
			case sd == 0:
				cvs[f] = 0
			case m == 0:
				cvs[f] = math.Inf(1)
			default:
				cvs[f] = sd / math.Abs(m)
			}
		}
		st.cv[c] = stat.Mean(cvs, nil)
	}
	return st
}

func meanSquaredError(m Model, X [][]float64, y []float64) float64 {
	sum := 0.0
	for i, x := range X {
		d := m.Predict(x) - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

func identity(v float64) float64 { return v }

func toRadiance(t float64) float64 { return t * t * t * t }

func fromRadiance(r float64) float64 {
	if r < 0 {
		return math.NaN()
	}
	return math.Pow(r, 0.25)
}

func isNaN32(v float32) bool {
	return v != v
}
