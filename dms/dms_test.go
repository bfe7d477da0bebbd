package dms

import (
	"errors"
	"math"
	"testing"

	"github.com/nci/senet/utils"
	"github.com/rs/zerolog"
	"golang.org/x/net/context"
)

func TestTreeStepFunction(t *testing.T) {
	var X [][]float64
	var y []float64
	idx := []int{}
	for i := 0; i < 40; i++ {
		x := float64(i) / 40
		X = append(X, []float64{x, 0.5})
		if x < 0.5 {
			y = append(y, 1)
		} else {
			y = append(y, 3)
		}
		idx = append(idx, i)
	}

	tree, err := growTree(context.Background(), X, y, idx, []int{0, 1}, TreeOptions{MinSamplesLeaf: 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct{ x, want float64 }{{0.1, 1}, {0.45, 1}, {0.55, 3}, {0.95, 3}} {
		if got := tree.Predict([]float64{c.x, 0.5}); got != c.want {
			t.Errorf("predict(%v): expecting %v, actual %v", c.x, c.want, got)
		}
	}
}

func TestTreeLinearLeaves(t *testing.T) {
	var X [][]float64
	var y []float64
	var idx []int
	for i := 0; i < 30; i++ {
		x := float64(i)
		X = append(X, []float64{x})
		y = append(y, 2*x+1)
		idx = append(idx, i)
	}
	tree, err := growTree(context.Background(), X, y, idx, []int{0}, TreeOptions{MinSamplesLeaf: 30, LinearLeaves: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := tree.Predict([]float64{40}); math.Abs(got-81) > 1e-6 {
		t.Errorf("linear leaf should extrapolate: expecting 81, actual %v", got)
	}
}

func linearSamples(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		a := float64(i%7) / 7
		b := float64(i%5) / 5
		X[i] = []float64{a, b}
		y[i] = 300 + 20*a - 10*b
	}
	return X, y
}

func TestBaggingDeterministic(t *testing.T) {
	X, y := linearSamples(60)
	opts := BaggingOptions{NumEstimators: 8, MaxSamples: 0.8, MaxFeatures: 1, Jobs: 4, Seed: 7,
		Tree: TreeOptions{MinSamplesLeaf: 3}}

	m1, err := NewBagging(opts).Train(context.Background(), X, y)
	if err != nil {
		t.Fatal(err)
	}
	opts.Jobs = 1
	m2, err := NewBagging(opts).Train(context.Background(), X, y)
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range X {
		if a, b := m1.Predict(x), m2.Predict(x); a != b {
			t.Fatalf("same seed should give the same model regardless of jobs: %v != %v", a, b)
		}
	}
	if mse := meanSquaredError(m1, X, y); mse > 25 {
		t.Errorf("ensemble fits poorly, mse %v", mse)
	}
}

func TestBaggingErrors(t *testing.T) {
	if _, err := NewBagging(BaggingOptions{}).Train(context.Background(), nil, nil); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expecting ErrNoSamples, actual %v", err)
	}

	X, y := linearSamples(20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBagging(BaggingOptions{NumEstimators: 4}).Train(ctx, X, y); !errors.Is(err, context.Canceled) {
		t.Errorf("expecting context.Canceled, actual %v", err)
	}
}

// sharpenFixture builds a 20x20 high resolution scene covered by a 4x4
// coarse grid of 5x5 pixel cells.
func sharpenFixture() ([]*utils.Grid, *utils.Grid, *utils.Grid) {
	hiGeo := utils.Geocoding{GeoTransform: utils.GeoTransform{0, 1, 0, 0, 0, 1}}
	loGeo := utils.Geocoding{GeoTransform: utils.GeoTransform{0, 5, 0, 0, 0, 5}}

	p0 := utils.NewGrid(20, 20, hiGeo)
	p1 := utils.NewGrid(20, 20, hiGeo)
	truth := utils.NewGrid(20, 20, hiGeo)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			a := 0.1 + 0.02*float64(x) + 0.003*float64((x*7+y*3)%5)
			b := 0.2 + 0.01*float64(y)
			p0.Set(x, y, float32(a))
			p1.Set(x, y, float32(b))
			truth.Set(x, y, float32(290+40*a-30*b))
		}
	}

	low := utils.NewGrid(4, 4, loGeo)
	for cy := 0; cy < 4; cy++ {
		for cx := 0; cx < 4; cx++ {
			sum := 0.0
			for y := cy * 5; y < cy*5+5; y++ {
				for x := cx * 5; x < cx*5+5; x++ {
					sum += toRadiance(float64(truth.At(x, y)))
				}
			}
			low.Set(cx, cy, float32(fromRadiance(sum/25)))
		}
	}
	quality := utils.NewFilledGrid(4, 4, loGeo, 1)
	return []*utils.Grid{p0, p1}, low, quality
}

func testSharpener(cv float64) *Sharpener {
	trainer := NewBagging(BaggingOptions{NumEstimators: 5, MaxSamples: 1, MaxFeatures: 1, Seed: 1,
		Tree: TreeOptions{MinSamplesLeaf: 4, LinearLeaves: true}})
	return NewSharpener(Options{CVHomogeneityThreshold: cv, GoodQualityFlags: []int{1}, Temperature: true},
		trainer, zerolog.Nop())
}

func TestSharpenConservesRadiance(t *testing.T) {
	predictors, low, quality := sharpenFixture()
	quality.Set(3, 3, 0)

	res, err := testSharpener(0).Sharpen(context.Background(), predictors, low, quality)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.GoodCells != 15 {
		t.Errorf("good cells: expecting 15, actual %d", res.Stats.GoodCells)
	}
	if res.Stats.TrainingSamples == 0 || res.Stats.TrainingSamples > 15 {
		t.Errorf("training samples out of range: %d", res.Stats.TrainingSamples)
	}
	if res.Sharpened.CountNaN() != 0 {
		t.Fatalf("sharpened output has %d NaN pixels", res.Sharpened.CountNaN())
	}

	for cy := 0; cy < 4; cy++ {
		for cx := 0; cx < 4; cx++ {
			sum := 0.0
			for y := cy * 5; y < cy*5+5; y++ {
				for x := cx * 5; x < cx*5+5; x++ {
					sum += toRadiance(float64(res.Sharpened.At(x, y)))
				}
			}
			want := toRadiance(float64(low.At(cx, cy)))
			bad := cx == 3 && cy == 3
			if bad {
				if !math.IsNaN(float64(res.Residual.At(15, 15))) {
					t.Errorf("bad quality cell should not be corrected")
				}
				continue
			}
			if rel := math.Abs(sum/25-want) / want; rel > 1e-4 {
				t.Errorf("cell (%d, %d) radiance not conserved: relative error %v", cx, cy, rel)
			}
		}
	}
}

func TestSharpenNoSamples(t *testing.T) {
	predictors, low, quality := sharpenFixture()
	quality.Fill(0)
	if _, err := testSharpener(0).Sharpen(context.Background(), predictors, low, quality); !errors.Is(err, ErrNoSamples) {
		t.Errorf("expecting ErrNoSamples, actual %v", err)
	}

	predictors[1] = utils.NewGrid(10, 10, predictors[1].Geocoding)
	if _, err := testSharpener(0).Sharpen(context.Background(), predictors, low, quality); !errors.Is(err, utils.ErrGeometry) {
		t.Errorf("expecting ErrGeometry, actual %v", err)
	}
}

func TestMapCells(t *testing.T) {
	predictors, low, _ := sharpenFixture()
	cellOf, err := mapCells(predictors[0], low)
	if err != nil {
		t.Fatal(err)
	}
	if cellOf[0] != 0 || cellOf[4] != 0 || cellOf[5] != 1 || cellOf[19*20+19] != 15 {
		t.Errorf("unexpected cell mapping %v %v %v %v", cellOf[0], cellOf[4], cellOf[5], cellOf[19*20+19])
	}
}

// cancelAfter cancels the run once the first model has been trained.
type cancelAfter struct {
	Trainer
	cancel func()
	calls  int
}

func (c *cancelAfter) Train(ctx context.Context, X [][]float64, y []float64) (Model, error) {
	c.calls++
	m, err := c.Trainer.Train(ctx, X, y)
	if c.calls == 1 {
		c.cancel()
	}
	return m, err
}

func TestSharpenMovingWindows(t *testing.T) {
	predictors, low, quality := sharpenFixture()
	s := testSharpener(10)
	s.Options.MovingWindowSize = 2
	s.Options.MinWindowSamples = 3

	res, err := s.Sharpen(context.Background(), predictors, low, quality)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.LocalModels != 4 {
		t.Errorf("local models: expecting 4, actual %d", res.Stats.LocalModels)
	}
	if res.Stats.CorrectedCells != 16 {
		t.Errorf("corrected cells: expecting 16, actual %d", res.Stats.CorrectedCells)
	}
	if res.Sharpened.CountNaN() != 0 {
		t.Fatalf("sharpened output has %d NaN pixels", res.Sharpened.CountNaN())
	}
	for cy := 0; cy < 4; cy++ {
		for cx := 0; cx < 4; cx++ {
			sum := 0.0
			for y := cy * 5; y < cy*5+5; y++ {
				for x := cx * 5; x < cx*5+5; x++ {
					sum += toRadiance(float64(res.Sharpened.At(x, y)))
				}
			}
			want := toRadiance(float64(low.At(cx, cy)))
			if rel := math.Abs(sum/25-want) / want; rel > 1e-4 {
				t.Errorf("cell (%d, %d) radiance not conserved: relative error %v", cx, cy, rel)
			}
		}
	}

	s.Options.MinWindowSamples = 5
	res, err = s.Sharpen(context.Background(), predictors, low, quality)
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.LocalModels != 0 {
		t.Errorf("windows below the sample minimum should fall back to the global model, got %d local models", res.Stats.LocalModels)
	}
}

func TestSharpenCancelledDuringWindows(t *testing.T) {
	predictors, low, quality := sharpenFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := testSharpener(10)
	s.Options.MovingWindowSize = 2
	s.Options.MinWindowSamples = 3
	trainer := &cancelAfter{Trainer: s.Trainer, cancel: cancel}
	s.Trainer = trainer

	if _, err := s.Sharpen(ctx, predictors, low, quality); err != ctx.Err() || err != context.Canceled {
		t.Errorf("expecting %v, actual %v", context.Canceled, err)
	}
	if trainer.calls != 1 {
		t.Errorf("no local model should be trained after cancellation, trained %d models", trainer.calls)
	}
}
