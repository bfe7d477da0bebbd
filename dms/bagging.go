package dms

import (
	"errors"
	"math/rand"

	"github.com/nci/senet/utils"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"
)

var ErrNoSamples = errors.New("no training samples")

// Model predicts a target from a feature vector.
type Model interface {
	Predict(x []float64) float64
}

// Trainer fits a Model on row-major samples X with targets y.
type Trainer interface {
	Train(ctx context.Context, X [][]float64, y []float64) (Model, error)
}

// BaggingOptions mirrors the usual bagged-ensemble knobs.
type BaggingOptions struct {
	NumEstimators int
	// MaxSamples is the bootstrap sample size as a fraction of the rows.
	MaxSamples float64
	// MaxFeatures is the fraction of features each tree may split on.
	MaxFeatures float64
	Jobs        int
	Seed        int64
	Tree        TreeOptions
}

// Bagging trains an ensemble of regression trees, each on a bootstrap
// sample of the rows and a random subset of the features. Trees are grown
// concurrently, at most Jobs at a time; the first failure or a cancelled
// context abandons the remaining trees.
type Bagging struct {
	Options BaggingOptions
}

func NewBagging(opts BaggingOptions) *Bagging {
	if opts.NumEstimators < 1 {
		opts.NumEstimators = 1
	}
	if opts.MaxSamples <= 0 || opts.MaxSamples > 1 {
		opts.MaxSamples = 1
	}
	if opts.MaxFeatures <= 0 || opts.MaxFeatures > 1 {
		opts.MaxFeatures = 1
	}
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	return &Bagging{Options: opts}
}

// Ensemble averages the predictions of its trees.
type Ensemble struct {
	Trees []*Tree
}

func (e *Ensemble) Predict(x []float64) float64 {
	sum := 0.0
	for _, t := range e.Trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(e.Trees))
}

func (b *Bagging) Train(ctx context.Context, X [][]float64, y []float64) (Model, error) {
	if len(y) == 0 || len(X) != len(y) {
		return nil, ErrNoSamples
	}
	opts := b.Options
	nRows := len(y)
	nFeatures := len(X[0])

	nSamples := int(opts.MaxSamples * float64(nRows))
	if nSamples < 1 {
		nSamples = 1
	}
	nTreeFeatures := int(opts.MaxFeatures * float64(nFeatures))
	if nTreeFeatures < 1 {
		nTreeFeatures = 1
	}

	trees := make([]*Tree, opts.NumEstimators)
	g, gctx := errgroup.WithContext(ctx)
	limiter := utils.NewConcLimiter(opts.Jobs)

	for i := range trees {
		if err := limiter.IncreaseContext(gctx); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			defer limiter.Decrease()

			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			idx := make([]int, nSamples)
			for k := range idx {
				idx[k] = rng.Intn(nRows)
			}
			features := sampleFeatures(rng, nFeatures, nTreeFeatures)

			tree, err := growTree(gctx, X, y, idx, features, opts.Tree)
			if err != nil {
				return err
			}
			trees[i] = tree
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Ensemble{Trees: trees}, nil
}
