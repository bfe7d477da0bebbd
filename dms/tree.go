package dms

import (
	"math"
	"math/rand"
	"sort"

	"golang.org/x/net/context"
	"gonum.org/v1/gonum/mat"
)

// TreeOptions controls the growth of one regression tree.
type TreeOptions struct {
	// MaxDepth limits the tree depth, 0 means unlimited.
	MaxDepth       int
	MinSamplesLeaf int
	// LinearLeaves fits a least squares model in each leaf instead of
	// predicting the leaf mean.
	LinearLeaves bool
}

type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node

	value float64
	// intercept followed by one coefficient per tree feature
	coef []float64
}

func (n *node) isLeaf() bool {
	return n.left == nil
}

// Tree is a CART regressor over a subset of the input features.
type Tree struct {
	features []int
	root     *node
}

// Predict evaluates the tree on a full feature vector.
func (t *Tree) Predict(x []float64) float64 {
	n := t.root
	for !n.isLeaf() {
		if x[t.features[n.feature]] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	if n.coef == nil {
		return n.value
	}
	v := n.coef[0]
	for j, f := range t.features {
		v += n.coef[j+1] * x[f]
	}
	return v
}

type treeBuilder struct {
	ctx      context.Context
	X        [][]float64
	y        []float64
	features []int
	opts     TreeOptions
	nodes    int
}

// growTree fits a regression tree on the rows idx of X restricted to features.
func growTree(ctx context.Context, X [][]float64, y []float64, idx []int, features []int, opts TreeOptions) (*Tree, error) {
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}
	b := &treeBuilder{ctx: ctx, X: X, y: y, features: features, opts: opts}
	root, err := b.grow(idx, 0)
	if err != nil {
		return nil, err
	}
	return &Tree{features: features, root: root}, nil
}

func (b *treeBuilder) grow(idx []int, depth int) (*node, error) {
	b.nodes++
	if b.nodes%64 == 0 {
		select {
		case <-b.ctx.Done():
			return nil, b.ctx.Err()
		default:
		}
	}

	minLeaf := b.opts.MinSamplesLeaf
	if len(idx) < 2*minLeaf || (b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth) {
		return b.leaf(idx), nil
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(idx), nil
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][b.features[feature]] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	n := &node{feature: feature, threshold: threshold}
	var err error
	if n.left, err = b.grow(left, depth+1); err != nil {
		return nil, err
	}
	if n.right, err = b.grow(right, depth+1); err != nil {
		return nil, err
	}
	return n, nil
}

// bestSplit scans every feature for the threshold giving the largest
// reduction of the squared error, honouring the minimum leaf size.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	minLeaf := b.opts.MinSamplesLeaf

	var total, totalSq float64
	for _, i := range idx {
		total += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	if parentSSE <= 1e-12 {
		return 0, 0, false
	}

	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	order := make([]int, n)

	for fi, f := range b.features {
		copy(order, idx)
		sort.Slice(order, func(a, c int) bool { return b.X[order[a]][f] < b.X[order[c]][f] })

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			yi := b.y[order[k]]
			leftSum += yi
			leftSq += yi * yi

			nl := k + 1
			nr := n - nl
			if nl < minLeaf {
				continue
			}
			if nr < minLeaf {
				break
			}
			xv, xn := b.X[order[k]][f], b.X[order[k+1]][f]
			if xv == xn {
				continue
			}

			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := leftSq - leftSum*leftSum/float64(nl) + rightSq - rightSum*rightSum/float64(nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = fi
				bestThreshold = (xv + xn) / 2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (b *treeBuilder) leaf(idx []int) *node {
	n := &node{}
	for _, i := range idx {
		n.value += b.y[i]
	}
	n.value /= float64(len(idx))

	p := len(b.features)
	if b.opts.LinearLeaves && len(idx) > p+1 {
		n.coef = b.fitLinear(idx)
	}
	return n
}

// fitLinear returns least squares coefficients, or nil when the leaf
// design matrix is singular.
func (b *treeBuilder) fitLinear(idx []int) []float64 {
	p := len(b.features)
	A := mat.NewDense(len(idx), p+1, nil)
	y := mat.NewDense(len(idx), 1, nil)
	for r, i := range idx {
		A.Set(r, 0, 1)
		for j, f := range b.features {
			A.Set(r, j+1, b.X[i][f])
		}
		y.Set(r, 0, b.y[i])
	}

	var coef mat.Dense
	if err := coef.Solve(A, y); err != nil {
		return nil
	}
	out := make([]float64, p+1)
	for j := range out {
		out[j] = coef.At(j, 0)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil
		}
	}
	return out
}

// sampleFeatures draws k distinct feature indices out of n.
func sampleFeatures(rng *rand.Rand, n, k int) []int {
	perm := rng.Perm(n)[:k]
	sort.Ints(perm)
	return perm
}
