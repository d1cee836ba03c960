package analytics

import (
	"math"
	"math/rand"

	"ChainWatch/internal/domain/models"
)

// ForestOption configures IsolationForest.
type ForestOption func(*IsolationForest)

// IsolationForest scores feature rows by how few random splits it takes to
// isolate them. Scores land in (0,1); higher is more anomalous. The forest
// is fit and discarded within one FitScore call, so day-to-day runs are
// independent.
type IsolationForest struct {
	trees      int
	sampleSize int
	seed       int64
}

// NewIsolationForest creates a forest with the standard 100 trees and a
// 256-row subsample.
func NewIsolationForest(opts ...ForestOption) *IsolationForest {
	f := &IsolationForest{
		trees:      100,
		sampleSize: 256,
		seed:       1,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// WithTrees sets the ensemble size.
func WithTrees(n int) ForestOption {
	return func(f *IsolationForest) {
		if n > 0 {
			f.trees = n
		}
	}
}

// WithSampleSize sets the per-tree subsample size.
func WithSampleSize(n int) ForestOption {
	return func(f *IsolationForest) {
		if n > 0 {
			f.sampleSize = n
		}
	}
}

// WithSeed fixes the RNG so a rerun over the same day scores identically.
func WithSeed(seed int64) ForestOption {
	return func(f *IsolationForest) { f.seed = seed }
}

type isoNode struct {
	dim   int
	split float64
	size  int
	left  *isoNode
	right *isoNode
}

// FitScore builds the forest over features and returns one score per row,
// in input order. Fewer than two rows cannot be ranked; all zeros come back.
func (f *IsolationForest) FitScore(features []models.FeatureVector) []float64 {
	n := len(features)
	scores := make([]float64, n)
	if n < 2 {
		return scores
	}

	data := make([][]float64, n)
	for i, fv := range features {
		data[i] = fv.Values()
	}

	psi := f.sampleSize
	if psi > n {
		psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))
	rng := rand.New(rand.NewSource(f.seed))

	pathSum := make([]float64, n)
	sample := make([][]float64, psi)
	for t := 0; t < f.trees; t++ {
		for i, idx := range rng.Perm(n)[:psi] {
			sample[i] = data[idx]
		}
		root := buildTree(rng, sample, 0, maxDepth)
		for i, row := range data {
			pathSum[i] += pathLength(root, row, 0)
		}
	}

	cn := avgPathLen(float64(psi))
	for i := range scores {
		scores[i] = math.Pow(2, -pathSum[i]/float64(f.trees)/cn)
	}
	return scores
}

func buildTree(rng *rand.Rand, data [][]float64, depth, maxDepth int) *isoNode {
	if depth >= maxDepth || len(data) <= 1 {
		return &isoNode{size: len(data)}
	}

	// Try dimensions in random order until one has spread.
	for _, dim := range rng.Perm(len(data[0])) {
		lo, hi := minMax(data, dim)
		if hi <= lo {
			continue
		}

		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, row := range data {
			if row[dim] < split {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}
		return &isoNode{
			dim:   dim,
			split: split,
			size:  len(data),
			left:  buildTree(rng, left, depth+1, maxDepth),
			right: buildTree(rng, right, depth+1, maxDepth),
		}
	}

	// All rows identical; nothing left to split.
	return &isoNode{size: len(data)}
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	if node.left == nil {
		if node.size <= 1 {
			return float64(depth)
		}
		return float64(depth) + avgPathLen(float64(node.size))
	}
	if row[node.dim] < node.split {
		return pathLength(node.left, row, depth+1)
	}
	return pathLength(node.right, row, depth+1)
}

// avgPathLen is the expected path length of an unsuccessful BST search,
// the c(n) normalizer from the isolation forest paper.
func avgPathLen(n float64) float64 {
	if n <= 1 {
		return 0
	}
	const euler = 0.5772156649
	return 2*(math.Log(n-1)+euler) - 2*(n-1)/n
}

func minMax(data [][]float64, dim int) (float64, float64) {
	lo, hi := data[0][dim], data[0][dim]
	for _, row := range data[1:] {
		if row[dim] < lo {
			lo = row[dim]
		}
		if row[dim] > hi {
			hi = row[dim]
		}
	}
	return lo, hi
}
