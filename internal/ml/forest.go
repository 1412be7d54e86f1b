package ml

import (
	"fmt"
	"math"
	"slices"
)

// ForestOptions configures a RandomForest.
type ForestOptions struct {
	Trees           int
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int
	Seed            uint64
}

// DefaultForestOptions mirrors the reference escalation model: 100 trees,
// unbounded depth, seed 42.
func DefaultForestOptions() ForestOptions {
	return ForestOptions{Trees: 100, MinSamplesSplit: 2, Seed: 42}
}

// RandomForest is a bagged ensemble of Gini decision trees. Each split
// considers floor(sqrt(features)) randomly drawn features; predictions
// average the trees' leaf distributions.
type RandomForest struct {
	Options   ForestOptions   `json:"options"`
	Classes   []int           `json:"classes"`
	NFeatures int             `json:"n_features"`
	Trees     []*DecisionTree `json:"trees"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(opts ForestOptions) *RandomForest {
	if opts.Trees <= 0 {
		opts.Trees = DefaultForestOptions().Trees
	}
	if opts.MinSamplesSplit < 2 {
		opts.MinSamplesSplit = 2
	}
	return &RandomForest{Options: opts}
}

// Fit grows every tree on a bootstrap sample of X.
func (f *RandomForest) Fit(X [][]float64, y []int) error {
	width, err := checkMatrix(X)
	if err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}
	if err := checkLabels(X, y); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}

	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	classIndex := make(map[int]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}
	encoded := make([]int, len(y))
	for i, label := range y {
		encoded[i] = classIndex[label]
	}

	maxFeatures := max(1, int(math.Sqrt(float64(width))))
	rng := newRand(f.Options.Seed, 1)
	n := len(X)

	f.Classes = classes
	f.NFeatures = width
	f.Trees = make([]*DecisionTree, f.Options.Trees)
	for t := range f.Trees {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		treeRng := newRand(rng.Uint64(), uint64(t))
		f.Trees[t] = fitTree(X, encoded, sample, len(classes), f.Options.MaxDepth, f.Options.MinSamplesSplit, maxFeatures, treeRng)
	}
	return nil
}

// PredictProba returns per-row class probabilities, columns in Classes
// order.
func (f *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("forest: %w", ErrNotFitted)
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != f.NFeatures {
			return nil, fmt.Errorf("%w: forest row %d has %d columns, want %d", ErrShape, i, len(x), f.NFeatures)
		}
		p := make([]float64, len(f.Classes))
		for _, t := range f.Trees {
			for c, v := range t.proba(x) {
				p[c] += v
			}
		}
		for c := range p {
			p[c] /= float64(len(f.Trees))
		}
		out[i] = p
	}
	return out, nil
}

// Predict returns the most probable class per row; ties go to the lowest
// class.
func (f *RandomForest) Predict(X [][]float64) ([]int, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		best := 0
		for c := range p {
			if p[c] > p[best] {
				best = c
			}
		}
		out[i] = f.Classes[best]
	}
	return out, nil
}
