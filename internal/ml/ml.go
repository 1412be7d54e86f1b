// Package ml holds the learning primitives the trainer composes: feature
// scaling and selection, minority oversampling, stratified folds, a random
// forest classifier and classification metrics. Every randomized step takes
// an explicit seed so runs are reproducible.
package ml

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var (
	// ErrNotFitted indicates a transform or model used before Fit.
	ErrNotFitted = errors.New("not fitted")

	// ErrShape indicates inputs whose dimensions do not line up.
	ErrShape = errors.New("shape mismatch")
)

// Classifier is a model that learns integer class labels.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
}

// Transformer is a fitted, row-wise feature transform.
type Transformer interface {
	Transform(X [][]float64) ([][]float64, error)
}

func newRand(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, stream))
}

// checkMatrix validates that X is non-empty and rectangular and returns its
// width.
func checkMatrix(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, fmt.Errorf("%w: no rows", ErrShape)
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), width)
		}
	}
	return width, nil
}

func checkLabels(X [][]float64, y []int) error {
	if len(X) != len(y) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrShape, len(X), len(y))
	}
	return nil
}

func column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i, row := range X {
		col[i] = row[j]
	}
	return col
}
