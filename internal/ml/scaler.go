package ml

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature to zero mean and unit variance using
// the population standard deviation of the data it was fitted on. A
// constant feature keeps scale 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns per-feature mean and scale from X.
func (s *StandardScaler) Fit(X [][]float64) error {
	width, err := checkMatrix(X)
	if err != nil {
		return fmt.Errorf("fit scaler: %w", err)
	}

	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	for j := range width {
		mean, std := stat.PopMeanStdDev(column(X, j), nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return nil
}

func (s *StandardScaler) check(X [][]float64) error {
	if s.Mean == nil {
		return fmt.Errorf("scaler: %w", ErrNotFitted)
	}
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return fmt.Errorf("%w: scaler row %d has %d columns, want %d", ErrShape, i, len(row), len(s.Mean))
		}
	}
	return nil
}

// Transform returns a scaled copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = (v - s.Mean[j]) / s.Scale[j]
		}
	}
	return out, nil
}

// InverseTransform maps scaled values back to the original units.
func (s *StandardScaler) InverseTransform(X [][]float64) ([][]float64, error) {
	if err := s.check(X); err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v*s.Scale[j] + s.Mean[j]
		}
	}
	return out, nil
}
