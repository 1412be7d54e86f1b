package ml

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// FClassif computes the one-way ANOVA F statistic and its p-value for each
// feature against the class labels. Features without within-class variance
// or degrees of freedom score NaN.
func FClassif(X [][]float64, y []int) (scores, pvalues []float64, err error) {
	width, err := checkMatrix(X)
	if err != nil {
		return nil, nil, err
	}
	if err := checkLabels(X, y); err != nil {
		return nil, nil, err
	}

	groups := make(map[int][]int)
	for i, label := range y {
		groups[label] = append(groups[label], i)
	}
	n, k := float64(len(y)), float64(len(groups))
	dfBetween, dfWithin := k-1, n-k

	scores = make([]float64, width)
	pvalues = make([]float64, width)
	for j := range width {
		var total float64
		for _, row := range X {
			total += row[j]
		}
		grand := total / n

		var ssBetween, ssWithin float64
		for _, idx := range groups {
			var sum float64
			for _, i := range idx {
				sum += X[i][j]
			}
			mean := sum / float64(len(idx))
			ssBetween += float64(len(idx)) * (mean - grand) * (mean - grand)
			for _, i := range idx {
				d := X[i][j] - mean
				ssWithin += d * d
			}
		}

		if dfBetween <= 0 || dfWithin <= 0 || ssWithin == 0 {
			scores[j], pvalues[j] = math.NaN(), math.NaN()
			continue
		}
		f := (ssBetween / dfBetween) / (ssWithin / dfWithin)
		scores[j] = f
		pvalues[j] = distuv.F{D1: dfBetween, D2: dfWithin}.Survival(f)
	}
	return scores, pvalues, nil
}

// SelectKBest keeps the K features with the highest ANOVA F score. Selected
// indices are stored in ascending column order so the output preserves the
// input column order.
type SelectKBest struct {
	K        int       `json:"k"`
	Width    int       `json:"width"`
	Scores   []float64 `json:"-"`
	PValues  []float64 `json:"-"`
	Selected []int     `json:"selected"`
}

// Fit scores every feature of X and chooses the top K. NaN scores rank
// below every number; ties keep the lower column index.
func (s *SelectKBest) Fit(X [][]float64, y []int) error {
	if s.K <= 0 {
		return fmt.Errorf("select k best: k must be positive, got %d", s.K)
	}
	scores, pvalues, err := FClassif(X, y)
	if err != nil {
		return fmt.Errorf("select k best: %w", err)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	rank := func(v float64) float64 {
		if math.IsNaN(v) {
			return math.Inf(-1)
		}
		return v
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(rank(scores[b]), rank(scores[a]))
	})

	k := min(s.K, len(scores))
	s.Selected = slices.Clone(order[:k])
	slices.Sort(s.Selected)
	s.Width = len(scores)
	s.Scores = scores
	s.PValues = pvalues
	return nil
}

// Transform keeps the selected columns of X.
func (s *SelectKBest) Transform(X [][]float64) ([][]float64, error) {
	if s.Selected == nil {
		return nil, fmt.Errorf("selector: %w", ErrNotFitted)
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != s.Width {
			return nil, fmt.Errorf("%w: selector row %d has %d columns, want %d", ErrShape, i, len(row), s.Width)
		}
		out[i] = make([]float64, len(s.Selected))
		for j, col := range s.Selected {
			out[i][j] = row[col]
		}
	}
	return out, nil
}
