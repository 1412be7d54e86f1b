package ml

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// ResampleStrategy selects which classes SMOTE oversamples.
type ResampleStrategy string

const (
	// ResampleNone disables oversampling.
	ResampleNone ResampleStrategy = "none"
	// ResampleSMOTE raises every non-majority class to the majority count.
	ResampleSMOTE ResampleStrategy = "smote"
	// ResampleMinority raises only the smallest class to the majority count.
	ResampleMinority ResampleStrategy = "minority"
)

// ParseResampleStrategy validates s. The empty string means none.
func ParseResampleStrategy(s string) (ResampleStrategy, error) {
	switch ResampleStrategy(s) {
	case "", ResampleNone:
		return ResampleNone, nil
	case ResampleSMOTE, ResampleMinority:
		return ResampleStrategy(s), nil
	}
	return "", fmt.Errorf("unknown resample strategy %q", s)
}

// ClassResample describes what SMOTE did to one class.
type ClassResample struct {
	Label     int
	Before    int
	After     int
	Neighbors int
	Skipped   bool
	Reason    string
}

// SMOTE synthesizes minority samples by interpolating between a sample and
// one of its K nearest same-class neighbours.
type SMOTE struct {
	K        int
	Strategy ResampleStrategy
	Seed     uint64
}

// Resample returns X and y followed by the synthetic rows. A class with
// fewer than K+1 members uses fewer neighbours; a class with a single member
// cannot be interpolated and is left as is.
func (s *SMOTE) Resample(X [][]float64, y []int) ([][]float64, []int, []ClassResample, error) {
	if _, err := checkMatrix(X); err != nil {
		return nil, nil, nil, fmt.Errorf("smote: %w", err)
	}
	if err := checkLabels(X, y); err != nil {
		return nil, nil, nil, fmt.Errorf("smote: %w", err)
	}
	if s.K <= 0 {
		return nil, nil, nil, fmt.Errorf("smote: k must be positive, got %d", s.K)
	}

	members := make(map[int][]int)
	for i, label := range y {
		members[label] = append(members[label], i)
	}
	labels := make([]int, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	majority := 0
	for _, label := range labels {
		majority = max(majority, len(members[label]))
	}

	targets := s.targets(labels, members, majority)
	outX := slices.Clone(X)
	outY := slices.Clone(y)
	rng := newRand(s.Seed, 2)

	var outcomes []ClassResample
	for _, label := range targets {
		idx := members[label]
		outcome := ClassResample{Label: label, Before: len(idx), After: len(idx)}
		if len(idx) < 2 {
			outcome.Skipped = true
			outcome.Reason = "a single member has no neighbours to interpolate with"
			outcomes = append(outcomes, outcome)
			continue
		}

		k := min(s.K, len(idx)-1)
		outcome.Neighbors = k
		if k < s.K {
			outcome.Reason = fmt.Sprintf("neighbours reduced from %d to %d", s.K, k)
		}
		neighbors := nearestNeighbors(X, idx, k)

		for range majority - len(idx) {
			a := rng.IntN(len(idx))
			b := neighbors[a][rng.IntN(k)]
			gap := rng.Float64()

			base, other := X[idx[a]], X[b]
			synthetic := make([]float64, len(base))
			for j := range base {
				synthetic[j] = base[j] + gap*(other[j]-base[j])
			}
			outX = append(outX, synthetic)
			outY = append(outY, label)
		}
		outcome.After = majority
		outcomes = append(outcomes, outcome)
	}
	return outX, outY, outcomes, nil
}

func (s *SMOTE) targets(labels []int, members map[int][]int, majority int) []int {
	var targets []int
	switch s.Strategy {
	case ResampleMinority:
		smallest, found := 0, false
		for _, label := range labels {
			n := len(members[label])
			if n < majority && (!found || n < len(members[smallest])) {
				smallest, found = label, true
			}
		}
		if found {
			targets = append(targets, smallest)
		}
	case ResampleSMOTE:
		for _, label := range labels {
			if len(members[label]) < majority {
				targets = append(targets, label)
			}
		}
	}
	return targets
}

// nearestNeighbors returns, for each position in idx, the row indices of its
// k nearest other members by Euclidean distance. Ties keep row order.
func nearestNeighbors(X [][]float64, idx []int, k int) [][]int {
	out := make([][]int, len(idx))
	type candidate struct {
		row  int
		dist float64
	}
	for a, i := range idx {
		cands := make([]candidate, 0, len(idx)-1)
		for _, j := range idx {
			if j == i {
				continue
			}
			cands = append(cands, candidate{row: j, dist: floats.Distance(X[i], X[j], 2)})
		}
		slices.SortStableFunc(cands, func(p, q candidate) int {
			return cmp.Compare(p.dist, q.dist)
		})
		out[a] = make([]int, k)
		for n := range k {
			out[a][n] = cands[n].row
		}
	}
	return out
}
