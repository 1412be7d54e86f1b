package ml

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns three well separated clusters of sizes n0, n1, n2 in two
// informative dimensions plus one constant and one noisy column.
func blobs(n0, n1, n2 int) ([][]float64, []int) {
	var X [][]float64
	var y []int
	centers := [][2]float64{{0, 0}, {10, 10}, {-10, -20}}
	for label, n := range []int{n0, n1, n2} {
		for i := range n {
			jitter := float64(i%5) * 0.1
			X = append(X, []float64{centers[label][0] + jitter, centers[label][1] - jitter, 7, float64(i % 3)})
			y = append(y, label)
		}
	}
	return X, y
}

func TestStandardScalerRoundTrip(t *testing.T) {
	X := [][]float64{{1, 5, 3}, {2, 5, -1}, {3, 5, 10}, {10, 5, 0.5}}

	var s StandardScaler
	require.NoError(t, s.Fit(X))
	assert.InDelta(t, 4.0, s.Mean[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")

	scaled, err := s.Transform(X)
	require.NoError(t, err)

	var sum, sq float64
	for _, row := range scaled {
		sum += row[0]
		sq += row[0] * row[0]
	}
	assert.InDelta(t, 0, sum/4, 1e-12)
	assert.InDelta(t, 1, sq/4, 1e-12, "population variance is 1")

	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	if diff := cmp.Diff(X, back, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("InverseTransform mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3.0, X[0][2], "input untouched")
}

func TestStandardScalerErrors(t *testing.T) {
	var s StandardScaler
	_, err := s.Transform([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, s.Fit([][]float64{{1, 2}, {3, 4}}))
	_, err = s.Transform([][]float64{{1}})
	assert.ErrorIs(t, err, ErrShape)

	assert.ErrorIs(t, s.Fit(nil), ErrShape)
}

func TestFClassif(t *testing.T) {
	X, y := blobs(5, 5, 5)
	scores, pvalues, err := FClassif(X, y)
	require.NoError(t, err)

	assert.Greater(t, scores[0], 100.0)
	assert.Less(t, pvalues[0], 1e-6)
	assert.True(t, math.IsNaN(scores[2]), "constant column has no within-class variance")
	assert.Less(t, scores[3], scores[0])
}

func TestSelectKBest(t *testing.T) {
	X, y := blobs(5, 5, 5)
	s := SelectKBest{K: 2}
	require.NoError(t, s.Fit(X, y))
	assert.Equal(t, []int{0, 1}, s.Selected)

	out, err := s.Transform([][]float64{{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, out)

	all := SelectKBest{K: 10}
	require.NoError(t, all.Fit(X, y))
	assert.Equal(t, []int{0, 1, 2, 3}, all.Selected)

	_, err = all.Transform([][]float64{{1, 2}})
	assert.ErrorIs(t, err, ErrShape)
	assert.Error(t, (&SelectKBest{}).Fit(X, y))
}

func TestSMOTEBalancesClasses(t *testing.T) {
	X, y := blobs(8, 4, 3)
	s := SMOTE{K: 5, Strategy: ResampleSMOTE, Seed: 42}

	outX, outY, outcomes, err := s.Resample(X, y)
	require.NoError(t, err)
	require.Len(t, outX, 24)
	assert.Equal(t, X, outX[:len(X)], "original rows come first")

	counts := map[int]int{}
	for _, label := range outY {
		counts[label]++
	}
	assert.Equal(t, map[int]int{0: 8, 1: 8, 2: 8}, counts)

	require.Len(t, outcomes, 2)
	assert.Equal(t, ClassResample{Label: 1, Before: 4, After: 8, Neighbors: 3, Reason: "neighbours reduced from 5 to 3"}, outcomes[0])
	assert.Equal(t, 2, outcomes[1].Neighbors)

	// Synthetic rows lie between members of their own cluster.
	for i := len(X); i < len(outX); i++ {
		if outY[i] == 1 {
			assert.InDelta(t, 10, outX[i][0], 0.5)
			assert.InDelta(t, 10, outX[i][1], 0.5)
		}
	}
}

func TestSMOTESkipsSingleMemberClass(t *testing.T) {
	X, y := blobs(4, 1, 2)
	s := SMOTE{K: 5, Strategy: ResampleSMOTE, Seed: 1}

	outX, outY, outcomes, err := s.Resample(X, y)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Skipped)
	assert.Equal(t, 1, outcomes[0].After)
	assert.False(t, outcomes[1].Skipped)
	assert.Len(t, outX, len(X)+2)
	assert.Len(t, outY, len(X)+2)
}

func TestSMOTEMinorityStrategy(t *testing.T) {
	X, y := blobs(6, 4, 3)
	s := SMOTE{K: 2, Strategy: ResampleMinority, Seed: 1}

	_, outY, outcomes, err := s.Resample(X, y)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 2, outcomes[0].Label)
	assert.Len(t, outY, len(y)+3)
}

func TestSMOTEIsDeterministic(t *testing.T) {
	X, y := blobs(6, 3, 2)
	s := SMOTE{K: 5, Strategy: ResampleSMOTE, Seed: 7}
	a, _, _, err := s.Resample(X, y)
	require.NoError(t, err)
	b, _, _, err := s.Resample(X, y)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseResampleStrategy(t *testing.T) {
	got, err := ParseResampleStrategy("")
	require.NoError(t, err)
	assert.Equal(t, ResampleNone, got)
	got, err = ParseResampleStrategy("minority")
	require.NoError(t, err)
	assert.Equal(t, ResampleMinority, got)
	_, err = ParseResampleStrategy("adasyn")
	assert.Error(t, err)
}

func TestStratifiedKFold(t *testing.T) {
	y := []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 2, 2, 2}
	folds, err := StratifiedKFold(y, 3, 42)
	require.NoError(t, err)
	require.Len(t, folds, 3)

	seen := map[int]int{}
	for _, f := range folds {
		assert.Len(t, f.Train, len(y)-len(f.Test))
		classes := map[int]int{}
		for _, i := range f.Test {
			seen[i]++
			classes[y[i]]++
		}
		assert.Equal(t, map[int]int{0: 2, 1: 1, 2: 1}, classes)
	}
	assert.Len(t, seen, len(y), "every row is tested exactly once")

	_, err = StratifiedKFold(y, 1, 42)
	assert.Error(t, err)
	_, err = StratifiedKFold([]int{0, 1}, 3, 42)
	assert.Error(t, err)
}

func TestRandomForestSeparable(t *testing.T) {
	X, y := blobs(6, 6, 6)
	f := NewRandomForest(ForestOptions{Trees: 25, Seed: 42})
	require.NoError(t, f.Fit(X, y))
	assert.Equal(t, []int{0, 1, 2}, f.Classes)

	pred, err := f.Predict([][]float64{{0.2, -0.1, 7, 1}, {9.8, 10.1, 7, 0}, {-9.9, -19.9, 7, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, pred)

	proba, err := f.PredictProba(X[:1])
	require.NoError(t, err)
	var sum float64
	for _, p := range proba[0] {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-9)

	_, err = f.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrShape)
}

func TestRandomForestDeterministicAndSerializable(t *testing.T) {
	X, y := blobs(5, 4, 3)
	a := NewRandomForest(ForestOptions{Trees: 10, Seed: 3})
	b := NewRandomForest(ForestOptions{Trees: 10, Seed: 3})
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	pa, err := a.PredictProba(X)
	require.NoError(t, err)
	pb, err := b.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	var restored RandomForest
	require.NoError(t, json.Unmarshal(data, &restored))
	pr, err := restored.PredictProba(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pr)
}

func TestRandomForestMaxDepth(t *testing.T) {
	X, y := blobs(5, 5, 5)
	f := NewRandomForest(ForestOptions{Trees: 5, MaxDepth: 1, Seed: 1})
	require.NoError(t, f.Fit(X, y))
	for _, tree := range f.Trees {
		assert.LessOrEqual(t, tree.Depth(), 1)
	}
}

func TestUnfittedForest(t *testing.T) {
	_, err := NewRandomForest(DefaultForestOptions()).Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestClassify(t *testing.T) {
	r, err := Classify([]int{0, 1, 2, 2, 2}, []int{0, 0, 2, 2, 1})
	require.NoError(t, err)
	require.Len(t, r.Classes, 3)

	assert.InDelta(t, 0.5, r.Classes[0].Precision, 1e-9)
	assert.InDelta(t, 1.0, r.Classes[0].Recall, 1e-9)
	assert.InDelta(t, 2.0/3, r.Classes[0].F1, 1e-9)
	assert.Zero(t, r.Classes[1].F1)
	assert.InDelta(t, 0.8, r.Classes[2].F1, 1e-9)
	assert.Equal(t, 3, r.Classes[2].Support)
	assert.InDelta(t, 0.6, r.Accuracy, 1e-9)
	assert.InDelta(t, (2.0/3+0+0.8)/3, r.MacroAvg.F1, 1e-9)
	assert.InDelta(t, (2.0/3+3*0.8)/5, r.WeightedAvg.F1, 1e-9)

	f1, err := WeightedF1([]int{1, 1}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, f1)

	_, err = Classify([]int{1}, nil)
	assert.ErrorIs(t, err, ErrShape)
	_, err = Classify(nil, nil)
	assert.Error(t, err)
}

func TestCrossValidate(t *testing.T) {
	X, y := blobs(6, 6, 6)
	folds, err := StratifiedKFold(y, 3, 42)
	require.NoError(t, err)

	scores, err := CrossValidate(func() Classifier {
		return NewRandomForest(ForestOptions{Trees: 10, Seed: 42})
	}, X, y, folds)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for _, s := range scores {
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestCrossValidateWith_PrepSeesTrainingRowsOnly(t *testing.T) {
	X, y := blobs(6, 6, 3)
	folds, err := StratifiedKFold(y, 3, 42)
	require.NoError(t, err)

	var seen [][]int
	prep := func(fx [][]float64, fy []int) ([][]float64, []int, error) {
		var rows []int
		for _, row := range fx {
			for i := range X {
				if &X[i][0] == &row[0] {
					rows = append(rows, i)
				}
			}
		}
		seen = append(seen, rows)
		out, outY, _, err := (&SMOTE{K: 2, Strategy: ResampleSMOTE, Seed: 1}).Resample(fx, fy)
		return out, outY, err
	}

	scores, err := CrossValidateWith(func() Classifier {
		return NewRandomForest(ForestOptions{Trees: 10, Seed: 42})
	}, X, y, folds, prep)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	require.Len(t, seen, 3)
	for g, fold := range folds {
		assert.ElementsMatch(t, fold.Train, seen[g], "fold %d", g+1)
		for _, i := range fold.Test {
			assert.NotContains(t, seen[g], i, "fold %d leaked held-out row %d", g+1, i)
		}
	}
}

func TestCrossValidateWith_PrepError(t *testing.T) {
	X, y := blobs(4, 4, 4)
	folds, err := StratifiedKFold(y, 2, 42)
	require.NoError(t, err)

	_, err = CrossValidateWith(func() Classifier {
		return NewRandomForest(ForestOptions{Trees: 5, Seed: 42})
	}, X, y, folds, func([][]float64, []int) ([][]float64, []int, error) {
		return nil, nil, errors.New("no neighbours")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fold 1: prepare: no neighbours")
}
