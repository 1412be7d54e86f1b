package ml

import (
	"fmt"
	"slices"
)

// Fold is one train/test split of row indices.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits rows into k folds that each hold roughly the same
// share of every class. Members of each class are shuffled with seed and
// dealt round-robin across folds.
func StratifiedKFold(y []int, k int, seed uint64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("stratified k-fold: need at least 2 folds, got %d", k)
	}
	if k > len(y) {
		return nil, fmt.Errorf("stratified k-fold: %d folds for %d samples", k, len(y))
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

	rng := newRand(seed, 3)
	assign := make([]int, len(y))
	offset := 0
	for _, label := range labels {
		idx := slices.Clone(members[label])
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for n, i := range idx {
			assign[i] = (offset + n) % k
		}
		offset += len(idx)
	}

	folds := make([]Fold, k)
	for i, f := range assign {
		for g := range folds {
			if g == f {
				folds[g].Test = append(folds[g].Test, i)
			} else {
				folds[g].Train = append(folds[g].Train, i)
			}
		}
	}
	for g, fold := range folds {
		if len(fold.Test) == 0 {
			return nil, fmt.Errorf("stratified k-fold: fold %d is empty", g+1)
		}
	}
	return folds, nil
}

// FoldPrep transforms the training rows of one fold before the model is
// fitted on them. It never sees the fold's held-out rows.
type FoldPrep func(X [][]float64, y []int) ([][]float64, []int, error)

// CrossValidate fits a fresh model per fold and returns each fold's
// support-weighted F1 on its held-out rows.
func CrossValidate(newModel func() Classifier, X [][]float64, y []int, folds []Fold) ([]float64, error) {
	return CrossValidateWith(newModel, X, y, folds, nil)
}

// CrossValidateWith is CrossValidate with prep applied to each fold's
// training rows. A nil prep fits on the rows as they are.
func CrossValidateWith(newModel func() Classifier, X [][]float64, y []int, folds []Fold, prep FoldPrep) ([]float64, error) {
	if err := checkLabels(X, y); err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(folds))
	for g, fold := range folds {
		trainX, trainY := take(X, y, fold.Train)
		testX, testY := take(X, y, fold.Test)
		if prep != nil {
			var err error
			if trainX, trainY, err = prep(trainX, trainY); err != nil {
				return nil, fmt.Errorf("fold %d: prepare: %w", g+1, err)
			}
		}

		model := newModel()
		if err := model.Fit(trainX, trainY); err != nil {
			return nil, fmt.Errorf("fold %d: fit: %w", g+1, err)
		}
		pred, err := model.Predict(testX)
		if err != nil {
			return nil, fmt.Errorf("fold %d: predict: %w", g+1, err)
		}
		score, err := WeightedF1(testY, pred)
		if err != nil {
			return nil, fmt.Errorf("fold %d: score: %w", g+1, err)
		}
		scores = append(scores, score)
	}
	return scores, nil
}

func take(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for n, i := range idx {
		outX[n] = X[i]
		outY[n] = y[i]
	}
	return outX, outY
}
