package trainer

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/escalate-go/internal/dataset"
	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/ml"
	"github.com/raphaelgruber/escalate-go/internal/models"
)

// clusters returns sizes[i] rows of class i around distinct centers, with a
// constant third column.
func clusters(sizes ...int) *dataset.Partition {
	p := &dataset.Partition{}
	for label, n := range sizes {
		c := float64(label * 10)
		for i := range n {
			jitter := float64(i%4) * 0.2
			p.Features = append(p.Features, []float64{c + jitter, c - jitter, 3})
			p.Labels = append(p.Labels, label)
		}
	}
	return p
}

func newTrainer(t *testing.T, mutate func(*Options)) *Trainer {
	t.Helper()
	opts := DefaultOptions()
	opts.Trees = 15
	if mutate != nil {
		mutate(&opts)
	}
	tr, err := New(opts, nil)
	require.NoError(t, err)
	return tr
}

func TestFit_Baseline(t *testing.T) {
	tr := newTrainer(t, nil)
	res, err := tr.Fit(clusters(12, 12), clusters(3, 3))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 24, r.TrainSamples)
	assert.Equal(t, 6, r.ValidationSamples)
	assert.Equal(t, map[int]int{0: 12, 1: 12}, r.TrainClasses)
	assert.Equal(t, 5, r.CVFolds)
	assert.True(t, r.CVAvailable)
	assert.Len(t, r.CVScores, 5)
	assert.InDelta(t, 1.0, r.CVMean, 1e-9)
	require.NotNil(t, r.Evaluation)
	assert.Equal(t, 1.0, r.Evaluation.Accuracy)
	assert.Empty(t, r.Degradations)

	b := res.Bundle
	assert.Nil(t, b.Scaler)
	assert.Nil(t, b.Selector)
	assert.Equal(t, 3, b.Manifest.InputFeatures)
	assert.Equal(t, 3, b.Manifest.OutputFeatures)
}

func TestFit_EmptyTraining(t *testing.T) {
	_, err := newTrainer(t, nil).Fit(&dataset.Partition{}, clusters(1, 1))
	assert.ErrorIs(t, err, features.ErrEmptyInput)
}

func TestFit_WidthMismatch(t *testing.T) {
	val := &dataset.Partition{Labels: []int{0}, Features: [][]float64{{1, 2}}}
	_, err := newTrainer(t, nil).Fit(clusters(4, 4), val)
	assert.ErrorIs(t, err, ml.ErrShape)
}

func TestFit_EmptyValidationDegrades(t *testing.T) {
	res, err := newTrainer(t, nil).Fit(clusters(6, 6), &dataset.Partition{})
	require.NoError(t, err)
	assert.Nil(t, res.Report.Evaluation)
	assert.True(t, res.Report.Degraded(DegradedEvaluation))
	assert.NotNil(t, res.Bundle.Model)
}

func TestFit_CVSkippedForTinyClass(t *testing.T) {
	res, err := newTrainer(t, nil).Fit(clusters(8, 1), clusters(1, 1))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 1, r.CVFolds)
	assert.False(t, r.CVAvailable)
	assert.Empty(t, r.CVScores)
	require.True(t, r.Degraded(DegradedEvaluation))
	assert.Equal(t, MsgConfidenceUnverified, r.Degradations[0].Message)
}

func TestFit_CVFoldsCappedBySmallestClass(t *testing.T) {
	res, err := newTrainer(t, nil).Fit(clusters(10, 3), clusters(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Report.CVFolds)
	assert.Len(t, res.Report.CVScores, 3)
}

func TestFit_CVDisabled(t *testing.T) {
	res, err := newTrainer(t, func(o *Options) { o.CVFolds = 0 }).Fit(clusters(5, 5), clusters(1, 1))
	require.NoError(t, err)
	assert.False(t, res.Report.CVAvailable)
	assert.Empty(t, res.Report.Degradations)
}

// brokenClassifier fails to fit, as a fold missing a class would.
type brokenClassifier struct{}

func (brokenClassifier) Fit([][]float64, []int) error {
	return errors.New("fold lacks class 1")
}

func (brokenClassifier) Predict(X [][]float64) ([]int, error) {
	return make([]int, len(X)), nil
}

func TestFit_CVFailureDegrades(t *testing.T) {
	tr := newTrainer(t, nil)
	tr.newModel = func() ml.Classifier { return brokenClassifier{} }

	res, err := tr.Fit(clusters(6, 6), clusters(2, 2))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 5, r.CVFolds)
	assert.False(t, r.CVAvailable)
	assert.Nil(t, r.CVScores)
	assert.Zero(t, r.CVMean)
	require.True(t, r.Degraded(DegradedEvaluation))
	assert.Equal(t, []Degradation{{Kind: DegradedEvaluation, Message: MsgNoCVScore}}, r.Degradations)

	require.NotNil(t, res.Bundle.Model, "final fit still runs")
	require.NotNil(t, r.Evaluation)
	assert.Equal(t, 1.0, r.Evaluation.Accuracy)
}

// countingClassifier records the training rows of every fold.
type countingClassifier struct {
	fits *[]map[int]int
}

func (c countingClassifier) Fit(_ [][]float64, y []int) error {
	*c.fits = append(*c.fits, (&dataset.Partition{Labels: y}).ClassCounts())
	return nil
}

func (countingClassifier) Predict(X [][]float64) ([]int, error) {
	return make([]int, len(X)), nil
}

func TestFit_CVResamplesInsideFolds(t *testing.T) {
	tr := newTrainer(t, func(o *Options) { o.Resample = ml.ResampleSMOTE })
	var fits []map[int]int
	tr.newModel = func() ml.Classifier { return countingClassifier{fits: &fits} }

	res, err := tr.Fit(clusters(12, 4), clusters(3, 1))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, 4, r.CVFolds, "folds are cut from real rows only")
	require.Len(t, fits, 4)
	for g, counts := range fits {
		// 9 majority and 3 minority rows remain per fold; SMOTE balances them.
		assert.Equal(t, map[int]int{0: 9, 1: 9}, counts, "fold %d", g+1)
	}
	assert.Equal(t, map[int]int{0: 12, 1: 12}, r.ResampledClasses)
}

func TestFit_ScalerFittedOnTrainingOnly(t *testing.T) {
	train := clusters(6, 6)
	val := &dataset.Partition{
		Labels:   []int{0, 1},
		Features: [][]float64{{1000, -1000, 3}, {train.Features[0][0], train.Features[0][1], 3}},
	}

	res, err := newTrainer(t, func(o *Options) { o.Scale = true }).Fit(train, val)
	require.NoError(t, err)

	var want ml.StandardScaler
	require.NoError(t, want.Fit(train.Features))
	assert.Equal(t, want.Mean, res.Bundle.Scaler.Mean)
	assert.Equal(t, want.Scale, res.Bundle.Scaler.Scale)
}

func TestFit_IdenticalRowsTransformIdentically(t *testing.T) {
	train := clusters(6, 6)
	row := train.Features[7]
	val := &dataset.Partition{Labels: []int{train.Labels[7]}, Features: [][]float64{append([]float64(nil), row...)}}

	res, err := newTrainer(t, func(o *Options) {
		o.Scale = true
		o.SelectK = 2
	}).Fit(train, val)
	require.NoError(t, err)

	b := res.Bundle
	fromTrain, err := b.Scaler.Transform([][]float64{row})
	require.NoError(t, err)
	fromVal, err := b.Scaler.Transform(val.Features)
	require.NoError(t, err)
	assert.Equal(t, fromTrain, fromVal)

	pred, err := b.Predict(val.Features)
	require.NoError(t, err)
	assert.Equal(t, val.Labels, pred)
}

func TestFit_Selection(t *testing.T) {
	res, err := newTrainer(t, func(o *Options) {
		o.SelectK = 2
		o.FeatureNames = []string{"x", "y", "constant"}
	}).Fit(clusters(6, 6), clusters(2, 2))
	require.NoError(t, err)

	require.Len(t, res.Report.SelectedFeatures, 2)
	assert.Equal(t, "x", res.Report.SelectedFeatures[0].Name)
	assert.Equal(t, "y", res.Report.SelectedFeatures[1].Name)
	assert.Equal(t, []string{"x", "y"}, res.Bundle.Manifest.SelectedFeatures)
	assert.Equal(t, 2, res.Bundle.Manifest.OutputFeatures)
	assert.Equal(t, 3, res.Bundle.Manifest.InputFeatures)
}

func TestFit_SMOTEBalancesTrainingOnly(t *testing.T) {
	res, err := newTrainer(t, func(o *Options) { o.Resample = ml.ResampleSMOTE }).Fit(clusters(12, 4), clusters(3, 1))
	require.NoError(t, err)

	r := res.Report
	assert.Equal(t, map[int]int{0: 12, 1: 12}, r.ResampledClasses)
	assert.Equal(t, 24, r.ResampledSamples)
	assert.Equal(t, map[int]int{0: 3, 1: 1}, r.ValidationClasses, "validation is never resampled")
	assert.Equal(t, 4, r.Evaluation.Support)
}

func TestFit_ResamplingSkippedSingleMember(t *testing.T) {
	res, err := newTrainer(t, func(o *Options) { o.Resample = ml.ResampleSMOTE }).Fit(clusters(6, 1), clusters(1, 1))
	require.NoError(t, err)

	r := res.Report
	require.True(t, r.Degraded(ResamplingSkipped))
	for _, d := range r.Degradations {
		if d.Kind == ResamplingSkipped {
			assert.Equal(t, 1, d.Class)
		}
	}
	assert.Equal(t, map[int]int{0: 6, 1: 1}, r.ResampledClasses)
}

func TestDegradation_JSONKeepsClassZero(t *testing.T) {
	data, err := json.Marshal(Degradation{Kind: ResamplingSkipped, Class: 0, Message: "single member"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"resampling_skipped","class":0,"message":"single member"}`, string(data))
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"negative select", func(o *Options) { o.SelectK = -1 }},
		{"unknown resample", func(o *Options) { o.Resample = "adasyn" }},
		{"no trees", func(o *Options) { o.Trees = 0 }},
		{"negative folds", func(o *Options) { o.CVFolds = -2 }},
		{"smote without neighbours", func(o *Options) {
			o.Resample = ml.ResampleSMOTE
			o.SMOTENeighbors = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := New(opts, nil)
			assert.Error(t, err)
		})
	}
}

func TestFit_SampleData(t *testing.T) {
	now := time.Date(2025, 6, 11, 17, 30, 0, 0, time.UTC)
	m, err := features.NewBuilder(now).Build(models.SampleTasks(), models.SampleSchedules(), models.SampleUsers())
	require.NoError(t, err)
	split, err := features.Split(m, features.DefaultSplitOptions())
	require.NoError(t, err)

	res, err := newTrainer(t, func(o *Options) { o.FeatureNames = features.FeatureNames }).Fit(split.Train, split.Validation)
	require.NoError(t, err)

	assert.Equal(t, features.FeatureNames, res.Bundle.Manifest.FeatureNames)
	require.NotNil(t, res.Report.Evaluation)
	assert.Equal(t, split.Validation.Len(), res.Report.Evaluation.Support)
	for _, c := range res.Report.Evaluation.Classes {
		assert.Less(t, c.Label, m.Universe.Size(features.ColumnTarget))
	}
}
