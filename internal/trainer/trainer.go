// Package trainer fits the escalation classifier from the train and
// validation partitions. Every transform is fitted on the training rows
// only and replayed unchanged on validation rows.
package trainer

import (
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/raphaelgruber/escalate-go/internal/bundle"
	"github.com/raphaelgruber/escalate-go/internal/dataset"
	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/ml"
)

// Messages attached to degradations.
const (
	MsgConfidenceUnverified = "model confidence unverified"
	MsgNoCVScore            = "no CV score available"
	MsgNoValidation         = "validation partition is empty; model confidence unverified"
)

// Result is a fitted bundle and the report describing how it was produced.
type Result struct {
	Bundle *bundle.Bundle
	Report *Report
}

// Trainer runs the training pipeline with fixed options.
type Trainer struct {
	opts   Options
	logger *slog.Logger

	// newModel builds the classifier scored in each cross-validation fold.
	newModel func() ml.Classifier
}

// New returns a Trainer. Zero-valued resample strategy means none.
func New(opts Options, logger *slog.Logger) (*Trainer, error) {
	if opts.Resample == "" {
		opts.Resample = ml.ResampleNone
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("trainer options: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trainer{opts: opts, logger: logger}
	t.newModel = func() ml.Classifier { return ml.NewRandomForest(t.opts.forest()) }
	return t, nil
}

// Options returns the options the trainer runs with.
func (t *Trainer) Options() Options {
	return t.opts
}

// Fit runs scale, select, cross-validate, resample, fit and evaluate.
// Cross-validation resamples inside each fold so synthetic rows are never
// built from held-out members.
func (t *Trainer) Fit(train, val *dataset.Partition) (*Result, error) {
	start := time.Now()
	if train == nil || train.Len() == 0 {
		return nil, fmt.Errorf("train: %w: training partition has no rows", features.ErrEmptyInput)
	}
	if val == nil {
		val = &dataset.Partition{}
	}
	width := train.Width()
	if val.Len() > 0 && val.Width() != width {
		return nil, fmt.Errorf("train: %w: validation has %d features, training has %d", ml.ErrShape, val.Width(), width)
	}

	report := &Report{
		Options:           t.opts,
		TrainSamples:      train.Len(),
		ValidationSamples: val.Len(),
		TrainClasses:      train.ClassCounts(),
		ValidationClasses: val.ClassCounts(),
	}
	b := &bundle.Bundle{
		Manifest: bundle.Manifest{
			FeatureNames:  t.featureNames(width),
			InputFeatures: width,
		},
	}

	trainX, trainY := train.Features, train.Labels
	valX := val.Features
	var err error

	if t.opts.Scale {
		b.Scaler = &ml.StandardScaler{}
		if err := b.Scaler.Fit(trainX); err != nil {
			return nil, fmt.Errorf("fit scaler: %w", err)
		}
		if trainX, err = b.Scaler.Transform(trainX); err != nil {
			return nil, fmt.Errorf("scale train: %w", err)
		}
		if valX, err = transformRows(b.Scaler, valX); err != nil {
			return nil, fmt.Errorf("scale validation: %w", err)
		}
		t.logger.Info("scaled features", "columns", width)
	}

	if t.opts.SelectK > 0 {
		b.Selector = &ml.SelectKBest{K: t.opts.SelectK}
		if err := b.Selector.Fit(trainX, trainY); err != nil {
			return nil, fmt.Errorf("fit selector: %w", err)
		}
		if trainX, err = b.Selector.Transform(trainX); err != nil {
			return nil, fmt.Errorf("select train: %w", err)
		}
		if valX, err = transformRows(b.Selector, valX); err != nil {
			return nil, fmt.Errorf("select validation: %w", err)
		}
		for _, idx := range b.Selector.Selected {
			fs := FeatureScore{
				Index:  idx,
				Name:   t.opts.featureName(idx),
				Score:  b.Selector.Scores[idx],
				PValue: b.Selector.PValues[idx],
			}
			report.SelectedFeatures = append(report.SelectedFeatures, fs)
			b.Manifest.SelectedFeatures = append(b.Manifest.SelectedFeatures, fs.Name)
		}
		t.logger.Info("selected features", "k", len(b.Selector.Selected), "of", width)
	}

	t.crossValidate(report, trainX, trainY)

	if t.opts.Resample != ml.ResampleNone {
		smote := t.smote()
		var outcomes []ml.ClassResample
		trainX, trainY, outcomes, err = smote.Resample(trainX, trainY)
		if err != nil {
			return nil, fmt.Errorf("resample: %w", err)
		}
		report.Resampling = outcomes
		for _, o := range outcomes {
			if o.Skipped {
				report.degrade(ResamplingSkipped, o.Label, o.Reason)
				t.logger.Warn("resampling skipped", "class", o.Label, "reason", o.Reason)
			}
		}
		t.logger.Info("resampled training set", "strategy", t.opts.Resample, "before", train.Len(), "after", len(trainY))
	}
	report.ResampledSamples = len(trainY)
	report.ResampledClasses = (&dataset.Partition{Labels: trainY}).ClassCounts()

	b.Model = ml.NewRandomForest(t.opts.forest())
	if err := b.Model.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}
	b.Manifest.OutputFeatures = len(trainX[0])
	t.logger.Info("fitted model", "trees", t.opts.Trees, "samples", len(trainY), "features", b.Manifest.OutputFeatures)

	if len(valX) == 0 {
		report.degrade(DegradedEvaluation, 0, MsgNoValidation)
		t.logger.Warn("skipping evaluation", "reason", MsgNoValidation)
	} else {
		pred, err := b.Model.Predict(valX)
		if err != nil {
			return nil, fmt.Errorf("predict validation: %w", err)
		}
		if report.Evaluation, err = ml.Classify(val.Labels, pred); err != nil {
			return nil, fmt.Errorf("evaluate: %w", err)
		}
		t.logger.Info("evaluated model", "accuracy", report.Evaluation.Accuracy, "weighted_f1", report.Evaluation.WeightedAvg.F1)
	}

	report.Duration = time.Since(start)
	return &Result{Bundle: b, Report: report}, nil
}

// crossValidate scores the scaled and selected training set with
// stratified folds, oversampling each fold's training rows when resampling
// is on. Failures degrade the report instead of aborting the run.
func (t *Trainer) crossValidate(report *Report, X [][]float64, y []int) {
	if t.opts.CVFolds == 0 {
		return
	}

	counts := (&dataset.Partition{Labels: y}).ClassCounts()
	k := min(t.opts.CVFolds, len(y))
	for _, n := range counts {
		k = min(k, n)
	}
	report.CVFolds = k
	if k < 2 {
		report.degrade(DegradedEvaluation, 0, MsgConfidenceUnverified)
		t.logger.Warn("skipping cross-validation", "folds", k, "reason", MsgConfidenceUnverified)
		return
	}

	folds, err := ml.StratifiedKFold(y, k, t.opts.Seed)
	if err == nil {
		report.CVScores, err = ml.CrossValidateWith(t.newModel, X, y, folds, t.foldPrep())
	}
	if err != nil {
		report.CVScores = nil
		report.degrade(DegradedEvaluation, 0, MsgNoCVScore)
		t.logger.Warn("cross-validation failed", "error", err)
		return
	}

	report.CVMean, report.CVStd = stat.PopMeanStdDev(report.CVScores, nil)
	report.CVAvailable = true
	t.logger.Info("cross-validated", "folds", k, "mean_f1", report.CVMean, "std", report.CVStd)
}

func (t *Trainer) smote() *ml.SMOTE {
	return &ml.SMOTE{K: t.opts.SMOTENeighbors, Strategy: t.opts.Resample, Seed: t.opts.Seed}
}

// foldPrep oversamples a fold's training rows, or is nil without resampling.
func (t *Trainer) foldPrep() ml.FoldPrep {
	if t.opts.Resample == ml.ResampleNone {
		return nil
	}
	smote := t.smote()
	return func(X [][]float64, y []int) ([][]float64, []int, error) {
		X, y, _, err := smote.Resample(X, y)
		return X, y, err
	}
}

func (t *Trainer) featureNames(width int) []string {
	names := make([]string, width)
	for i := range names {
		names[i] = t.opts.featureName(i)
	}
	return names
}

// transformRows applies tr unless X is empty.
func transformRows(tr ml.Transformer, X [][]float64) ([][]float64, error) {
	if len(X) == 0 {
		return X, nil
	}
	return tr.Transform(X)
}
