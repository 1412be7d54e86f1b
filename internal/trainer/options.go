package trainer

import (
	"fmt"

	"github.com/raphaelgruber/escalate-go/internal/ml"
)

// Options toggles the stages of the training pipeline.
type Options struct {
	Scale          bool                `yaml:"scale"`
	SelectK        int                 `yaml:"select_k"` // 0 keeps every feature
	Resample       ml.ResampleStrategy `yaml:"resample"`
	SMOTENeighbors int                 `yaml:"smote_neighbors"`
	// CVFolds is the upper bound on folds; 0 disables cross-validation.
	CVFolds         int    `yaml:"cv_folds"`
	Trees           int    `yaml:"trees"`
	MaxDepth        int    `yaml:"max_depth"`
	MinSamplesSplit int    `yaml:"min_samples_split"`
	Seed            uint64 `yaml:"seed"`

	// FeatureNames labels the input columns in reports and the manifest.
	FeatureNames []string `yaml:"-"`
}

// DefaultOptions returns the baseline pipeline: no scaling, selection or
// resampling, 5-fold CV and a 100-tree forest with seed 42.
func DefaultOptions() Options {
	return Options{
		Resample:        ml.ResampleNone,
		SMOTENeighbors:  5,
		CVFolds:         5,
		Trees:           100,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// Validate rejects option values the pipeline cannot run with.
func (o Options) Validate() error {
	if o.SelectK < 0 {
		return fmt.Errorf("select_k must not be negative, got %d", o.SelectK)
	}
	if _, err := ml.ParseResampleStrategy(string(o.Resample)); err != nil {
		return err
	}
	if o.Resample != ml.ResampleNone && o.Resample != "" && o.SMOTENeighbors <= 0 {
		return fmt.Errorf("smote_neighbors must be positive, got %d", o.SMOTENeighbors)
	}
	if o.CVFolds < 0 {
		return fmt.Errorf("cv_folds must not be negative, got %d", o.CVFolds)
	}
	if o.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", o.Trees)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", o.MaxDepth)
	}
	return nil
}

func (o Options) forest() ml.ForestOptions {
	return ml.ForestOptions{
		Trees:           o.Trees,
		MaxDepth:        o.MaxDepth,
		MinSamplesSplit: o.MinSamplesSplit,
		Seed:            o.Seed,
	}
}

func (o Options) featureName(i int) string {
	if i < len(o.FeatureNames) {
		return o.FeatureNames[i]
	}
	return fmt.Sprintf("f%d", i)
}
