package trainer

import (
	"time"

	"github.com/raphaelgruber/escalate-go/internal/ml"
)

// DegradationKind classifies a non-fatal shortfall of a training run.
type DegradationKind string

const (
	// DegradedEvaluation means a score could not be computed and the
	// model's confidence is unverified.
	DegradedEvaluation DegradationKind = "degraded_evaluation"
	// ResamplingSkipped means a class could not be oversampled.
	ResamplingSkipped DegradationKind = "resampling_skipped"
)

// Degradation is a warning recorded in the report instead of failing the run.
type Degradation struct {
	Kind    DegradationKind `json:"kind"`
	Class   int             `json:"class"`
	Message string          `json:"message"`
}

// FeatureScore is a selected feature and its ANOVA F result.
type FeatureScore struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	PValue float64 `json:"p_value"`
}

// Report is the structured outcome of a training run. Rendering is left to
// the caller.
type Report struct {
	Options Options `json:"options"`

	TrainSamples      int `json:"train_samples"`
	ResampledSamples  int `json:"resampled_samples"`
	ValidationSamples int `json:"validation_samples"`

	TrainClasses      map[int]int        `json:"train_classes"`
	ResampledClasses  map[int]int        `json:"resampled_classes"`
	ValidationClasses map[int]int        `json:"validation_classes"`
	Resampling        []ml.ClassResample `json:"resampling,omitempty"`

	SelectedFeatures []FeatureScore `json:"selected_features,omitempty"`

	CVFolds     int       `json:"cv_folds"`
	CVScores    []float64 `json:"cv_scores,omitempty"`
	CVMean      float64   `json:"cv_mean"`
	CVStd       float64   `json:"cv_std"`
	CVAvailable bool      `json:"cv_available"`

	Evaluation *ml.ClassificationReport `json:"evaluation,omitempty"`

	Degradations []Degradation `json:"degradations,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Degraded reports whether any degradation of kind was recorded.
func (r *Report) Degraded(kind DegradationKind) bool {
	for _, d := range r.Degradations {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Report) degrade(kind DegradationKind, class int, msg string) {
	r.Degradations = append(r.Degradations, Degradation{Kind: kind, Class: class, Message: msg})
}
