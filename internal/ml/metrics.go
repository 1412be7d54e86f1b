package ml

import (
	"fmt"
	"slices"
)

// ClassMetrics holds precision, recall and F1 for one class or average.
type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport is the per-class evaluation of a set of predictions.
// Undefined ratios (no predictions or no true members) count as 0.
type ClassificationReport struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Support     int            `json:"support"`
}

// Classify builds a report over the union of true and predicted labels.
func Classify(yTrue, yPred []int) (*ClassificationReport, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%w: %d labels but %d predictions", ErrShape, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("%w: no predictions to score", ErrShape)
	}

	labels := append(slices.Clone(yTrue), yPred...)
	slices.Sort(labels)
	labels = slices.Compact(labels)

	tp := make(map[int]int)
	predicted := make(map[int]int)
	actual := make(map[int]int)
	correct := 0
	for i := range yTrue {
		actual[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
			correct++
		}
	}

	r := &ClassificationReport{
		Accuracy:    float64(correct) / float64(len(yTrue)),
		Support:     len(yTrue),
		MacroAvg:    ClassMetrics{Label: -1, Support: len(yTrue)},
		WeightedAvg: ClassMetrics{Label: -1, Support: len(yTrue)},
	}
	for _, label := range labels {
		m := ClassMetrics{
			Label:     label,
			Precision: ratio(tp[label], predicted[label]),
			Recall:    ratio(tp[label], actual[label]),
			Support:   actual[label],
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes = append(r.Classes, m)

		w := float64(m.Support) / float64(len(yTrue))
		r.MacroAvg.Precision += m.Precision / float64(len(labels))
		r.MacroAvg.Recall += m.Recall / float64(len(labels))
		r.MacroAvg.F1 += m.F1 / float64(len(labels))
		r.WeightedAvg.Precision += m.Precision * w
		r.WeightedAvg.Recall += m.Recall * w
		r.WeightedAvg.F1 += m.F1 * w
	}
	return r, nil
}

// WeightedF1 is the support-weighted mean of per-class F1.
func WeightedF1(yTrue, yPred []int) (float64, error) {
	r, err := Classify(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return r.WeightedAvg.F1, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
