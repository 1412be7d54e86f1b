package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/ml"
	"github.com/raphaelgruber/escalate-go/internal/models"
	"github.com/raphaelgruber/escalate-go/internal/service"
	"github.com/raphaelgruber/escalate-go/internal/trainer"
)

func testUniverse() *features.Universe {
	return features.NewUniverse(map[features.Column][]string{
		features.ColumnTarget: {models.NoneCategory, "Carol_Williams", "David_Brown"},
	})
}

func TestRenderReport(t *testing.T) {
	r := &trainer.Report{
		TrainClasses:      map[int]int{0: 2, 1: 8},
		ResampledClasses:  map[int]int{0: 2, 1: 8},
		ValidationClasses: map[int]int{1: 2, 2: 1},
		SelectedFeatures:  []trainer.FeatureScore{{Index: 7, Name: "deadline_missed", Score: 12.5, PValue: 0.001}},
		CVFolds:           2,
		CVScores:          []float64{0.5, 0.75},
		CVMean:            0.625,
		CVStd:             0.125,
		CVAvailable:       true,
		Evaluation: &ml.ClassificationReport{
			Classes:  []ml.ClassMetrics{{Label: 1, Precision: 1, Recall: 1, F1: 1, Support: 2}},
			Accuracy: 0.667,
			Support:  3,
		},
		Degradations: []trainer.Degradation{{Kind: trainer.ResamplingSkipped, Class: 2, Message: "single member"}},
		Duration:     1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	renderReport(&buf, r, testUniverse())
	out := buf.String()

	assert.Contains(t, out, "Carol_Williams")
	assert.Contains(t, out, "David_Brown")
	assert.Contains(t, out, "deadline_missed")
	assert.Contains(t, out, "0.625")
	assert.Contains(t, out, "weighted avg")
	assert.Contains(t, out, "class David_Brown: single member")
	assert.Contains(t, out, "1.5s")
}

func TestRenderReport_NoCV(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, &trainer.Report{
		TrainClasses: map[int]int{0: 1},
		Degradations: []trainer.Degradation{{Kind: trainer.DegradedEvaluation, Message: trainer.MsgConfidenceUnverified}},
	}, nil)

	assert.Contains(t, buf.String(), "not available")
	assert.Contains(t, buf.String(), trainer.MsgConfidenceUnverified)
}

func TestLabelName(t *testing.T) {
	u := testUniverse()
	assert.Equal(t, "None", labelName(u, 0))
	assert.Equal(t, "7", labelName(u, 7))
	assert.Equal(t, "3", labelName(nil, 3))
}

func TestRenderPredictions(t *testing.T) {
	var buf bytes.Buffer
	renderPredictions(&buf, []service.Prediction{
		{TaskID: 4, Type: models.TaskTypeMedication, Nurse: "Bob_Smith", Target: "David_Brown", Actual: "David_Brown"},
		{TaskID: 99, Type: models.TaskTypeVitals, Nurse: "Alice_Johnson", Target: "None"},
	})
	out := buf.String()
	assert.Contains(t, out, "Bob_Smith")
	assert.Contains(t, out, "99")
	assert.Contains(t, out, "-")
}

func TestRenderSync(t *testing.T) {
	var buf bytes.Buffer
	renderSync(&buf, &service.SyncResult{
		Uploaded:   []string{"data/tasks.csv"},
		Skipped:    []string{"data/users.csv"},
		Downloaded: []string{"data/tasks.csv", "data/users.csv"},
	})
	out := buf.String()
	assert.Contains(t, out, "data/tasks.csv")
	assert.Contains(t, out, "unchanged")
	assert.Contains(t, out, "Downloaded 2 tables")
}
