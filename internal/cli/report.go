package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/service"
	"github.com/raphaelgruber/escalate-go/internal/trainer"
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(style.border).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			cell := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return cell.Inherit(style.title)
			}
			return cell
		})
}

func f3(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// labelName decodes a target code, falling back to the number.
func labelName(u *features.Universe, code int) string {
	if u != nil {
		if name, err := u.Decode(features.ColumnTarget, code); err == nil {
			return name
		}
	}
	return strconv.Itoa(code)
}

func renderSync(w io.Writer, res *service.SyncResult) {
	t := newTable("TABLE", "UPLOAD")
	for _, key := range res.Uploaded {
		t.Row(key, style.done.Render("uploaded"))
	}
	for _, key := range res.Skipped {
		t.Row(key, style.muted.Render("unchanged"))
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "Downloaded %d tables\n", len(res.Downloaded))
}

func renderPreprocess(w io.Writer, res *service.PreprocessResult) {
	fmt.Fprintln(w, style.title.Render("Features"))
	fmt.Fprintf(w, "  Evaluated at:   %s\n", res.EvaluationTime.Format(time.RFC3339))
	fmt.Fprintf(w, "  Rows:           %d\n", res.Rows)
	fmt.Fprintf(w, "  Train rows:     %d\n", res.TrainRows)
	fmt.Fprintf(w, "  Validation:     %d\n", res.ValidationRows)
	fmt.Fprintf(w, "  Target classes: %d\n", res.Classes)
	if res.Stratified {
		fmt.Fprintln(w, "  Split:          stratified")
	} else if res.FallbackReason != "" {
		fmt.Fprintln(w, style.warn.Render("  Split:          shuffled ("+res.FallbackReason+")"))
	}
}

func renderTrain(w io.Writer, res *service.TrainResult) {
	fmt.Fprintf(w, "%s %s\n\n", style.done.Render("✓ Model"), res.RunID)
	renderReport(w, res.Report, res.Categories)
}

// renderReport prints a training report.
func renderReport(w io.Writer, r *trainer.Report, u *features.Universe) {
	fmt.Fprintln(w, style.title.Render("Class distribution"))
	dist := newTable("CLASS", "TRAIN", "RESAMPLED", "VALIDATION")
	classes := slices.Sorted(maps.Keys(r.TrainClasses))
	for c := range r.ValidationClasses {
		if !slices.Contains(classes, c) {
			classes = append(classes, c)
		}
	}
	slices.Sort(classes)
	for _, c := range classes {
		dist.Row(labelName(u, c),
			strconv.Itoa(r.TrainClasses[c]),
			strconv.Itoa(r.ResampledClasses[c]),
			strconv.Itoa(r.ValidationClasses[c]))
	}
	fmt.Fprintln(w, dist.String())

	if len(r.SelectedFeatures) > 0 {
		fmt.Fprintln(w, style.title.Render("Selected features"))
		sel := newTable("FEATURE", "F SCORE", "P VALUE")
		for _, f := range r.SelectedFeatures {
			sel.Row(f.Name, f3(f.Score), f3(f.PValue))
		}
		fmt.Fprintln(w, sel.String())
	}

	fmt.Fprintln(w, style.title.Render("Cross-validation"))
	if r.CVAvailable {
		scores := make([]string, len(r.CVScores))
		for i, s := range r.CVScores {
			scores[i] = f3(s)
		}
		fmt.Fprintf(w, "  %d folds, weighted F1 %s (± %s)\n", r.CVFolds, f3(r.CVMean), f3(r.CVStd))
		fmt.Fprintf(w, "  folds: %s\n\n", strings.Join(scores, " "))
	} else {
		fmt.Fprintln(w, style.muted.Render("  not available")+"\n")
	}

	if e := r.Evaluation; e != nil {
		fmt.Fprintln(w, style.title.Render("Validation"))
		rep := newTable("CLASS", "PRECISION", "RECALL", "F1", "SUPPORT")
		for _, c := range e.Classes {
			rep.Row(labelName(u, c.Label), f3(c.Precision), f3(c.Recall), f3(c.F1), strconv.Itoa(c.Support))
		}
		rep.Row("macro avg", f3(e.MacroAvg.Precision), f3(e.MacroAvg.Recall), f3(e.MacroAvg.F1), strconv.Itoa(e.Support))
		rep.Row("weighted avg", f3(e.WeightedAvg.Precision), f3(e.WeightedAvg.Recall), f3(e.WeightedAvg.F1), strconv.Itoa(e.Support))
		fmt.Fprintln(w, rep.String())
		fmt.Fprintf(w, "  Accuracy: %s\n\n", f3(e.Accuracy))
	}

	for _, d := range r.Degradations {
		msg := d.Message
		if d.Kind == trainer.ResamplingSkipped {
			msg = fmt.Sprintf("class %s: %s", labelName(u, d.Class), d.Message)
		}
		fmt.Fprintln(w, style.warn.Render(fmt.Sprintf("! %s: %s", d.Kind, msg)))
	}
	fmt.Fprintf(w, "Trained in %s\n", r.Duration.Round(time.Millisecond))
}

func renderPredictions(w io.Writer, preds []service.Prediction) {
	t := newTable("TASK", "TYPE", "ASSIGNED", "PREDICTED", "RECORDED")
	for _, p := range preds {
		recorded := p.Actual
		if recorded == "" {
			recorded = "-"
		}
		t.Row(strconv.Itoa(p.TaskID), string(p.Type), p.Nurse, p.Target, recorded)
	}
	fmt.Fprintln(w, t.String())
}

func renderRun(w io.Writer, id string, res *service.RunResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "Run %s\n\n", id)
	if res.Sync != nil {
		renderSync(w, res.Sync)
		fmt.Fprintln(w)
	}
	if res.Preprocess != nil {
		renderPreprocess(w, res.Preprocess)
		fmt.Fprintln(w)
	}
	if res.Train != nil {
		renderTrain(w, res.Train)
	}
}
