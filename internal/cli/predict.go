package cli

import (
	"github.com/spf13/cobra"
)

var predictTasks string

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score tasks with the stored model bundle",
	Long: `Download the model bundle and predict the escalation target of each
task. Without --tasks the stored task table is scored.

Examples:
  escalate predict
  escalate predict --tasks pending.csv`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&predictTasks, "tasks", "", "local task CSV to score")
}

func runPredict(cmd *cobra.Command, args []string) error {
	preds, err := pipeline.Predict(cmd.Context(), predictTasks)
	if err != nil {
		return err
	}
	renderPredictions(cmd.OutOrStdout(), preds)
	return nil
}
