package cli

import (
	"github.com/spf13/cobra"
)

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Build features and publish the train/validation partitions",
	Long: `Fetch the raw tables from the store, derive one feature row per task,
split the rows 80/20 with a fixed seed and publish the partitions and the
category universe.

Examples:
  escalate preprocess
  ESCALATE_STRATIFY=true escalate preprocess`,
	Args: cobra.NoArgs,
	RunE: runPreprocess,
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	res, err := pipeline.Preprocess(cmd.Context())
	if err != nil {
		return err
	}
	renderPreprocess(cmd.OutOrStdout(), res)
	return nil
}
