package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the sample tables into the data directory",
	Long: `Write the default sample tables (six staff members, sixteen tasks and
three escalation rules) into the data directory. Existing files are kept.

Examples:
  escalate seed
  escalate seed --data-dir /tmp/escalations`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	res, err := pipeline.Seed(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range res.Written {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	for _, p := range res.Kept {
		fmt.Fprintf(out, "kept  %s\n", p)
	}
	return nil
}
