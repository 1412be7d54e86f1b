package cli

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload changed raw tables and download them back",
	Long: `Upload each raw table (tasks, schedules, rules, users) from the data
directory when the stored copy is missing or its checksum differs, then
download all raw tables from the store.

Examples:
  escalate sync
  escalate sync --store local --store-dir /tmp/store`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	res, err := pipeline.Sync(cmd.Context())
	if err != nil {
		return err
	}
	renderSync(cmd.OutOrStdout(), res)
	return nil
}
