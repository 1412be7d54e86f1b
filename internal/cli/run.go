package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/escalate-go/internal/service"
)

var (
	runWithSample bool
	runNoProgress bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run sync, preprocess and train in one go",
	Long: `Run every stage in order: sync the raw tables, build and publish the
partitions, then train and publish the model. With --with-sample the sample
tables are written first when missing.

A progress view is shown when stdout is a terminal.

Examples:
  escalate run --with-sample --store local --store-dir /tmp/store
  escalate run --scale --resample smote --no-progress`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runWithSample, "with-sample", false, "seed the sample tables before syncing")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "disable the progress view")
	addTrainerFlags(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tracker := service.NewRunTracker(logger)
	run := tracker.Create(service.RunStages(runWithSample))

	if runNoProgress || !term.IsTerminal(int(os.Stdout.Fd())) {
		res, err := pipeline.Execute(ctx, tracker, run)
		if err != nil {
			return err
		}
		renderRun(cmd.OutOrStdout(), run.ID, res)
		return nil
	}

	errc := make(chan error, 1)
	go func() {
		_, err := pipeline.Execute(ctx, tracker, run)
		errc <- err
	}()

	if err := RunProgress(run, cancel); err != nil {
		<-errc
		return err
	}
	if err := <-errc; err != nil {
		return err
	}
	renderRun(cmd.OutOrStdout(), run.ID, run.Snapshot().Result)
	return nil
}
