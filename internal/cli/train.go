package cli

import (
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/escalate-go/internal/ml"
)

var (
	trainScale    bool
	trainSelectK  int
	trainResample string
	trainCVFolds  int
	trainTrees    int
	trainMaxDepth int
	trainSeed     uint64
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the model on the stored partitions",
	Long: `Fetch the train and validation partitions, optionally scale, select
and oversample the training rows, cross-validate, fit a random forest and
publish the model bundle.

Examples:
  escalate train
  escalate train --scale --select-k 8
  escalate train --resample smote --cv-folds 3`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	addTrainerFlags(trainCmd)
}

// addTrainerFlags registers the training toggles on cmd.
func addTrainerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&trainScale, "scale", false, "standardize features")
	f.IntVar(&trainSelectK, "select-k", 0, "keep the k best features by ANOVA F score (0 keeps all)")
	f.StringVar(&trainResample, "resample", string(ml.ResampleNone), "oversampling: none, smote or minority")
	f.IntVar(&trainCVFolds, "cv-folds", 5, "maximum cross-validation folds (0 disables)")
	f.IntVar(&trainTrees, "trees", 100, "number of trees")
	f.IntVar(&trainMaxDepth, "max-depth", 0, "maximum tree depth (0 is unbounded)")
	f.Uint64Var(&trainSeed, "seed", 42, "random seed for split, resampling, folds and forest")
}

// applyTrainerFlags copies explicitly set training flags into cfg.
func applyTrainerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Lookup("scale") == nil {
		return
	}
	if f.Changed("scale") {
		cfg.Trainer.Scale = trainScale
	}
	if f.Changed("select-k") {
		cfg.Trainer.SelectK = trainSelectK
	}
	if f.Changed("resample") {
		cfg.Trainer.Resample = ml.ResampleStrategy(trainResample)
	}
	if f.Changed("cv-folds") {
		cfg.Trainer.CVFolds = trainCVFolds
	}
	if f.Changed("trees") {
		cfg.Trainer.Trees = trainTrees
	}
	if f.Changed("max-depth") {
		cfg.Trainer.MaxDepth = trainMaxDepth
	}
	if f.Changed("seed") {
		cfg.Trainer.Seed = trainSeed
		cfg.Split.Seed = trainSeed
	}
}

func runTrain(cmd *cobra.Command, args []string) error {
	res, err := pipeline.Train(cmd.Context())
	if err != nil {
		return err
	}
	renderTrain(cmd.OutOrStdout(), res)
	return nil
}
