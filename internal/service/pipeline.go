// Package service runs the pipeline stages against the object store. Each
// stage reads its inputs from the store, works in the local data directory
// and publishes its outputs back, so stages can run in separate processes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/raphaelgruber/escalate-go/internal/bundle"
	"github.com/raphaelgruber/escalate-go/internal/dataset"
	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/metrics"
	"github.com/raphaelgruber/escalate-go/internal/models"
	"github.com/raphaelgruber/escalate-go/internal/storage"
	"github.com/raphaelgruber/escalate-go/internal/tracing"
	"github.com/raphaelgruber/escalate-go/internal/trainer"
)

// Options configures a Pipeline.
type Options struct {
	// DataDir is the local working directory mirroring the data/ keys.
	DataDir string
	Split   features.SplitOptions
	Trainer trainer.Options
	// Now returns the evaluation instant; it is called once per stage.
	Now func() time.Time
}

// Pipeline runs the seed, sync, preprocess, train and predict stages.
type Pipeline struct {
	store   storage.Store
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewPipeline creates a pipeline. A nil collector disables stage metrics.
func NewPipeline(store storage.Store, opts Options, logger *slog.Logger, collector *metrics.Collector) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Trainer.FeatureNames == nil {
		opts.Trainer.FeatureNames = features.FeatureNames
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Pipeline{store: store, opts: opts, logger: logger, metrics: collector}
}

// Metrics returns the pipeline's collector.
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// LocalPath maps an object key to its file in the data directory.
func (p *Pipeline) LocalPath(key string) string {
	rel := strings.TrimPrefix(key, "data/")
	return filepath.Join(p.opts.DataDir, filepath.FromSlash(rel))
}

// ModelDir is where bundles are saved and downloaded.
func (p *Pipeline) ModelDir() string {
	return filepath.Join(p.opts.DataDir, strings.TrimSuffix(storage.ModelPrefix, "/"))
}

// stage runs fn inside a span and records its timing.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.Start(ctx, "stage."+name, attribute.String("escalate.stage", name))
	err := p.metrics.Time(name, func() error { return fn(ctx) })
	tracing.End(span, err)
	return err
}

// SeedResult lists the sample tables written.
type SeedResult struct {
	Written []string
	Kept    []string
}

// Seed writes the default sample tables into the data directory. Existing
// files are left untouched.
func (p *Pipeline) Seed(ctx context.Context) (*SeedResult, error) {
	var result *SeedResult
	err := p.stage(ctx, metrics.StageSeed, func(ctx context.Context) error {
		var err error
		result, err = p.seed(ctx)
		return err
	})
	return result, err
}

func (p *Pipeline) seed(_ context.Context) (*SeedResult, error) {
	tables := []struct {
		key   string
		write func(io.Writer) error
	}{
		{storage.KeyTasks, func(w io.Writer) error { return dataset.WriteTasks(w, models.SampleTasks()) }},
		{storage.KeySchedules, func(w io.Writer) error { return dataset.WriteSchedules(w, models.SampleSchedules()) }},
		{storage.KeyRules, func(w io.Writer) error { return dataset.WriteRules(w, models.SampleRules()) }},
		{storage.KeyUsers, func(w io.Writer) error { return dataset.WriteUsers(w, models.SampleUsers()) }},
	}

	result := &SeedResult{}
	for _, t := range tables {
		path := p.LocalPath(t.key)
		if _, err := os.Stat(path); err == nil {
			result.Kept = append(result.Kept, path)
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := dataset.WriteFile(path, t.write); err != nil {
			return nil, fmt.Errorf("seed: %w", err)
		}
		result.Written = append(result.Written, path)
		p.logger.Info("wrote sample table", "path", path)
	}
	return result, nil
}

// SyncResult lists what sync moved.
type SyncResult struct {
	Uploaded   []string
	Skipped    []string
	Downloaded []string
}

// Sync uploads local raw tables whose content differs from the store and
// downloads every raw table back into the data directory.
func (p *Pipeline) Sync(ctx context.Context) (*SyncResult, error) {
	var result *SyncResult
	err := p.stage(ctx, metrics.StageSync, func(ctx context.Context) error {
		var err error
		result, err = p.sync(ctx)
		return err
	})
	return result, err
}

func (p *Pipeline) sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	for _, key := range storage.RawKeys {
		path := p.LocalPath(key)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("local table missing, not uploading", "key", key, "path", path)
			continue
		}
		uploaded, err := storage.UploadIfChanged(ctx, p.store, path, key)
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", key, err)
		}
		if uploaded {
			result.Uploaded = append(result.Uploaded, key)
			p.metrics.Add(metrics.CountUploads, 1)
			p.logger.Info("uploaded table", "key", key)
		} else {
			result.Skipped = append(result.Skipped, key)
			p.metrics.Add(metrics.CountUploadsSkipped, 1)
			p.logger.Info("table unchanged, skipped upload", "key", key)
		}
	}

	for _, key := range storage.RawKeys {
		if err := p.fetch(ctx, key); err != nil {
			return nil, fmt.Errorf("sync: %w", err)
		}
		result.Downloaded = append(result.Downloaded, key)
	}
	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, key string) error {
	if err := p.store.Fetch(ctx, key, p.LocalPath(key)); err != nil {
		return err
	}
	p.metrics.Add(metrics.CountDownloads, 1)
	return nil
}

func (p *Pipeline) put(ctx context.Context, key string) error {
	if err := p.store.Put(ctx, p.LocalPath(key), key); err != nil {
		return err
	}
	p.metrics.Add(metrics.CountUploads, 1)
	return nil
}

// tables holds the decoded raw inputs of a run.
type tables struct {
	tasks     []models.Task
	schedules []models.Schedule
	users     []models.User
	rules     []models.Rule
}

// loadTables fetches and decodes the raw tables. The task table can be
// replaced by a local file.
func (p *Pipeline) loadTables(ctx context.Context, tasksPath string) (*tables, error) {
	keys := storage.RawKeys
	if tasksPath != "" {
		keys = []string{storage.KeySchedules, storage.KeyRules, storage.KeyUsers}
	} else {
		tasksPath = p.LocalPath(storage.KeyTasks)
	}
	for _, key := range keys {
		if err := p.fetch(ctx, key); err != nil {
			return nil, err
		}
	}

	var t tables
	var err error
	if t.tasks, err = dataset.ReadFile(tasksPath, dataset.ReadTasks); err != nil {
		return nil, err
	}
	if t.schedules, err = dataset.ReadFile(p.LocalPath(storage.KeySchedules), dataset.ReadSchedules); err != nil {
		return nil, err
	}
	if t.users, err = dataset.ReadFile(p.LocalPath(storage.KeyUsers), dataset.ReadUsers); err != nil {
		return nil, err
	}
	if t.rules, err = dataset.ReadFile(p.LocalPath(storage.KeyRules), dataset.ReadRules); err != nil {
		return nil, err
	}
	return &t, nil
}

// PreprocessResult summarizes a feature build.
type PreprocessResult struct {
	Rows            int
	TrainRows       int
	ValidationRows  int
	Classes         int
	Stratified      bool
	FallbackReason  string
	EvaluationTime  time.Time
	ValidationTasks []int
}

// Preprocess builds the feature matrix from the stored raw tables, splits
// it and publishes both partitions and the category universe.
func (p *Pipeline) Preprocess(ctx context.Context) (*PreprocessResult, error) {
	var result *PreprocessResult
	err := p.stage(ctx, metrics.StagePreprocess, func(ctx context.Context) error {
		var err error
		result, err = p.preprocess(ctx)
		return err
	})
	return result, err
}

func (p *Pipeline) preprocess(ctx context.Context) (*PreprocessResult, error) {
	t, err := p.loadTables(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	p.logger.Info("loaded raw tables",
		"tasks", len(t.tasks), "schedules", len(t.schedules), "users", len(t.users), "rules", len(t.rules))

	now := p.opts.Now().UTC()
	m, err := features.NewBuilder(now).Build(t.tasks, t.schedules, t.users)
	if err != nil {
		return nil, fmt.Errorf("build features: %w", err)
	}
	split, err := features.Split(m, p.opts.Split)
	if err != nil {
		return nil, fmt.Errorf("split features: %w", err)
	}
	if p.opts.Split.Stratify && !split.Stratified {
		p.logger.Warn("stratified split unavailable, using shuffled split", "reason", split.FallbackReason)
	}

	writes := []struct {
		key   string
		write func(io.Writer) error
	}{
		{storage.KeyTrain, func(w io.Writer) error { return dataset.WritePartition(w, split.Train) }},
		{storage.KeyValidation, func(w io.Writer) error { return dataset.WritePartition(w, split.Validation) }},
		{storage.KeyCategories, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(m.Universe)
		}},
	}
	for _, wr := range writes {
		if err := dataset.WriteFile(p.LocalPath(wr.key), wr.write); err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
		if err := p.put(ctx, wr.key); err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}
	}

	p.metrics.Add(metrics.CountRows, int64(len(m.Rows)))
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("escalate.rows", len(m.Rows)),
		attribute.Int("escalate.train_rows", split.Train.Len()),
		attribute.Bool("escalate.stratified", split.Stratified),
	)
	p.logger.Info("published partitions",
		"rows", len(m.Rows), "train", split.Train.Len(), "validation", split.Validation.Len(),
		"stratified", split.Stratified)

	return &PreprocessResult{
		Rows:            len(m.Rows),
		TrainRows:       split.Train.Len(),
		ValidationRows:  split.Validation.Len(),
		Classes:         m.Universe.Size(features.ColumnTarget),
		Stratified:      split.Stratified,
		FallbackReason:  split.FallbackReason,
		EvaluationTime:  now,
		ValidationTasks: split.ValidationIDs,
	}, nil
}

// TrainResult is the outcome of the train stage.
type TrainResult struct {
	RunID      string
	Report     *trainer.Report
	Manifest   bundle.Manifest
	Categories *features.Universe
}

// Train fits the model on the stored partitions and publishes the bundle.
// A missing partition is fatal.
func (p *Pipeline) Train(ctx context.Context) (*TrainResult, error) {
	var result *TrainResult
	err := p.stage(ctx, metrics.StageTrain, func(ctx context.Context) error {
		var err error
		result, err = p.train(ctx)
		return err
	})
	return result, err
}

func (p *Pipeline) train(ctx context.Context) (*TrainResult, error) {
	for _, key := range []string{storage.KeyTrain, storage.KeyValidation, storage.KeyCategories} {
		if err := p.fetch(ctx, key); err != nil {
			return nil, fmt.Errorf("train: %w", err)
		}
	}

	trainSet, err := dataset.ReadFile(p.LocalPath(storage.KeyTrain), dataset.ReadPartition)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	valSet, err := dataset.ReadFile(p.LocalPath(storage.KeyValidation), dataset.ReadPartition)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	universe, err := dataset.ReadFile(p.LocalPath(storage.KeyCategories), readUniverse)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	tr, err := trainer.New(p.opts.Trainer, p.logger)
	if err != nil {
		return nil, err
	}
	res, err := tr.Fit(trainSet, valSet)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()[:8] // Short ID for convenience
	b := res.Bundle
	b.Categories = universe
	b.Manifest.RunID = runID
	b.Manifest.CreatedAt = p.opts.Now().UTC()

	dir := p.ModelDir()
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear model dir: %w", err)
	}
	if err := b.Save(dir); err != nil {
		return nil, fmt.Errorf("save bundle: %w", err)
	}
	if err := bundle.Upload(ctx, p.store, dir); err != nil {
		return nil, err
	}

	report := res.Report
	p.metrics.Add(metrics.CountDegradations, int64(len(report.Degradations)))
	if report.CVAvailable {
		p.metrics.Set("cv_mean_f1", report.CVMean)
		p.metrics.Set("cv_std_f1", report.CVStd)
	}
	if report.Evaluation != nil {
		p.metrics.Set("validation_accuracy", report.Evaluation.Accuracy)
		p.metrics.Set("validation_weighted_f1", report.Evaluation.WeightedAvg.F1)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("escalate.run_id", runID),
		attribute.Int("escalate.degradations", len(report.Degradations)),
	)
	p.logger.Info("published model bundle", "run_id", runID, "components", len(b.Manifest.Components))

	return &TrainResult{RunID: runID, Report: report, Manifest: b.Manifest, Categories: universe}, nil
}

func readUniverse(r io.Reader) (*features.Universe, error) {
	u := &features.Universe{}
	if err := json.NewDecoder(r).Decode(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Prediction is the escalation target chosen for one task.
type Prediction struct {
	TaskID int
	Type   models.TaskType
	Nurse  string
	Code   int
	Target string
	// Actual is the recorded target, empty when the task has none.
	Actual string
}

// Predict scores tasks with the stored bundle. tasksPath names a local task
// CSV; empty scores the stored task table.
func (p *Pipeline) Predict(ctx context.Context, tasksPath string) ([]Prediction, error) {
	var result []Prediction
	err := p.stage(ctx, metrics.StagePredict, func(ctx context.Context) error {
		var err error
		result, err = p.predict(ctx, tasksPath)
		return err
	})
	return result, err
}

func (p *Pipeline) predict(ctx context.Context, tasksPath string) ([]Prediction, error) {
	b, err := bundle.Download(ctx, p.store, p.ModelDir())
	if err != nil {
		return nil, err
	}
	if b.Categories == nil {
		return nil, fmt.Errorf("predict: %w: bundle has no category universe", bundle.ErrPartialBundle)
	}

	t, err := p.loadTables(ctx, tasksPath)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	m, err := features.NewBuilder(p.opts.Now()).BuildWithUniverse(t.tasks, t.schedules, t.users, b.Categories)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	codes, err := b.Predict(m.Partition().Features)
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, len(codes))
	for i, code := range codes {
		target, err := b.Categories.Decode(features.ColumnTarget, code)
		if err != nil {
			return nil, fmt.Errorf("decode prediction for task %d: %w", t.tasks[i].ID, err)
		}
		out[i] = Prediction{
			TaskID: t.tasks[i].ID,
			Type:   t.tasks[i].Type,
			Nurse:  t.tasks[i].AssignedNurse,
			Code:   code,
			Target: target,
			Actual: t.tasks[i].EscalationTo,
		}
	}
	p.metrics.Add(metrics.CountPredictions, int64(len(out)))
	p.logger.Info("scored tasks", "tasks", len(out), "run_id", b.Manifest.RunID)
	return out, nil
}
