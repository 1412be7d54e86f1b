package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/raphaelgruber/escalate-go/internal/metrics"
	"github.com/raphaelgruber/escalate-go/internal/tracing"
)

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunState is the observable state of a run.
type RunState struct {
	ID          string
	Status      RunStatus
	Stages      []string
	Stage       string // stage in progress
	Completed   int    // stages finished
	Result      *RunResult
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Run is one end-to-end execution of several stages.
type Run struct {
	RunState

	mu sync.RWMutex
}

// RunResult collects the outcome of every stage of a run.
type RunResult struct {
	Seed       *SeedResult
	Sync       *SyncResult
	Preprocess *PreprocessResult
	Train      *TrainResult
}

// RunTracker tracks pipeline runs in memory. Progress views poll it from
// another goroutine.
type RunTracker struct {
	runs   map[string]*Run
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRunTracker creates an empty tracker.
func NewRunTracker(logger *slog.Logger) *RunTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunTracker{runs: make(map[string]*Run), logger: logger}
}

// Create registers a pending run over stages.
func (m *RunTracker) Create(stages []string) *Run {
	run := &Run{RunState: RunState{
		ID:        uuid.New().String()[:8], // Short ID for convenience
		Status:    RunStatusPending,
		Stages:    slices.Clone(stages),
		StartedAt: time.Now(),
	}}

	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()

	m.logger.Info("run created", "run_id", run.ID, "stages", stages)
	return run
}

// Get retrieves a run by ID.
func (m *RunTracker) Get(id string) *Run {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[id]
}

// List returns all runs, most recent first.
func (m *RunTracker) List() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	slices.SortFunc(runs, func(a, b *Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return runs
}

// Begin marks stage as in progress.
func (m *RunTracker) Begin(run *Run, stage string) {
	run.mu.Lock()
	run.Status = RunStatusRunning
	run.Stage = stage
	run.mu.Unlock()

	m.logger.Info("stage started", "run_id", run.ID, "stage", stage)
}

// Finish marks the current stage as done.
func (m *RunTracker) Finish(run *Run) {
	run.mu.Lock()
	run.Completed++
	stage := run.Stage
	run.Stage = ""
	run.mu.Unlock()

	m.logger.Info("stage finished", "run_id", run.ID, "stage", stage)
}

// Complete marks run as completed with result.
func (m *RunTracker) Complete(run *Run, result *RunResult) {
	run.mu.Lock()
	run.Status = RunStatusCompleted
	run.Result = result
	now := time.Now()
	run.CompletedAt = &now
	run.mu.Unlock()

	m.logger.Info("run completed", "run_id", run.ID, "duration", now.Sub(run.StartedAt))
}

// Fail marks run as failed with error.
func (m *RunTracker) Fail(run *Run, err error) {
	run.mu.Lock()
	run.Status = RunStatusFailed
	run.Error = err.Error()
	now := time.Now()
	run.CompletedAt = &now
	stage := run.Stage
	run.mu.Unlock()

	m.logger.Error("run failed", "run_id", run.ID, "stage", stage, "error", err)
}

// Snapshot returns a thread-safe copy of run state.
func (r *Run) Snapshot() RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.RunState
}

// Done reports whether the run reached a terminal status.
func (r *Run) Done() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// RunStages lists the stages of a full run. Seeding is optional.
func RunStages(seed bool) []string {
	stages := []string{metrics.StageSync, metrics.StagePreprocess, metrics.StageTrain}
	if seed {
		stages = append([]string{metrics.StageSeed}, stages...)
	}
	return stages
}

// Execute runs the stages of run in order, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, tracker *RunTracker, run *Run) (_ *RunResult, err error) {
	ctx, span := tracing.Start(ctx, "run", attribute.String("escalate.run_id", run.ID))
	defer func() { tracing.End(span, err) }()

	result := &RunResult{}
	for _, stage := range run.Stages {
		if err := ctx.Err(); err != nil {
			tracker.Fail(run, err)
			return nil, err
		}

		tracker.Begin(run, stage)
		switch stage {
		case metrics.StageSeed:
			result.Seed, err = p.Seed(ctx)
		case metrics.StageSync:
			result.Sync, err = p.Sync(ctx)
		case metrics.StagePreprocess:
			result.Preprocess, err = p.Preprocess(ctx)
		case metrics.StageTrain:
			result.Train, err = p.Train(ctx)
		default:
			err = fmt.Errorf("unknown stage %q", stage)
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", stage, err)
			tracker.Fail(run, err)
			return nil, err
		}
		tracker.Finish(run)
	}

	tracker.Complete(run, result)
	return result, nil
}
