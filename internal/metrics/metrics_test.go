package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordStage(t *testing.T) {
	c := NewCollector()
	c.RecordStage(StageTrain, 200*time.Millisecond, nil)
	c.RecordStage(StageTrain, 100*time.Millisecond, errors.New("boom"))
	c.RecordStage(StagePreprocess, 50*time.Millisecond, nil)

	snap := c.Snapshot()
	require.Len(t, snap.Stages, 2)
	assert.Equal(t, StagePreprocess, snap.Stages[0].Stage, "stages are sorted by name")

	train := snap.Stages[1]
	assert.Equal(t, int64(2), train.Count)
	assert.Equal(t, int64(1), train.Failures)
	assert.Equal(t, int64(300), train.TotalTimeMs)
	assert.Equal(t, 150.0, train.AvgTimeMs)
	assert.Equal(t, int64(100), train.MinTimeMs)
	assert.Equal(t, int64(200), train.MaxTimeMs)
	assert.InDelta(t, 0.1, train.LastSeconds, 1e-9)
}

func TestCollector_Time(t *testing.T) {
	c := NewCollector()
	want := errors.New("failed")
	err := c.Time(StageSync, func() error { return want })
	assert.ErrorIs(t, err, want)

	snap := c.Snapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, int64(1), snap.Stages[0].Failures)
}

func TestCollector_CountersAndGauges(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(CountUploads, 1)
		}()
	}
	wg.Wait()
	c.Set("cv_mean_f1", 0.75)

	snap := c.Snapshot()
	assert.Equal(t, int64(10), snap.Counters[CountUploads])
	assert.Equal(t, 0.75, snap.Gauges["cv_mean_f1"])
}

func TestCollector_EmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Stages)
	assert.Empty(t, snap.Counters)
}

func TestExporter_Update(t *testing.T) {
	c := NewCollector()
	c.RecordStage(StageTrain, time.Second, nil)
	c.Add(CountRows, 16)

	e := NewExporter()
	e.Update(c.Snapshot())

	assert.Equal(t, 1.0, testutil.ToFloat64(e.stageRuns.WithLabelValues(StageTrain)))
	assert.Equal(t, 16.0, testutil.ToFloat64(e.events.WithLabelValues(CountRows)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.stageLast.WithLabelValues(StageTrain)))
}

func TestExporter_WriteTextfile(t *testing.T) {
	c := NewCollector()
	c.RecordStage(StagePreprocess, 10*time.Millisecond, nil)
	c.Add(CountUploadsSkipped, 4)

	path := filepath.Join(t.TempDir(), "escalate.prom")
	require.NoError(t, NewExporter().WriteTextfile(path, c))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `escalate_stage_runs_total{stage="preprocess"} 1`)
	assert.Contains(t, text, `escalate_events_total{name="uploads_skipped"} 4`)
	assert.Contains(t, text, "escalate_last_run_timestamp_seconds")
}
