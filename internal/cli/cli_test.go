package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := Execute()
	return out.String(), err
}

func TestRunThenPredict_LocalStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ESCALATE_CONFIG", "")
	t.Setenv("ESCALATE_LOG_FILE", filepath.Join(dir, "escalate.log"))
	t.Setenv("ESCALATE_METRICS_FILE", filepath.Join(dir, "escalate.prom"))

	global := []string{
		"--store", "local",
		"--store-dir", filepath.Join(dir, "store"),
		"--data-dir", filepath.Join(dir, "data"),
	}

	out, err := execute(t, append([]string{"run", "--with-sample", "--no-progress", "--trees", "10"}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Class distribution")
	assert.Contains(t, out, "✓ Model")
	assert.FileExists(t, filepath.Join(dir, "escalate.prom"))
	assert.FileExists(t, filepath.Join(dir, "store", "model", "manifest.yaml"))

	out, err = execute(t, append([]string{"predict"}, global...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "PREDICTED")
	assert.Contains(t, out, "Alice_Johnson")
}

func TestTrain_MissingPartitions(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ESCALATE_CONFIG", "")
	t.Setenv("ESCALATE_LOG_FILE", "")
	t.Setenv("ESCALATE_METRICS_FILE", "")

	_, err := execute(t, "train",
		"--store", "local",
		"--store-dir", filepath.Join(dir, "store"),
		"--data-dir", filepath.Join(dir, "data"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream artifact missing")
}

func TestTrain_FailureStillWritesMetrics(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "escalate.prom")
	logFile := filepath.Join(dir, "escalate.log")
	t.Setenv("ESCALATE_CONFIG", "")
	t.Setenv("ESCALATE_LOG_FILE", logFile)
	t.Setenv("ESCALATE_METRICS_FILE", prom)

	_, err := execute(t, "train",
		"--store", "local",
		"--store-dir", filepath.Join(dir, "store"),
		"--data-dir", filepath.Join(dir, "data"))
	require.Error(t, err)

	require.FileExists(t, prom)
	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), `escalate_stage_failures_total{stage="train"} 1`)
	assert.Nil(t, closeLog, "log file must be closed after a failed command")
	assert.FileExists(t, logFile)
}

func TestInvalidStore(t *testing.T) {
	t.Setenv("ESCALATE_CONFIG", "")
	_, err := execute(t, "seed", "--store", "ftp", "--data-dir", t.TempDir())
	assert.Error(t, err)
}
