package bundle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/ml"
	"github.com/raphaelgruber/escalate-go/internal/storage"
)

func trainingData() ([][]float64, []int) {
	X := [][]float64{
		{0, 1, 5}, {1, 0, 5}, {0, 0, 5}, {1, 1, 5},
		{10, 11, 5}, {11, 10, 5}, {10, 10, 5}, {11, 11, 5},
	}
	y := []int{0, 0, 0, 0, 1, 1, 1, 1}
	return X, y
}

func fittedBundle(t *testing.T, withTransforms bool) *Bundle {
	t.Helper()
	X, y := trainingData()
	b := &Bundle{
		Manifest: Manifest{
			RunID:         "abc12345",
			CreatedAt:     time.Date(2025, 6, 11, 18, 0, 0, 0, time.UTC),
			FeatureNames:  []string{"a", "b", "c"},
			InputFeatures: 3,
		},
	}

	if withTransforms {
		b.Scaler = &ml.StandardScaler{}
		require.NoError(t, b.Scaler.Fit(X))
		var err error
		X, err = b.Scaler.Transform(X)
		require.NoError(t, err)

		b.Selector = &ml.SelectKBest{K: 2}
		require.NoError(t, b.Selector.Fit(X, y))
		X, err = b.Selector.Transform(X)
		require.NoError(t, err)

		b.Categories = features.NewUniverse(map[features.Column][]string{
			features.ColumnTarget: {"None", "David_Brown"},
		})
	}

	b.Model = ml.NewRandomForest(ml.ForestOptions{Trees: 10, Seed: 7})
	require.NoError(t, b.Model.Fit(X, y))
	b.Manifest.OutputFeatures = len(X[0])
	return b
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := fittedBundle(t, true)
	require.NoError(t, b.Save(dir))

	for _, f := range []string{FileModel, FileScaler, FileSelector, FileCategories, FileManifest} {
		assert.FileExists(t, filepath.Join(dir, f))
	}

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "abc12345", loaded.Manifest.RunID)
	assert.Equal(t, []string{"a", "b", "c"}, loaded.Manifest.FeatureNames)
	assert.Equal(t, 2, loaded.Manifest.OutputFeatures)
	assert.Len(t, loaded.Manifest.Components, 4)
	assert.Equal(t, []int{0, 1}, loaded.Selector.Selected)
	if diff := cmp.Diff(b.Scaler, loaded.Scaler, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("scaler changed across save/load (-saved +loaded):\n%s", diff)
	}
	assert.Equal(t, []string{"David_Brown", "None"}, loaded.Categories.Categories(features.ColumnTarget))

	rows := [][]float64{{0.5, 0.5, 5}, {10.5, 10.5, 5}}
	want, err := b.Predict(rows)
	require.NoError(t, err)
	got, err := loaded.Predict(rows)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []int{0, 1}, got)
}

func TestSave_ModelOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, fittedBundle(t, false).Save(dir))

	assert.NoFileExists(t, filepath.Join(dir, FileScaler))
	assert.NoFileExists(t, filepath.Join(dir, FileSelector))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, loaded.Scaler)
	assert.Nil(t, loaded.Selector)

	pred, err := loaded.Predict([][]float64{{0, 0, 5}})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, pred)
}

func TestSave_NoModel(t *testing.T) {
	err := (&Bundle{}).Save(t.TempDir())
	assert.ErrorIs(t, err, ErrPartialBundle)
}

func TestLoad_MissingTransform(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, fittedBundle(t, true).Save(dir))
	require.NoError(t, os.Remove(filepath.Join(dir, FileScaler)))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrPartialBundle)
}

func TestLoad_MissingManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrPartialBundle)
}

func TestLoad_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, fittedBundle(t, true).Save(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileSelector), []byte(`{"k":1,"width":3,"selected":[2]}`), 0644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestPredict_WidthMismatch(t *testing.T) {
	b := fittedBundle(t, true)
	_, err := b.Predict([][]float64{{1, 2}})
	assert.ErrorIs(t, err, ml.ErrShape)
}

// recordingStore records the order of Put calls.
type recordingStore struct {
	*storage.LocalStore
	keys []string
}

func (r *recordingStore) Put(ctx context.Context, localPath, key string) error {
	r.keys = append(r.keys, key)
	return r.LocalStore.Put(ctx, localPath, key)
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	local, err := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	store := &recordingStore{LocalStore: local}

	dir := t.TempDir()
	b := fittedBundle(t, true)
	require.NoError(t, b.Save(dir))
	require.NoError(t, Upload(ctx, store, dir))

	require.Len(t, store.keys, 5)
	assert.Equal(t, "model/manifest.yaml", store.keys[len(store.keys)-1], "manifest must be uploaded last")
	assert.Contains(t, store.keys, "model/model.json")

	loaded, err := Download(ctx, store, filepath.Join(t.TempDir(), "fetched"))
	require.NoError(t, err)
	assert.Equal(t, b.Manifest.RunID, loaded.Manifest.RunID)
}

func TestDownload_Missing(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = Download(context.Background(), store, t.TempDir())
	assert.ErrorIs(t, err, storage.ErrArtifactMissing)
}
