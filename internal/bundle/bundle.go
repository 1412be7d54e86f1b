// Package bundle persists a fitted model together with the transforms and
// category universe it was trained with, so the whole set travels and is
// versioned as one unit.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/escalate-go/internal/features"
	"github.com/raphaelgruber/escalate-go/internal/ml"
)

// Component file names inside a bundle directory.
const (
	FileModel      = "model.json"
	FileScaler     = "scaler.json"
	FileSelector   = "selector.json"
	FileCategories = "categories.json"
	FileManifest   = "manifest.yaml"
)

var (
	// ErrPartialBundle indicates a component listed in the manifest is
	// missing, or the bundle has no manifest or model at all.
	ErrPartialBundle = errors.New("partial model bundle")
	// ErrChecksumMismatch indicates a component differs from the manifest.
	ErrChecksumMismatch = errors.New("bundle checksum mismatch")
)

// Component is one file of a saved bundle.
type Component struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file"`
	SHA256 string `yaml:"sha256"`
}

// Manifest describes a saved bundle.
type Manifest struct {
	RunID            string      `yaml:"run_id"`
	CreatedAt        time.Time   `yaml:"created_at"`
	FeatureNames     []string    `yaml:"feature_names"`
	SelectedFeatures []string    `yaml:"selected_features,omitempty"`
	InputFeatures    int         `yaml:"n_features_in"`
	OutputFeatures   int         `yaml:"n_features_out"`
	Components       []Component `yaml:"components"`
}

// Files returns the component file names in manifest order.
func (m *Manifest) Files() []string {
	files := make([]string, len(m.Components))
	for i, c := range m.Components {
		files[i] = c.File
	}
	return files
}

// Bundle is a fitted model and everything needed to replay its input
// pipeline. Scaler, Selector and Categories are optional.
type Bundle struct {
	Model      *ml.RandomForest
	Scaler     *ml.StandardScaler
	Selector   *ml.SelectKBest
	Categories *features.Universe
	Manifest   Manifest
}

// Predict replays scale, then select, then the model on raw feature rows.
func (b *Bundle) Predict(X [][]float64) ([]int, error) {
	if b.Model == nil {
		return nil, fmt.Errorf("predict: %w", ml.ErrNotFitted)
	}
	for i, row := range X {
		if len(row) != b.Manifest.InputFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, bundle expects %d",
				ml.ErrShape, i, len(row), b.Manifest.InputFeatures)
		}
	}

	var err error
	if b.Scaler != nil {
		if X, err = b.Scaler.Transform(X); err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
	}
	if b.Selector != nil {
		if X, err = b.Selector.Transform(X); err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
	}
	return b.Model.Predict(X)
}

// Save writes every present component and then the manifest into dir. The
// manifest's component list and checksums are rebuilt from what was
// written.
func (b *Bundle) Save(dir string) error {
	if b.Model == nil {
		return fmt.Errorf("save bundle: %w: no model", ErrPartialBundle)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	parts := []struct {
		name string
		file string
		v    any
	}{
		{"model", FileModel, b.Model},
		{"scaler", FileScaler, b.Scaler},
		{"selector", FileSelector, b.Selector},
		{"categories", FileCategories, b.Categories},
	}

	b.Manifest.Components = b.Manifest.Components[:0]
	for _, p := range parts {
		if isNil(p.v) {
			continue
		}
		data, err := json.MarshalIndent(p.v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", p.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, p.file), data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", p.file, err)
		}
		b.Manifest.Components = append(b.Manifest.Components, Component{
			Name:   p.name,
			File:   p.file,
			SHA256: checksum(data),
		})
	}

	data, err := yaml.Marshal(&b.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileManifest), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func isNil(v any) bool {
	switch t := v.(type) {
	case *ml.RandomForest:
		return t == nil
	case *ml.StandardScaler:
		return t == nil
	case *ml.SelectKBest:
		return t == nil
	case *features.Universe:
		return t == nil
	}
	return v == nil
}

// ReadManifest decodes the manifest in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileManifest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no %s in %s", ErrPartialBundle, FileManifest, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Load reads a bundle saved by Save. Every component listed in the manifest
// must be present and match its checksum.
func Load(dir string) (*Bundle, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Manifest: *m}
	for _, c := range m.Components {
		data, err := os.ReadFile(filepath.Join(dir, c.File))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s listed in manifest but missing", ErrPartialBundle, c.File)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c.File, err)
		}
		if sum := checksum(data); sum != c.SHA256 {
			return nil, fmt.Errorf("%w: %s has sha256 %s, manifest says %s", ErrChecksumMismatch, c.File, sum, c.SHA256)
		}

		var target any
		switch c.Name {
		case "model":
			b.Model = &ml.RandomForest{}
			target = b.Model
		case "scaler":
			b.Scaler = &ml.StandardScaler{}
			target = b.Scaler
		case "selector":
			b.Selector = &ml.SelectKBest{}
			target = b.Selector
		case "categories":
			b.Categories = &features.Universe{}
			target = b.Categories
		default:
			return nil, fmt.Errorf("unknown bundle component %q", c.Name)
		}
		if err := json.Unmarshal(data, target); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.File, err)
		}
	}

	if b.Model == nil {
		return nil, fmt.Errorf("%w: manifest lists no model", ErrPartialBundle)
	}
	return b, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
