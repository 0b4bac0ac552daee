// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Artifact file names inside a run directory. Each stage's output is
// addressable on its own so a rerun can resume from the last good stage.
const (
	intentFile     = "intent.yaml"
	literatureFile = "literature.yaml"
	scoredFile     = "scored.yaml"
	outlineFile    = "outline.yaml"
	reviewFile     = "review.yaml"
	reportFile     = "report.yaml"
	markdownFile   = "review.md"
)

// loadArtifact reads one stage artifact into v. Returns false with no error
// when the artifact does not exist yet.
func loadArtifact(dir, name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", name, err)
	}
	return true, nil
}

// saveArtifact writes one stage artifact as YAML.
func saveArtifact(dir, name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
