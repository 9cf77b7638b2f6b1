// internal/scenario/file_loader.go
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/medtrainlab/casesim/internal/models"
)

// FileLoader reads cases from <dir>/<caseID>/case.json. Used by the demo
// binary and as a local fallback when no MongoDB is configured.
type FileLoader struct {
	dir string
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{dir: dir}
}

// Load reads and assembles the case definition from disk.
func (l *FileLoader) Load(_ context.Context, caseID string) (*models.ScenarioDefinition, error) {
	path := filepath.Join(l.dir, caseID, "case.json")
	payload, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, notFound(caseID)
	}
	if err != nil {
		return nil, fmt.Errorf("read case file %s: %w", path, err)
	}

	var raw rawCase
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("parse case file %s: %w", path, err)
	}
	if raw.CaseID == "" {
		raw.CaseID = caseID
	}

	definition, err := raw.toDefinition()
	if err != nil {
		return nil, notFound(caseID)
	}
	return definition, nil
}
