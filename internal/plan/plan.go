// Package plan builds, persists, and resolves change plans. A plan pairs a
// list of operations with the complete next spec; applying it replaces the
// current spec wholesale.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/cloudhand/cloudhand/internal/errors"
)

// Plan is one proposed change set. Operations and NewSpec stay raw JSON here:
// the spec is validated at apply time, so a malformed plan can still be saved
// and inspected.
type Plan struct {
	ID         string            `json:"id"`
	Operations []json.RawMessage `json:"operations"`
	NewSpec    json.RawMessage   `json:"new_spec"`
	Info       string            `json:"info,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// NewID returns a time-ordered plan identifier. UUIDv7 ids sort
// lexicographically by creation time, so the newest plan is always the
// largest id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func planFileName(id string) string {
	return fmt.Sprintf("plan-%s.json", id)
}

// Save writes the plan into dir, returning the artifact path
func (p *Plan) Save(dir string) (string, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plans directory: %w", err)
	}
	path := filepath.Join(dir, planFileName(p.ID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write plan: %w", err)
	}
	return path, nil
}

// Load reads a plan artifact
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, fmt.Sprintf("plan file not found at %s", path))
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to parse plan")
	}
	return &p, nil
}

// Latest returns the most recent plan in dir, resolved by id ordering rather
// than file modification time.
func Latest(dir string) (*Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "no plans directory; generate a plan first")
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "plan-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, "plan-"), ".json"))
	}
	if len(ids) == 0 {
		return nil, errors.NewConfiguration("no plans found in %s", dir)
	}
	sort.Strings(ids)
	return Load(filepath.Join(dir, planFileName(ids[len(ids)-1])))
}
