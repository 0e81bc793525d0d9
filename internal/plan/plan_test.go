package plan

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhand/cloudhand/internal/errors"
)

func writeSpecFile(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "cloudhand")
	require.NoError(t, os.MkdirAll(dir, 0755))
	specJSON := `{"provider":"hetzner","networks":[],"instances":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "spec.json"), []byte(specJSON), 0644))
}

func TestNewIDIsMonotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 100; i++ {
		next := NewID()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := &Plan{
		Operations: []json.RawMessage{json.RawMessage(`{"op":"add_instance"}`)},
		NewSpec:    json.RawMessage(`{"provider":"hetzner"}`),
	}
	path, err := p.Save(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p.ID, loaded.ID)
	assert.JSONEq(t, `{"provider":"hetzner"}`, string(loaded.NewSpec))
}

func TestLatestPicksHighestID(t *testing.T) {
	dir := t.TempDir()
	var last *Plan
	for i := 0; i < 3; i++ {
		p := &Plan{NewSpec: json.RawMessage(`{}`)}
		_, err := p.Save(dir)
		require.NoError(t, err)
		last = p
	}

	// Backdate the newest file so mtime would pick the wrong plan.
	old := filepath.Join(dir, "plan-"+last.ID+".json")
	past := mustParseTime(t, "2020-01-01T00:00:00Z")
	require.NoError(t, os.Chtimes(old, past, past))

	latest, err := Latest(dir)
	require.NoError(t, err)
	assert.Equal(t, last.ID, latest.ID)
}

func TestLatestWithoutPlans(t *testing.T) {
	_, err := Latest(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestGenerateWithoutPlannerIsNoOp(t *testing.T) {
	root := t.TempDir()
	writeSpecFile(t, root)

	p, path, err := Generate(context.Background(), root, "add a db server", nil)
	require.NoError(t, err)
	assert.Empty(t, p.Operations)
	assert.Contains(t, p.Info, "no changes")
	assert.JSONEq(t, `{"provider":"hetzner","networks":[],"instances":[]}`, string(p.NewSpec))
	assert.FileExists(t, path)
}

func TestGenerateWithoutSpecFails(t *testing.T) {
	_, _, err := Generate(context.Background(), t.TempDir(), "anything", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

type stubPlanner struct {
	response string
	err      error
}

func (s *stubPlanner) Plan(_ context.Context, _ string, _ []byte) (string, error) {
	return s.response, s.err
}

func TestGenerateParsesFencedResponse(t *testing.T) {
	root := t.TempDir()
	writeSpecFile(t, root)

	planner := &stubPlanner{response: "```json\n" +
		`{"operations":[{"op":"add"}],"new_spec":{"provider":"hetzner","instances":[{"name":"web"}]}}` +
		"\n```"}
	p, _, err := Generate(context.Background(), root, "deploy my app", planner)
	require.NoError(t, err)
	assert.Empty(t, p.Error)
	assert.Len(t, p.Operations, 1)
	assert.Contains(t, string(p.NewSpec), `"web"`)
}

func TestGenerateRejectsEmptyDeploymentPlan(t *testing.T) {
	root := t.TempDir()
	writeSpecFile(t, root)

	planner := &stubPlanner{response: `{"operations":[],"new_spec":{"provider":"hetzner","instances":[]}}`}
	p, _, err := Generate(context.Background(), root, "deploy my app", planner)
	require.NoError(t, err)
	assert.Contains(t, p.Error, "no instances")
	assert.Empty(t, p.Operations, "falls back to the no-op plan")
}

func TestGeneratePlannerFailureFallsBack(t *testing.T) {
	root := t.TempDir()
	writeSpecFile(t, root)

	planner := &stubPlanner{err: errors.NewTransient("planner unreachable")}
	p, _, err := Generate(context.Background(), root, "check status", planner)
	require.NoError(t, err)
	assert.Contains(t, p.Error, "planner unreachable")
	assert.JSONEq(t, `{"provider":"hetzner","networks":[],"instances":[]}`, string(p.NewSpec))
}

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestParseResponseVariants(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"bare json", `{"new_spec":{}}`, false},
		{"fenced", "```\n{\"new_spec\":{}}\n```", false},
		{"fenced with language", "```json\n{\"new_spec\":{}}\n```", false},
		{"prose around fence", "Here is the plan:\n```json\n{\"new_spec\":{}}\n```\nDone.", false},
		{"missing new_spec", `{"operations":[]}`, true},
		{"not json", "no plan today", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseResponse(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
