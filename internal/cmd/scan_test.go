package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/graph"
)

// hetznerFixture serves canned list responses keyed by endpoint path
func hetznerFixture(t *testing.T, responses map[string]string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := responses[r.URL.Path]
		if !ok {
			body = fmt.Sprintf(`{%q: []}`, r.URL.Path[1:])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("HCLOUD_ENDPOINT", srv.URL)
	t.Setenv("HCLOUD_TOKEN", "test-token")
	t.Setenv("OPENBAO_TOKEN", "")
}

func runScanIn(t *testing.T, root string) error {
	t.Helper()
	prevRoot, prevProvider := rootDir, scanProvider
	rootDir, scanProvider = root, "hetzner"
	t.Cleanup(func() { rootDir, scanProvider = prevRoot, prevProvider })
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return runScan(cmd, nil)
}

func TestRunScanWritesGraph(t *testing.T) {
	hetznerFixture(t, map[string]string{
		"/servers": `{"servers": [{
			"id": 101, "name": "web",
			"private_net": [{"network": 7, "ip": "10.0.0.2"}]
		}]}`,
		"/networks": `{"networks": [{"id": 7, "name": "appnet", "ip_range": "10.0.0.0/16"}]}`,
	})
	root := t.TempDir()

	require.NoError(t, runScanIn(t, root))

	g, err := graph.Load(filepath.Join(root, "cloudhand", "scan.json"))
	require.NoError(t, err)
	assert.NotNil(t, g.NodeByID("hetzner:server:101"))
	assert.NotNil(t, g.NodeByID("hetzner:network:7"))
	assert.Len(t, g.EdgesByType(graph.EdgeInNetwork), 1)
}

func TestRunScanRejectsInconsistentGraph(t *testing.T) {
	// The server references network 7 but the networks listing never returns
	// it, leaving a membership edge with no target node.
	hetznerFixture(t, map[string]string{
		"/servers": `{"servers": [{
			"id": 101, "name": "web",
			"private_net": [{"network": 7, "ip": "10.0.0.2"}]
		}]}`,
	})
	root := t.TempDir()

	err := runScanIn(t, root)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	_, statErr := os.Stat(filepath.Join(root, "cloudhand", "scan.json"))
	assert.True(t, os.IsNotExist(statErr), "an inconsistent graph must not be persisted")
}
