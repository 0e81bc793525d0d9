package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitProjectCreatesLayout(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitProject(root, "hetzner", "demo"))

	assert.DirExists(t, filepath.Join(root, "cloudhand", "terraform"))
	assert.DirExists(t, filepath.Join(root, "cloudhand", "plans"))
	assert.FileExists(t, filepath.Join(root, ".gitignore"))

	settings, err := LoadSettings(root)
	require.NoError(t, err)
	assert.Equal(t, "hetzner", settings.Provider)
	assert.Equal(t, "demo", settings.Project)
}

func TestInitProjectPreservesExistingFiles(t *testing.T) {
	root := t.TempDir()
	custom := "provider: hetzner\nproject: custom\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "ch.yaml"), []byte(custom), 0644))

	require.NoError(t, InitProject(root, "hetzner", "demo"))

	settings, err := LoadSettings(root)
	require.NoError(t, err)
	assert.Equal(t, "custom", settings.Project, "re-running init must not clobber ch.yaml")
}

func TestLoadSettingsMissingFile(t *testing.T) {
	settings, err := LoadSettings(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, settings.Provider)
	assert.Equal(t, "default", settings.Project)
}

func TestResolveProviderTokenPrefersSecretsFile(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "env-token")
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cloudhand"), 0755))
	secrets := `{"providers":{"hetzner":{"token":"file-token"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "cloudhand", "secrets.json"), []byte(secrets), 0644))

	assert.Equal(t, "file-token", ResolveProviderToken(root, "hetzner"))
}

func TestResolveProviderTokenEnvFallback(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "env-token")
	assert.Equal(t, "env-token", ResolveProviderToken(t.TempDir(), "hetzner"))
}

func TestResolveProviderTokenUnreadableSecrets(t *testing.T) {
	t.Setenv("HCLOUD_TOKEN", "env-token")
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cloudhand"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cloudhand", "secrets.json"), []byte("{broken"), 0644))

	assert.Equal(t, "env-token", ResolveProviderToken(root, "hetzner"))
}

func TestResolveProviderTokenUnknownProvider(t *testing.T) {
	assert.Empty(t, ResolveProviderToken(t.TempDir(), "aws"))
}

func TestPathsLayout(t *testing.T) {
	p := NewPaths("/srv/project")
	assert.Equal(t, "/srv/project/cloudhand/scan.json", p.ScanFile())
	assert.Equal(t, "/srv/project/cloudhand/spec.json", p.SpecFile())
	assert.Equal(t, "/srv/project/cloudhand/terraform", p.TerraformDir())
	assert.Equal(t, "/srv/project/cloudhand/plans", p.PlansDir())
	assert.Equal(t, "/srv/project/ch.yaml", p.SettingsFile())
}
