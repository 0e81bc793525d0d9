package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func testKeystore(t *testing.T) *Keystore {
	t.Helper()
	t.Setenv("OPENBAO_TOKEN", "")
	t.Setenv("CLOUDHAND_KEYS_DIR", t.TempDir())
	return Open()
}

func TestGenerateKeypairIsParseable(t *testing.T) {
	priv, pub, err := generateKeypair(2048)
	require.NoError(t, err)

	signer, err := ssh.ParsePrivateKey([]byte(priv))
	require.NoError(t, err)

	parsedPub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pub))
	require.NoError(t, err)
	assert.Equal(t, signer.PublicKey().Marshal(), parsedPub.Marshal())
}

func TestLocalKeyCreatedOnFirstUse(t *testing.T) {
	ks := testKeystore(t)

	priv, pub, err := ks.GetOrCreateProjectKey(context.Background(), "demo")
	require.NoError(t, err)
	assert.Contains(t, priv, "RSA PRIVATE KEY")
	assert.True(t, strings.HasPrefix(pub, "ssh-rsa "))

	info, err := os.Stat(filepath.Join(ks.keysDir, "demo_id_rsa"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLocalKeyIsStable(t *testing.T) {
	ks := testKeystore(t)

	first, _, err := ks.GetOrCreateProjectKey(context.Background(), "demo")
	require.NoError(t, err)
	second, _, err := ks.GetOrCreateProjectKey(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, first, second, "repeat calls reuse the persisted keypair")
}

func TestProjectsGetDistinctKeys(t *testing.T) {
	ks := testKeystore(t)

	a, _, err := ks.GetOrCreateProjectKey(context.Background(), "alpha")
	require.NoError(t, err)
	b, _, err := ks.GetOrCreateProjectKey(context.Background(), "beta")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestProviderTokenFallbackWithoutVault(t *testing.T) {
	ks := testKeystore(t)
	got := ks.ProviderToken(context.Background(), "hetzner", "fallback-token")
	assert.Equal(t, "fallback-token", got)
}
