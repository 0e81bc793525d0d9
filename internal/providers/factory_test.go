package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudhand/cloudhand/internal/errors"
)

func TestNewAdapterHetzner(t *testing.T) {
	adapter, err := NewAdapter("hetzner", Credentials{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "hetzner", adapter.ID())

	// Lookup is case-insensitive.
	adapter, err = NewAdapter("Hetzner", Credentials{Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "hetzner", adapter.ID())
}

func TestNewAdapterUnknownProvider(t *testing.T) {
	_, err := NewAdapter("linode", Credentials{})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestSupportedProviders(t *testing.T) {
	assert.Contains(t, SupportedProviders(), "hetzner")
}
