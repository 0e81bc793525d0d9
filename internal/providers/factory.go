package providers

import (
	"strings"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/providers/hetzner"
)

// NewAdapter creates the adapter for the given provider id. An unknown
// provider is a configuration error, never retried.
func NewAdapter(provider string, creds Credentials) (CloudAdapter, error) {
	switch strings.ToLower(provider) {
	case "hetzner":
		return hetzner.New(hetzner.Config{
			Token:    creds.Token,
			Endpoint: creds.Endpoint,
		}), nil
	default:
		return nil, errors.NewConfiguration("unknown provider: %s", provider)
	}
}

// SupportedProviders lists the provider ids the registry knows about
func SupportedProviders() []string {
	return []string{"hetzner"}
}
