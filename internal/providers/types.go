// Package providers defines the scan contract implemented by each cloud
// provider adapter and the registry used to look adapters up by id.
package providers

import (
	"context"

	"github.com/cloudhand/cloudhand/internal/graph"
)

// CloudAdapter turns live provider API state into a resource graph. A scan
// either returns a complete graph or an error; partial graphs are never
// considered valid.
type CloudAdapter interface {
	// ID returns the provider identifier (e.g. "hetzner")
	ID() string

	// Scan pages through the provider's listing endpoints and builds a
	// CloudGraph of every supported resource kind and their relations.
	Scan(ctx context.Context) (*graph.CloudGraph, error)
}

// Credentials carries the provider-neutral fields resolved from secrets and
// environment before an adapter is constructed. Each adapter converts these
// into its own typed config and validates them at its boundary.
type Credentials struct {
	Token    string
	Endpoint string
	Region   string
}
