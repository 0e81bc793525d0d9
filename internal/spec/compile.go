package spec

import (
	"github.com/cloudhand/cloudhand/internal/graph"
	"github.com/cloudhand/cloudhand/internal/logger"
)

const (
	defaultNetworkName = "default"
	defaultNetworkCIDR = "10.0.0.0/24"
	defaultServerSize  = "cx21"
)

// Compile projects an observed resource graph into a desired-state spec. The
// projection is deterministic: the same graph always yields the same spec,
// with networks and instances emitted in graph iteration order.
//
// Only networks and compute instances are projected. Workloads live purely in
// the spec layer and are never reconstructed from infrastructure, so compiled
// instances always carry an empty workload list.
func Compile(g *graph.CloudGraph, provider string) *DesiredStateSpec {
	log := logger.New("spec")

	s := &DesiredStateSpec{
		Provider:  provider,
		Networks:  []NetworkSpec{},
		Instances: []InstanceSpec{},
	}

	// Networks first, keyed by node ID so edges can resolve to spec names.
	netNames := make(map[string]string)
	for _, node := range g.Nodes {
		if node.Type != graph.NodeNetwork {
			continue
		}
		cidr := node.Attrs["ip_range"]
		if cidr == "" {
			cidr = defaultNetworkCIDR
		}
		name := nodeName(node)
		s.Networks = append(s.Networks, NetworkSpec{Name: name, CIDR: cidr})
		netNames[node.ID] = name
	}

	// Membership edges map each server to a network, first edge wins
	serverNetwork := make(map[string]string)
	for _, edge := range g.Edges {
		if edge.Type != graph.EdgeInNetwork {
			continue
		}
		name, ok := netNames[edge.To]
		if !ok {
			continue
		}
		if _, claimed := serverNetwork[edge.From]; !claimed {
			serverNetwork[edge.From] = name
		}
	}

	// A real network may already be named "default"; synthesize one only when
	// the name is absent.
	haveDefault := false
	for _, n := range s.Networks {
		if n.Name == defaultNetworkName {
			haveDefault = true
		}
	}
	for _, node := range g.Nodes {
		if node.Type != graph.NodeComputeInstance {
			continue
		}
		netName, ok := serverNetwork[node.ID]
		if !ok {
			// Detached servers land in a synthesized default network so the
			// spec stays self-contained.
			netName = defaultNetworkName
			if !haveDefault {
				s.Networks = append(s.Networks, NetworkSpec{Name: defaultNetworkName, CIDR: defaultNetworkCIDR})
				haveDefault = true
			}
		}

		size := node.Attrs["server_type"]
		if size == "" {
			size = defaultServerSize
		}
		if s.Region == "" && node.Region != "" {
			s.Region = node.Region
		}

		s.Instances = append(s.Instances, InstanceSpec{
			Name:      nodeName(node),
			Size:      size,
			Network:   netName,
			Region:    node.Region,
			Labels:    node.Labels,
			Workloads: []ApplicationSpec{},
		})
	}

	log.Debug("compiled graph to spec",
		logger.String("provider", provider),
		logger.Int("networks", len(s.Networks)),
		logger.Int("instances", len(s.Instances)))
	return s
}

// nodeName falls back to the node ID so an unnamed resource still compiles to
// a valid spec entry.
func nodeName(node *graph.Node) string {
	if node.Name != "" {
		return node.Name
	}
	return node.ID
}
