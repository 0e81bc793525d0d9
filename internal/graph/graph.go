// Package graph defines the typed resource graph that every pipeline stage
// exchanges: provider adapters produce it and the spec compiler consumes it.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// NodeType classifies a cloud resource node
type NodeType string

const (
	NodeComputeInstance NodeType = "ComputeInstance"
	NodeLoadBalancer    NodeType = "LoadBalancer"
	NodeNetwork         NodeType = "Network"
	NodeSubnet          NodeType = "Subnet"
	NodeFirewall        NodeType = "Firewall"
	NodeVolume          NodeType = "Volume"
	NodeIPAddress       NodeType = "IpAddress"
	NodeDNSRecord       NodeType = "DnsRecord"
)

// EdgeType classifies a directed relation between two nodes
type EdgeType string

const (
	EdgeAttachedTo  EdgeType = "attached_to"
	EdgeInNetwork   EdgeType = "in_network"
	EdgeProtectedBy EdgeType = "protected_by"
	EdgeTargets     EdgeType = "targets"
	EdgeResolvesTo  EdgeType = "resolves_to"
)

// Node represents one observed cloud resource. The id is provider-prefixed
// ("<provider>:<kind>:<native_id>") and globally unique within a graph.
// Attrs carries provider-specific details serialized as strings, including a
// raw JSON copy of the source API object under "raw".
type Node struct {
	ID               string            `json:"id"`
	Type             NodeType          `json:"type"`
	Name             string            `json:"name,omitempty"`
	Region           string            `json:"region,omitempty"`
	Zone             string            `json:"zone,omitempty"`
	Provider         string            `json:"provider,omitempty"`
	ProviderNativeID string            `json:"provider_native_id,omitempty"`
	Labels           map[string]string `json:"labels"`
	Attrs            map[string]string `json:"attrs"`
}

// Edge is a directed, typed relation between two node ids. Edges are not
// deduplicated; multiple edges of the same type between the same pair are
// valid.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Type EdgeType `json:"type"`
}

// CloudGraph is an ordered collection of nodes and edges produced by a single
// scan. A graph fully replaces its predecessor; there is no merging.
type CloudGraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// New returns an empty graph with non-nil slices so it serializes as
// {"nodes":[],"edges":[]} rather than nulls.
func New() *CloudGraph {
	return &CloudGraph{
		Nodes: []*Node{},
		Edges: []*Edge{},
	}
}

// AddNode appends a node to the graph
func (g *CloudGraph) AddNode(n *Node) {
	if n.Labels == nil {
		n.Labels = map[string]string{}
	}
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	g.Nodes = append(g.Nodes, n)
}

// AddEdge appends a directed edge to the graph
func (g *CloudGraph) AddEdge(from, to string, edgeType EdgeType) {
	g.Edges = append(g.Edges, &Edge{From: from, To: to, Type: edgeType})
}

// NodeByID returns the first node with the given id, or nil
func (g *CloudGraph) NodeByID(id string) *Node {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// NodesByType returns all nodes of the given type in insertion order
func (g *CloudGraph) NodesByType(t NodeType) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// EdgesByType returns all edges of the given type in insertion order
func (g *CloudGraph) EdgesByType(t EdgeType) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks that no edge references a node id absent from the graph.
// Adapters must not emit dangling edges to unscanned resource kinds.
func (g *CloudGraph) Validate() error {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("edge %s -> %s (%s): unknown source node %q", e.From, e.To, e.Type, e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fmt.Errorf("edge %s -> %s (%s): unknown target node %q", e.From, e.To, e.Type, e.To)
		}
	}
	return nil
}

// Save writes the graph as indented JSON, replacing any previous file
func (g *CloudGraph) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}

// Load reads a graph previously written by Save
func Load(path string) (*CloudGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	var g CloudGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse graph: %w", err)
	}
	return &g, nil
}
