// Package hetzner implements the scan contract against the Hetzner Cloud API.
package hetzner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/graph"
	"github.com/cloudhand/cloudhand/internal/logger"
)

// Config is the typed adapter configuration, validated at the adapter
// boundary. Endpoint overrides the API base URL (used by tests).
type Config struct {
	Token    string
	Endpoint string
}

// Adapter scans Hetzner Cloud and builds a CloudGraph of the core data-plane
// resources: servers, networks, volumes, load balancers, firewalls, primary
// and floating IPs.
type Adapter struct {
	config Config
	log    logger.Logger
}

// New creates a Hetzner adapter. Token and endpoint fall back to the
// HCLOUD_TOKEN and HCLOUD_ENDPOINT environment variables.
func New(config Config) *Adapter {
	if config.Token == "" {
		config.Token = os.Getenv("HCLOUD_TOKEN")
	}
	if config.Endpoint == "" {
		config.Endpoint = os.Getenv("HCLOUD_ENDPOINT")
	}
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	return &Adapter{
		config: config,
		log:    logger.New("hetzner"),
	}
}

// ID returns the provider identifier
func (a *Adapter) ID() string {
	return "hetzner"
}

func serverNodeID(id int64) string  { return fmt.Sprintf("hetzner:server:%d", id) }
func networkNodeID(id int64) string { return fmt.Sprintf("hetzner:network:%d", id) }

// Scan pages through every listing endpoint and maps the results onto graph
// nodes and edges. A failed fetch aborts the scan; no partial graph is
// returned.
func (a *Adapter) Scan(ctx context.Context) (*graph.CloudGraph, error) {
	if a.config.Token == "" {
		return nil, errors.NewConfiguration("hetzner token not configured: set HCLOUD_TOKEN or configure a provider token")
	}

	c := newClient(a.config.Token, a.config.Endpoint)
	g := graph.New()

	servers, err := c.listPaginated(ctx, "servers", "servers")
	if err != nil {
		return nil, err
	}
	networks, err := c.listPaginated(ctx, "networks", "networks")
	if err != nil {
		return nil, err
	}
	volumes, err := c.listPaginated(ctx, "volumes", "volumes")
	if err != nil {
		return nil, err
	}
	lbs, err := c.listPaginated(ctx, "load_balancers", "load_balancers")
	if err != nil {
		return nil, err
	}
	firewalls, err := c.listPaginated(ctx, "firewalls", "firewalls")
	if err != nil {
		return nil, err
	}
	primaryIPs, err := c.listPaginated(ctx, "primary_ips", "primary_ips")
	if err != nil {
		return nil, err
	}
	floatingIPs, err := c.listPaginated(ctx, "floating_ips", "floating_ips")
	if err != nil {
		return nil, err
	}

	a.addServers(g, servers)
	a.addNetworks(g, networks)
	a.linkServerNetworks(g, servers)
	a.addVolumes(g, volumes)
	a.addLoadBalancers(g, lbs)
	a.addFirewalls(g, firewalls)
	a.addPrimaryIPs(g, primaryIPs)
	a.addFloatingIPs(g, floatingIPs)

	a.log.Info("scan complete",
		logger.Int("nodes", len(g.Nodes)),
		logger.Int("edges", len(g.Edges)),
	)
	return g, nil
}

func (a *Adapter) addServers(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var s server
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}

		ipv4 := s.PublicNet.IPv4.IP
		if ipv4 == "" {
			ipv4 = s.PublicNet.IPv4Address
		}

		var privateIPs []string
		for _, nic := range s.PrivateNet {
			if nic.IP != "" {
				privateIPs = append(privateIPs, nic.IP)
			}
			for _, alias := range nic.AliasIPs {
				if alias != "" {
					privateIPs = append(privateIPs, alias)
				}
			}
		}

		imageName := ""
		if s.Image != nil {
			imageName = s.Image.Name
		}

		g.AddNode(&graph.Node{
			ID:               serverNodeID(s.ID),
			Type:             graph.NodeComputeInstance,
			Name:             s.Name,
			Region:           s.Datacenter.Location.Name,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(s.ID, 10),
			Labels:           s.Labels,
			Attrs: map[string]string{
				"server_type": s.ServerType.Name,
				"datacenter":  s.Datacenter.Name,
				"status":      s.Status,
				"ipv4":        ipv4,
				"ipv6":        s.PublicNet.IPv6.IP,
				"private_ips": strings.Join(privateIPs, ","),
				"image":       imageName,
				"created":     s.Created,
				"raw":         string(raw),
			},
		})
	}
}

func (a *Adapter) addNetworks(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var n network
		if err := json.Unmarshal(raw, &n); err != nil {
			continue
		}

		g.AddNode(&graph.Node{
			ID:               networkNodeID(n.ID),
			Type:             graph.NodeNetwork,
			Name:             n.Name,
			Region:           n.firstSubnet().NetworkZone,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(n.ID, 10),
			Labels:           n.Labels,
			Attrs: map[string]string{
				"ip_range": n.IPRange,
				"subnets":  rawOrEmptyList(n.Subnets),
				"routes":   rawOrEmptyList(n.Routes),
				"raw":      string(raw),
			},
		})
	}
}

func (a *Adapter) linkServerNetworks(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var s server
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		for _, nic := range s.PrivateNet {
			if nic.Network == 0 {
				continue
			}
			g.AddEdge(serverNodeID(s.ID), networkNodeID(nic.Network), graph.EdgeInNetwork)
		}
	}
}

func (a *Adapter) addVolumes(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var v volume
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}

		region := v.Location.NetworkZone
		if region == "" {
			region = v.Location.Name
		}

		nodeID := fmt.Sprintf("hetzner:volume:%d", v.ID)
		g.AddNode(&graph.Node{
			ID:               nodeID,
			Type:             graph.NodeVolume,
			Name:             v.Name,
			Region:           region,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(v.ID, 10),
			Labels:           v.Labels,
			Attrs: map[string]string{
				"size_gb":      strconv.FormatInt(v.Size, 10),
				"linux_device": v.LinuxDevice,
				"location":     v.Location.Name,
				"created":      v.Created,
				"raw":          string(raw),
			},
		})

		if v.Server != nil {
			g.AddEdge(serverNodeID(*v.Server), nodeID, graph.EdgeAttachedTo)
		}
	}
}

func (a *Adapter) addLoadBalancers(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var lb loadBalancer
		if err := json.Unmarshal(raw, &lb); err != nil {
			continue
		}

		var ports []string
		for _, svc := range lb.Services {
			if svc.ListenPort == 0 || svc.DestinationPort == 0 || svc.Protocol == "" {
				continue
			}
			ports = append(ports, fmt.Sprintf("%d->%d/%s", svc.ListenPort, svc.DestinationPort, svc.Protocol))
		}

		nodeID := fmt.Sprintf("hetzner:lb:%d", lb.ID)
		g.AddNode(&graph.Node{
			ID:               nodeID,
			Type:             graph.NodeLoadBalancer,
			Name:             lb.Name,
			Region:           lb.Location.Name,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(lb.ID, 10),
			Labels:           lb.Labels,
			Attrs: map[string]string{
				"lb_type":   lb.LoadBalancerType.Name,
				"algorithm": lb.Algorithm.Type,
				"ipv4":      lb.PublicNet.IPv4.IP,
				"ipv6":      lb.PublicNet.IPv6.IP,
				"ports":     strings.Join(ports, ", "),
				"created":   lb.Created,
				"raw":       string(raw),
			},
		})

		for _, nic := range lb.PrivateNet {
			if nic.Network == 0 {
				continue
			}
			g.AddEdge(nodeID, networkNodeID(nic.Network), graph.EdgeInNetwork)
		}

		// Targets: servers the LB fronts, or explicit IPs. IP targets become
		// synthetic IpAddress nodes scoped to this load balancer, so the same
		// address fronted by two LBs yields two nodes.
		seenIPs := make(map[string]bool)
		for _, target := range lb.Targets {
			switch {
			case target.Type == "server" && target.Server != nil:
				g.AddEdge(nodeID, serverNodeID(target.Server.ID), graph.EdgeTargets)

			case target.Type == "ip" && target.IP != nil && target.IP.IP != "":
				ipNodeID := fmt.Sprintf("hetzner:lb_target_ip:%d:%s", lb.ID, target.IP.IP)
				if !seenIPs[ipNodeID] {
					seenIPs[ipNodeID] = true
					g.AddNode(&graph.Node{
						ID:               ipNodeID,
						Type:             graph.NodeIPAddress,
						Name:             target.IP.IP,
						Region:           lb.Location.Name,
						Provider:         "hetzner",
						ProviderNativeID: target.IP.IP,
						Attrs: map[string]string{
							"address":        target.IP.IP,
							"kind":           "lb_target",
							"use_private_ip": strconv.FormatBool(target.IP.UsePrivateIP),
						},
					})
				}
				g.AddEdge(nodeID, ipNodeID, graph.EdgeTargets)
			}
		}
	}
}

func (a *Adapter) addFirewalls(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var fw firewall
		if err := json.Unmarshal(raw, &fw); err != nil {
			continue
		}

		nodeID := fmt.Sprintf("hetzner:firewall:%d", fw.ID)
		g.AddNode(&graph.Node{
			ID:               nodeID,
			Type:             graph.NodeFirewall,
			Name:             fw.Name,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(fw.ID, 10),
			Labels:           fw.Labels,
			Attrs: map[string]string{
				"rules":                rawOrEmptyList(fw.Rules),
				"applied_to":           rawOrEmptyList(fw.AppliedTo),
				"applied_to_resources": rawOrEmptyList(fw.AppliedToResources),
				"created":              fw.Created,
				"raw":                  string(raw),
			},
		})

		// applied_to and applied_to_resources are merged, deduplicated by
		// server id.
		seen := make(map[int64]bool)
		for _, target := range fw.targets() {
			if target.Type != "server" || target.Server == nil || seen[target.Server.ID] {
				continue
			}
			seen[target.Server.ID] = true
			g.AddEdge(nodeID, serverNodeID(target.Server.ID), graph.EdgeProtectedBy)
		}
	}
}

func (a *Adapter) addPrimaryIPs(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var ip primaryIP
		if err := json.Unmarshal(raw, &ip); err != nil {
			continue
		}

		assigneeID := ""
		if ip.AssigneeID != nil {
			assigneeID = strconv.FormatInt(*ip.AssigneeID, 10)
		}

		nodeID := fmt.Sprintf("hetzner:primary_ip:%d", ip.ID)
		g.AddNode(&graph.Node{
			ID:               nodeID,
			Type:             graph.NodeIPAddress,
			Name:             ip.IP,
			Region:           ip.Datacenter.Location.Name,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(ip.ID, 10),
			Labels:           ip.Labels,
			Attrs: map[string]string{
				"address":       ip.IP,
				"assignee_type": ip.AssigneeType,
				"assignee_id":   assigneeID,
				"created":       ip.Created,
				"blocked":       strconv.FormatBool(ip.Blocked),
				"auto_delete":   strconv.FormatBool(ip.AutoDelete),
				"dns_ptr":       rawOrEmptyObject(ip.DNSPtr),
				"raw":           string(raw),
			},
		})

		if ip.AssigneeType == "server" && ip.AssigneeID != nil {
			g.AddEdge(nodeID, serverNodeID(*ip.AssigneeID), graph.EdgeResolvesTo)
		}
	}
}

func (a *Adapter) addFloatingIPs(g *graph.CloudGraph, items []json.RawMessage) {
	for _, raw := range items {
		var ip floatingIP
		if err := json.Unmarshal(raw, &ip); err != nil {
			continue
		}

		homeLocation := ""
		if ip.HomeLocation != nil {
			homeLocation = ip.HomeLocation.Name
		}
		serverID := ""
		if ip.Server != nil {
			serverID = strconv.FormatInt(*ip.Server, 10)
		}

		nodeID := fmt.Sprintf("hetzner:floating_ip:%d", ip.ID)
		g.AddNode(&graph.Node{
			ID:               nodeID,
			Type:             graph.NodeIPAddress,
			Name:             ip.IP,
			Region:           homeLocation,
			Provider:         "hetzner",
			ProviderNativeID: strconv.FormatInt(ip.ID, 10),
			Labels:           ip.Labels,
			Attrs: map[string]string{
				"address":       ip.IP,
				"type":          ip.Type,
				"home_location": homeLocation,
				"server_id":     serverID,
				"blocked":       strconv.FormatBool(ip.Blocked),
				"dns_ptr":       rawOrEmptyObject(ip.DNSPtr),
				"raw":           string(raw),
			},
		})

		if ip.Server != nil {
			g.AddEdge(nodeID, serverNodeID(*ip.Server), graph.EdgeResolvesTo)
		}
	}
}

func rawOrEmptyList(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "[]"
	}
	return string(raw)
}

func rawOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
