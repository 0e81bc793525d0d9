package hetzner

import "encoding/json"

// Wire types for the subset of the Hetzner Cloud API v1 the scanner reads.
// Every listed object is also kept verbatim as raw JSON on its graph node, so
// these structs only need the fields the graph model projects out.

type location struct {
	Name        string `json:"name"`
	NetworkZone string `json:"network_zone"`
}

type datacenter struct {
	Name     string   `json:"name"`
	Location location `json:"location"`
}

type privateNet struct {
	Network  int64    `json:"network"`
	IP       string   `json:"ip"`
	AliasIPs []string `json:"alias_ips"`
}

type publicNet struct {
	IPv4 struct {
		IP string `json:"ip"`
	} `json:"ipv4"`
	IPv6 struct {
		IP string `json:"ip"`
	} `json:"ipv6"`
	// Some API shapes flatten the address instead of nesting it.
	IPv4Address string `json:"ipv4_address"`
}

type server struct {
	ID         int64             `json:"id"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	Created    string            `json:"created"`
	Labels     map[string]string `json:"labels"`
	PublicNet  publicNet         `json:"public_net"`
	PrivateNet []privateNet      `json:"private_net"`
	ServerType struct {
		Name string `json:"name"`
	} `json:"server_type"`
	Datacenter datacenter `json:"datacenter"`
	Image      *struct {
		Name string `json:"name"`
	} `json:"image"`
}

type subnet struct {
	NetworkZone string `json:"network_zone"`
}

type network struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	IPRange string            `json:"ip_range"`
	Labels  map[string]string `json:"labels"`
	Subnets json.RawMessage   `json:"subnets"`
	Routes  json.RawMessage   `json:"routes"`
}

func (n *network) firstSubnet() subnet {
	var subnets []subnet
	if err := json.Unmarshal(n.Subnets, &subnets); err == nil && len(subnets) > 0 {
		return subnets[0]
	}
	return subnet{}
}

type volume struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Size        int64             `json:"size"`
	LinuxDevice string            `json:"linux_device"`
	Created     string            `json:"created"`
	Labels      map[string]string `json:"labels"`
	Location    location          `json:"location"`
	Server      *int64            `json:"server"`
}

type lbService struct {
	Protocol        string `json:"protocol"`
	ListenPort      int    `json:"listen_port"`
	DestinationPort int    `json:"destination_port"`
}

type lbTarget struct {
	Type   string `json:"type"`
	Server *struct {
		ID int64 `json:"id"`
	} `json:"server"`
	IP *struct {
		IP           string `json:"ip"`
		UsePrivateIP bool   `json:"use_private_ip"`
	} `json:"ip"`
}

type loadBalancer struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Created          string            `json:"created"`
	Labels           map[string]string `json:"labels"`
	LoadBalancerType struct {
		Name string `json:"name"`
	} `json:"load_balancer_type"`
	Algorithm struct {
		Type string `json:"type"`
	} `json:"algorithm"`
	PublicNet  publicNet    `json:"public_net"`
	PrivateNet []privateNet `json:"private_net"`
	Location   location     `json:"location"`
	Services   []lbService  `json:"services"`
	Targets    []lbTarget   `json:"targets"`
}

type firewallTarget struct {
	Type   string `json:"type"`
	Server *struct {
		ID int64 `json:"id"`
	} `json:"server"`
}

type firewall struct {
	ID                 int64             `json:"id"`
	Name               string            `json:"name"`
	Created            string            `json:"created"`
	Labels             map[string]string `json:"labels"`
	Rules              json.RawMessage   `json:"rules"`
	AppliedTo          json.RawMessage   `json:"applied_to"`
	AppliedToResources json.RawMessage   `json:"applied_to_resources"`
}

// targets merges applied_to and applied_to_resources, in that order
func (f *firewall) targets() []firewallTarget {
	var out []firewallTarget
	for _, raw := range []json.RawMessage{f.AppliedTo, f.AppliedToResources} {
		var chunk []firewallTarget
		if err := json.Unmarshal(raw, &chunk); err == nil {
			out = append(out, chunk...)
		}
	}
	return out
}

type primaryIP struct {
	ID           int64             `json:"id"`
	IP           string            `json:"ip"`
	AssigneeType string            `json:"assignee_type"`
	AssigneeID   *int64            `json:"assignee_id"`
	Created      string            `json:"created"`
	Blocked      bool              `json:"blocked"`
	AutoDelete   bool              `json:"auto_delete"`
	DNSPtr       json.RawMessage   `json:"dns_ptr"`
	Labels       map[string]string `json:"labels"`
	Datacenter   datacenter        `json:"datacenter"`
}

type floatingIP struct {
	ID           int64             `json:"id"`
	IP           string            `json:"ip"`
	Type         string            `json:"type"`
	Blocked      bool              `json:"blocked"`
	DNSPtr       json.RawMessage   `json:"dns_ptr"`
	Labels       map[string]string `json:"labels"`
	HomeLocation *location         `json:"home_location"`
	Server       *int64            `json:"server"`
}
