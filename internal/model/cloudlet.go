// Package model holds the shared data types exchanged between Tier-1 and
// Tier-2: cloudlets, recipes, client descriptors, carbon reports, and
// deployment descriptors.
package model

import (
	"net"
	"time"
)

// LatLon is a geographic coordinate pair.
type LatLon struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether the coordinate pair falls within the legal ranges
// (lat in [-90,90], lon in [-180,180]).
func (l LatLon) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// NetworkPolicy declares the CIDR-based acceptance rules a cloudlet applies
// to incoming clients.
type NetworkPolicy struct {
	LocalNetworks   []*net.IPNet `json:"-"`
	AcceptedClients []*net.IPNet `json:"-"`
	RejectedClients []*net.IPNet `json:"-"`
}

// Resources is the free-form resource/carbon bundle a cloudlet reports.
// Keys beyond the well-known ones are preserved for forward compatibility.
type Resources map[string]interface{}

const (
	ResourceCPURatio           = "cpu_ratio"
	ResourceCarbonIntensity    = "carbon_intensity_gco2_kwh"
	ResourceEnergyUseJoules    = "energy_use_joules"
	ResourceCarbonEmissionGCO2 = "carbon_emission_gco2"
)

// Float extracts a numeric field, returning (0, false) if absent or not numeric.
func (r Resources) Float(key string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// CPURatio returns the reported CPU utilization ratio, defaulting to 0.
func (r Resources) CPURatio() float64 {
	v, _ := r.Float(ResourceCPURatio)
	return v
}

// CarbonIntensity returns the reported carbon intensity and true, or
// (0, false) when the field is absent or not numeric. The carbon-intensity
// match stage treats a false result as +Inf so such cloudlets sort last.
func (r Resources) CarbonIntensity() (float64, bool) {
	return r.Float(ResourceCarbonIntensity)
}

// Cloudlet is a registered Tier-2 edge node as known to a Tier-1 registry.
type Cloudlet struct {
	UUID          string        `json:"uuid"`
	Name          string        `json:"name,omitempty"`
	Endpoint      string        `json:"endpoint"`
	LastUpdate    time.Time     `json:"last_update"`
	NetworkPolicy NetworkPolicy `json:"-"`
	Locations     []LatLon      `json:"locations"`
	Resources     Resources     `json:"resources"`
}

// Summary is the projection returned by GET /api/v1/cloudlets/.
type Summary struct {
	UUID      string    `json:"uuid"`
	Endpoint  string    `json:"endpoint"`
	Locations []LatLon  `json:"locations"`
	Resources Resources `json:"resources"`
}

// Summary projects a Cloudlet into its public listing shape.
func (c *Cloudlet) Summary() Summary {
	return Summary{
		UUID:      c.UUID,
		Endpoint:  c.Endpoint,
		Locations: append([]LatLon(nil), c.Locations...),
		Resources: c.Resources,
	}
}

// AcceptsClient evaluates the network policy against a client IP. When
// acceptedClients is empty, emptyAcceptedMeansAcceptAll controls whether the
// cloudlet is treated as open to all clients (the historical default) or
// closed to all (see SPEC_FULL.md Open Question c).
func (c *Cloudlet) AcceptsClient(ip net.IP, emptyAcceptedMeansAcceptAll bool) bool {
	for _, n := range c.NetworkPolicy.RejectedClients {
		if n.Contains(ip) {
			return false
		}
	}
	if len(c.NetworkPolicy.AcceptedClients) == 0 {
		return emptyAcceptedMeansAcceptAll
	}
	for _, n := range c.NetworkPolicy.AcceptedClients {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsLocalTo reports whether ip falls within one of the cloudlet's declared
// local networks (the network-adjacency fast path used by the network
// match function).
func (c *Cloudlet) IsLocalTo(ip net.IP) bool {
	for _, n := range c.NetworkPolicy.LocalNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
