package model

import "net"

// ClientInfo describes the requester of a deployment, derived from the
// incoming HTTP request (source IP, optional IP-geolocation lookup, and the
// application key extracted from the URL path).
type ClientInfo struct {
	IPAddress      net.IP
	Location       *LatLon
	ApplicationKey string
}

// HasLocation reports whether a geolocation was resolved for this client.
func (c ClientInfo) HasLocation() bool { return c.Location != nil }
