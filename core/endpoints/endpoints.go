package endpoints

import (
	"os"
	"strings"
)

// Origin tells where an endpoint address came from.
type Origin string

const (
	OriginConfigured Origin = "configured"
	OriginDefault    Origin = "default"
	OriginLocal      Origin = "local"
)

const (
	// OverrideEnv names the variable holding an explicit endpoint override.
	OverrideEnv = "EMA_REALTIME_URL"
	// DefaultEnv names the variable holding the remote default endpoint.
	DefaultEnv = "EMA_REALTIME_DEFAULT_URL"

	LocalAddress = "ws://localhost:8000/ws/voice"
)

type Endpoint struct {
	Address string
	Origin  Origin
}

func (e Endpoint) String() string {
	return string(e.Origin) + "(" + e.Address + ")"
}

// Catalog is an ordered list of candidate endpoints. The declaration order is
// the priority order. A Catalog is never modified after construction.
type Catalog struct {
	endpoints []Endpoint
}

// NewCatalog builds a catalog from the given endpoints, skipping entries with
// an empty address.
func NewCatalog(endpoints ...Endpoint) *Catalog {
	c := &Catalog{}
	for _, endpoint := range endpoints {
		endpoint.Address = strings.TrimSpace(endpoint.Address)
		if endpoint.Address == "" {
			continue
		}
		c.endpoints = append(c.endpoints, endpoint)
	}
	return c
}

// Build creates the standard catalog: an explicit override first, then the
// remote default and finally the local loopback. Empty addresses are skipped.
func Build(override, remoteDefault, local string) *Catalog {
	return NewCatalog(
		Endpoint{Address: override, Origin: OriginConfigured},
		Endpoint{Address: remoteDefault, Origin: OriginDefault},
		Endpoint{Address: local, Origin: OriginLocal},
	)
}

// FromEnvironment builds the standard catalog from [OverrideEnv] and
// [DefaultEnv], using [LocalAddress] as the loopback fallback.
func FromEnvironment() *Catalog {
	override, _ := os.LookupEnv(OverrideEnv)
	remoteDefault, _ := os.LookupEnv(DefaultEnv)
	return Build(override, remoteDefault, LocalAddress)
}

// Next returns the endpoint following index after. Pass -1 to get the first
// endpoint. The second return value is false once the list is exhausted.
func (c *Catalog) Next(after int) (Endpoint, bool) {
	if c == nil {
		return Endpoint{}, false
	}

	next := after + 1
	if next < 0 || next >= len(c.endpoints) {
		return Endpoint{}, false
	}
	return c.endpoints[next], true
}

// At returns the endpoint at index i.
func (c *Catalog) At(i int) (Endpoint, bool) { return c.Next(i - 1) }

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.endpoints)
}

// All returns a copy of the catalog entries in priority order.
func (c *Catalog) All() []Endpoint {
	if c == nil {
		return nil
	}
	all := make([]Endpoint, len(c.endpoints))
	copy(all, c.endpoints)
	return all
}
