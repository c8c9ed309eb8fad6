/*
Copyright 2026 The redactedos-net Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package iface

import (
	"math/bits"
	"sync"

	"github.com/redactedos/netstack/pkg/netaddr"
)

// Route preferences: lower wins ties at equal prefix length. A directly
// connected subnet always outranks a default route learned for the same
// interface.
const (
	PreferenceDirect  = 10
	PreferenceDefault = 11
)

// Route is one entry: dest/mask is the destination network (mask==0
// for a default route), gw is the next hop (unspecified for an on-link
// direct route).
type Route struct {
	Dest       netaddr.IPv4
	Mask       netaddr.IPv4
	Gateway    netaddr.IPv4
	IfIndex    int
	Preference int
}

// RouteTable is a small longest-prefix-match table populated as a side
// effect of L3Update.
type RouteTable struct {
	mu     sync.RWMutex
	routes []Route
}

// NewRouteTable returns an empty table.
func NewRouteTable() *RouteTable {
	return &RouteTable{}
}

// AddDirect inserts (or replaces) the on-link route for network/mask
// via ifindex.
func (r *RouteTable) AddDirect(network, mask netaddr.IPv4, ifindex int) {
	r.upsert(Route{Dest: network, Mask: mask, Gateway: netaddr.Zero, IfIndex: ifindex, Preference: PreferenceDirect})
}

// AddDefault inserts (or replaces) the default route via gw/ifindex.
func (r *RouteTable) AddDefault(gw netaddr.IPv4, ifindex int) {
	r.upsert(Route{Dest: netaddr.Zero, Mask: netaddr.Zero, Gateway: gw, IfIndex: ifindex, Preference: PreferenceDefault})
}

func (r *RouteTable) upsert(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.routes {
		if existing.IfIndex == route.IfIndex && existing.Preference == route.Preference {
			r.routes[i] = route
			return
		}
	}
	r.routes = append(r.routes, route)
}

// RemoveInterface drops every route owned by ifindex, called before
// L3Update installs the interface's refreshed routes.
func (r *RouteTable) RemoveInterface(ifindex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.routes[:0]
	for _, route := range r.routes {
		if route.IfIndex != ifindex {
			kept = append(kept, route)
		}
	}
	r.routes = kept
}

// Lookup returns the next hop for dst: the longest-prefix direct or
// default route, preferring the lower Preference value on a tie. ok is
// false if no route matches (no default route configured and dst is
// off every known subnet).
func (r *RouteTable) Lookup(dst netaddr.IPv4) (gw netaddr.IPv4, ifindex int, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bestPrefixLen := -1
	bestPreference := int(^uint(0) >> 1)
	var best Route
	found := false

	for _, route := range r.routes {
		if !netaddr.SameSubnet(dst, route.Dest, route.Mask) {
			continue
		}
		prefixLen := bits.OnesCount32(uint32(route.Mask))
		if prefixLen > bestPrefixLen || (prefixLen == bestPrefixLen && route.Preference < bestPreference) {
			bestPrefixLen = prefixLen
			bestPreference = route.Preference
			best = route
			found = true
		}
	}
	if !found {
		return netaddr.Zero, 0, false
	}
	return best.Gateway, best.IfIndex, true
}
