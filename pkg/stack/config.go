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

package stack

import "time"

// These mirror the runtime knobs each per-layer package already fixes
// as its own constant (iface.MaxL2Interfaces, iface.MaxIPv4PerInterface,
// arp.PollInterval's implied age table, dns.CacheMax, ntp.StepThresholdUs,
// ntp.FreqMaxPPM, ntp.peer.FilterN, dhcp.SelectTimeoutMs). They are
// repeated here, read-only; no other package reads these copies.
const (
	MaxL2Interfaces     = 8
	MaxIPv4PerInterface = 4
	NTPPollIntervalMs   = 60_000
	NTPStepThresholdUs  = 128_000
	NTPFreqMaxPPM       = 500
	NTPFilterN          = 8
)

// DefaultRequestTimeout bounds Stack.ICMPPing/ResolveA/ResolveAAAA calls
// that don't take an explicit deadline through ctx.
const DefaultRequestTimeout = 4 * time.Second

// Config is the set of knobs threaded through to Stack. cmd/netd sets
// EnableMDNS from its -mdns flag and leaves RequestTimeout at its default.
type Config struct {
	// RequestTimeout overrides DefaultRequestTimeout for application
	// API calls made without their own context deadline.
	RequestTimeout time.Duration

	// EnableMDNS starts the mDNS responder/querier on every interface
	// that ends up with a bound IPv4 address. Operators on a network
	// without multicast (or who only need unicast DNS) can disable it.
	EnableMDNS bool
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}
