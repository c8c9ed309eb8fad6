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

package dns

import "sync"

// CacheMax bounds the number of live entries.
const CacheMax = 32

// ImmortalTTL marks an entry that never decays: the 0xFFFFFFFF clamp
// used for huge TTLs, and for the seeded localhost entries below.
const ImmortalTTL uint32 = 0xFFFFFFFF

type cacheKey struct {
	name string
	rtype uint16
}

type cacheEntry struct {
	addr  [16]byte
	ttlMs uint32
}

// Cache is the resolver's TTL-decaying answer cache: a name+rrtype
// keyed map with immortal-entry and huge-TTL-clamp semantics.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

// NewCache builds a Cache pre-seeded with the immortal localhost
// entries dns_cache_ensure_init writes lazily on first use.
func NewCache() *Cache {
	c := &Cache{entries: make(map[cacheKey]*cacheEntry)}
	var v4 [16]byte
	v4[0], v4[1], v4[2], v4[3] = 127, 0, 0, 1
	c.entries[cacheKey{"localhost", TypeA}] = &cacheEntry{addr: v4, ttlMs: ImmortalTTL}
	var v6 [16]byte
	v6[15] = 1
	c.entries[cacheKey{"localhost", TypeAAAA}] = &cacheEntry{addr: v6, ttlMs: ImmortalTTL}
	return c
}

// Put stores or refreshes name's answer. A zero ttlMs is a no-op (the
// original silently drops TTL-0 answers rather than caching a
// tombstone). "localhost" is always pinned immortal regardless of the
// server-supplied TTL.
func (c *Cache) Put(name string, rtype uint16, addr [16]byte, ttlMs uint32) {
	if ttlMs == 0 {
		return
	}
	if name == "localhost" && (rtype == TypeA || rtype == TypeAAAA) {
		ttlMs = ImmortalTTL
	}
	key := cacheKey{name, rtype}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.addr, e.ttlMs = addr, ttlMs
		return
	}
	if len(c.entries) >= CacheMax {
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[key] = &cacheEntry{addr: addr, ttlMs: ttlMs}
}

// Get returns name's cached answer for rtype, if present and unexpired.
func (c *Cache) Get(name string, rtype uint16) ([16]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey{name, rtype}]
	if !ok || e.ttlMs == 0 {
		return [16]byte{}, false
	}
	return e.addr, true
}

// Tick decays every non-immortal entry's remaining TTL by deltaMs,
// evicting entries whose TTL has run out, per dns_cache_tick.
func (c *Cache) Tick(deltaMs uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.ttlMs == ImmortalTTL {
			continue
		}
		if e.ttlMs <= deltaMs {
			delete(c.entries, k)
			continue
		}
		e.ttlMs -= deltaMs
	}
}
