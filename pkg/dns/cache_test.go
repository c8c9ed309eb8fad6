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

import (
	"fmt"
	"testing"
)

func TestNewCacheSeedsLocalhost(t *testing.T) {
	c := NewCache()
	addr, ok := c.Get("localhost", TypeA)
	if !ok || addr != [16]byte{127, 0, 0, 1} {
		t.Fatalf("localhost A = %v, %v", addr, ok)
	}
	if _, ok := c.Get("localhost", TypeAAAA); !ok {
		t.Fatal("expected localhost AAAA to be seeded")
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := NewCache()
	addr := [16]byte{10, 0, 0, 1}
	c.Put("host.example.com", TypeA, addr, 5000)
	got, ok := c.Get("host.example.com", TypeA)
	if !ok || got != addr {
		t.Fatalf("got %v, %v", got, ok)
	}
}

func TestCachePutZeroTTLIsNoOp(t *testing.T) {
	c := NewCache()
	c.Put("host.example.com", TypeA, [16]byte{10, 0, 0, 1}, 0)
	if _, ok := c.Get("host.example.com", TypeA); ok {
		t.Fatal("expected zero-TTL put to be dropped")
	}
}

func TestCacheTickEvictsExpiredEntries(t *testing.T) {
	c := NewCache()
	c.Put("host.example.com", TypeA, [16]byte{10, 0, 0, 1}, 1000)
	c.Tick(500)
	if _, ok := c.Get("host.example.com", TypeA); !ok {
		t.Fatal("entry should still be live after partial decay")
	}
	c.Tick(600)
	if _, ok := c.Get("host.example.com", TypeA); ok {
		t.Fatal("expected entry to be evicted once its TTL runs out")
	}
}

func TestCacheTickNeverDecaysImmortalEntries(t *testing.T) {
	c := NewCache()
	c.Tick(1 << 30)
	if _, ok := c.Get("localhost", TypeA); !ok {
		t.Fatal("expected immortal localhost entry to survive ticking")
	}
}

func TestCacheEvictsWhenFull(t *testing.T) {
	c := NewCache()
	for i := 0; i < CacheMax+4; i++ {
		c.Put(fmt.Sprintf("host%d.example.com", i), TypeA, [16]byte{byte(i)}, 60000)
	}
	if len(c.entries) > CacheMax {
		t.Fatalf("cache grew past CacheMax: %d entries", len(c.entries))
	}
}
