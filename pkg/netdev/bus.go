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

package netdev

import (
	"fmt"

	"k8s.io/klog/v2"
)

// Named is a driver together with the interface name the bus assigned it.
type Named struct {
	Name   string
	Driver Driver
}

// Bus enumerates NICs and always appends a lo0 loopback. Failure to init
// one NIC must not abort enumeration of the rest.
type Bus struct {
	ifaces []Named
	next   map[Kind]int
}

// NewBus returns an empty Bus; call AddDriver for each NIC to populate
// it, then AddLoopback to append lo0.
func NewBus() *Bus {
	return &Bus{next: map[Kind]int{}}
}

// AddDriver inits drv at addr and, on success, names and appends it.
// Returns the assigned name, or "" if init failed.
func (b *Bus) AddDriver(addr string, irqBase int, drv Driver) string {
	if !drv.InitAt(addr, irqBase) {
		klog.Warningf("netdev: driver at %s failed to initialize, skipping", addr)
		return ""
	}
	name := b.assignName(drv.Kind())
	b.ifaces = append(b.ifaces, Named{Name: name, Driver: drv})
	klog.V(2).Infof("netdev: registered %s (%s) mac=%x mtu=%d", name, drv.Kind(), drv.MAC(), drv.MTU())
	return name
}

func (b *Bus) assignName(k Kind) string {
	prefix := "net"
	switch k {
	case KindEthernet:
		prefix = "eth"
	case KindWifi:
		prefix = "wif"
	case KindLoopback:
		return "lo0"
	}
	n := b.next[k]
	b.next[k] = n + 1
	return fmt.Sprintf("%s%d", prefix, n)
}

// AddLoopback appends the mandatory lo0 device: MTU 65535, header size 0.
func (b *Bus) AddLoopback() {
	lo := NewMemDriver([6]byte{}, 65535, KindLoopback)
	lo.InitAt("lo", 0)
	b.ifaces = append(b.ifaces, Named{Name: "lo0", Driver: lo})
}

// Interfaces returns every registered (name, driver) pair in registration
// order, loopback last.
func (b *Bus) Interfaces() []Named {
	out := make([]Named, len(b.ifaces))
	copy(out, b.ifaces)
	return out
}

// ByName looks up a driver by the name the bus assigned it.
func (b *Bus) ByName(name string) (Driver, bool) {
	for _, n := range b.ifaces {
		if n.Name == name {
			return n.Driver, true
		}
	}
	return nil, false
}
