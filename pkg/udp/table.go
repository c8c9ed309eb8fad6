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

package udp

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/iface"
	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/neterr"
)

// RecvQueueDepth bounds a socket's inbound queue; once full, newly
// arrived datagrams for that socket are dropped (matching the NIC RX
// ring's drop-on-full policy rather than blocking the dispatch loop).
const RecvQueueDepth = 64

// BindSpec selects how a socket's outbound sends are scoped: either
// left for the route table to decide (ScopeUnbound) or pinned to one
// configured L3 interface (ScopeBoundL3).
type BindSpec struct {
	Scope ipv4.Scope
	L3    *iface.L3Ipv4Interface
}

// Datagram is one received (sender, bytes) pair delivered to RecvFrom.
type Datagram struct {
	From netaddr.Endpoint
	Data []byte
}

// Socket is one bound UDP endpoint.
type Socket struct {
	port   uint16
	spec   BindSpec
	rx     chan Datagram
	closed bool
}

// LocalPort returns the port this socket is bound to (0 if unbound).
func (s *Socket) LocalPort() uint16 { return s.port }

// Table is the process-wide (local port) -> socket map, plus the
// ephemeral port allocator.
type Table struct {
	mu            sync.Mutex
	byPort        map[uint16]*Socket
	nextEphemeral uint16
	ipv4          *ipv4.Stack
}

// NewTable builds a Table and registers it as ipv4Stack's UDP handler.
func NewTable(ipv4Stack *ipv4.Stack) *Table {
	t := &Table{
		byPort:        make(map[uint16]*Socket),
		nextEphemeral: EphemeralPortMin,
		ipv4:          ipv4Stack,
	}
	ipv4Stack.RegisterHandler(ipv4.ProtoUDP, t)
	return t
}

// CreateSocket allocates an unbound Socket.
func (t *Table) CreateSocket() *Socket {
	return &Socket{rx: make(chan Datagram, RecvQueueDepth)}
}

// BindUDP reserves port for sock, or allocates an ephemeral port if
// port==0. Returns neterr.Busy if the requested port is already taken
// or no ephemeral port is free.
func (t *Table) BindUDP(sock *Socket, spec BindSpec, port uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if port == 0 {
		assigned := uint16(0)
		for i := 0; i < EphemeralPortMax-EphemeralPortMin+1; i++ {
			candidate := t.nextEphemeral
			t.nextEphemeral++
			if t.nextEphemeral > EphemeralPortMax || t.nextEphemeral < EphemeralPortMin {
				t.nextEphemeral = EphemeralPortMin
			}
			if _, taken := t.byPort[candidate]; !taken {
				assigned = candidate
				break
			}
		}
		if assigned == 0 {
			return neterr.Busy
		}
		port = assigned
	} else if _, taken := t.byPort[port]; taken {
		return neterr.Busy
	}

	sock.port = port
	sock.spec = spec
	t.byPort[port] = sock
	return nil
}

// SendTo checksums and hands payload off to IPv4 send, scoped per the
// socket's bind.
func (t *Table) SendTo(ctx context.Context, sock *Socket, dst netaddr.Endpoint, payload []byte) error {
	if dst.IsV6 {
		return neterr.InvalidArgument
	}
	_, srcIP, _, err := t.ipv4.Route(sock.spec.Scope, sock.spec.L3, dst.V4)
	if err != nil {
		return err
	}
	datagram := Encode(srcIP, dst.V4, sock.port, dst.Port, payload)
	return t.ipv4.Send(ctx, sock.spec.Scope, sock.spec.L3, dst.V4, ipv4.ProtoUDP, datagram, 0)
}

// RecvFrom blocks until a datagram arrives on sock or ctx ends.
func (t *Table) RecvFrom(ctx context.Context, sock *Socket) (Datagram, error) {
	select {
	case d, ok := <-sock.rx:
		if !ok {
			return Datagram{}, neterr.NotFound
		}
		return d, nil
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}

// TryRecvFrom is RecvFrom's non-blocking variant: it returns
// immediately, with ok=false if nothing is queued.
func (t *Table) TryRecvFrom(sock *Socket) (d Datagram, ok bool) {
	select {
	case d, open := <-sock.rx:
		return d, open
	default:
		return Datagram{}, false
	}
}

// CloseSocket releases sock's port and stops further deliveries to it.
func (t *Table) CloseSocket(sock *Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sock.closed {
		return
	}
	sock.closed = true
	delete(t.byPort, sock.port)
	close(sock.rx)
}

// HandleIPv4 implements ipv4.Handler: match the destination port to a
// bound socket, validate the checksum, and enqueue (sender, bytes).
func (t *Table) HandleIPv4(ifindex int, src, dst netaddr.IPv4, payload []byte) {
	h, body, err := Decode(src, dst, payload)
	if err != nil {
		klog.V(4).Infof("udp: dropping malformed datagram from %s: %v", src, err)
		return
	}

	data := append([]byte(nil), body...)

	t.mu.Lock()
	defer t.mu.Unlock()
	sock, ok := t.byPort[h.DstPort]
	if !ok || sock.closed {
		return
	}
	select {
	case sock.rx <- Datagram{From: netaddr.V4Endpoint(src, h.SrcPort), Data: data}:
	default:
		klog.V(4).Infof("udp: socket on port %d RX queue full, dropping datagram", h.DstPort)
	}
}
