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

package icmp

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/ipv4"
	"github.com/redactedos/netstack/pkg/netaddr"
)

// PollInterval is icmp_ping's "poll sleep(5)" cadence.
const PollInterval = 5 * time.Millisecond

// PingOpts carries the outbound TTL override icmp_ping accepts.
type PingOpts struct {
	TTL byte
}

// Stack answers inbound echo requests and serves icmp_ping on top of an
// ipv4.Stack. One Stack per netstack instance.
type Stack struct {
	table *Table
	ipv4  *ipv4.Stack
}

// NewStack builds a Stack and registers it as ipv4Stack's ICMP handler.
func NewStack(ipv4Stack *ipv4.Stack) *Stack {
	s := &Stack{table: NewTable(), ipv4: ipv4Stack}
	ipv4Stack.RegisterHandler(ipv4.ProtoICMP, s)
	return s
}

// HandleIPv4 implements ipv4.Handler.
func (s *Stack) HandleIPv4(ifindex int, src, dst netaddr.IPv4, payload []byte) {
	typ, code, rest, body, err := DecodeGeneric(payload)
	if err != nil {
		klog.V(4).Infof("icmp: dropping malformed datagram from %s: %v", src, err)
		return
	}

	switch typ {
	case TypeEchoRequest:
		id := uint16(rest[0])<<8 | uint16(rest[1])
		seq := uint16(rest[2])<<8 | uint16(rest[3])
		reply := EncodeEcho(TypeEchoReply, id, seq, body)
		if err := s.ipv4.Send(context.Background(), ipv4.ScopeUnbound, nil, src, ipv4.ProtoICMP, reply, 0); err != nil {
			klog.V(4).Infof("icmp: failed to send echo reply to %s: %v", src, err)
		}
	case TypeEchoReply:
		id := uint16(rest[0])<<8 | uint16(rest[1])
		seq := uint16(rest[2])<<8 | uint16(rest[3])
		s.table.matchEchoReply(id, seq)
	case TypeDestUnreach, TypeTimeExceeded, TypeParamProblem, TypeRedirect:
		if id, seq, ok := embeddedEchoIDSeq(body); ok {
			s.table.matchError(id, seq, statusForError(typ, code))
		}
	}
}

// Ping implements icmp_ping: send an echo, block polling every
// PollInterval until a matching reply or error arrives or timeout
// elapses, and return the resulting status and round-trip time.
func (s *Stack) Ping(ctx context.Context, dst netaddr.IPv4, id, seq uint16, timeout time.Duration, opts PingOpts, payload []byte) (Status, time.Duration, error) {
	sl, err := s.table.alloc(id, seq)
	if err != nil {
		return StatusUnknown, 0, err
	}
	defer s.table.release(sl)

	echo := EncodeEcho(TypeEchoRequest, id, seq, payload)
	if err := s.ipv4.Send(ctx, ipv4.ScopeUnbound, nil, dst, ipv4.ProtoICMP, echo, opts.TTL); err != nil {
		return StatusUnknown, 0, err
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sl.done:
			return sl.status, time.Since(sl.startedAt), nil
		case <-ctx.Done():
			return StatusTimeout, time.Since(sl.startedAt), ctx.Err()
		case now := <-ticker.C:
			if now.After(deadline) {
				return StatusTimeout, time.Since(sl.startedAt), nil
			}
		}
	}
}
