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
	"sync"
	"time"

	"github.com/redactedos/netstack/pkg/neterr"
)

// TableCapacity is the ping rendezvous table size.
const TableCapacity = 16

// Status is the outcome icmp_ping reports.
type Status int

const (
	StatusOK Status = iota
	StatusNetUnreach
	StatusHostUnreach
	StatusProtoUnreach
	StatusPortUnreach
	StatusFragNeeded
	StatusTTLExpired
	StatusParamProblem
	StatusRedirect
	StatusTimeout
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNetUnreach:
		return "NET_UNREACH"
	case StatusHostUnreach:
		return "HOST_UNREACH"
	case StatusProtoUnreach:
		return "PROTO_UNREACH"
	case StatusPortUnreach:
		return "PORT_UNREACH"
	case StatusFragNeeded:
		return "FRAG_NEEDED"
	case StatusTTLExpired:
		return "TTL_EXPIRED"
	case StatusParamProblem:
		return "PARAM_PROBLEM"
	case StatusRedirect:
		return "REDIRECT"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

func statusForError(typ, code byte) Status {
	switch typ {
	case TypeDestUnreach:
		switch code {
		case CodeNetUnreach:
			return StatusNetUnreach
		case CodeHostUnreach:
			return StatusHostUnreach
		case CodeProtoUnreach:
			return StatusProtoUnreach
		case CodePortUnreach:
			return StatusPortUnreach
		case CodeFragNeeded:
			return StatusFragNeeded
		default:
			return StatusUnknown
		}
	case TypeTimeExceeded:
		return StatusTTLExpired
	case TypeParamProblem:
		return StatusParamProblem
	case TypeRedirect:
		return StatusRedirect
	default:
		return StatusUnknown
	}
}

type slot struct {
	inUse     bool
	id, seq   uint16
	done      chan struct{}
	status    Status
	startedAt time.Time
}

// Table is the 16-slot outstanding-ping rendezvous table.
type Table struct {
	mu    sync.Mutex
	slots [TableCapacity]*slot
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) alloc(id, seq uint16) (*slot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == nil || !s.inUse {
			ns := &slot{inUse: true, id: id, seq: seq, done: make(chan struct{}), startedAt: time.Now()}
			t.slots[i] = ns
			return ns, nil
		}
	}
	return nil, neterr.Busy
}

func (t *Table) release(s *slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.inUse = false
}

// matchEchoReply finds the pending slot for (id, seq) and signals it
// done with StatusOK. Returns false if nothing was waiting.
func (t *Table) matchEchoReply(id, seq uint16) bool {
	return t.complete(id, seq, StatusOK)
}

// matchError finds the pending slot identified by an embedded echo's
// (id, seq) and signals it done with the status the error type/code
// maps to.
func (t *Table) matchError(id, seq uint16, status Status) bool {
	return t.complete(id, seq, status)
}

func (t *Table) complete(id, seq uint16, status Status) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s != nil && s.inUse && s.id == id && s.seq == seq {
			select {
			case <-s.done:
				// already completed (e.g. a duplicate reply arrived)
			default:
				s.status = status
				close(s.done)
			}
			return true
		}
	}
	return false
}
