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

package ipv4

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/redactedos/netstack/pkg/netaddr"
)

// ReassemblyCapacity bounds the number of in-flight fragmented flows a
// single stack instance tracks at once; the oldest flow is evicted (and
// the drop logged) once the bound is reached, rather than growing
// memory unbounded.
const ReassemblyCapacity = 16

// ReassemblyTimeout is how long an incomplete flow is kept before being
// evicted, even without capacity pressure.
const ReassemblyTimeout = 30 * time.Second

type fragKey struct {
	Src   netaddr.IPv4
	Dst   netaddr.IPv4
	ID    uint16
	Proto byte
}

type fragChunk struct {
	offset int
	data   []byte
}

type fragEntry struct {
	chunks   []fragChunk
	totalLen int // -1 until the final (MF=false) fragment arrives
	lastSeen time.Time
}

// Reassembler tracks in-flight fragmented IPv4 datagrams.
type Reassembler struct {
	mu      sync.Mutex
	entries map[fragKey]*fragEntry
	order   []fragKey
}

// NewReassembler returns an empty Reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{entries: make(map[fragKey]*fragEntry)}
}

// Add folds one fragment into its flow's entry. It returns the
// reassembled datagram and ready=true once every byte up to the final
// fragment's end has arrived; otherwise ready is false and the caller
// should simply return (the dispatch loop does not wait).
func (r *Reassembler) Add(h Header, payload []byte) (full []byte, ready bool) {
	key := fragKey{Src: h.Src, Dst: h.Dst, ID: h.ID, Proto: h.Protocol}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpiredLocked()

	e, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= ReassemblyCapacity {
			r.evictOldestLocked()
		}
		e = &fragEntry{totalLen: -1}
		r.entries[key] = e
		r.order = append(r.order, key)
	}
	e.lastSeen = time.Now()

	offset := int(h.FragOffset) * 8
	buf := make([]byte, len(payload))
	copy(buf, payload)
	e.chunks = append(e.chunks, fragChunk{offset: offset, data: buf})
	if !h.MF {
		e.totalLen = offset + len(buf)
	}
	if e.totalLen < 0 {
		return nil, false
	}

	covered := make([]bool, e.totalLen)
	for _, c := range e.chunks {
		for i := 0; i < len(c.data) && c.offset+i < e.totalLen; i++ {
			covered[c.offset+i] = true
		}
	}
	for _, done := range covered {
		if !done {
			return nil, false
		}
	}

	out := make([]byte, e.totalLen)
	for _, c := range e.chunks {
		copy(out[c.offset:], c.data)
	}
	delete(r.entries, key)
	r.removeOrderLocked(key)
	return out, true
}

func (r *Reassembler) evictOldestLocked() {
	if len(r.order) == 0 {
		return
	}
	key := r.order[0]
	r.order = r.order[1:]
	delete(r.entries, key)
	klog.Warningf("ipv4: reassembly table full, dropping oldest in-flight flow %+v", key)
}

func (r *Reassembler) evictExpiredLocked() {
	cutoff := time.Now().Add(-ReassemblyTimeout)
	kept := r.order[:0]
	for _, key := range r.order {
		e, ok := r.entries[key]
		if !ok {
			continue
		}
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			klog.Warningf("ipv4: reassembly timed out for flow %+v, dropping fragments", key)
			continue
		}
		kept = append(kept, key)
	}
	r.order = kept
}

func (r *Reassembler) removeOrderLocked(key fragKey) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
