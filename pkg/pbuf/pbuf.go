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

// Package pbuf implements the packet buffer that every layer of the
// stack builds packets in and out of: a refcounted byte allocation with
// head/tail room so encapsulation (Ethernet + IPv4 + UDP) can be done by
// pushing headers in place instead of copying on every layer.
package pbuf

import (
	"sync/atomic"

	"github.com/redactedos/netstack/pkg/neterr"
)

// EthIPv4UDPHeadroom is the worst-case header size a caller should
// reserve when it does not yet know which protocols will wrap its
// payload: 14 (Ethernet) + 20 (IPv4, no options) + 8 (UDP).
const EthIPv4UDPHeadroom = 14 + 20 + 8

// FreeFunc is invoked exactly once, when the last reference to a Buffer
// wrapping externally-owned memory is released.
type FreeFunc func(ctx any)

// Buffer is a refcounted view over a byte allocation. The zero value is
// not valid; use Alloc or Wrap.
type Buffer struct {
	base []byte // full backing allocation
	head int    // live payload starts at base[head]
	len  int    // live payload length

	refs atomic.Int32

	free    FreeFunc
	freeCtx any
}

// Alloc returns a new exclusively-owned Buffer of the given total
// capacity, with headroom bytes reserved at the front and tailroom bytes
// reserved at the back (headroom+tailroom must not exceed capacity).
func Alloc(capacity, headroom, tailroom int) (*Buffer, error) {
	if capacity < 0 || headroom < 0 || tailroom < 0 || headroom+tailroom > capacity {
		return nil, neterr.InvalidArgument
	}
	b := &Buffer{
		base: make([]byte, capacity),
		head: headroom,
		len:  capacity - headroom - tailroom,
	}
	b.refs.Store(1)
	return b, nil
}

// Wrap adopts externally-owned memory (e.g. a driver's receive buffer),
// calling free(ctx) when the last reference is released.
func Wrap(raw []byte, free FreeFunc, ctx any) *Buffer {
	b := &Buffer{base: raw, head: 0, len: len(raw), free: free, freeCtx: ctx}
	b.refs.Store(1)
	return b
}

// Ref increments the reference count and returns the same Buffer,
// converting exclusive ownership into shared ownership the first time it
// is called (e.g. when a buffer is enqueued into a ring that another
// task will also observe).
func (b *Buffer) Ref() *Buffer {
	b.refs.Add(1)
	return b
}

// Unref decrements the reference count, freeing the backing allocation
// via the registered FreeFunc (if any) when it reaches zero. Unref on an
// already-freed Buffer is a programming error and panics, matching the
// fail-fast posture the allocator-backed original takes on double free.
func (b *Buffer) Unref() {
	n := b.refs.Add(-1)
	if n < 0 {
		panic("pbuf: Unref called more times than Ref")
	}
	if n == 0 && b.free != nil {
		b.free(b.freeCtx)
	}
}

// Refs reports the current reference count.
func (b *Buffer) Refs() int32 { return b.refs.Load() }

// Data returns the live payload slice. Callers must not retain it past a
// Push/Put/Pull/Trim that may reallocate, nor past the buffer's last Unref.
func (b *Buffer) Data() []byte {
	return b.base[b.head : b.head+b.len]
}

// Len is the live payload length.
func (b *Buffer) Len() int { return b.len }

// Headroom is the number of free bytes before the live payload.
func (b *Buffer) Headroom() int { return b.head }

// Tailroom is the number of free bytes after the live payload.
func (b *Buffer) Tailroom() int { return len(b.base) - b.head - b.len }

// Cap is the total backing allocation size.
func (b *Buffer) Cap() int { return len(b.base) }

// EnsureHeadroom guarantees at least n bytes of headroom, reallocating
// and copying the live bytes (after the new headroom, keeping the current
// tailroom) if necessary.
// Reallocation always provides one EthIPv4UDPHeadroom worth of spare
// headroom beyond n, so repeated small pushes don't reallocate repeatedly.
func (b *Buffer) EnsureHeadroom(n int) error {
	if n < 0 {
		return neterr.InvalidArgument
	}
	if b.head >= n {
		return nil
	}
	return b.realloc(n+EthIPv4UDPHeadroom, b.Tailroom())
}

// EnsureTailroom guarantees at least n bytes of tailroom, reallocating if
// necessary.
func (b *Buffer) EnsureTailroom(n int) error {
	if n < 0 {
		return neterr.InvalidArgument
	}
	if b.Tailroom() >= n {
		return nil
	}
	return b.realloc(b.head, n+EthIPv4UDPHeadroom)
}

func (b *Buffer) realloc(headroom, tailroom int) error {
	newCap := headroom + b.len + tailroom
	newBase := make([]byte, newCap)
	copy(newBase[headroom:headroom+b.len], b.Data())

	oldFree, oldCtx := b.free, b.freeCtx
	b.base = newBase
	b.head = headroom
	b.free = nil
	b.freeCtx = nil
	if oldFree != nil {
		oldFree(oldCtx)
	}
	return nil
}

// Push reserves n bytes at the front of the live payload (for prepending
// a header) and returns a slice over them, reallocating first if the
// current headroom is insufficient.
func (b *Buffer) Push(n int) ([]byte, error) {
	if n < 0 {
		return nil, neterr.InvalidArgument
	}
	if err := b.EnsureHeadroom(n); err != nil {
		return nil, err
	}
	b.head -= n
	b.len += n
	return b.Data()[:n], nil
}

// Put appends n bytes at the back of the live payload and returns a
// slice over them, reallocating first if tailroom is insufficient.
func (b *Buffer) Put(n int) ([]byte, error) {
	if n < 0 {
		return nil, neterr.InvalidArgument
	}
	if err := b.EnsureTailroom(n); err != nil {
		return nil, err
	}
	old := b.len
	b.len += n
	return b.Data()[old : old+n], nil
}

// Pull removes n bytes from the front of the live payload (stripping a
// consumed header) and returns them.
func (b *Buffer) Pull(n int) ([]byte, error) {
	if n < 0 || n > b.len {
		return nil, neterr.InvalidArgument
	}
	out := b.Data()[:n]
	b.head += n
	b.len -= n
	return out, nil
}

// Trim removes n bytes from the back of the live payload.
func (b *Buffer) Trim(n int) error {
	if n < 0 || n > b.len {
		return neterr.InvalidArgument
	}
	b.len -= n
	return nil
}
