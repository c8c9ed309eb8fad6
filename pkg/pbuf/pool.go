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

package pbuf

import "sync"

// Pool recycles fixed-capacity allocations for a given (capacity,
// headroom, tailroom) shape, avoiding a make([]byte, ...) on every
// receive. It is built on sync.Pool the way the rest of the stack
// guards shared state with sync primitives.
//
// A buffer handed out by Get returns its backing array to the pool when
// its last reference is released, *unless* it was reallocated in the
// meantime (Push/Put outgrowing the original headroom/tailroom) — at
// that point it owns plain GC-managed memory and Unref is a no-op, since
// the pool only ever recycles the exact array it lent out.
type Pool struct {
	capacity, headroom, tailroom int
	slices                       sync.Pool
}

// NewPool returns a Pool that hands out buffers of the given shape.
func NewPool(capacity, headroom, tailroom int) *Pool {
	p := &Pool{capacity: capacity, headroom: headroom, tailroom: tailroom}
	p.slices.New = func() any {
		return make([]byte, capacity)
	}
	return p
}

// Get returns a Buffer of the pool's shape with refs=1.
func (p *Pool) Get() *Buffer {
	raw := p.slices.Get().([]byte)
	if cap(raw) < p.capacity {
		raw = make([]byte, p.capacity)
	}
	raw = raw[:p.capacity]

	b := &Buffer{
		base: raw,
		head: p.headroom,
		len:  p.capacity - p.headroom - p.tailroom,
	}
	b.refs.Store(1)
	b.free = func(ctx any) { p.slices.Put(ctx) }
	b.freeCtx = raw
	return b
}
