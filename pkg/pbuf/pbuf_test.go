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

import (
	"errors"
	"testing"

	"github.com/redactedos/netstack/pkg/neterr"
)

func invariant(t *testing.T, b *Buffer) {
	t.Helper()
	if b.Headroom()+b.Len() > b.Cap() {
		t.Fatalf("invariant violated: head(%d)+len(%d) > cap(%d)", b.Headroom(), b.Len(), b.Cap())
	}
	if b.Refs() < 1 {
		t.Fatalf("invariant violated: refs = %d, want >= 1", b.Refs())
	}
}

func TestAllocInvariants(t *testing.T) {
	b, err := Alloc(64, 16, 8)
	if err != nil {
		t.Fatal(err)
	}
	invariant(t, b)
	if b.Len() != 40 {
		t.Fatalf("Len() = %d, want 40", b.Len())
	}
	if b.Headroom() != 16 || b.Tailroom() != 8 {
		t.Fatalf("Headroom/Tailroom = %d/%d, want 16/8", b.Headroom(), b.Tailroom())
	}
}

func TestAllocRejectsOverlappingRooms(t *testing.T) {
	_, err := Alloc(10, 6, 6)
	if !errors.Is(err, neterr.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestPushPullRoundTrip(t *testing.T) {
	b, err := Alloc(64, 20, 8)
	if err != nil {
		t.Fatal(err)
	}
	payload := b.Data()
	copy(payload, []byte("hello"))
	if err := b.Trim(b.Len() - len("hello")); err != nil {
		t.Fatal(err)
	}

	hdr, err := b.Push(4)
	if err != nil {
		t.Fatal(err)
	}
	copy(hdr, []byte{1, 2, 3, 4})
	invariant(t, b)

	got, err := b.Pull(4)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 || got[3] != 4 {
		t.Fatalf("Pull() = %v, want header bytes", got)
	}
	if string(b.Data()) != "hello" {
		t.Fatalf("Data() = %q, want hello", b.Data())
	}
}

func TestPushReallocatesWhenHeadroomInsufficient(t *testing.T) {
	b, err := Alloc(10, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	copy(b.Data(), []byte("0123456789"))

	hdr, err := b.Push(14)
	if err != nil {
		t.Fatal(err)
	}
	copy(hdr, make([]byte, 14))
	invariant(t, b)
	if b.Len() != 24 {
		t.Fatalf("Len() = %d, want 24", b.Len())
	}
	if string(b.Data()[14:]) != "0123456789" {
		t.Fatalf("payload corrupted after reallocation: %q", b.Data()[14:])
	}
}

func TestPullMoreThanLenFails(t *testing.T) {
	b, _ := Alloc(8, 0, 0)
	if _, err := b.Pull(9); !errors.Is(err, neterr.InvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestRefUnrefCallsFreeOnce(t *testing.T) {
	freed := 0
	b := Wrap(make([]byte, 16), func(ctx any) { freed++ }, nil)
	b.Ref()
	b.Ref()
	if b.Refs() != 3 {
		t.Fatalf("Refs() = %d, want 3", b.Refs())
	}
	b.Unref()
	b.Unref()
	if freed != 0 {
		t.Fatalf("free called early: %d", freed)
	}
	b.Unref()
	if freed != 1 {
		t.Fatalf("free called %d times, want 1", freed)
	}
}

func TestUnrefPastZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	b := Wrap(make([]byte, 4), nil, nil)
	b.Unref()
	b.Unref()
}

func TestPoolRecyclesBacking(t *testing.T) {
	p := NewPool(32, 8, 4)
	b1 := p.Get()
	invariant(t, b1)
	backing := &b1.base[0]
	b1.Unref()

	b2 := p.Get()
	if &b2.base[0] != backing {
		t.Fatalf("pool did not reuse backing array")
	}
}

func TestPoolBufferSurvivesReallocation(t *testing.T) {
	p := NewPool(8, 0, 0)
	b := p.Get()
	if _, err := b.Push(40); err != nil {
		t.Fatal(err)
	}
	invariant(t, b)
	// Unref after reallocation must not panic or corrupt the pool.
	b.Unref()
}
