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
	"bytes"
	"testing"
)

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := EncodeName(buf, "host.example.com"); err != nil {
		t.Fatalf("EncodeName: %v", err)
	}
	buf.WriteByte(0xAA) // trailing filler so next-offset math is exercised

	got, next, err := DecodeName(buf.Bytes(), 0)
	if err != nil {
		t.Fatalf("DecodeName: %v", err)
	}
	if got != "host.example.com" {
		t.Fatalf("got %q, want host.example.com", got)
	}
	if next != buf.Len()-1 {
		t.Fatalf("next = %d, want %d", next, buf.Len()-1)
	}
}

func TestDecodeNameFollowsPointer(t *testing.T) {
	msg := new(bytes.Buffer)
	msg.WriteByte(3)
	msg.WriteString("www")
	base := msg.Len()
	EncodeName(msg, "example.com")

	// A second name that points back at the "example.com" label run.
	msg.WriteByte(0xC0)
	msg.WriteByte(byte(base))

	got, _, err := DecodeName(msg.Bytes(), base+len("example.com")+2)
	if err != nil {
		t.Fatalf("DecodeName: %v", err)
	}
	if got != "example.com" {
		t.Fatalf("got %q, want example.com", got)
	}
}

func TestDecodeNameRejectsPointerLoop(t *testing.T) {
	msg := []byte{0xC0, 0x00} // points at itself
	if _, _, err := DecodeName(msg, 0); err == nil {
		t.Fatal("expected pointer loop to be rejected")
	}
}

func TestEncodeNameRejectsOversizeLabel(t *testing.T) {
	buf := new(bytes.Buffer)
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if err := EncodeName(buf, string(long)+".com"); err == nil {
		t.Fatal("expected oversize label to be rejected")
	}
}

func TestEncodeDecodeQueryRoundTrip(t *testing.T) {
	b, err := EncodeQuery(0x1234, "example.com", TypeA)
	if err != nil {
		t.Fatalf("EncodeQuery: %v", err)
	}
	msg, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.ID != 0x1234 || len(msg.Questions) != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	q := msg.Questions[0]
	if q.Name != "example.com" || q.Type != TypeA || q.Class != ClassIN {
		t.Fatalf("unexpected question: %+v", q)
	}
}

func TestEncodeDecodeResponseRoundTrip(t *testing.T) {
	questions := []Question{{Name: "example.com", Type: TypeA, Class: ClassIN}}
	answers := []RR{{Name: "example.com", Type: TypeA, Class: ClassIN, TTL: 60, Data: []byte{1, 2, 3, 4}}}
	b := EncodeResponse(0x55, FlagResponse, questions, answers)

	msg, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Rcode() != 0 {
		t.Fatalf("rcode = %d, want 0", msg.Rcode())
	}
	if len(msg.Answers) != 1 || !bytes.Equal(msg.Answers[0].Data, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected answers: %+v", msg.Answers)
	}
}

func TestDecodeRejectsShortMessage(t *testing.T) {
	if _, err := Decode(make([]byte, 4)); err == nil {
		t.Fatal("expected short message to be rejected")
	}
}
