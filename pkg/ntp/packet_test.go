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

package ntp

import "testing"

func TestPacketMarshalUnmarshalRoundTrip(t *testing.T) {
	p := &Packet{
		LI:             0,
		VN:             Version,
		Mode:           ModeServer,
		Stratum:        2,
		Poll:           6,
		Precision:      -20,
		RootDelay:      1 << 16,
		RootDispersion: 2 << 16,
		RefID:          0x01020304,
		RefTime:        UnixMicrosToNTP64(1_700_000_000_000_000),
		OrigTime:       UnixMicrosToNTP64(1_700_000_001_000_000),
		RecvTime:       UnixMicrosToNTP64(1_700_000_002_000_000),
		TxTime:         UnixMicrosToNTP64(1_700_000_003_000_000),
	}
	b := p.Marshal()
	if len(b) != PacketLen {
		t.Fatalf("marshal length = %d, want %d", len(b), PacketLen)
	}

	var got Packet
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got != *p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, *p)
	}
}

func TestPacketUnmarshalRejectsShort(t *testing.T) {
	var p Packet
	if err := p.Unmarshal(make([]byte, PacketLen-1)); err == nil {
		t.Fatal("expected error decoding short packet")
	}
}

func TestPacketHeaderByteEncodesLIVNMode(t *testing.T) {
	p := &Packet{LI: 1, VN: 4, Mode: ModeClient}
	b := p.Marshal()
	if b[0] != (1<<6 | 4<<3 | ModeClient) {
		t.Fatalf("header byte = %#x", b[0])
	}

	var got Packet
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.LI != 1 || got.VN != 4 || got.Mode != ModeClient {
		t.Fatalf("decoded LI/VN/Mode = %d/%d/%d", got.LI, got.VN, got.Mode)
	}
}

func TestUnixMicrosToNTP64RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 1_700_000_000_000_000, 1_700_000_000_500_000}
	for _, us := range cases {
		ntp := UnixMicrosToNTP64(us)
		back := NTP64ToUnixMicros(ntp)
		diff := int64(back) - int64(us)
		if diff < -1 || diff > 1 {
			t.Errorf("round trip %d -> %d -> %d, diff %d", us, ntp, back, diff)
		}
	}
}

func TestNTP64ToUnixMicrosRejectsPreEpoch(t *testing.T) {
	// A raw NTP64 value whose seconds field predates 1970.
	var ntp uint64 = 100 << 32
	if got := NTP64ToUnixMicros(ntp); got != 0 {
		t.Fatalf("NTP64ToUnixMicros() = %d, want 0", got)
	}
}

func TestShortToMicrosClampsNegative(t *testing.T) {
	if got := shortToMicros(uint32(int32(-1))); got != 0 {
		t.Fatalf("shortToMicros(negative) = %d, want 0", got)
	}
}

func TestShortToMicrosConvertsPositive(t *testing.T) {
	// 1.0 in 16.16 fixed point is 1<<16, worth 1 second = 1_000_000us.
	got := shortToMicros(1 << 16)
	if got != 1_000_000 {
		t.Fatalf("shortToMicros(1<<16) = %d, want 1000000", got)
	}
}
