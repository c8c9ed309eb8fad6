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

// Package ntp implements an NTPv4 client: the mode-3 packet codec, the
// 8-slot sample filter and best-peer selection, and the step/slew/
// frequency-estimate clock discipline.
package ntp

import (
	"encoding/binary"
	"fmt"

	"github.com/redactedos/netstack/pkg/neterr"
)

// ServerPort is the well-known NTP UDP port.
const ServerPort = 123

// PacketLen is the fixed length of a mode-3/mode-4 NTP packet (no
// extension fields, no MAC).
const PacketLen = 48

// Protocol constants, ntp.c's NTP_VN / NTP_MODE_CLIENT / NTP_MODE_SERVER.
const (
	Version        = 4
	ModeClient     = 3
	ModeServer     = 4
	unixEpochDelta = 2208988800 // seconds from 1900-01-01 to 1970-01-01
)

// Kiss-of-death reference IDs this client recognizes.
const (
	RefIDDeny = 0x44454E59 // "DENY"
	RefIDRstr = 0x52535452 // "RSTR"
)

// Packet is a decoded NTP mode-3/mode-4 packet. Timestamps are kept in
// their raw 64-bit NTP fixed-point form; use NTP64ToUnixMicros/
// UnixMicrosToNTP64 to convert.
type Packet struct {
	LI             uint8
	VN             uint8
	Mode           uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      uint32
	RootDispersion uint32
	RefID          uint32
	RefTime        uint64
	OrigTime       uint64
	RecvTime       uint64
	TxTime         uint64
}

// Marshal encodes p as a 48-byte mode-3/mode-4 packet.
func (p *Packet) Marshal() []byte {
	b := make([]byte, PacketLen)
	b[0] = p.LI<<6 | p.VN<<3 | p.Mode
	b[1] = p.Stratum
	b[2] = byte(p.Poll)
	b[3] = byte(p.Precision)
	binary.BigEndian.PutUint32(b[4:8], p.RootDelay)
	binary.BigEndian.PutUint32(b[8:12], p.RootDispersion)
	binary.BigEndian.PutUint32(b[12:16], p.RefID)
	binary.BigEndian.PutUint64(b[16:24], p.RefTime)
	binary.BigEndian.PutUint64(b[24:32], p.OrigTime)
	binary.BigEndian.PutUint64(b[32:40], p.RecvTime)
	binary.BigEndian.PutUint64(b[40:48], p.TxTime)
	return b
}

// Unmarshal decodes a mode-3/mode-4 packet from b.
func (p *Packet) Unmarshal(b []byte) error {
	if len(b) < PacketLen {
		return fmt.Errorf("%w: ntp packet shorter than %d bytes", neterr.WireFormat, PacketLen)
	}
	p.LI = b[0] >> 6
	p.VN = (b[0] >> 3) & 0x7
	p.Mode = b[0] & 0x7
	p.Stratum = b[1]
	p.Poll = int8(b[2])
	p.Precision = int8(b[3])
	p.RootDelay = binary.BigEndian.Uint32(b[4:8])
	p.RootDispersion = binary.BigEndian.Uint32(b[8:12])
	p.RefID = binary.BigEndian.Uint32(b[12:16])
	p.RefTime = binary.BigEndian.Uint64(b[16:24])
	p.OrigTime = binary.BigEndian.Uint64(b[24:32])
	p.RecvTime = binary.BigEndian.Uint64(b[32:40])
	p.TxTime = binary.BigEndian.Uint64(b[40:48])
	return nil
}

// UnixMicrosToNTP64 converts a Unix-epoch microsecond timestamp to the
// NTP64 (seconds-since-1900 | Q32.32 fraction) representation.
func UnixMicrosToNTP64(unixUs uint64) uint64 {
	sec := unixUs / 1_000_000
	frac := ((unixUs % 1_000_000) << 32) / 1_000_000
	sec += unixEpochDelta
	return sec<<32 | (frac & 0xFFFFFFFF)
}

// NTP64ToUnixMicros converts an NTP64 timestamp back to Unix-epoch
// microseconds, returning 0 if it predates the Unix epoch.
func NTP64ToUnixMicros(ntp uint64) uint64 {
	sec := ntp >> 32
	frac := ntp & 0xFFFFFFFF
	if sec < unixEpochDelta {
		return 0
	}
	sec -= unixEpochDelta
	return sec*1_000_000 + (frac*1_000_000)>>32
}

// shortToMicros converts an NTP short-format (16.16 fixed point)
// root-delay/dispersion field to microseconds, treating a negative
// value (server clock ahead of itself) as zero, per
// ntp_short_be_to_us_signed.
func shortToMicros(v uint32) uint64 {
	sv := int32(v)
	if sv <= 0 {
		return 0
	}
	return uint64(sv) * 1_000_000 / 65536
}
