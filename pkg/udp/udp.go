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

// Package udp implements the UDP wire codec and the process-wide socket
// table.
package udp

import (
	"encoding/binary"

	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
	"github.com/redactedos/netstack/pkg/wire"
)

// HeaderLen is the fixed 8-byte UDP header.
const HeaderLen = 8

// EphemeralPortMin/Max bound the range an unbound socket's Bind(0)
// allocates from.
const (
	EphemeralPortMin = 49152
	EphemeralPortMax = 65535
)

// Header is a decoded UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// pseudoHeader builds the IPv4 pseudo-header RFC 768 requires for the
// UDP checksum: src(4) dst(4) zero(1) proto(1) udpLength(2).
func pseudoHeader(src, dst netaddr.IPv4, udpLen int) []byte {
	b := make([]byte, 12)
	s := src.Bytes()
	copy(b[0:4], s[:])
	d := dst.Bytes()
	copy(b[4:8], d[:])
	b[8] = 0
	b[9] = 17 // IPPROTO_UDP
	binary.BigEndian.PutUint16(b[10:12], uint16(udpLen))
	return b
}

// Encode builds a checksummed UDP datagram. A zero checksum result is
// forced to 0xFFFF since 0 means "unchecked" on the wire (RFC 768).
func Encode(src, dst netaddr.IPv4, srcPort, dstPort uint16, payload []byte) []byte {
	udpLen := HeaderLen + len(payload)
	b := make([]byte, udpLen)
	binary.BigEndian.PutUint16(b[0:2], srcPort)
	binary.BigEndian.PutUint16(b[2:4], dstPort)
	binary.BigEndian.PutUint16(b[4:6], uint16(udpLen))
	copy(b[8:], payload)

	cs := wire.ChecksumWithPseudoHeader(pseudoHeader(src, dst, udpLen), b)
	if cs == 0 {
		cs = 0xFFFF
	}
	binary.BigEndian.PutUint16(b[6:8], cs)
	return b
}

// Decode validates the checksum (a wire value of 0 means unchecked and
// is accepted unconditionally) and splits the header from the payload.
func Decode(src, dst netaddr.IPv4, b []byte) (Header, []byte, error) {
	if len(b) < HeaderLen {
		return Header{}, nil, neterr.WireFormat
	}
	h := Header{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}
	if int(h.Length) > len(b) || int(h.Length) < HeaderLen {
		return Header{}, nil, neterr.WireFormat
	}
	if h.Checksum != 0 {
		cs := wire.ChecksumWithPseudoHeader(pseudoHeader(src, dst, int(h.Length)), b[:h.Length])
		if cs != 0 {
			return Header{}, nil, neterr.WireFormat
		}
	}
	return h, b[HeaderLen:h.Length], nil
}
