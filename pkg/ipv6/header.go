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

// Package ipv6 provides IPv6 fixed-header parsing, address
// classification, and multicast/link-local address derivation; textual
// parsing/formatting lives in pkg/netaddr. There is no send path, routing table, or
// neighbor discovery here — full IPv6 ND/DAD is out of scope, so this
// package only ever describes addresses and headers already on the
// wire or asked for by a caller.
package ipv6

import (
	"encoding/binary"

	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/netaddr"
)

// HeaderLen is the fixed IPv6 header length (no extension headers).
const HeaderLen = 40

// Next Header values this stack recognizes.
const (
	NextHeaderHopByHop = 0
	NextHeaderTCP      = 6
	NextHeaderUDP      = 17
	NextHeaderICMPv6   = 58
	NextHeaderNoNext   = 59
)

// Header is a decoded IPv6 fixed header.
type Header struct {
	TrafficClass byte
	FlowLabel    uint32
	PayloadLen   uint16
	NextHeader   byte
	HopLimit     byte
	Src          netaddr.IPv6
	Dst          netaddr.IPv6
}

// DecodeHeader parses the 40-byte fixed header from the front of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, neterr.WireFormat
	}
	vtc := binary.BigEndian.Uint32(b[0:4])
	if vtc>>28 != 6 {
		return Header{}, neterr.WireFormat
	}
	var h Header
	h.TrafficClass = byte(vtc >> 20)
	h.FlowLabel = vtc & 0xFFFFF
	h.PayloadLen = binary.BigEndian.Uint16(b[4:6])
	h.NextHeader = b[6]
	h.HopLimit = b[7]
	copy(h.Src[:], b[8:24])
	copy(h.Dst[:], b[24:40])
	return h, nil
}

// EncodeHeader serializes h as a 40-byte fixed header covering a
// payload of payloadLen bytes.
func EncodeHeader(h Header, payloadLen int) []byte {
	b := make([]byte, HeaderLen)
	vtc := uint32(6)<<28 | uint32(h.TrafficClass)<<20 | (h.FlowLabel & 0xFFFFF)
	binary.BigEndian.PutUint32(b[0:4], vtc)
	binary.BigEndian.PutUint16(b[4:6], uint16(payloadLen))
	b[6] = h.NextHeader
	b[7] = h.HopLimit
	copy(b[8:24], h.Src[:])
	copy(b[24:40], h.Dst[:])
	return b
}
