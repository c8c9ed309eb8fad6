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

// Package eth implements byte-exact Ethernet II framing: 6 dst, 6 src,
// 2 big-endian ethertype, no FCS at this layer.
package eth

import (
	"encoding/binary"

	"github.com/redactedos/netstack/pkg/neterr"
)

const HeaderLen = 14

const (
	TypeIPv4 uint16 = 0x0800
	TypeARP  uint16 = 0x0806
	TypeIPv6 uint16 = 0x86DD
	TypeVLAN uint16 = 0x8100
)

// Broadcast is the Ethernet broadcast MAC.
var Broadcast = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Header is a parsed Ethernet II header.
type Header struct {
	Dst       [6]byte
	Src       [6]byte
	EtherType uint16
}

// Encode writes the 14-byte header into dst, which must be at least
// HeaderLen bytes.
func (h Header) Encode(dst []byte) {
	copy(dst[0:6], h.Dst[:])
	copy(dst[6:12], h.Src[:])
	binary.BigEndian.PutUint16(dst[12:14], h.EtherType)
}

// Decode parses an Ethernet II header from the front of b.
func Decode(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, neterr.WireFormat
	}
	var h Header
	copy(h.Dst[:], b[0:6])
	copy(h.Src[:], b[6:12])
	h.EtherType = binary.BigEndian.Uint16(b[12:14])
	return h, nil
}
