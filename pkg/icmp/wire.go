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

// Package icmp implements echo request/reply and the ping rendezvous
// table.
package icmp

import (
	"encoding/binary"

	"github.com/redactedos/netstack/pkg/neterr"
	"github.com/redactedos/netstack/pkg/wire"
)

// ICMP message types this stack recognizes.
const (
	TypeEchoReply    byte = 0
	TypeDestUnreach  byte = 3
	TypeRedirect     byte = 5
	TypeEchoRequest  byte = 8
	TypeTimeExceeded byte = 11
	TypeParamProblem byte = 12
)

// Dest-unreach subcodes this stack maps to a distinct Status.
const (
	CodeNetUnreach  byte = 0
	CodeHostUnreach byte = 1
	CodeProtoUnreach byte = 2
	CodePortUnreach byte = 3
	CodeFragNeeded  byte = 4
)

// MaxEchoPayload is the echo payload cap.
const MaxEchoPayload = 56

// HeaderLen is the fixed 8-byte ICMP header (type, code, checksum,
// 4 bytes of type-specific "rest of header").
const HeaderLen = 8

// EncodeEcho builds a checksummed echo request or reply.
func EncodeEcho(typ byte, id, seq uint16, payload []byte) []byte {
	if len(payload) > MaxEchoPayload {
		payload = payload[:MaxEchoPayload]
	}
	b := make([]byte, HeaderLen+len(payload))
	b[0] = typ
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	copy(b[8:], payload)
	binary.BigEndian.PutUint16(b[2:4], wire.Checksum(b))
	return b
}

// DecodeGeneric validates the checksum over the whole datagram and
// splits it into type, code, the 4-byte "rest of header" field, and
// whatever follows (echo payload, or an embedded datagram for error
// messages).
func DecodeGeneric(b []byte) (typ, code byte, rest, body []byte, err error) {
	if len(b) < HeaderLen {
		return 0, 0, nil, nil, neterr.WireFormat
	}
	if wire.Checksum(b) != 0 {
		return 0, 0, nil, nil, neterr.WireFormat
	}
	return b[0], b[1], b[4:8], b[8:], nil
}

// DecodeEcho parses an echo request/reply, returning its id, seq and
// payload.
func DecodeEcho(b []byte) (typ, code byte, id, seq uint16, payload []byte, err error) {
	typ, code, rest, payload, err := DecodeGeneric(b)
	if err != nil {
		return 0, 0, 0, 0, nil, err
	}
	id = binary.BigEndian.Uint16(rest[0:2])
	seq = binary.BigEndian.Uint16(rest[2:4])
	return typ, code, id, seq, payload, nil
}

// embeddedEchoIDSeq extracts the id/seq of the offending echo request
// from the embedded IPv4 header + first 8 bytes an ICMP error message
// carries. It is deliberately lenient about the
// embedded IPv4 header's total-length field, since only a fragment of
// the original datagram is present.
func embeddedEchoIDSeq(body []byte) (id, seq uint16, ok bool) {
	if len(body) < 20 {
		return 0, 0, false
	}
	ihl := body[0] & 0x0F
	hlen := int(ihl) * 4
	if hlen < 20 || len(body) < hlen+HeaderLen {
		return 0, 0, false
	}
	embedded := body[hlen:]
	return binary.BigEndian.Uint16(embedded[4:6]), binary.BigEndian.Uint16(embedded[6:8]), true
}
