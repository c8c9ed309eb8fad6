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

// Package dns implements the wire message codec shared by the unicast
// resolver and the mDNS responder/querier: the 12-byte header, question
// and resource-record encode/decode, and name compression with the
// ≤16-hop pointer-loop guard, using the same BigEndian marshaling style
// as pkg/dhcp's packet codec.
package dns

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/redactedos/netstack/pkg/neterr"
)

// Resource record types this stack understands.
const (
	TypeA    = 1
	TypePTR  = 12
	TypeTXT  = 16
	TypeAAAA = 28
	TypeSRV  = 33
)

// ClassIN is the only record class emitted or consumed.
const ClassIN = 1

// ClassCacheFlushBit is the high bit of an mDNS answer's class field,
// the cache-flush bit.
const ClassCacheFlushBit = 0x8000

// Header flag bits (RFC 1035 §4.1.1).
const (
	FlagResponse   = 0x8000
	FlagAuthority  = 0x0400
	FlagTruncated  = 0x0200
	FlagRecurse    = 0x0100
	FlagRecurseOK  = 0x0080
	RcodeMask      = 0x000F
	RcodeNXDomain  = 3
	maxPointerHops = 16
	headerLen      = 12
	maxLabelLen    = 63
)

// Question is one entry of the question section.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// RR is one resource record (answer, authority, or additional).
type RR struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  []byte
}

// Message is a decoded DNS/mDNS message. Only the header, question, and
// answer sections are retained; authority/additional records are
// skipped during decode (matching the original's pure scan-past
// behavior — it never inspects them either).
type Message struct {
	ID        uint16
	Flags     uint16
	Questions []Question
	Answers   []RR
}

// Rcode extracts the response code from Flags.
func (m Message) Rcode() int { return int(m.Flags & RcodeMask) }

// EncodeName writes name as a sequence of length-prefixed labels
// terminated by a zero byte, with no compression — matching
// dns_write_qname, which never emits pointers on the request path.
func EncodeName(buf *bytes.Buffer, name string) error {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return fmt.Errorf("%w: empty dns name", neterr.InvalidArgument)
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > maxLabelLen {
			return fmt.Errorf("%w: dns label %q out of range", neterr.InvalidArgument, label)
		}
		buf.WriteByte(byte(len(label)))
		buf.WriteString(label)
	}
	buf.WriteByte(0)
	return nil
}

// DecodeName decodes a possibly-compressed name starting at offset in
// msg, returning the name and the offset immediately after it in the
// original (non-jumped) stream. Pointer chases are capped at
// maxPointerHops as a loop guard.
func DecodeName(msg []byte, offset int) (string, int, error) {
	if offset < 0 || offset >= len(msg) {
		return "", 0, fmt.Errorf("%w: dns name offset out of range", neterr.WireFormat)
	}

	var labels []string
	cur := offset
	next := -1
	hops := 0

	for {
		if cur >= len(msg) {
			return "", 0, fmt.Errorf("%w: dns name runs past message end", neterr.WireFormat)
		}
		length := msg[cur]
		if length == 0 {
			cur++
			if next < 0 {
				next = cur
			}
			break
		}
		if length&0xC0 == 0xC0 {
			if cur+1 >= len(msg) {
				return "", 0, fmt.Errorf("%w: truncated dns name pointer", neterr.WireFormat)
			}
			ptr := int(length&0x3F)<<8 | int(msg[cur+1])
			if ptr >= len(msg) {
				return "", 0, fmt.Errorf("%w: dns name pointer out of range", neterr.WireFormat)
			}
			if next < 0 {
				next = cur + 2
			}
			hops++
			if hops > maxPointerHops {
				return "", 0, fmt.Errorf("%w: dns name pointer loop", neterr.WireFormat)
			}
			cur = ptr
			continue
		}
		cur++
		if cur+int(length) > len(msg) {
			return "", 0, fmt.Errorf("%w: truncated dns label", neterr.WireFormat)
		}
		labels = append(labels, string(msg[cur:cur+int(length)]))
		cur += int(length)
	}

	return strings.Join(labels, "."), next, nil
}

// EncodeQuery builds a single-question query message: header with
// QDCOUNT=1 and the recursion-desired bit, per dns_write_qname's request
// shape in dns.c.
func EncodeQuery(id uint16, name string, qtype uint16) ([]byte, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, id)
	binary.Write(buf, binary.BigEndian, uint16(FlagRecurse))
	binary.Write(buf, binary.BigEndian, uint16(1)) // QDCOUNT
	binary.Write(buf, binary.BigEndian, uint16(0)) // ANCOUNT
	binary.Write(buf, binary.BigEndian, uint16(0)) // NSCOUNT
	binary.Write(buf, binary.BigEndian, uint16(0)) // ARCOUNT

	if err := EncodeName(buf, name); err != nil {
		return nil, err
	}
	binary.Write(buf, binary.BigEndian, qtype)
	binary.Write(buf, binary.BigEndian, uint16(ClassIN))
	return buf.Bytes(), nil
}

// EncodeResponse builds a full response message with the given
// questions (echoed back, as mDNS responders and unicast resolvers both
// expect) and answers.
func EncodeResponse(id uint16, flags uint16, questions []Question, answers []RR) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, id)
	binary.Write(buf, binary.BigEndian, flags)
	binary.Write(buf, binary.BigEndian, uint16(len(questions)))
	binary.Write(buf, binary.BigEndian, uint16(len(answers)))
	binary.Write(buf, binary.BigEndian, uint16(0))
	binary.Write(buf, binary.BigEndian, uint16(0))

	for _, q := range questions {
		EncodeName(buf, q.Name)
		binary.Write(buf, binary.BigEndian, q.Type)
		binary.Write(buf, binary.BigEndian, q.Class)
	}
	for _, rr := range answers {
		EncodeName(buf, rr.Name)
		binary.Write(buf, binary.BigEndian, rr.Type)
		binary.Write(buf, binary.BigEndian, rr.Class)
		binary.Write(buf, binary.BigEndian, rr.TTL)
		binary.Write(buf, binary.BigEndian, uint16(len(rr.Data)))
		buf.Write(rr.Data)
	}
	return buf.Bytes()
}

// Decode parses b into a Message, skipping past (but not retaining) the
// authority and additional sections, matching parse_dns_a_record /
// parse_mdns_ip_record's pure scan-past treatment of those sections.
func Decode(b []byte) (Message, error) {
	if len(b) < headerLen {
		return Message{}, fmt.Errorf("%w: dns message shorter than header", neterr.WireFormat)
	}
	m := Message{
		ID:    binary.BigEndian.Uint16(b[0:2]),
		Flags: binary.BigEndian.Uint16(b[2:4]),
	}
	qd := binary.BigEndian.Uint16(b[4:6])
	an := binary.BigEndian.Uint16(b[6:8])
	ns := binary.BigEndian.Uint16(b[8:10])
	ar := binary.BigEndian.Uint16(b[10:12])

	offset := headerLen
	for i := 0; i < int(qd); i++ {
		name, next, err := DecodeName(b, offset)
		if err != nil {
			return Message{}, err
		}
		if next+4 > len(b) {
			return Message{}, fmt.Errorf("%w: truncated dns question", neterr.WireFormat)
		}
		m.Questions = append(m.Questions, Question{
			Name:  name,
			Type:  binary.BigEndian.Uint16(b[next : next+2]),
			Class: binary.BigEndian.Uint16(b[next+2 : next+4]),
		})
		offset = next + 4
	}

	readRR := func() (RR, error) {
		name, next, err := DecodeName(b, offset)
		if err != nil {
			return RR{}, err
		}
		if next+10 > len(b) {
			return RR{}, fmt.Errorf("%w: truncated dns resource record", neterr.WireFormat)
		}
		rtype := binary.BigEndian.Uint16(b[next : next+2])
		class := binary.BigEndian.Uint16(b[next+2 : next+4])
		ttl := binary.BigEndian.Uint32(b[next+4 : next+8])
		rdlen := binary.BigEndian.Uint16(b[next+8 : next+10])
		dataStart := next + 10
		if dataStart+int(rdlen) > len(b) {
			return RR{}, fmt.Errorf("%w: truncated dns rdata", neterr.WireFormat)
		}
		data := append([]byte(nil), b[dataStart:dataStart+int(rdlen)]...)
		offset = dataStart + int(rdlen)
		return RR{Name: name, Type: rtype, Class: class, TTL: ttl, Data: data}, nil
	}

	for i := 0; i < int(an); i++ {
		rr, err := readRR()
		if err != nil {
			return Message{}, err
		}
		m.Answers = append(m.Answers, rr)
	}
	for i := 0; i < int(ns)+int(ar); i++ {
		if _, err := readRR(); err != nil {
			return Message{}, err
		}
	}

	return m, nil
}
