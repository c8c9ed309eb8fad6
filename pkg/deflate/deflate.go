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

package deflate

import "github.com/redactedos/netstack/pkg/neterr"

// Block type codes, RFC 1951 §3.2.3.
const (
	btypeStored = 0
	btypeFixed  = 1
	btypeDynamic = 2
)

// lengthBase and lengthExtraBits decode a length symbol (257-285) into
// a backreference length, per RFC 1951 §3.2.5's length code table.
var lengthBase = [29]int{
	3, 4, 5, 6, 7, 8, 9, 10,
	11, 13, 15, 17,
	19, 23, 27, 31,
	35, 43, 51, 59,
	67, 83, 99, 115,
	131, 163, 195, 227,
	258,
}

var lengthExtraBits = [29]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	1, 1, 1, 1,
	2, 2, 2, 2,
	3, 3, 3, 3,
	4, 4, 4, 4,
	5, 5, 5, 5,
	0,
}

// distBase and distExtraBits decode a distance symbol (0-29) into a
// backreference distance, png.c's dist_bases table plus its inline
// ((dist_base-2)/2) extra-bits formula.
var distBase = [30]int{
	1, 2, 3, 4,
	5, 7,
	9, 13,
	17, 25,
	33, 49,
	65, 97,
	129, 193,
	257, 385,
	513, 769,
	1025, 1537,
	2049, 3073,
	4097, 6145,
	8193, 12289,
	16385, 24577,
}

var distExtraBits = [30]int{
	0, 0, 0, 0,
	1, 1,
	2, 2,
	3, 3,
	4, 4,
	5, 5,
	6, 6,
	7, 7,
	8, 8,
	9, 9,
	10, 10,
	11, 11,
	12, 12,
	13, 13,
}

// codeLengthOrder is the order in which the code-length alphabet's own
// code lengths are transmitted, png.c's code_order.
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// DecodeZlib strips a 2-byte zlib header (RFC 1950) and inflates the
// DEFLATE stream that follows, ignoring the trailing Adler-32 the same
// way png.c's deflate_decode does (it checks only hdr.cm, never the
// checksum).
func DecodeZlib(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, neterr.WireFormat
	}
	cm := data[0] & 0x0F
	if cm != 8 {
		return nil, neterr.Protocol
	}
	return Inflate(data[2:])
}

// Inflate decodes a raw DEFLATE stream (no zlib or gzip wrapper) and
// returns the decompressed bytes.
func Inflate(data []byte) ([]byte, error) {
	r := newBitReader(data)
	var out []byte

	for {
		final, err := r.readBits(1)
		if err != nil {
			return nil, err
		}
		btype, err := r.readBits(2)
		if err != nil {
			return nil, err
		}

		switch btype {
		case btypeStored:
			block, err := inflateStored(r)
			if err != nil {
				return nil, err
			}
			out = append(out, block...)
		case btypeDynamic:
			if err := inflateDynamicBlock(r, &out); err != nil {
				return nil, err
			}
		default:
			// Fixed-Huffman (btype 1) is never emitted by png.c's own
			// encoder path and deflate_decode explicitly rejects
			// anything but stored/dynamic blocks.
			return nil, neterr.Protocol
		}

		if final == 1 {
			break
		}
	}
	return out, nil
}

func inflateStored(r *bitReader) ([]byte, error) {
	r.alignToByte()
	lenBytes, err := r.readBytes(2)
	if err != nil {
		return nil, err
	}
	nlenBytes, err := r.readBytes(2)
	if err != nil {
		return nil, err
	}
	length := int(lenBytes[0]) | int(lenBytes[1])<<8
	nlen := int(nlenBytes[0]) | int(nlenBytes[1])<<8
	if length != nlen^0xFFFF {
		return nil, neterr.WireFormat
	}
	return r.readBytes(length)
}

// inflateDynamicBlock reads a dynamic-Huffman block's code-length
// trees, decodes the literal/length and distance trees they describe,
// then runs the LZ77 backreference loop, mirroring
// deflate_decode_codes + deflate_block.
func inflateDynamicBlock(r *bitReader, out *[]byte) error {
	hlit, err := r.readBits(5)
	if err != nil {
		return err
	}
	hdist, err := r.readBits(5)
	if err != nil {
		return err
	}
	hclen, err := r.readBits(4)
	if err != nil {
		return err
	}

	clLengths := make([]int, 19)
	for i := 0; i < int(hclen)+4; i++ {
		v, err := r.readBits(3)
		if err != nil {
			return err
		}
		clLengths[codeLengthOrder[i]] = int(v)
	}
	clTree := newHuffmanTree(clLengths)

	total := int(hlit) + 257 + int(hdist) + 1
	fullLengths := make([]int, total)
	var lastLen int
	for i := 0; i < total; {
		sym, err := clTree.decode(r)
		if err != nil {
			return err
		}
		switch sym {
		case 16:
			extra, err := r.readBits(2)
			if err != nil {
				return err
			}
			n := int(extra) + 3
			for j := 0; j < n && i < total; j++ {
				fullLengths[i] = lastLen
				i++
			}
		case 17:
			extra, err := r.readBits(3)
			if err != nil {
				return err
			}
			n := int(extra) + 3
			for j := 0; j < n && i < total; j++ {
				fullLengths[i] = 0
				i++
			}
		case 18:
			extra, err := r.readBits(7)
			if err != nil {
				return err
			}
			n := int(extra) + 11
			for j := 0; j < n && i < total; j++ {
				fullLengths[i] = 0
				i++
			}
		default:
			fullLengths[i] = sym
			lastLen = sym
			i++
		}
	}

	litlenTree := newHuffmanTree(fullLengths[:int(hlit)+257])
	distTree := newHuffmanTree(fullLengths[int(hlit)+257:])

	return inflateBlockData(r, litlenTree, distTree, out)
}

// inflateBlockData runs the literal/length/distance decode loop until
// the end-of-block symbol (256), mirroring deflate_block.
func inflateBlockData(r *bitReader, litlenTree, distTree *huffmanTree, out *[]byte) error {
	for {
		sym, err := litlenTree.decode(r)
		if err != nil {
			return err
		}
		if sym < 256 {
			*out = append(*out, byte(sym))
			continue
		}
		if sym == 256 {
			return nil
		}

		idx := sym - 257
		if idx < 0 || idx >= len(lengthBase) {
			return neterr.WireFormat
		}
		extra, err := r.readBits(lengthExtraBits[idx])
		if err != nil {
			return err
		}
		length := lengthBase[idx] + int(extra)

		distSym, err := distTree.decode(r)
		if err != nil {
			return err
		}
		if distSym < 0 || distSym >= len(distBase) {
			return neterr.WireFormat
		}
		distExtra, err := r.readBits(distExtraBits[distSym])
		if err != nil {
			return err
		}
		distance := distBase[distSym] + int(distExtra)

		if distance > len(*out) {
			return neterr.WireFormat
		}
		start := len(*out) - distance
		for i := 0; i < length; i++ {
			*out = append(*out, (*out)[start+i])
		}
	}
}
