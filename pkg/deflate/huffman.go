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

// huffmanTree is a canonical Huffman decode table built from a per-
// symbol code-length array via the standard bl_count/next_code
// assignment (RFC 1951 §3.2.2); this decodes by accumulating bits
// against per-length code ranges instead of walking an explicit tree.
type huffmanTree struct {
	counts  [maxCodeLen + 1]int // codes of each length
	symbols []int               // symbols in canonical code order
}

const maxCodeLen = 15

// newHuffmanTree builds a canonical decode table from lengths (0 means
// the symbol is unused).
func newHuffmanTree(lengths []int) *huffmanTree {
	h := &huffmanTree{symbols: make([]int, len(lengths))}
	for _, l := range lengths {
		if l > 0 {
			h.counts[l]++
		}
	}

	var offsets [maxCodeLen + 2]int
	for i := 1; i <= maxCodeLen; i++ {
		offsets[i+1] = offsets[i] + h.counts[i]
	}
	for sym, l := range lengths {
		if l > 0 {
			h.symbols[offsets[l]] = sym
			offsets[l]++
		}
	}
	return h
}

// decode reads bits from r one at a time until they match a complete
// canonical code, returning the corresponding symbol.
func (h *huffmanTree) decode(r *bitReader) (int, error) {
	code, first, index := 0, 0, 0
	for length := 1; length <= maxCodeLen; length++ {
		bit, err := r.readBit()
		if err != nil {
			return 0, err
		}
		code |= int(bit)
		count := h.counts[length]
		if code-first < count {
			return h.symbols[index+(code-first)], nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, neterr.WireFormat
}
