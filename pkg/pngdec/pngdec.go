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

// Package pngdec implements a minimal PNG loader: signature and IHDR
// validation, IDAT reassembly and DEFLATE decompression via pkg/deflate,
// and the four standard scanline filters. Interlaced (Adam7) images and
// palette/transparency chunks beyond IHDR are not supported.
package pngdec

import (
	"encoding/binary"

	"github.com/redactedos/netstack/pkg/deflate"
	"github.com/redactedos/netstack/pkg/neterr"
)

// signature is the fixed 8-byte PNG file header.
var signature = [8]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// ColorType values IHDR.ColorType may carry.
const (
	ColorGreyscale      = 0
	ColorTrueColor      = 2
	ColorIndexed        = 3
	ColorGreyscaleAlpha = 4
	ColorTrueColorAlpha = 6
)

// Info is a PNG's IHDR chunk, the same fields png_get_info extracts.
type Info struct {
	Width   uint32
	Height  uint32
	Depth   uint8
	Color   uint8
	Filter  uint8
	Interlace uint8
}

// BitsPerPixel returns the number of bits each pixel occupies for info,
// png_decode_bpp's per-color-type table.
func (info Info) BitsPerPixel() int {
	switch info.Color {
	case ColorGreyscale:
		return int(info.Depth)
	case ColorTrueColor:
		return 3 * int(info.Depth)
	case ColorIndexed:
		return int(info.Depth)
	case ColorGreyscaleAlpha:
		return 2 * int(info.Depth)
	case ColorTrueColorAlpha:
		return 4 * int(info.Depth)
	}
	return 0
}

// Image is a decoded PNG: raw, de-filtered scanlines at Info's
// declared bit depth/color type, one row of ((Width*bpp+7)/8) bytes
// each.
type Image struct {
	Info Info
	// Rows holds Height rows of unfiltered pixel bytes, packed at
	// Info.BitsPerPixel() bits per pixel (no padding beyond the
	// per-row byte boundary).
	Rows [][]byte
}

// GetInfo reads just the IHDR chunk from a PNG file's bytes, without
// decompressing any image data, mirroring png_get_info.
func GetInfo(data []byte) (Info, error) {
	if len(data) < 8+8+13 {
		return Info{}, neterr.WireFormat
	}
	var sig [8]byte
	copy(sig[:], data[:8])
	if sig != signature {
		return Info{}, neterr.WireFormat
	}
	hdr, body, err := readChunk(data[8:])
	if err != nil {
		return Info{}, err
	}
	if hdr.kind != "IHDR" {
		return Info{}, neterr.WireFormat
	}
	return parseIHDR(body)
}

func parseIHDR(body []byte) (Info, error) {
	if len(body) < 13 {
		return Info{}, neterr.WireFormat
	}
	return Info{
		Width:     binary.BigEndian.Uint32(body[0:4]),
		Height:    binary.BigEndian.Uint32(body[4:8]),
		Depth:     body[8],
		Color:     body[9],
		Filter:    body[11],
		Interlace: body[12],
	}, nil
}

type chunkHeader struct {
	length int
	kind   string
}

// readChunk parses one length+type+data+crc chunk at the front of b,
// returning its header and data payload (CRC is not verified, matching
// the original's own decoder).
func readChunk(b []byte) (chunkHeader, []byte, error) {
	if len(b) < 8 {
		return chunkHeader{}, nil, neterr.WireFormat
	}
	length := int(binary.BigEndian.Uint32(b[0:4]))
	kind := string(b[4:8])
	if len(b) < 8+length+4 {
		return chunkHeader{}, nil, neterr.WireFormat
	}
	return chunkHeader{length: length, kind: kind}, b[8 : 8+length], nil
}

// chunkTotalLen is how many bytes a chunk (header+data+crc) occupies.
func chunkTotalLen(length int) int { return 8 + length + 4 }

// Decode parses a complete PNG file, reassembles and inflates its IDAT
// chunks, and unfilters every scanline, mirroring png_read_image.
func Decode(data []byte) (*Image, error) {
	info, err := GetInfo(data)
	if err != nil {
		return nil, err
	}
	if info.Interlace != 0 {
		return nil, neterr.Protocol
	}

	var compressed []byte
	off := 8
	for off < len(data) {
		hdr, body, err := readChunk(data[off:])
		if err != nil {
			return nil, err
		}
		if hdr.kind == "IDAT" {
			compressed = append(compressed, body...)
		}
		off += chunkTotalLen(hdr.length)
		if hdr.kind == "IEND" {
			break
		}
	}
	if compressed == nil {
		return nil, neterr.NotFound
	}

	raw, err := deflate.DecodeZlib(compressed)
	if err != nil {
		return nil, err
	}

	bpp := info.BitsPerPixel()
	if bpp == 0 {
		return nil, neterr.Protocol
	}
	rowBytes := (int(info.Width)*bpp + 7) / 8
	stride := rowBytes + 1
	if len(raw) < stride*int(info.Height) {
		return nil, neterr.WireFormat
	}

	bytesPerPixel := (bpp + 7) / 8
	rows := make([][]byte, info.Height)
	var prev []byte
	for y := 0; y < int(info.Height); y++ {
		lineStart := y * stride
		filterType := raw[lineStart]
		cur := append([]byte(nil), raw[lineStart+1:lineStart+1+rowBytes]...)
		if err := unfilterRow(filterType, cur, prev, bytesPerPixel); err != nil {
			return nil, err
		}
		rows[y] = cur
		prev = cur
	}

	return &Image{Info: info, Rows: rows}, nil
}
