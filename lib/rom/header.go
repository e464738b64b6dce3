// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"bytes"

	"github.com/usedbytes/log"
)

// Field layout from http://resources.infosecinstitute.com/pci-expansion-rom/
const (
	offRomSize    = 0x02
	offEntryPoint = 0x03
	offReserved   = 0x06
	offCpiPtr     = 0x18

	// Minimum bytes needed to decode the legacy header fields
	minHeaderLen = 0x1a

	romSizeUnit = 512
)

// Accepted boot signatures, in priority order. 0xaa55 is the standard one,
// NVIDIA extension images start with "VN" instead.
var bootSignatures = [][]byte{
	{0x55, 0xaa},
	{'V', 'N'},
}

// Accepted PCI Data Structure signatures, in priority order. "PCIR" is the
// standard one, the others are NVIDIA private dialects.
var dataSignatures = [][]byte{
	[]byte("PCIR"),
	[]byte("RGIS"),
	[]byte("NPDS"),
	[]byte("NPDE"),
}

func matchAny(buf []byte, sigs [][]byte) bool {
	for _, sig := range sigs {
		if bytes.HasPrefix(buf, sig) {
			return true
		}
	}
	return false
}

func matchAt(buf []byte, off int, marker string) bool {
	if off < 0 || off+len(marker) > len(buf) {
		return false
	}
	return bytes.Equal(buf[off:off+len(marker)], []byte(marker))
}

// Bounds-checked little-endian field reads. A read past the end of the
// owned buffer zeroes that field only, it never aborts the decode.
func le16(buf []byte, off int) uint16 {
	if off < 0 || off+2 > len(buf) {
		return 0
	}
	return uint16(buf[off]) | uint16(buf[off+1])<<8
}

func le24(buf []byte, off int) uint32 {
	if off < 0 || off+3 > len(buf) {
		return 0
	}
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16
}

func byteAt(buf []byte, off int) uint8 {
	if off < 0 || off >= len(buf) {
		return 0
	}
	return buf[off]
}

// Header is a single sub-image in the ROM chain. It owns a private copy of
// its bytes, so mutating it never touches the buffer it was decoded from.
type Header struct {
	rawData   []byte
	RomOffset uint32

	EntryPoint uint32
	Reserved   [18]byte
	CpiPtr     uint16

	// PCI Data Structure fields. All zero if the image doesn't carry a
	// recognisable data structure.
	VendorID        uint16
	DeviceID        uint16
	DeviceListPtr   uint16
	DataLen         uint16
	DataRev         uint8
	ClassCode       uint32
	ImageLen        uint32
	RevisionLevel   uint16
	CodeType        uint8
	LastImage       uint8
	MaxRuntimeLen   uint32
	ConfigHeaderPtr uint16
	DmtfClpPtr      uint16
}

func (h *Header) RawData() []byte {
	return h.rawData
}

// Checksum is the unsigned 8-bit wraparound sum of the image bytes. A
// well-formed image sums to zero, its last byte being the balancing value.
func (h *Header) Checksum() uint8 {
	var sum uint8
	for _, b := range h.rawData {
		sum += b
	}
	return sum
}

// findString searches the region after the PCI Data Structure for needle,
// returning everything from the first match to the end of the image.
func (h *Header) findString(needle string) []byte {
	if len(needle) == 0 || len(h.rawData) == 0 {
		return nil
	}
	if int(h.DataLen) > len(h.rawData) {
		return nil
	}
	haystack := h.rawData[h.DataLen:]
	idx := bytes.Index(haystack, []byte(needle))
	if idx < 0 {
		return nil
	}
	return haystack[idx:]
}

// parseData decodes the PCI Data Structure, if the image has one. Images
// without one (common for intermediate images in a chain) are not an error,
// they just keep all the data fields at zero.
func (h *Header) parseData() bool {
	if h.CpiPtr == 0 {
		log.Verbosef("No PCI data @ 0x%04x\n", h.RomOffset)
		return false
	}
	if int(h.CpiPtr)+4 > len(h.rawData) {
		log.Verbosef("Invalid PCI data pointer 0x%04x\n", h.CpiPtr)
		return false
	}

	data := h.rawData[h.CpiPtr:]
	if !matchAny(data, dataSignatures) {
		log.Verbosef("Not PCI data: %02x%02x%02x%02x [%c%c%c%c]\n",
			data[0], data[1], data[2], data[3],
			data[0], data[1], data[2], data[3])
		return false
	}
	if !bytes.HasPrefix(data, dataSignatures[0]) {
		log.Verboseln("-- using NVIDIA data quirk")
	}

	h.VendorID = le16(data, 0x04)
	h.DeviceID = le16(data, 0x06)
	h.DeviceListPtr = le16(data, 0x08)
	h.DataLen = le16(data, 0x0a)
	h.DataRev = byteAt(data, 0x0c)
	h.ClassCode = le24(data, 0x0d)
	h.ImageLen = uint32(le16(data, 0x10)) * romSizeUnit
	h.RevisionLevel = le16(data, 0x12)
	h.CodeType = byteAt(data, 0x14)
	h.LastImage = byteAt(data, 0x15)
	h.MaxRuntimeLen = uint32(le16(data, 0x16)) * romSizeUnit
	h.ConfigHeaderPtr = le16(data, 0x18)
	h.DmtfClpPtr = le16(data, 0x1a)

	return true
}

// newHeader tries to decode a sub-image starting at the front of buf.
// Returns nil if buf doesn't start with a recognisable boot signature -
// that's the caller's cue to stop walking, not an error.
func newHeader(buf []byte) *Header {
	if len(buf) < minHeaderLen {
		return nil
	}
	if !matchAny(buf, bootSignatures) {
		n := len(buf)
		if n > 16 {
			n = 16
		}
		log.Verbosef("Not PCI ROM %s\n", hexDump(buf[:n]))
		return nil
	}
	if !bytes.HasPrefix(buf, bootSignatures[0]) {
		log.Verboseln("-- using NVIDIA ROM quirk")
	}

	romLen := int(buf[offRomSize]) * romSizeUnit

	// some images don't declare their own size, take what's left
	if romLen == 0 {
		log.Verboseln("fixing up last image size")
		romLen = len(buf)
	}
	if romLen > len(buf) {
		romLen = len(buf)
	}

	hdr := &Header{
		rawData: append([]byte(nil), buf[:romLen]...),
	}

	hdr.EntryPoint = le24(hdr.rawData, offEntryPoint)
	copy(hdr.Reserved[:], hdr.rawData[offReserved:offReserved+18])
	hdr.CpiPtr = le16(hdr.rawData, offCpiPtr)

	log.Verbosef("looking for PCI data @ 0x%04x\n", hdr.CpiPtr)
	hdr.parseData()

	return hdr
}
