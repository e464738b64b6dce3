// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"fmt"
	"strings"

	"github.com/usedbytes/log"
)

// hexDump renders buf as hex bytes followed by the printable characters,
// for picking version strings and markers out of verbose output.
func hexDump(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	var str strings.Builder
	for _, b := range buf {
		fmt.Fprintf(&str, "%02x ", b)
	}
	str.WriteString("   ")
	for _, b := range buf {
		c := byte('?')
		if b >= 0x20 && b < 0x7f {
			c = b
		}
		str.WriteByte(c)
	}
	return str.String()
}

func CodeTypeString(codeType uint8) string {
	switch codeType {
	case 0:
		return "Intel86"
	case 1:
		return "OpenFirmware"
	case 2:
		return "PA-RISC"
	case 3:
		return "EFI"
	}
	return "reserved"
}

// Certificate blocks hide behind a pseudo code type and an "ISBN" marker.
const (
	codeTypeISBN  = 0x70
	isbnHeaderLen = 27
	segHeaderLen  = 29
)

// printCertificates walks the linked list of certificate segments in an
// ISBN block. Purely diagnostic - nothing consumes the result.
func printCertificates(buf []byte, sz int) {
	if len(buf) < isbnHeaderLen {
		return
	}
	log.Verbosef("    ISBN header: %s\n", hexDump(buf[:isbnHeaderLen]))
	buf = buf[isbnHeaderLen:]

	off := 0
	for {
		// 29 byte header to the segment, then data:
		// 0x01      = kind. 1 = certificate, 2 = hashes?
		// 0x13,0x14 = offset to next segment
		if off+segHeaderLen > len(buf) {
			return
		}
		log.Verbosef("     ISBN segment @%02x: %s\n", off, hexDump(buf[off:off+segHeaderLen]))
		segKind := buf[off+1]
		next := int(le16(buf, off+13))
		data := buf[off+segHeaderLen:]

		// last segment's length is whatever remains
		var dataLen int
		if next == 0 {
			dataLen = sz - off - segHeaderLen - isbnHeaderLen
		} else {
			dataLen = next - off - segHeaderLen
		}
		if dataLen < 0 || dataLen > len(data) {
			dataLen = len(data)
		}

		switch segKind {
		case 0x01:
			log.Verbosef("%s(%d)\n", hexDump(data[:dataLen]), dataLen)
		case 0x02:
			n := dataLen
			if n > 32 {
				n = 32
			}
			log.Verbosef("%s(%d)\n", hexDump(data[:n]), dataLen)
		default:
			log.Printf("unknown segment kind %d\n", segKind)
		}

		if next == 0 {
			break
		}
		if next <= off {
			// refuse to walk backwards
			break
		}
		off = next
	}
}

// print dumps the decoded header fields to the verbose log.
func (h *Header) print() {
	log.Verboseln("PCI Header")
	log.Verbosef(" RomOffset: 0x%04x\n", h.RomOffset)
	log.Verbosef(" RomSize:   0x%04x\n", len(h.rawData))
	log.Verbosef(" EntryPnt:  0x%06x\n", h.EntryPoint)
	log.Verbosef(" Reserved:  %s\n", hexDump(h.Reserved[:]))
	log.Verbosef(" CpiPtr:    0x%04x\n", h.CpiPtr)

	if int(h.CpiPtr) < len(h.rawData) {
		data := h.rawData[h.CpiPtr:]

		log.Verboseln("  PCI Data")
		log.Verbosef("   VendorID:  0x%04x\n", h.VendorID)
		log.Verbosef("   DeviceID:  0x%04x\n", h.DeviceID)
		log.Verbosef("   DevList:   0x%04x\n", h.DeviceListPtr)
		log.Verbosef("   DataLen:   0x%04x\n", h.DataLen)
		log.Verbosef("   DataRev:   0x%04x\n", h.DataRev)

		if int(h.DataLen) < len(data) {
			peek := data[h.DataLen:]
			n := int(h.ImageLen)
			suffix := ""
			if n > 0x0f {
				n = 0x0f
				suffix = "..."
			}
			if n > len(peek) {
				n = len(peek)
			}
			log.Verbosef("   ImageLen:  0x%04x [%s%s]\n", h.ImageLen, hexDump(peek[:n]), suffix)
		} else {
			log.Verbosef("   ImageLen:  0x%04x\n", h.ImageLen)
		}

		log.Verbosef("   RevLevel:  0x%04x\n", h.RevisionLevel)
		log.Verbosef("   CodeType:  0x%02x [%s]\n", h.CodeType, CodeTypeString(h.CodeType))
		lastImage := "no"
		if h.LastImage == 0x80 {
			lastImage = "yes"
		}
		log.Verbosef("   LastImg:   0x%02x [%s]\n", h.LastImage, lastImage)
		log.Verbosef("   MaxRunLen: 0x%04x\n", h.MaxRuntimeLen)
		log.Verbosef("   ConfigHdr: 0x%04x\n", h.ConfigHeaderPtr)
		log.Verbosef("   ClpPtr:    0x%04x\n", h.DmtfClpPtr)

		if h.CodeType == codeTypeISBN && matchAt(data, int(h.DataLen), "ISBN") {
			printCertificates(data[h.DataLen:], int(h.ImageLen))
		}
	}

	if h.ImageLen > 0 && int(h.ImageLen) <= len(h.rawData) {
		chk := h.Checksum()
		if chk == 0 {
			log.Verbosef("   ChkSum:    0x%02x [valid]\n", h.rawData[h.ImageLen-1])
		} else {
			log.Verbosef("   ChkSum:    0x%02x [failed, got 0x%02x]\n", h.rawData[h.ImageLen-1], chk)
		}
	} else {
		log.Verboseln("   ChkSum:    0x?? [unknown]")
	}
}
