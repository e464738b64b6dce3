// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"github.com/usedbytes/log"
)

// blankSerial zeroes buf up to (not including) the first 0xff, NUL, CR or
// LF, returning the number of bytes cleared.
func blankSerial(buf []byte) int {
	var i int
	for i = 0; i < len(buf); i++ {
		b := buf[i]
		if b == 0xff || b == 0 || b == '\n' || b == '\r' {
			break
		}
		buf[i] = 0
	}
	return i
}

// blankSerialNumbers clears the PPID serial number text from every image
// and repairs each image's checksum byte so it still sums to zero. Only
// NVIDIA and ATI images are known to carry the marker; for the other kinds
// the text isn't reliable enough to risk corrupting unrelated bytes.
func (r *Rom) blankSerialNumbers() {
	if r.kind == KindPCI || r.kind == KindIntel {
		log.Verboseln("no serial numbers likely")
		return
	}

	for _, hdr := range r.hdrs {
		log.Verbosef("looking for PPID at 0x%04x\n", hdr.RomOffset)
		serial := hdr.findString("PPID")
		if serial == nil {
			continue
		}

		n := blankSerial(serial)
		log.Verbosef("cleared %d chars\n", n)

		// balance the checksum byte again
		chk := hdr.Checksum()
		hdr.rawData[len(hdr.rawData)-1] -= chk
		hdr.print()
	}
}
