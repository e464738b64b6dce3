// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"bytes"
	"strings"
)

// cString interprets buf as NUL-terminated text, like the firmware does.
func cString(buf []byte) string {
	if idx := bytes.IndexByte(buf, 0); idx >= 0 {
		buf = buf[:idx]
	}
	return string(buf)
}

// after skips n bytes of buf, for stepping over a matched marker. A marker
// right at the end of the image yields nothing rather than panicking.
func after(buf []byte, n int) []byte {
	if n > len(buf) {
		return nil
	}
	return buf[n:]
}

// tidyVersion mirrors the firmware convention that a version string ends at
// the first whitespace or control character.
func tidyVersion(version string) string {
	version = strings.TrimSpace(version)
	if idx := strings.IndexAny(version, " \r\n"); idx >= 0 {
		version = version[:idx]
	}
	return version
}

func findVersionPCI(hdr *Header) string {
	// only ARC storage cards are known to carry a version
	if !bytes.HasPrefix(hdr.Reserved[:], []byte{0, 0, 'A', 'R', 'C'}) {
		return ""
	}
	if str := hdr.findString("BIOS: "); str != nil {
		return cString(after(str, 6))
	}
	return ""
}

func findVersionNvidia(hdr *Header) string {
	// static location for some firmware
	if matchAt(hdr.rawData, 0x013d, "Version ") {
		return cString(after(hdr.rawData, 0x013d+8))
	}

	// usual search string
	if str := hdr.findString("Version "); str != nil {
		return cString(after(str, 8))
	}

	// broken firmware
	if str := hdr.findString("Vension:"); str != nil {
		return cString(after(str, 8))
	}
	if str := hdr.findString("Version"); str != nil {
		return cString(after(str, 7))
	}

	// fallback to VBIOS
	if matchAt(hdr.rawData, 0xfa, "VBIOS Ver") {
		return cString(after(hdr.rawData, 0xfa+9))
	}
	return ""
}

func findVersionIntel(hdr *Header) string {
	// "2175_RYan PC 14.34  06/06/2013  21:27:53"
	if str := hdr.findString("Build Number:"); str != nil {
		for _, tok := range strings.Split(cString(after(str, 14)), " ") {
			if strings.Contains(tok, ".") {
				return tok
			}
		}
	}

	// fallback to VBIOS
	if str := hdr.findString("VBIOS "); str != nil {
		return cString(after(str, 6))
	}
	return ""
}

func findVersionATI(hdr *Header) string {
	if str := hdr.findString(" VER0"); str != nil {
		return cString(after(str, 4))
	}

	// broken firmware
	if str := hdr.findString(" VR"); str != nil {
		return cString(after(str, 4))
	}
	return ""
}

// findVersion extracts the version string for the detected dialect. The
// dialect set is closed, so this is a plain switch rather than anything
// fancier.
func findVersion(kind Kind, hdr *Header) string {
	switch kind {
	case KindPCI:
		return findVersionPCI(hdr)
	case KindNvidia:
		return findVersionNvidia(hdr)
	case KindIntel:
		return findVersionIntel(hdr)
	case KindATI:
		return findVersionATI(hdr)
	}
	return ""
}
