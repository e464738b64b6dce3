// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"bytes"
)

// Kind is the vendor dialect of the whole ROM. It's derived once from
// global buffer markers, never per sub-image.
type Kind int

const (
	KindUnknown Kind = iota
	KindPCI
	KindNvidia
	KindIntel
	KindATI
)

func (k Kind) String() string {
	switch k {
	case KindPCI:
		return "pci"
	case KindNvidia:
		return "nvidia"
	case KindIntel:
		return "intel"
	case KindATI:
		return "ati"
	}
	return "unknown"
}

// Reserved-field pattern marking an Intel image whose option ROM sits
// behind a second header.
var intelReserved = []byte("00000000000")

// classify assigns the dialect for the whole ROM. Any image that decodes at
// all defaults to plain PCI, then the vendor markers are checked in fixed
// order with the first match winning.
func classify(buf []byte, hdr *Header, hdrSz uint32) (Kind, error) {
	kind := KindPCI

	// Intel images need re-basing before the marker checks
	if bytes.Equal(hdr.Reserved[:len(intelReserved)], intelReserved) {
		hdrSz = uint32(le16(buf, 0x1a))
	}
	if int64(hdrSz) > int64(len(buf)) {
		return KindUnknown, ErrOverflow
	}

	switch {
	case matchAt(buf, int(hdrSz)+0x04, "K74"):
		kind = KindNvidia
	case matchAt(buf, int(hdrSz), "$VBT"):
		kind = KindIntel
	case matchAt(buf, 0x30, " 761295520"):
		kind = KindATI
	}

	if kind == KindUnknown {
		return KindUnknown, ErrKindUndetected
	}

	return kind, nil
}
