// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>

// Package rom decodes PCI Option ROM images: the firmware blobs read out of
// expansion cards like GPUs and NICs. It walks the chain of sub-images
// packed into one blob, identifies the vendor dialect, digs out the
// firmware version string, and can blank embedded serial numbers without
// breaking the image checksum.
package rom

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

type LoadFlags uint

const (
	// BlankSerials clears PPID serial numbers from the decoded images,
	// repairing their checksums.
	BlankSerials LoadFlags = 1 << iota
)

// Rom is one decoded Option ROM. It owns its headers exclusively; decoding
// is synchronous and independent Roms share no state.
type Rom struct {
	kind     Kind
	vendor   uint16
	model    uint16
	version  string
	guid     string
	checksum string
	hdrs     []*Header
}

func (r *Rom) Kind() Kind { return r.kind }

func (r *Rom) Vendor() uint16 { return r.vendor }

func (r *Rom) Model() uint16 { return r.model }

func (r *Rom) Version() string { return r.version }

func (r *Rom) GUID() string { return r.guid }

// Checksum is the SHA-1 hex digest of every image's bytes in chain order,
// computed after any redaction.
func (r *Rom) Checksum() string { return r.checksum }

func (r *Rom) Headers() []*Header { return r.hdrs }

func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// New reads a ROM image from r and decodes it. On failure no partial Rom is
// returned.
func New(r io.Reader, flags LoadFlags) (*Rom, error) {
	return NewWithSkip(r, 0, flags)
}

// NewWithSkip is New with a leading-header skip, for blobs where the option
// ROM sits behind some vendor wrapper. An NVGI wrapper is detected
// automatically and overrides skip.
func NewWithSkip(r io.Reader, skip uint32, flags LoadFlags) (*Rom, error) {
	buf, err := readImage(r)
	if err != nil {
		return nil, err
	}

	return decode(buf, skip, flags)
}

func decode(buf []byte, hdrSz uint32, flags LoadFlags) (*Rom, error) {
	sz := uint32(len(buf))

	// NVIDIA IFR wrapper, skip through to the option ROM. The wrapper
	// length at 0x15 is big-endian; some decoders read a single byte
	// there and byte-swap it, which agrees whenever the byte at 0x16
	// is zero (real wrappers pad the skip to a 0x100 boundary).
	if bytes.HasPrefix(buf, []byte("NVGI")) {
		hdrSz = uint32(binary.BigEndian.Uint16(buf[0x15:]))
	}

	rom := &Rom{
		kind: KindUnknown,
	}

	// Walk the chain of packed sub-images
	jump := uint32(0)
	for sz > hdrSz+jump {
		log.Verbosef("looking for PCI ROM @ 0x%04x\n", hdrSz+jump)
		hdr := newHeader(buf[hdrSz+jump:])
		if hdr == nil {
			// Trailing data that doesn't decode still belongs to
			// the image, unless it's just padding
			junk := buf[hdrSz+jump:]
			if allZero(junk) {
				log.Verboseln("ignoring padding")
				break
			}

			log.Verboseln("found junk data, adding fake")
			hdr = &Header{
				rawData:   append([]byte(nil), junk...),
				RomOffset: hdrSz + jump,
				CodeType:  0x00,
				LastImage: 0x80,
			}
			hdr.ImageLen = uint32(len(hdr.rawData))
			rom.hdrs = append(rom.hdrs, hdr)
			break
		}

		hdr.RomOffset = hdrSz + jump

		// Can't stop at LastImage - NVIDIA packs extended headers
		// after it without merging them
		rom.hdrs = append(rom.hdrs, hdr)

		// NVIDIA don't always set a ROM size for extensions
		jumpSz := uint32(len(hdr.rawData))
		if jumpSz == 0 {
			jumpSz = hdr.ImageLen
		}
		if jumpSz == 0 {
			break
		}
		jump += jumpSz
	}

	if len(rom.hdrs) == 0 {
		return nil, errors.Wrapf(ErrNoHeader, "[%02x%02x]", buf[0], buf[1])
	}

	for _, hdr := range rom.hdrs {
		hdr.print()
	}

	hdr := rom.hdrs[0]
	rom.vendor = hdr.VendorID
	rom.model = hdr.DeviceID

	kind, err := classify(buf, hdr, hdrSz)
	if err != nil {
		return nil, err
	}
	rom.kind = kind

	rom.version = tidyVersion(findVersion(kind, hdr))

	if flags&BlankSerials != 0 {
		rom.blankSerialNumbers()
	}

	// Content checksum over the (possibly redacted) image bytes
	sum := sha1.New()
	for _, hdr := range rom.hdrs {
		sum.Write(hdr.rawData)
	}
	rom.checksum = hex.EncodeToString(sum.Sum(nil))

	id := fmt.Sprintf("0x%04x:0x%04x", rom.vendor, rom.model)
	rom.guid = GUIDFromString(id)
	log.Verbosef("using %s for %s\n", rom.guid, id)

	if rom.version == "" {
		return nil, errors.Wrapf(ErrVersionUnknown, "kind %s", rom.kind)
	}

	return rom, nil
}
