// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"io"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

const (
	// Option ROMs are at most 4MiB
	maxRomSize = 0x400000

	// Anything smaller can't be a valid image
	minRomSize = 1024

	// Device nodes serve the ROM in chunks. More partial reads than this
	// means the device isn't fulfilling requests.
	maxPartialReads = 16
)

// readImage pulls up to maxRomSize bytes out of r, looping over short reads
// the way ROM device nodes require.
func readImage(r io.Reader) ([]byte, error) {
	buf := make([]byte, maxRomSize)

	sz, err := r.Read(buf)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "reading firmware image")
	}

	reads := 0
	for sz < maxRomSize && err != io.EOF {
		var n int
		n, err = r.Read(buf[sz:])
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "reading firmware image")
		}
		if n == 0 && err == nil {
			break
		}
		if n > 0 {
			log.Verbosef("ROM returned 0x%04x bytes, adding 0x%04x...\n", sz, n)
			sz += n

			reads++
			if reads > maxPartialReads {
				return nil, ErrStalled
			}
		}
	}
	log.Verbosef("ROM buffer filled %dkB/%dkB\n", sz/1024, maxRomSize/1024)

	if sz < minRomSize {
		return nil, errors.Wrapf(ErrTooSmall, "%d bytes", sz)
	}

	return buf[:sz], nil
}
