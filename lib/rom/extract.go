// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

// ExtractAll writes each image in the chain to dir, named by its index.
// Zero-length images are skipped. The first write failure aborts the rest.
func (r *Rom) ExtractAll(dir string) error {
	for i, hdr := range r.hdrs {
		fname := filepath.Join(dir, fmt.Sprintf("%02d.bin", i))
		log.Verbosef("dumping ROM #%d at 0x%04x [0x%02x] to %s\n",
			i, hdr.RomOffset, len(hdr.rawData), fname)
		if len(hdr.rawData) == 0 {
			continue
		}
		if err := ioutil.WriteFile(fname, hdr.rawData, 0644); err != nil {
			return errors.Wrapf(err, "writing image %d", i)
		}
	}
	return nil
}
