// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"crypto/sha1"
	"fmt"
)

// RFC 4122 DNS namespace
var uuidNamespaceDNS = [16]byte{
	0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1,
	0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8,
}

// GUIDFromString derives the RFC 4122 name-based (version 5, SHA-1) UUID of
// str in the DNS namespace. This is the same scheme appstream uses, so the
// GUID for a given vendor:device pair matches what fwupd metadata expects.
func GUIDFromString(str string) string {
	h := sha1.New()
	h.Write(uuidNamespaceDNS[:])
	h.Write([]byte(str))
	sum := h.Sum(nil)

	var uuid [16]byte
	copy(uuid[:], sum)
	uuid[6] = (uuid[6] & 0x0f) | 0x50
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return fmt.Sprintf("%x-%x-%x-%x-%x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16])
}
