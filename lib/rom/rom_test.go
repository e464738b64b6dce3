// SPDX-License-Identifier: MIT
// Copyright (c) 2021 Brian Starkey <stark3y@gmail.com>
package rom

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nvidiaImage is a single decodable image which classifies as NVIDIA and
// carries a version string, so that a full decode succeeds.
func nvidiaImage(t *testing.T, size int) []byte {
	t.Helper()

	buf := makeImage(t, imageOpts{
		size:     size,
		declared: size / 512,
		vendor:   0x10de,
		device:   0x1401,
		body:     []byte("Version 70.18.2\x00"),
		last:     true,
	})
	copy(buf[4:], "K74")
	balanceChecksum(buf)

	return buf
}

func TestDecodeSingleImage(t *testing.T) {
	buf := nvidiaImage(t, 1024)

	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	assert.Equal(t, KindNvidia, r.Kind())
	assert.Equal(t, uint16(0x10de), r.Vendor())
	assert.Equal(t, uint16(0x1401), r.Model())
	assert.Equal(t, "70.18.2", r.Version())
	assert.Equal(t, GUIDFromString("0x10de:0x1401"), r.GUID())
	assert.Len(t, r.Checksum(), 40)

	require.Len(t, r.Headers(), 1)
	assert.Equal(t, uint32(0), r.Headers()[0].RomOffset)
	assert.Equal(t, uint8(0), r.Headers()[0].Checksum())
}

func TestDecodeCopiesImageBytes(t *testing.T) {
	buf := nvidiaImage(t, 1024)

	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	// clobbering the input buffer must not touch the decoded image
	saved := append([]byte(nil), r.Headers()[0].RawData()...)
	for i := range buf {
		buf[i] = 0xa5
	}
	assert.Equal(t, saved, r.Headers()[0].RawData())
}

func TestDecodeChain(t *testing.T) {
	first := nvidiaImage(t, 1024)
	second := makeImage(t, imageOpts{
		size:     512,
		declared: -1,
		vendor:   0x10de,
		device:   0x1402,
		last:     true,
	})

	r, err := New(bytes.NewReader(append(first, second...)), 0)
	require.NoError(t, err)

	require.Len(t, r.Headers(), 2)
	assert.Equal(t, uint32(0), r.Headers()[0].RomOffset)
	assert.Equal(t, uint32(1024), r.Headers()[1].RomOffset)
	assert.Equal(t, uint16(0x1402), r.Headers()[1].DeviceID)

	// vendor/model come from the first image only
	assert.Equal(t, uint16(0x1401), r.Model())
}

func TestDecodeJunkTail(t *testing.T) {
	first := nvidiaImage(t, 1024)
	junk := bytes.Repeat([]byte("JUNK"), 128)

	r, err := New(bytes.NewReader(append(first, junk...)), 0)
	require.NoError(t, err)

	require.Len(t, r.Headers(), 2)
	fake := r.Headers()[1]
	assert.Equal(t, uint32(1024), fake.RomOffset)
	assert.Equal(t, uint16(0), fake.VendorID)
	assert.Equal(t, uint8(0x80), fake.LastImage)
	assert.Equal(t, uint32(512), fake.ImageLen)
	assert.Equal(t, junk, fake.RawData())
}

func TestDecodePaddingTail(t *testing.T) {
	first := nvidiaImage(t, 1024)
	padding := make([]byte, 512)

	r, err := New(bytes.NewReader(append(first, padding...)), 0)
	require.NoError(t, err)

	// zero padding isn't an image
	require.Len(t, r.Headers(), 1)
}

func TestDecodeZeroSizeAdvancesToEnd(t *testing.T) {
	buf := nvidiaImage(t, 2048)
	buf[2] = 0
	// chain walk must cover the whole buffer in one step
	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	require.Len(t, r.Headers(), 1)
	assert.Len(t, r.Headers()[0].RawData(), 2048)
}

func TestDecodeTooSmall(t *testing.T) {
	_, err := New(bytes.NewReader(make([]byte, 512)), 0)
	require.ErrorIs(t, err, ErrTooSmall)
}

func TestDecodeAllZeros(t *testing.T) {
	_, err := New(bytes.NewReader(make([]byte, 1024)), 0)
	require.ErrorIs(t, err, ErrNoHeader)
}

func TestDecodeVersionUnknown(t *testing.T) {
	// classifies as NVIDIA but has no version text anywhere
	buf := makeImage(t, imageOpts{
		size:     1024,
		declared: -1,
		vendor:   0x10de,
		device:   0x1401,
		last:     true,
	})
	copy(buf[4:], "K74")
	balanceChecksum(buf)

	_, err := New(bytes.NewReader(buf), 0)
	require.ErrorIs(t, err, ErrVersionUnknown)
}

func TestDecodeIntelRebaseOverflow(t *testing.T) {
	buf := makeImage(t, imageOpts{
		size:     1024,
		declared: -1,
		vendor:   0x8086,
		device:   0x0166,
		reserved: []byte("00000000000"),
		last:     true,
	})
	// Intel-style images re-base via this field; point it past the buffer
	buf[0x1a] = 0xff
	buf[0x1b] = 0xff

	_, err := New(bytes.NewReader(buf), 0)
	require.ErrorIs(t, err, ErrOverflow)
}

// trickleReader serves one byte per read, forever.
type trickleReader struct{}

func (tr *trickleReader) Read(p []byte) (int, error) {
	if len(p) > 0 {
		p[0] = 0xaa
	}
	return 1, nil
}

func TestDecodeStalledSource(t *testing.T) {
	_, err := New(&trickleReader{}, 0)
	require.ErrorIs(t, err, ErrStalled)
}

func TestDecodeNVGIWrapper(t *testing.T) {
	wrapper := make([]byte, 0x100)
	copy(wrapper, "NVGI")
	wrapper[0x15] = 0x01 // big-endian 0x0100
	wrapper[0x16] = 0x00

	buf := append(wrapper, nvidiaImage(t, 1024)...)

	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	require.Len(t, r.Headers(), 1)
	assert.Equal(t, uint32(0x100), r.Headers()[0].RomOffset)
	assert.Equal(t, KindNvidia, r.Kind())
	assert.Equal(t, "70.18.2", r.Version())
}

func TestDecodeExplicitSkip(t *testing.T) {
	buf := append(make([]byte, 0x200), nvidiaImage(t, 1024)...)

	r, err := NewWithSkip(bytes.NewReader(buf), 0x200, 0)
	require.NoError(t, err)

	require.Len(t, r.Headers(), 1)
	assert.Equal(t, uint32(0x200), r.Headers()[0].RomOffset)
}

func TestDecodeATI(t *testing.T) {
	buf := makeImage(t, imageOpts{
		size:     1024,
		declared: -1,
		vendor:   0x1002,
		device:   0x6819,
		body:     []byte("ATOMBIOSBK-AMD VER013.062 \x00"),
		last:     true,
	})
	copy(buf[0x30:], " 761295520")
	balanceChecksum(buf)

	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	assert.Equal(t, KindATI, r.Kind())
	assert.Equal(t, uint16(0x1002), r.Vendor())
	assert.Equal(t, uint16(0x6819), r.Model())
	assert.Equal(t, "013.062", r.Version())
}

func TestDecodeIntel(t *testing.T) {
	buf := makeImage(t, imageOpts{
		size:     1024,
		declared: -1,
		vendor:   0x8086,
		device:   0x0166,
		body:     []byte("Build Number: 2175_RYan PC 14.34  06/06/2013\x00"),
		last:     true,
	})
	copy(buf[0:4], "$VBT")

	// "$VBT" replaces the boot signature, so the image itself can't
	// decode; the junk fallback covers it and classification still runs
	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	assert.Equal(t, KindIntel, r.Kind())
	assert.Equal(t, "14.34", r.Version())
}

func TestExtractRoundTrip(t *testing.T) {
	first := nvidiaImage(t, 1024)
	second := makeImage(t, imageOpts{
		size:     512,
		declared: -1,
		vendor:   0x10de,
		device:   0x1402,
		last:     true,
	})

	r, err := New(bytes.NewReader(append(first, second...)), 0)
	require.NoError(t, err)
	require.Len(t, r.Headers(), 2)

	dir := t.TempDir()
	require.NoError(t, r.ExtractAll(dir))

	var rejoined []byte
	for i, hdr := range r.Headers() {
		data, err := ioutil.ReadFile(filepath.Join(dir, []string{"00.bin", "01.bin"}[i]))
		require.NoError(t, err)
		assert.Equal(t, hdr.RawData(), data)
		rejoined = append(rejoined, data...)
	}
	assert.Equal(t, append(first, second...), rejoined)
}

func TestExtractBadDir(t *testing.T) {
	buf := nvidiaImage(t, 1024)

	r, err := New(bytes.NewReader(buf), 0)
	require.NoError(t, err)

	err = r.ExtractAll(filepath.Join(t.TempDir(), "missing", "nested"))
	require.Error(t, err)
}
