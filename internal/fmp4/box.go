// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fmp4 emits fragmented-MP4 (ISO BMFF) init and media segments:
// byte-exact box trees a native HLS-capable media stack will decode
// without a demuxer's help. It never reads MP4; it only writes.
package fmp4

import "encoding/binary"

// Builder accumulates bytes for a single box payload or an entire segment.
// It has no box-tree awareness of its own; Box wraps whatever has been
// written so far under a 4-character type.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) U8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) U16(v uint16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *Builder) U32(v uint32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

func (b *Builder) U64(v uint64) *Builder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// I32 writes a signed 32-bit value using the same two's-complement bit
// pattern as U32, for fields like composition-time offsets.
func (b *Builder) I32(v int32) *Builder {
	return b.U32(uint32(v))
}

// FourCC writes a 4-character ASCII box type verbatim.
func (b *Builder) FourCC(t string) *Builder {
	if len(t) != 4 {
		panic("fmp4: FourCC must be exactly 4 characters: " + t)
	}
	b.buf = append(b.buf, t...)
	return b
}

// Bytes writes raw bytes verbatim.
func (b *Builder) Bytes(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// Zeros appends n zero bytes.
func (b *Builder) Zeros(n int) *Builder {
	b.buf = append(b.buf, make([]byte, n)...)
	return b
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Build returns the accumulated payload, unwrapped.
func (b *Builder) Build() []byte {
	return b.buf
}

// Box wraps payload under a 4-character box type: big_endian_u32(8 +
// len(payload)) || type || payload. No 64-bit extended size header is
// produced; segment sizes at this pipeline's scale never require one.
func Box(boxType string, payload []byte) []byte {
	out := make([]byte, 0, 8+len(payload))
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(8+len(payload)))
	out = append(out, sizeBuf[:]...)
	out = append(out, boxType...)
	out = append(out, payload...)
	return out
}

// BoxBuilder wraps b's accumulated payload under boxType, matching Box.
func BoxBuilder(boxType string, b *Builder) []byte {
	return Box(boxType, b.Build())
}
