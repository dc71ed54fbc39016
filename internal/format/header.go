// Package format provides the binary segment header codec.
package format

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// Header layout (68 bytes, fixed):
//
//	signature (1 byte, 's' = 0x73)
//	type (1 byte, identifies format)
//	version (1 byte)
//	flags (1 byte)
//	segment ID (16 bytes, UUID)
//	start time (8 bytes, little-endian int64, Unix nanoseconds)
//	duration (8 bytes, little-endian int64, nanoseconds; 0 until finished)
//	data offset (8 bytes, little-endian int64, always HeaderSize for version 1)
//	data size (8 bytes, little-endian int64; 0 until finished)
//	reserved (16 bytes, zero)
//
// The producer writes the header first and patches duration, data size and
// FlagFinished when it seals the segment. A file shorter than HeaderSize is
// still being written and must not be read.
const (
	Signature  = 's'
	HeaderSize = 68

	TypeSegment = 'g'

	SegmentVersion = 0x01

	// FlagFinished is set when the producer has sealed the segment and
	// patched the final duration and data size.
	FlagFinished = 0x01
)

const (
	preambleBytes = 4
	idBytes       = 16
)

var (
	ErrHeaderTooSmall    = errors.New("segment header too small")
	ErrSignatureMismatch = errors.New("segment signature mismatch")
	ErrTypeMismatch      = errors.New("segment type mismatch")
	ErrVersionMismatch   = errors.New("segment version mismatch")
)

// Header represents the fixed-size segment file header.
type Header struct {
	Flags      byte
	ID         uuid.UUID
	StartNanos int64
	Duration   int64
	DataOffset int64
	DataSize   int64
}

// Finished reports whether the producer has sealed the segment.
func (h Header) Finished() bool {
	return h.Flags&FlagFinished != 0
}

// Encode writes the header into a HeaderSize-byte array.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = Signature
	buf[1] = TypeSegment
	buf[2] = SegmentVersion
	buf[3] = h.Flags
	cursor := preambleBytes
	copy(buf[cursor:cursor+idBytes], h.ID[:])
	cursor += idBytes
	binary.LittleEndian.PutUint64(buf[cursor:], uint64(h.StartNanos))
	cursor += 8
	binary.LittleEndian.PutUint64(buf[cursor:], uint64(h.Duration))
	cursor += 8
	binary.LittleEndian.PutUint64(buf[cursor:], uint64(h.DataOffset))
	cursor += 8
	binary.LittleEndian.PutUint64(buf[cursor:], uint64(h.DataSize))
	return buf
}

// Decode reads a header from the given buffer.
// Returns ErrHeaderTooSmall if buf is less than HeaderSize bytes.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrHeaderTooSmall
	}
	if buf[0] != Signature {
		return Header{}, ErrSignatureMismatch
	}
	if buf[1] != TypeSegment {
		return Header{}, ErrTypeMismatch
	}
	if buf[2] != SegmentVersion {
		return Header{}, ErrVersionMismatch
	}
	h := Header{Flags: buf[3]}
	cursor := preambleBytes
	copy(h.ID[:], buf[cursor:cursor+idBytes])
	cursor += idBytes
	h.StartNanos = int64(binary.LittleEndian.Uint64(buf[cursor:]))
	cursor += 8
	h.Duration = int64(binary.LittleEndian.Uint64(buf[cursor:]))
	cursor += 8
	h.DataOffset = int64(binary.LittleEndian.Uint64(buf[cursor:]))
	cursor += 8
	h.DataSize = int64(binary.LittleEndian.Uint64(buf[cursor:]))
	return h, nil
}
