// Package segment provides segment file metadata access: recognizing
// segment files, reading their headers, and writing them on the producer
// side.
//
// A segment is one immutable, timestamp-keyed binary file in the rotating
// set written by a producer. The consumer side (internal/repository) only
// ever reads the fixed-size header; segment payload bytes stay owned by
// the producer.
package segment

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"segstream/internal/format"
)

// Suffix identifies segment files within a repository directory.
// Entries without this suffix are ignored entirely.
const Suffix = ".seg"

// IsSegment reports whether path names a segment file, by suffix only.
func IsSegment(path string) bool {
	return strings.HasSuffix(path, Suffix)
}

// ReadHeader opens the file at path and decodes its header.
//
// It reads only the bounded header region. The file may be concurrently
// deleted or truncated by the producer or by retention cleanup; either
// surfaces as an ordinary error the caller should treat as transient.
func ReadHeader(path string) (format.Header, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return format.Header{}, err
	}
	defer file.Close()

	var buf [format.HeaderSize]byte
	if _, err := io.ReadFull(file, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return format.Header{}, format.ErrHeaderTooSmall
		}
		return format.Header{}, err
	}
	return format.Decode(buf[:])
}

// ReadStart returns the start time of the segment at path, in Unix
// nanoseconds, by decoding its header.
func ReadStart(path string) (int64, error) {
	header, err := ReadHeader(path)
	if err != nil {
		return 0, err
	}
	return header.StartNanos, nil
}
