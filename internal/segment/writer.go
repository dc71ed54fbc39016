package segment

import (
	"cmp"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"segstream/internal/format"
)

var (
	ErrWriterFinished = errors.New("segment writer is finished")
	ErrEndBeforeStart = errors.New("segment end precedes start")
)

// Writer creates one segment file. The header is written first with an
// unfinished flag; Finish patches the duration and data size and seals
// the file. Readers gate on file size reaching format.HeaderSize, so a
// half-written header is never observed as a valid segment.
type Writer struct {
	path     string
	file     *os.File
	header   format.Header
	dataSize int64
	finished bool
}

// Create creates a new segment file in dir with the given start time.
// The file is named <start-nanos>_<short-id>.seg; the name is a producer
// convenience only, consumers key segments by the header start time.
func Create(dir string, startNanos int64, fileMode os.FileMode) (*Writer, error) {
	fileMode = cmp.Or(fileMode, 0o644)
	id := uuid.Must(uuid.NewV7())
	name := fmt.Sprintf("%d_%s%s", startNanos, hex.EncodeToString(id[:4]), Suffix)
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_EXCL|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, err
	}

	header := format.Header{
		ID:         id,
		StartNanos: startNanos,
		DataOffset: format.HeaderSize,
	}
	buf := header.Encode()
	if _, err := file.Write(buf[:]); err != nil {
		_ = file.Close()
		return nil, err
	}

	return &Writer{path: path, file: file, header: header}, nil
}

// Path returns the segment file path.
func (w *Writer) Path() string { return w.path }

// ID returns the segment ID assigned at creation.
func (w *Writer) ID() uuid.UUID { return w.header.ID }

// Write appends payload bytes after the header.
func (w *Writer) Write(p []byte) (int, error) {
	if w.finished {
		return 0, ErrWriterFinished
	}
	n, err := w.file.Write(p)
	w.dataSize += int64(n)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Finish seals the segment: the header is patched with the final
// duration, the data size and the finished flag, and the file is closed.
func (w *Writer) Finish(endNanos int64) error {
	if w.finished {
		return ErrWriterFinished
	}
	if endNanos < w.header.StartNanos {
		return ErrEndBeforeStart
	}
	w.finished = true

	w.header.Duration = endNanos - w.header.StartNanos
	w.header.DataSize = w.dataSize
	w.header.Flags |= format.FlagFinished
	buf := w.header.Encode()
	if _, err := w.file.WriteAt(buf[:], 0); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Abort closes the file without sealing it. The unfinished flag stays
// unset, marking the segment as abandoned mid-write.
func (w *Writer) Abort() error {
	if w.finished {
		return nil
	}
	w.finished = true
	return w.file.Close()
}
