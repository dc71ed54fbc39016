// Package repository indexes a directory of rotating segment files so
// that streaming readers can locate segments by time and be notified as
// new segments appear.
//
// A producer continuously rolls new segment files into the directory and
// retention cleanup may delete old ones at any time; neither coordinates
// with this package. Discovery is scan-driven: every query call lists the
// directory, diffs it against the known set, admits files whose header is
// complete, and updates a time-keyed index. Blocking queries sleep on a
// wake signal with a bounded timeout between scans, so progress never
// depends on the advisory wake.
package repository

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"segstream/internal/format"
	"segstream/internal/logging"
	"segstream/internal/notify"
	"segstream/internal/segment"
)

// DefaultPollInterval bounds the sleep between scans of a blocking
// query. A wake signal or Close interrupts the sleep early; without
// either, polling alone guarantees progress within one interval.
const DefaultPollInterval = time.Second

var ErrMissingLocation = errors.New("repository files need a dir or a locator")

type Config struct {
	// Dir is a fixed segment directory, captured at construction and
	// never re-resolved. Mutually exclusive with Locator.
	Dir string

	// Locator resolves the segment directory on every scan. Used when
	// the repository location is dynamic (runtime settings).
	Locator Locator

	// Wake is the broadcast signal that shortens poll latency for
	// dynamically located instances; typically one Signal is shared by
	// every such instance in the process so any producer can wake them
	// all. If nil, or when Dir is set, the instance owns a private
	// signal that nothing external is expected to notify.
	Wake *notify.Signal

	// PollInterval bounds the sleep between scans.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration

	// ReadStart extracts a segment's start time from its header.
	// Defaults to segment.ReadStart. A failure is transient: the file
	// is skipped this pass and retried on the next scan.
	ReadStart func(path string) (int64, error)

	// MinSize is the minimum file size for admission; smaller files are
	// still being written. Defaults to format.HeaderSize.
	MinSize int64

	// Logger for structured logging. If nil, logging is disabled.
	// Scoped with component="repository".
	Logger *slog.Logger
}

// Files is the ordered, time-keyed index of admitted segments.
//
// The index maps start time (Unix nanoseconds) to path and path back to
// start time; both mappings and the key order live behind one mutex, so
// concurrent queries never observe a torn index. A path's start time is
// fixed once admitted; entries only appear on admission and disappear
// when the file vanishes from a scan.
//
// All methods are safe for concurrent use. Close is terminal: every
// blocked call observes it within one poll interval and returns absence.
type Files struct {
	locator   Locator
	fixed     bool
	wake      *notify.Signal
	interval  time.Duration
	readStart func(string) (int64, error)
	minSize   int64
	logger    *slog.Logger

	mu      sync.Mutex
	starts  []int64          // admitted start times, ascending
	byStart map[int64]string // start time -> path
	byPath  map[string]int64 // path -> start time

	done      chan struct{}
	closeOnce sync.Once
}

// NewFiles creates a segment index over a fixed directory (cfg.Dir) or a
// dynamically resolved one (cfg.Locator).
func NewFiles(cfg Config) (*Files, error) {
	fixed := cfg.Dir != ""
	locator := cfg.Locator
	if fixed {
		locator = FixedLocator(cfg.Dir)
	}
	if locator == nil {
		return nil, ErrMissingLocation
	}

	wake := cfg.Wake
	if fixed || wake == nil {
		wake = notify.NewSignal()
	}
	readStart := cfg.ReadStart
	if readStart == nil {
		readStart = segment.ReadStart
	}

	return &Files{
		locator:   locator,
		fixed:     fixed,
		wake:      wake,
		interval:  cmp.Or(cfg.PollInterval, DefaultPollInterval),
		readStart: readStart,
		minSize:   cmp.Or(cfg.MinSize, int64(format.HeaderSize)),
		logger:    logging.Default(cfg.Logger).With("component", "repository"),
		byStart:   make(map[int64]string),
		byPath:    make(map[string]int64),
		done:      make(chan struct{}),
	}, nil
}

// HasFixedLocation reports whether the instance was constructed with a
// fixed directory rather than a dynamic locator.
func (f *Files) HasFixedLocation() bool { return f.fixed }

// Close marks the index closed and wakes every blocked query. Closing is
// one-way; calls after the first are no-ops.
func (f *Files) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
		f.wake.Notify()
	})
}

func (f *Files) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Latest blocks until at least one segment is indexed and returns the
// path with the greatest start time. ok is false only if the index is
// closed or ctx is cancelled before any segment ever appears.
func (f *Files) Latest(ctx context.Context) (string, bool) {
	return f.waitFor(ctx, func() (string, bool) {
		if len(f.starts) == 0 {
			return "", false
		}
		return f.byStart[f.starts[len(f.starts)-1]], true
	})
}

// FirstAtOrBefore returns the segment that was active at nanos: the one
// with the greatest start time at or before nanos. If no indexed segment
// starts at or before nanos (it predates everything known, e.g. after
// retention), the earliest segment at or after nanos is returned
// instead, blocking until one exists. ok is false once closed or ctx is
// cancelled.
func (f *Files) FirstAtOrBefore(ctx context.Context, nanos int64) (string, bool) {
	if _, ok := f.waitFor(ctx, f.anyLocked); !ok {
		return "", false
	}

	key := nanos
	f.mu.Lock()
	if floor, ok := f.floorLocked(nanos); ok {
		key = floor
	}
	f.mu.Unlock()

	return f.waitFor(ctx, func() (string, bool) {
		return f.ceilingLocked(key)
	})
}

// NextAfter returns the segment with the smallest start time at or after
// nanos, without blocking. An exact match on nanos is returned before
// any rescan, so an iterating reader that re-asks for the key it already
// holds is never skipped past by concurrent admissions. Otherwise one
// scan runs and the ceiling is returned if present; ok=false means
// "nothing available right now" and the caller is expected to retry.
func (f *Files) NextAfter(nanos int64) (string, bool) {
	if f.closed() {
		return "", false
	}

	f.mu.Lock()
	if path, ok := f.byStart[nanos]; ok {
		f.mu.Unlock()
		return path, true
	}
	f.mu.Unlock()

	f.scan()

	if f.closed() {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ceilingLocked(nanos)
}

// StartTime returns the start time of an admitted path. ok is false if
// the path is not currently indexed, e.g. after its file was removed by
// retention. Callers should only pass paths previously returned by this
// index.
func (f *Files) StartTime(path string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nanos, ok := f.byPath[path]
	return nanos, ok
}

// waitFor runs the scan loop until satisfied yields a path, the index is
// closed, or ctx is cancelled. satisfied is called with f.mu held.
//
// The wake channel is grabbed before scanning: a Notify that races ahead
// of the sleep closes the channel the loop already holds, costing at
// worst one extra scan, never a lost wakeup.
func (f *Files) waitFor(ctx context.Context, satisfied func() (string, bool)) (string, bool) {
	for {
		if f.closed() || ctx.Err() != nil {
			return "", false
		}

		wakeCh := f.wake.C()
		f.scan()

		f.mu.Lock()
		path, ok := satisfied()
		f.mu.Unlock()
		if ok {
			return path, true
		}

		f.nap(ctx, wakeCh)
	}
}

func (f *Files) nap(ctx context.Context, wakeCh <-chan struct{}) {
	timer := time.NewTimer(f.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-wakeCh:
	case <-f.done:
	case <-ctx.Done():
	}
}

// scan lists the current directory, diffs it against the known set and
// updates the index: vanished paths are dropped, then new files whose
// header is complete are admitted in path order. Reports whether at
// least one admission happened.
//
// Errors are transient by definition here: an unreadable directory
// yields no progress for this pass, and a file that vanishes or fails to
// parse between listing and reading is skipped and retried next scan
// without affecting the rest of the batch.
func (f *Files) scan() bool {
	dir, ok := f.locator.Resolve()
	if !ok {
		return false // location not initialized yet
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		f.logger.Debug("repository scan failed", "dir", dir, "error", err)
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var added []string
	current := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if !segment.IsSegment(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		current[path] = struct{}{}
		if _, known := f.byPath[path]; !known {
			added = append(added, path)
		}
	}

	for path := range f.byPath {
		if _, ok := current[path]; !ok {
			f.removeLocked(path)
			f.logger.Debug("segment removed", "path", path)
		}
	}

	// Admission order for files discovered in the same pass.
	slices.Sort(added)

	foundNew := false
	for _, path := range added {
		info, err := os.Stat(path)
		if err != nil {
			f.logger.Debug("segment vanished during scan", "path", path, "error", err)
			continue
		}
		if info.Size() < f.minSize {
			// Header incomplete, the producer is still writing.
			// Not remembered as known: retried on the next scan.
			continue
		}
		nanos, err := f.readStart(path)
		if err != nil {
			f.logger.Debug("segment header read failed", "path", path, "error", err)
			continue
		}
		f.insertLocked(nanos, path)
		foundNew = true
		f.logger.Debug("segment admitted", "path", path, "start", nanos)
	}
	return foundNew
}

func (f *Files) insertLocked(nanos int64, path string) {
	idx, exists := slices.BinarySearch(f.starts, nanos)
	if exists {
		// A later file claiming an already-indexed start time replaces
		// the old association; dropping the stale reverse entry keeps
		// the two mappings bijective.
		delete(f.byPath, f.byStart[nanos])
	} else {
		f.starts = slices.Insert(f.starts, idx, nanos)
	}
	f.byStart[nanos] = path
	f.byPath[path] = nanos
}

func (f *Files) removeLocked(path string) {
	nanos, ok := f.byPath[path]
	if !ok {
		return
	}
	delete(f.byPath, path)
	delete(f.byStart, nanos)
	if idx, exists := slices.BinarySearch(f.starts, nanos); exists {
		f.starts = slices.Delete(f.starts, idx, idx+1)
	}
}

func (f *Files) anyLocked() (string, bool) {
	if len(f.starts) == 0 {
		return "", false
	}
	return f.byStart[f.starts[0]], true
}

// floorLocked returns the greatest indexed start time <= nanos.
func (f *Files) floorLocked(nanos int64) (int64, bool) {
	idx, exists := slices.BinarySearch(f.starts, nanos)
	if exists {
		return nanos, true
	}
	if idx == 0 {
		return 0, false
	}
	return f.starts[idx-1], true
}

// ceilingLocked returns the path with the smallest start time >= nanos.
func (f *Files) ceilingLocked(nanos int64) (string, bool) {
	idx, _ := slices.BinarySearch(f.starts, nanos)
	if idx == len(f.starts) {
		return "", false
	}
	return f.byStart[f.starts[idx]], true
}
