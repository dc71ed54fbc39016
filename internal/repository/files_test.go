package repository

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"segstream/internal/config"
	"segstream/internal/format"
	"segstream/internal/notify"
	"segstream/internal/segment"
)

const testInterval = 10 * time.Millisecond

func newTestFiles(t *testing.T, dir string) *Files {
	t.Helper()
	files, err := NewFiles(Config{Dir: dir, PollInterval: testInterval})
	if err != nil {
		t.Fatalf("new files: %v", err)
	}
	t.Cleanup(files.Close)
	return files
}

// writeSegment creates a finished segment file and returns its path.
func writeSegment(t *testing.T, dir string, startNanos int64) string {
	t.Helper()
	w, err := segment.Create(dir, startNanos, 0)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	if _, err := w.Write([]byte("data")); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	if err := w.Finish(startNanos); err != nil {
		t.Fatalf("finish segment: %v", err)
	}
	return w.Path()
}

// checkInvariants verifies the two mappings stay bijective and the key
// order stays strictly ascending.
func checkInvariants(t *testing.T, f *Files) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.starts) != len(f.byStart) || len(f.byStart) != len(f.byPath) {
		t.Fatalf("index sizes diverged: starts=%d byStart=%d byPath=%d",
			len(f.starts), len(f.byStart), len(f.byPath))
	}
	for i, nanos := range f.starts {
		if i > 0 && f.starts[i-1] >= nanos {
			t.Fatalf("keys not strictly ascending at %d: %v", i, f.starts)
		}
		path, ok := f.byStart[nanos]
		if !ok {
			t.Fatalf("key %d missing from byStart", nanos)
		}
		back, ok := f.byPath[path]
		if !ok || back != nanos {
			t.Fatalf("reverse lookup broken for %q: want %d, got %d (ok=%v)", path, nanos, back, ok)
		}
	}
}

func TestLatestBlocksUntilSegmentAppears(t *testing.T) {
	dir := t.TempDir()
	files := newTestFiles(t, dir)

	type result struct {
		path string
		ok   bool
	}
	got := make(chan result, 1)
	go func() {
		path, ok := files.Latest(context.Background())
		got <- result{path, ok}
	}()

	// Let the query block on the empty directory first.
	time.Sleep(3 * testInterval)
	select {
	case r := <-got:
		t.Fatalf("Latest returned %+v on empty directory", r)
	default:
	}

	want := writeSegment(t, dir, 1000)

	select {
	case r := <-got:
		if !r.ok || r.path != want {
			t.Errorf("Latest: want %q, got %+v", want, r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Latest did not observe new segment")
	}
	checkInvariants(t, files)
}

func TestLatestReturnsNewestSegment(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, 1000)
	writeSegment(t, dir, 3000)
	writeSegment(t, dir, 2000)
	files := newTestFiles(t, dir)

	path, ok := files.Latest(context.Background())
	if !ok {
		t.Fatal("Latest returned no result")
	}
	if nanos, _ := files.StartTime(path); nanos != 3000 {
		t.Errorf("Latest start time: want 3000, got %d", nanos)
	}
}

func TestFirstAtOrBefore(t *testing.T) {
	dir := t.TempDir()
	paths := map[int64]string{
		1000: writeSegment(t, dir, 1000),
		2000: writeSegment(t, dir, 2000),
		3000: writeSegment(t, dir, 3000),
	}
	files := newTestFiles(t, dir)

	tests := []struct {
		name  string
		nanos int64
		want  int64
	}{
		{name: "between keys floors", nanos: 2500, want: 2000},
		{name: "exact key", nanos: 2000, want: 2000},
		{name: "before everything ceils", nanos: 500, want: 1000},
		{name: "after everything floors to last", nanos: 3500, want: 3000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, ok := files.FirstAtOrBefore(context.Background(), tc.nanos)
			if !ok {
				t.Fatal("no result")
			}
			if path != paths[tc.want] {
				t.Errorf("want segment at %d (%q), got %q", tc.want, paths[tc.want], path)
			}
		})
	}
}

func TestNextAfter(t *testing.T) {
	dir := t.TempDir()
	p1000 := writeSegment(t, dir, 1000)
	p2000 := writeSegment(t, dir, 2000)
	files := newTestFiles(t, dir)

	// Exact match returns the same segment, protecting an iterating
	// reader against concurrent admissions reordering the index.
	if _, ok := files.NextAfter(1000); !ok {
		t.Fatal("initial scan found nothing")
	}
	if path, ok := files.NextAfter(1000); !ok || path != p1000 {
		t.Errorf("exact match: want %q, got %q (ok=%v)", p1000, path, ok)
	}

	if path, ok := files.NextAfter(1500); !ok || path != p2000 {
		t.Errorf("ceiling: want %q, got %q (ok=%v)", p2000, path, ok)
	}

	// Nothing at or after 2500 yet: not available right now, no blocking.
	start := time.Now()
	if path, ok := files.NextAfter(2500); ok {
		t.Errorf("want no result, got %q", path)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("NextAfter blocked for %v", elapsed)
	}
}

func TestRemovedSegmentDropsFromIndex(t *testing.T) {
	dir := t.TempDir()
	p1000 := writeSegment(t, dir, 1000)
	p2000 := writeSegment(t, dir, 2000)
	files := newTestFiles(t, dir)

	if _, ok := files.NextAfter(math.MinInt64); !ok {
		t.Fatal("initial scan found nothing")
	}
	if _, ok := files.StartTime(p1000); !ok {
		t.Fatal("segment at 1000 not admitted")
	}

	// Retention cleanup deletes the oldest segment out from under us.
	if err := os.Remove(p1000); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if path, ok := files.NextAfter(500); !ok || path != p2000 {
		t.Errorf("after removal: want %q, got %q (ok=%v)", p2000, path, ok)
	}
	if _, ok := files.StartTime(p1000); ok {
		t.Error("removed segment still has a start time")
	}
	if path, ok := files.FirstAtOrBefore(context.Background(), 1500); !ok || path != p2000 {
		t.Errorf("FirstAtOrBefore after removal: want %q, got %q", p2000, path)
	}
	checkInvariants(t, files)
}

func TestIncompleteHeaderNotAdmitted(t *testing.T) {
	dir := t.TempDir()
	files := newTestFiles(t, dir)

	// Producer mid-write: only part of the header exists yet.
	header := format.Header{StartNanos: 1000}.Encode()
	path := filepath.Join(dir, "1000_cafe0000.seg")
	if err := os.WriteFile(path, header[:40], 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}

	if got, ok := files.NextAfter(500); ok {
		t.Errorf("incomplete segment admitted: %q", got)
	}

	// The file grows past the header threshold; the next scan admits it.
	if err := os.WriteFile(path, header[:], 0o644); err != nil {
		t.Fatalf("write full: %v", err)
	}
	if got, ok := files.NextAfter(500); !ok || got != path {
		t.Errorf("grown segment: want %q, got %q (ok=%v)", path, got, ok)
	}
	if nanos, ok := files.StartTime(path); !ok || nanos != 1000 {
		t.Errorf("StartTime: want 1000, got %d (ok=%v)", nanos, ok)
	}
}

func TestExtractionFailureIsolatedPerFile(t *testing.T) {
	dir := t.TempDir()

	// A corrupt file that sorts before a valid one in the same batch.
	garbage := make([]byte, format.HeaderSize)
	garbage[0] = 'x'
	if err := os.WriteFile(filepath.Join(dir, "1000_bad.seg"), garbage, 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	good := writeSegment(t, dir, 2000)

	files := newTestFiles(t, dir)
	if path, ok := files.NextAfter(500); !ok || path != good {
		t.Errorf("valid file not admitted despite earlier failure: got %q (ok=%v)", path, ok)
	}
}

func TestStartTimeStableAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := writeSegment(t, dir, 42)
	files := newTestFiles(t, dir)

	if _, ok := files.NextAfter(0); !ok {
		t.Fatal("scan found nothing")
	}
	for range 5 {
		if nanos, ok := files.StartTime(path); !ok || nanos != 42 {
			t.Fatalf("StartTime changed: got %d (ok=%v)", nanos, ok)
		}
	}
}

func TestCloseUnblocksQueries(t *testing.T) {
	files := newTestFiles(t, t.TempDir())

	done := make(chan bool, 2)
	go func() {
		_, ok := files.Latest(context.Background())
		done <- ok
	}()
	go func() {
		_, ok := files.FirstAtOrBefore(context.Background(), 1000)
		done <- ok
	}()

	time.Sleep(2 * testInterval)
	files.Close()

	for range 2 {
		select {
		case ok := <-done:
			if ok {
				t.Error("closed query reported a result")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("query still blocked after Close")
		}
	}

	// Closed is terminal: every later call returns absence immediately.
	if _, ok := files.Latest(context.Background()); ok {
		t.Error("Latest after Close returned a result")
	}
	if _, ok := files.NextAfter(0); ok {
		t.Error("NextAfter after Close returned a result")
	}
	files.Close() // second close is a no-op
}

func TestContextCancelUnblocksQueries(t *testing.T) {
	files := newTestFiles(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := files.Latest(ctx)
		done <- ok
	}()

	time.Sleep(2 * testInterval)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("cancelled query reported a result")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("query still blocked after cancel")
	}
}

func TestWakeSignalShortensPollLatency(t *testing.T) {
	dir := t.TempDir()
	wake := notify.NewSignal()
	settings := config.NewSettings("")
	if err := settings.SetRepository(dir); err != nil {
		t.Fatalf("set repository: %v", err)
	}

	// Poll interval far beyond the test deadline: only the wake signal
	// can unblock the query in time.
	files, err := NewFiles(Config{
		Locator:      SettingsLocator(settings),
		Wake:         wake,
		PollInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("new files: %v", err)
	}
	defer files.Close()

	got := make(chan string, 1)
	go func() {
		path, _ := files.Latest(context.Background())
		got <- path
	}()

	time.Sleep(50 * time.Millisecond)
	want := writeSegment(t, dir, 1000)
	wake.Notify()

	select {
	case path := <-got:
		if path != want {
			t.Errorf("want %q, got %q", want, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("wake signal did not unblock the query")
	}
}

func TestDynamicLocationUnavailableThenConfigured(t *testing.T) {
	dir := t.TempDir()
	want := writeSegment(t, dir, 1000)
	settings := config.NewSettings("")

	files, err := NewFiles(Config{
		Locator:      SettingsLocator(settings),
		PollInterval: testInterval,
	})
	if err != nil {
		t.Fatalf("new files: %v", err)
	}
	defer files.Close()

	if files.HasFixedLocation() {
		t.Error("settings-located index claims fixed location")
	}

	got := make(chan string, 1)
	go func() {
		path, _ := files.Latest(context.Background())
		got <- path
	}()

	// Unconfigured location: scans make no progress, the query blocks.
	time.Sleep(3 * testInterval)
	select {
	case path := <-got:
		t.Fatalf("Latest returned %q before location configured", path)
	default:
	}

	if err := settings.SetRepository(dir); err != nil {
		t.Fatalf("set repository: %v", err)
	}

	select {
	case path := <-got:
		if path != want {
			t.Errorf("want %q, got %q", want, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Latest did not observe configured location")
	}
}

func TestHasFixedLocation(t *testing.T) {
	fixed := newTestFiles(t, t.TempDir())
	if !fixed.HasFixedLocation() {
		t.Error("dir-constructed index does not claim fixed location")
	}
	if _, err := NewFiles(Config{}); err != ErrMissingLocation {
		t.Errorf("want ErrMissingLocation, got %v", err)
	}
}

func TestNonSegmentFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := writeSegment(t, dir, 1000)
	files := newTestFiles(t, dir)

	if path, ok := files.NextAfter(0); !ok || path != want {
		t.Errorf("want %q, got %q (ok=%v)", want, path, ok)
	}
	checkInvariants(t, files)
}

func TestConcurrentQueriesKeepIndexConsistent(t *testing.T) {
	dir := t.TempDir()
	files := newTestFiles(t, dir)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	// Producer: roll segments while readers hammer the index.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := int64(1); i <= 20; i++ {
			w, err := segment.Create(dir, i*1000, 0)
			if err != nil {
				t.Errorf("create segment: %v", err)
				return
			}
			if err := w.Finish(i * 1000); err != nil {
				t.Errorf("finish segment: %v", err)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if path, ok := files.Latest(ctx); ok {
					if _, ok := files.StartTime(path); !ok {
						t.Error("Latest returned a path with no start time")
						return
					}
				}
				if path, ok := files.FirstAtOrBefore(ctx, 5_000); ok {
					if _, ok := files.StartTime(path); !ok {
						t.Error("FirstAtOrBefore returned a path with no start time")
						return
					}
				}
				files.NextAfter(2_500)
			}
		}()
	}

	wg.Wait()
	checkInvariants(t, files)
}

func TestIterationWalksSegmentsInOrder(t *testing.T) {
	dir := t.TempDir()
	for _, nanos := range []int64{3000, 1000, 2000} {
		writeSegment(t, dir, nanos)
	}
	files := newTestFiles(t, dir)

	var got []int64
	key := int64(math.MinInt64)
	for {
		path, ok := files.NextAfter(key)
		if !ok {
			break
		}
		nanos, ok := files.StartTime(path)
		if !ok {
			t.Fatalf("no start time for %q", path)
		}
		got = append(got, nanos)
		key = nanos + 1
	}

	want := []int64{1000, 2000, 3000}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}
