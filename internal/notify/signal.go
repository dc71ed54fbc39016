// Package notify provides the broadcast wake signal used to shorten the
// repository poll latency.
//
// A producer that has just rolled a new segment may call Notify on the
// signal shared with the repository indexes; every blocked reader wakes
// and rescans immediately instead of waiting out its poll timeout. The
// signal is advisory: readers never rely on it for correctness, only for
// latency.
package notify

import "sync"

// Signal is a broadcast notification mechanism. Waiters select on C(),
// and any call to Notify() wakes all of them by closing the channel and
// replacing it with a fresh one.
//
// A waiter that grabs C() before deciding to sleep can never miss a
// wakeup: a Notify racing ahead of the select closes the very channel
// the waiter already holds.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal creates a ready-to-use Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify wakes all current waiters. Safe to call from any goroutine,
// any number of times.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel that is closed on the next Notify call. Callers
// must re-call C() after each wakeup to obtain the next channel.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}
