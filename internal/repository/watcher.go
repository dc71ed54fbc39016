package repository

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"segstream/internal/logging"
	"segstream/internal/notify"
	"segstream/internal/segment"
)

// Watcher bridges filesystem events on a segment directory to a wake
// signal, so readers blocked in a poll sleep rescan as soon as the
// producer rolls a segment instead of waiting out the poll interval.
//
// The watcher is purely advisory. Missed or dropped events never prevent
// discovery; the bounded poll in Files stays the correctness mechanism.
type Watcher struct {
	watcher *fsnotify.Watcher
	wake    *notify.Signal
	logger  *slog.Logger
}

// WatchRepository starts watching dir and notifies wake on segment file
// creation and writes. Call Run to process events.
func WatchRepository(dir string, wake *notify.Signal, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	return &Watcher{
		watcher: watcher,
		wake:    wake,
		logger:  logging.Default(logger).With("component", "repository-watcher"),
	}, nil
}

// Run processes filesystem events until ctx is cancelled or the
// underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !segment.IsSegment(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				w.logger.Debug("segment activity", "path", event.Name, "op", event.Op.String())
				w.wake.Notify()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}
