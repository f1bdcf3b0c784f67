package bridgesync

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reconciles in the background whenever the task document changes.
// It watches the containing directory because the store replaces the file by
// rename, which drops a watch placed on the file itself.
type Watcher struct {
	sweeper  *Sweeper
	path     string
	debounce time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher starts watching the task document at path. Close releases the
// watch; the caller owns the lifecycle.
func NewWatcher(sweeper *Sweeper, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		sweeper:  sweeper,
		path:     path,
		debounce: 500 * time.Millisecond,
		timeout:  2 * time.Minute,
		logger:   logger,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

// run debounces bursts of write events into one reconcile pass. A sweep that
// only confirms already-synced records writes nothing, so the sweep itself
// does not retrigger the watcher indefinitely.
func (w *Watcher) run() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				// Drain a fired-but-unread tick so Reset cannot deliver
				// a stale one.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("task file watch error", "error", err)

		case <-fire:
			timer = nil
			fire = nil
			ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
			res, err := w.sweeper.Reconcile(ctx)
			cancel()
			if err != nil {
				w.logger.Warn("background sync failed", "error", err)
				continue
			}
			if res.Pushed > 0 || res.Failed > 0 {
				w.logger.Info("background sync completed",
					"pushed", res.Pushed, "failed", res.Failed, "skipped", res.Skipped)
			}
		}
	}
}
