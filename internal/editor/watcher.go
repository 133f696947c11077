package editor

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"tools.zach/dev/editorcord/internal/paths"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// defaultPollInterval is the stat interval used when fsnotify is unavailable.
const defaultPollInterval = 2 * time.Second

// Watcher signals whenever any editor state file in a directory is written.
// It uses fsnotify and falls back to polling modification times when the
// platform (or a network filesystem) does not deliver events.
type Watcher struct {
	dir string
	// events is buffered to 1 so bursts of writes coalesce into one signal.
	events chan struct{}
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	fsw *fsnotify.Watcher

	polling      atomic.Bool
	pollInterval time.Duration
}

// NewWatcher starts watching dir for state file changes.
func NewWatcher(dir string) (*Watcher, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		dir:          dir,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: defaultPollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		slog.Info("cannot watch directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Events returns the change notification channel.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if cerr := w.fsw.Close(); cerr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", cerr)
			}
			w.fsw = nil
		}
	})
	return err
}

// watch forwards write/create events for state files. An fsnotify error
// switches the watcher to polling for the rest of its life.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) && paths.IsStateFile(ev.Name) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw != nil {
				w.fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// poll notifies when the newest state file modification time advances.
func (w *Watcher) poll() {
	last := w.latestMod()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if mod := w.latestMod(); mod.After(last) {
				last = mod
				w.notify()
			}
		}
	}
}

// latestMod returns the newest modification time among state files.
func (w *Watcher) latestMod() time.Time {
	var latest time.Time
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return latest
	}
	for _, e := range entries {
		if e.IsDir() || !paths.IsStateFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest
}

// notify queues a signal unless one is already pending.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
