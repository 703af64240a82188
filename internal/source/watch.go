package source

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watcher calls onChange, debounced, whenever a watched source file is
// written or replaced. Directories are watched instead of the files
// themselves so editors that save by rename are still seen.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(string)
	logger   *slog.Logger

	mu       sync.Mutex
	files    map[string]struct{}
	dirs     map[string]struct{}
	debounce map[string]*time.Timer
	done     chan struct{}
	closed   bool
}

func NewWatcher(onChange func(string), logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{
		watcher:  fw,
		onChange: onChange,
		logger:   logger,
		files:    map[string]struct{}{},
		dirs:     map[string]struct{}{},
		debounce: map[string]*time.Timer{},
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[abs]; ok {
		return nil
	}
	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = struct{}{}
	}
	w.files[abs] = struct{}{}
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(filepath.Clean(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("source watch error", "err", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, watching := w.files[name]; !watching || w.closed {
		return
	}
	if t, ok := w.debounce[name]; ok {
		t.Stop()
	}
	w.debounce[name] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.debounce, name)
		closed := w.closed
		w.mu.Unlock()
		if closed || w.onChange == nil {
			return
		}
		w.logger.Debug("source changed", "path", name)
		w.onChange(name)
	})
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.debounce {
		t.Stop()
	}
	w.mu.Unlock()
	close(w.done)
	return w.watcher.Close()
}
