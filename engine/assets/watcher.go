package assets

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/anima-builder/engine/core"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher reports changes below a content root. Events are collected for
// the debounce interval and delivered as one batch of paths.
type Watcher struct {
	fsnotify *fsnotify.Watcher
	root     string
	debounce time.Duration
	onChange func(changed, removed []string)

	mu      sync.Mutex
	changed map[string]struct{}
	removed map[string]struct{}
	timer   *time.Timer

	done   chan struct{}
	closed bool
	wg     sync.WaitGroup

	logger *core.Logger
}

func NewWatcher(root string, debounce time.Duration, onChange func(changed, removed []string)) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		fsnotify: fsWatch,
		root:     root,
		debounce: debounce,
		onChange: onChange,
		changed:  make(map[string]struct{}),
		removed:  make(map[string]struct{}),
		done:     make(chan struct{}),
		logger:   core.NewLogger("Watcher"),
	}
	if err := w.watchRecursive(root, false); err != nil {
		fsWatch.Close()
		return nil, err
	}
	w.wg.Add(1)
	go w.start()
	return w, nil
}

// Close stops watching and waits for the event loop to exit. Pending
// changes are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("watcher already closed")
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			w.handle(e)

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("watch error: %s", err)

		case <-w.done:
			w.fsnotify.Close()
			return
		}
	}
}

func (w *Watcher) handle(e fsnotify.Event) {
	if ignored(e.Name) {
		return
	}
	s, err := os.Stat(e.Name)
	if err == nil && s.IsDir() {
		if e.Op&fsnotify.Create != 0 {
			w.watchRecursive(e.Name, false)
			w.record(e.Name, false)
		}
		return
	}

	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.record(e.Name, false)
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A removed directory cannot be stat'ed, so try to unwatch it anyway.
		w.fsnotify.Remove(e.Name)
		w.record(e.Name, true)
	}
}

func (w *Watcher) record(path string, removed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if removed {
		delete(w.changed, path)
		w.removed[path] = struct{}{}
	} else {
		delete(w.removed, path)
		w.changed[path] = struct{}{}
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.flush)
	} else {
		w.timer.Reset(w.debounce)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	changed := keys(w.changed)
	removed := keys(w.removed)
	w.changed = make(map[string]struct{})
	w.removed = make(map[string]struct{})
	w.mu.Unlock()

	if len(changed)+len(removed) > 0 && w.onChange != nil {
		w.onChange(changed, removed)
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ignored filters sidecars and hidden files, which the importer writes
// itself.
func ignored(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "."+SidecarExt)
}

// watchRecursive adds all directories under the given one to the watch list.
func (w *Watcher) watchRecursive(path string, unWatch bool) error {
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if walkPath != path && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if unWatch {
			return w.fsnotify.Remove(walkPath)
		}
		return w.fsnotify.Add(walkPath)
	})
}
