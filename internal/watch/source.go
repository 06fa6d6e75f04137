package watch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/logfields"
)

// Op describes what happened to a path.
type Op string

const (
	OpCreate Op = "create"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpRename Op = "rename"
)

// FileChangeEvent is a single filesystem change notification.
type FileChangeEvent struct {
	Path string // absolute
	Op   Op
	At   time.Time
}

// Source produces file change events until it is closed.
type Source interface {
	Events() <-chan FileChangeEvent
	Errors() <-chan error
	Close() error
}

// FSNotifySource watches directory trees with fsnotify. Directories created after
// start are added automatically; hidden, editor swap and temp files are ignored.
type FSNotifySource struct {
	watcher *fsnotify.Watcher
	events  chan FileChangeEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFSNotifySource starts watching every existing directory below roots.
// Missing roots are skipped with a warning.
func NewFSNotifySource(roots ...string) (*FSNotifySource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryWatch, "create filesystem watcher").Build()
	}
	s := &FSNotifySource{
		watcher: watcher,
		events:  make(chan FileChangeEvent, 64),
		errors:  make(chan error, 8),
		done:    make(chan struct{}),
	}

	watched := 0
	for _, root := range dedupeRoots(roots) {
		fi, err := os.Stat(root)
		if err != nil || !fi.IsDir() {
			slog.Warn("Watch root not found; skipping", logfields.Path(root))
			continue
		}
		if err := addDirsRecursive(watcher, root); err != nil {
			_ = watcher.Close()
			return nil, err
		}
		watched++
	}
	if watched == 0 && len(roots) > 0 {
		_ = watcher.Close()
		return nil, ferrors.WatchError("no watchable directories").
			WithContext("roots", strings.Join(roots, ",")).
			Build()
	}

	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// dedupeRoots drops roots nested below another root.
func dedupeRoots(roots []string) []string {
	var out []string
	for _, r := range roots {
		r = filepath.Clean(r)
		nested := false
		for _, other := range roots {
			other = filepath.Clean(other)
			if other != r && strings.HasPrefix(r, other+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested && !contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *FSNotifySource) Events() <-chan FileChangeEvent { return s.events }
func (s *FSNotifySource) Errors() <-chan error           { return s.errors }

// Close stops the watcher and closes the event channels.
func (s *FSNotifySource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
		close(s.events)
		close(s.errors)
	})
	return err
}

func (s *FSNotifySource) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			change, ok := s.translate(ev)
			if !ok {
				continue
			}
			select {
			case s.events <- change:
			case <-s.done:
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
				slog.Warn("Watcher error dropped", logfields.Error(err))
			}
		}
	}
}

func (s *FSNotifySource) translate(ev fsnotify.Event) (FileChangeEvent, bool) {
	if shouldIgnoreEvent(ev.Name) {
		return FileChangeEvent{}, false
	}
	var op Op
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = addDirsRecursive(s.watcher, ev.Name)
		}
	case ev.Has(fsnotify.Write):
		op = OpWrite
	case ev.Has(fsnotify.Remove):
		op = OpRemove
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		// chmod only
		return FileChangeEvent{}, false
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		path = ev.Name
	}
	return FileChangeEvent{Path: path, Op: op, At: time.Now()}, true
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := w.Add(path); err != nil {
				slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnoreEvent returns true for filesystem events that should not trigger rebuilds.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)

	// Hidden files, including .DS_Store and emacs ".#" locks
	if strings.HasPrefix(base, ".") {
		return true
	}

	// Editor temp/swap files
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		base == "4913" || // vim write probe
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	return base == "Thumbs.db"
}

func (e FileChangeEvent) String() string {
	return fmt.Sprintf("%s %s", e.Op, e.Path)
}
