package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches bursts of filesystem events (editors commonly
// write, chmod and rename in quick succession) into one callback.
const DefaultDebounce = 250 * time.Millisecond

// Watcher observes a project tree and reports changed Python files so
// callers can invalidate cached subgraphs.
type Watcher struct {
	root     string
	debounce time.Duration
	ignored  map[string]bool
}

func New(root string) *Watcher {
	return &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		ignored: map[string]bool{
			".git": true, ".venv": true, "venv": true,
			"node_modules": true, "__pycache__": true,
		},
	}
}

// Run blocks until the context is cancelled, invoking onChange with the
// batch of .py paths (slash-separated) touched since the last flush. New
// directories are picked up as they appear.
func (w *Watcher) Run(ctx context.Context, onChange func(changed []string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	pending := map[string]bool{}

	reset := func(path string) {
		pending[filepath.ToSlash(path)] = true
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(name); err == nil && info.IsDir() {
					// A new directory needs its own watch before events
					// inside it can be seen.
					w.maybeWatchDir(fw, name)
				}
			}
			if !strings.HasSuffix(name, ".py") {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
				event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				reset(name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return err
			}
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			pending = map[string]bool{}
			onChange(changed)
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored[d.Name()] {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) maybeWatchDir(fw *fsnotify.Watcher, path string) {
	if w.ignored[filepath.Base(path)] {
		return
	}
	// Best effort: the path may be a file, or already gone.
	_ = w.addRecursive(fw, path)
}
