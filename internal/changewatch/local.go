package changewatch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/savegem/internal/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// LocalWatcher reports edits inside a save directory. Bursts of filesystem
// events collapse into a single pending update.
type LocalWatcher struct {
	fs      afero.Fs
	watcher *fsnotify.Watcher
	updates chan struct{}
}

// WatchLocal watches root and every directory below it. fsnotify is not
// recursive, so directories created later are added as they appear.
func WatchLocal(fs afero.Fs, root string) (*LocalWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	dirs, err := listDirs(fs, root)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watch %q: %w", dir, err)
		}
	}

	w := &LocalWatcher{fs: fs, watcher: watcher, updates: make(chan struct{}, 1)}
	go w.combine()
	return w, nil
}

func listDirs(fs afero.Fs, root string) ([]string, error) {
	var dirs []string
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}
	return dirs, nil
}

func (w *LocalWatcher) combine() {
	defer close(w.updates)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := w.fs.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = w.watcher.Add(ev.Name)
				}
			}
			if !relevant(ev) {
				continue
			}
			select {
			case w.updates <- struct{}{}:
			default:
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// relevant drops metadata file writes, which every transfer produces itself
func relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return filepath.Base(ev.Name) != utils.MetadataFileName
}

// Updates yields once per burst of relevant changes. It is closed by Close.
func (w *LocalWatcher) Updates() <-chan struct{} {
	return w.updates
}

func (w *LocalWatcher) Close() error {
	return w.watcher.Close()
}
