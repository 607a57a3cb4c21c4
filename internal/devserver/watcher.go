package devserver

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watch feeds file system events to the session. The watched directory
// set follows the module graph after every rebuild. Directories created
// inside a watched directory are watched as well, since fsnotify is not
// recursive and a missing module may appear in them later.
func (s *Server) watch(ctx context.Context) error {
	watcher, err := s.newWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	w := &dirWatcher{
		Watcher: watcher,
		watched: make(map[string]bool),
		created: make(map[string]bool),
	}
	s.syncWatches(w)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.resync:
			s.syncWatches(w)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			s.logger.Debug("file changed", "file", event.Name, "op", event.Op.String())
			s.session.Notify(event.Name)
			if event.Has(fsnotify.Create) {
				s.watchCreated(w, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	// Editor swap and backup files.
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}

// watchDirs returns the directories holding graph modules plus the
// configured watch roots.
func (s *Server) watchDirs() map[string]bool {
	dirs := make(map[string]bool)
	for _, root := range s.cfg.WatchRoots {
		dirs[filepath.Clean(root)] = true
	}
	if g := s.builder.Graph(); g != nil {
		for _, p := range g.Paths() {
			dirs[filepath.Dir(p)] = true
		}
	}
	return dirs
}

// dirWatcher tracks the directories added to an fsnotify watcher.
type dirWatcher struct {
	*fsnotify.Watcher
	watched map[string]bool
	// created holds directories that appeared while watching. They stay
	// watched until they are removed from disk.
	created map[string]bool
}

func (s *Server) syncWatches(w *dirWatcher) {
	want := s.watchDirs()
	for dir := range w.created {
		if !isDir(dir) {
			delete(w.created, dir)
			continue
		}
		want[dir] = true
	}
	for dir := range want {
		if w.watched[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			s.logger.Debug("failed to watch directory", "dir", dir, "error", err)
			continue
		}
		w.watched[dir] = true
	}
	for dir := range w.watched {
		if !want[dir] {
			_ = w.Remove(dir)
			delete(w.watched, dir)
		}
	}
}

// watchCreated starts watching a newly created directory tree and notifies
// the session of every file already in it, since those may have been
// written before the watch was added.
func (s *Server) watchCreated(w *dirWatcher, path string) {
	if !isDir(path) {
		return
	}
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // a vanished entry is not fatal
		}
		if strings.HasPrefix(d.Name(), ".") && p != path {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			s.session.Notify(p)
			return nil
		}
		if w.watched[p] {
			return nil
		}
		if err := w.Add(p); err != nil {
			s.logger.Debug("failed to watch directory", "dir", p, "error", err)
			return nil
		}
		w.watched[p] = true
		w.created[p] = true
		s.logger.Debug("watching new directory", "dir", p)
		return nil
	})
	if err != nil {
		s.logger.Debug("failed to walk new directory", "dir", path, "error", err)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
